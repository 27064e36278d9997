package product

import (
	"fmt"
	"strings"
	"time"

	"github.com/iclalusta/e-commerce-microservice/internal/domain/errs"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = fmt.Errorf("product: %w", errs.ErrNotFound)
	ErrConflict          = fmt.Errorf("product: %w", errs.ErrConflict)
	ErrInvalidQuantity   = fmt.Errorf("product: %w: quantity must be greater than zero", errs.ErrValidation)
	ErrInvalidPrice      = fmt.Errorf("product: %w: price must be zero or greater", errs.ErrValidation)
	ErrInvalidStock      = fmt.Errorf("product: %w: stock must be zero or greater", errs.ErrValidation)
	ErrMissingName       = fmt.Errorf("product: %w: name is required", errs.ErrValidation)
	ErrInsufficientStock = fmt.Errorf("product: %w: insufficient stock", errs.ErrValidation)
)

// Product is owned by the product service. Version increases by one on every
// mutation and is carried on product.updated so consumers can drop stale updates.
type Product struct {
	ID        string
	Name      string
	Price     decimal.Decimal
	Stock     int
	Version   int64
	UpdatedAt time.Time
}

func New(id, name string, price decimal.Decimal, stock int) (*Product, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrMissingName
	}
	if price.IsNegative() {
		return nil, ErrInvalidPrice
	}
	if stock < 0 {
		return nil, ErrInvalidStock
	}
	return &Product{
		ID:        id,
		Name:      name,
		Price:     price,
		Stock:     stock,
		Version:   1,
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// HasStock reports whether quantity units can be taken without going negative.
func (p *Product) HasStock(quantity int) bool {
	return quantity > 0 && p.Stock >= quantity
}

// DecreaseStock removes quantity units. With allowOversell the stock floors at
// zero and the uncovered part is returned as shortfall; without it an
// insufficient stock leaves the product untouched.
func (p *Product) DecreaseStock(quantity int, allowOversell bool) (shortfall int, err error) {
	if quantity <= 0 {
		return 0, ErrInvalidQuantity
	}
	if p.Stock < quantity {
		if !allowOversell {
			return 0, fmt.Errorf("%w: product %s has %d, need %d", ErrInsufficientStock, p.ID, p.Stock, quantity)
		}
		shortfall = quantity - p.Stock
		p.Stock = 0
	} else {
		p.Stock -= quantity
	}
	p.bump()
	return shortfall, nil
}

// IncreaseStock restocks quantity units.
func (p *Product) IncreaseStock(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	p.Stock += quantity
	p.bump()
	return nil
}

// Withdraw empties the stock of a product leaving the catalog, so its last
// snapshot tells carts to drop it.
func (p *Product) Withdraw() {
	p.Stock = 0
	p.bump()
}

// Patch holds the optional fields of a product update.
type Patch struct {
	Name  *string
	Price *decimal.Decimal
	Stock *int
}

// Apply validates and applies every set field of the patch as one mutation.
func (p *Product) Apply(patch Patch) error {
	next := *p
	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return ErrMissingName
		}
		next.Name = *patch.Name
	}
	if patch.Price != nil {
		if patch.Price.IsNegative() {
			return ErrInvalidPrice
		}
		next.Price = *patch.Price
	}
	if patch.Stock != nil {
		if *patch.Stock < 0 {
			return ErrInvalidStock
		}
		next.Stock = *patch.Stock
	}
	*p = next
	p.bump()
	return nil
}

func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

func (p *Product) bump() {
	p.Version++
	p.UpdatedAt = time.Now().UTC()
}
