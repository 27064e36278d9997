package cart

import (
	"fmt"
	"time"

	"github.com/iclalusta/e-commerce-microservice/internal/domain/errs"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = fmt.Errorf("cart: %w", errs.ErrNotFound)
	ErrItemNotFound    = fmt.Errorf("cart item: %w", errs.ErrNotFound)
	ErrInvalidQuantity = fmt.Errorf("cart: %w: quantity must be greater than zero", errs.ErrValidation)
	ErrMissingUser     = fmt.Errorf("cart: %w: userId is required", errs.ErrValidation)
	ErrMissingProduct  = fmt.Errorf("cart: %w: productId is required", errs.ErrValidation)
)

// Item caches the product price at the time it was added or last synchronized.
type Item struct {
	ProductID string
	Quantity  int
	Price     decimal.Decimal
}

// Cart is keyed by user; at most one per user.
type Cart struct {
	UserID    string
	Items     []Item
	UpdatedAt time.Time
}

func New(userID string) (*Cart, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	return &Cart{UserID: userID, UpdatedAt: time.Now().UTC()}, nil
}

// AddItem merges quantity into an existing line and refreshes its cached price.
func (c *Cart) AddItem(productID string, quantity int, price decimal.Decimal) error {
	if productID == "" {
		return ErrMissingProduct
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if i := c.index(productID); i >= 0 {
		c.Items[i].Quantity += quantity
		c.Items[i].Price = price
	} else {
		c.Items = append(c.Items, Item{ProductID: productID, Quantity: quantity, Price: price})
	}
	c.touch()
	return nil
}

// SetQuantity replaces a line's quantity; zero or less removes the line.
func (c *Cart) SetQuantity(productID string, quantity int) error {
	i := c.index(productID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrItemNotFound, productID)
	}
	if quantity <= 0 {
		c.removeAt(i)
		return nil
	}
	c.Items[i].Quantity = quantity
	c.touch()
	return nil
}

// RemoveItem drops the line for productID and reports whether it existed.
func (c *Cart) RemoveItem(productID string) bool {
	i := c.index(productID)
	if i < 0 {
		return false
	}
	c.removeAt(i)
	return true
}

// Reprice sets the cached price for productID. Quantity is left untouched.
func (c *Cart) Reprice(productID string, price decimal.Decimal) bool {
	i := c.index(productID)
	if i < 0 || c.Items[i].Price.Equal(price) {
		return false
	}
	c.Items[i].Price = price
	c.touch()
	return true
}

func (c *Cart) Contains(productID string) bool { return c.index(productID) >= 0 }

func (c *Cart) IsEmpty() bool { return len(c.Items) == 0 }

// Total is the sum of cached price × quantity.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Items = append([]Item(nil), c.Items...)
	return &cp
}

func (c *Cart) index(productID string) int {
	for i, it := range c.Items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) removeAt(i int) {
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	c.touch()
}

func (c *Cart) touch() {
	c.UpdatedAt = time.Now().UTC()
}
