// Package cart implements the cart write path: adding, changing and removing
// lines, and reading the cart back.
package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iclalusta/e-commerce-microservice/internal/application"
	domain "github.com/iclalusta/e-commerce-microservice/internal/domain/cart"
	domoutbox "github.com/iclalusta/e-commerce-microservice/internal/domain/outbox"
	domproduct "github.com/iclalusta/e-commerce-microservice/internal/domain/product"
	"github.com/iclalusta/e-commerce-microservice/internal/observability"
	"go.opentelemetry.io/otel/attribute"
)

const (
	cartService = "cart-service"
	busPeer     = "event-bus"
)

// Catalog is the read side of the product service.
type Catalog interface {
	Get(ctx context.Context, id string) (*domproduct.Product, error)
}

type base struct {
	carts   domain.Repository
	catalog Catalog
	in      application.Instruments
}

func newBase(carts domain.Repository, catalog Catalog, tel observability.Observability) base {
	return base{carts: carts, catalog: catalog, in: application.NewInstruments(tel, cartService)}
}

func (b base) load(ctx context.Context, userID string) (*domain.Cart, error) {
	c, err := b.carts.Get(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("cart: load: %w", err)
	}
	return c, err
}

// product returns the catalog entry, failing when qty units are not in stock.
// Stock is only checked here, not reserved.
func (b base) product(ctx context.Context, productID string, qty int) (*domproduct.Product, error) {
	p, err := b.catalog.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !p.HasStock(qty) {
		return nil, fmt.Errorf("%w: product %s has %d, requested %d", domproduct.ErrInsufficientStock, p.ID, p.Stock, qty)
	}
	return p, nil
}

// store saves c, or deletes it once its last line is gone. It returns nil for a deleted cart.
func (b base) store(ctx context.Context, c *domain.Cart) (*domain.Cart, error) {
	if c.IsEmpty() {
		if err := b.carts.Delete(ctx, c.UserID); err != nil {
			return nil, fmt.Errorf("cart: delete: %w", err)
		}
		return nil, nil
	}
	if err := b.carts.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("cart: save: %w", err)
	}
	return c, nil
}

type AddItemInput struct {
	UserID    string
	ProductID string
	Quantity  int
}

// AddItemUseCase adds quantity of a product, creating the cart on first use and
// caching the product's current price on the line.
type AddItemUseCase struct {
	base
	publisher domoutbox.Publisher
	ext       application.External
}

type AddItemOption func(*AddItemUseCase)

// WithItemAddedPublisher announces every successful add on cart.item.added.
// The cart is already saved when the event goes out, so a failed publish is
// logged and the add still succeeds.
func WithItemAddedPublisher(p domoutbox.Publisher) AddItemOption {
	return func(uc *AddItemUseCase) { uc.publisher = p }
}

func NewAddItemUseCase(carts domain.Repository, catalog Catalog, tel observability.Observability, opts ...AddItemOption) *AddItemUseCase {
	uc := &AddItemUseCase{base: newBase(carts, catalog, tel), ext: application.NewExternal(tel)}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *AddItemUseCase) Execute(ctx context.Context, input AddItemInput) (_ *domain.Cart, err error) {
	ctx, run := uc.in.Start(ctx, "AddCartItem",
		attribute.String("user.id", input.UserID),
		attribute.String("product.id", input.ProductID),
	)
	run.With(observability.F("user_id", input.UserID), observability.F("product_id", input.ProductID))
	defer func() { run.End(err) }()

	if input.UserID == "" {
		return nil, domain.ErrMissingUser
	}
	if input.ProductID == "" {
		return nil, domain.ErrMissingProduct
	}
	if input.Quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	c, err := uc.load(ctx, input.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		c, err = domain.New(input.UserID)
	}
	if err != nil {
		return nil, err
	}

	want := input.Quantity
	for _, it := range c.Items {
		if it.ProductID == input.ProductID {
			want += it.Quantity
		}
	}
	p, err := uc.product(ctx, input.ProductID, want)
	if err != nil {
		return nil, err
	}
	if err := c.AddItem(p.ID, input.Quantity, p.Price); err != nil {
		return nil, err
	}
	if c, err = uc.store(ctx, c); err != nil {
		return nil, err
	}
	uc.announce(ctx, run, input)
	return c, nil
}

func (uc *AddItemUseCase) announce(ctx context.Context, run *application.Run, input AddItemInput) {
	if uc.publisher == nil {
		return
	}
	start := time.Now()
	err := uc.publisher.Publish(ctx, domain.NewItemAddedEvent(input.UserID, input.ProductID, input.Quantity))
	uc.ext.Observe(busPeer, domain.TopicCartItemAdded, start, err)
	if err != nil {
		run.Mark("EVENT_PUBLISH_FAILED")
		run.Logger().Warn("cart_item_added_publish_failed", observability.Err(err))
	}
}

type UpdateItemInput struct {
	UserID    string
	ProductID string
	Quantity  int
}

// UpdateItemUseCase sets a line's quantity. Zero or less removes the line, and
// the cart is deleted when nothing is left.
type UpdateItemUseCase struct{ base }

func NewUpdateItemUseCase(carts domain.Repository, catalog Catalog, tel observability.Observability) *UpdateItemUseCase {
	return &UpdateItemUseCase{newBase(carts, catalog, tel)}
}

func (uc *UpdateItemUseCase) Execute(ctx context.Context, input UpdateItemInput) (_ *domain.Cart, err error) {
	ctx, run := uc.in.Start(ctx, "UpdateCartItem",
		attribute.String("user.id", input.UserID),
		attribute.String("product.id", input.ProductID),
		attribute.Int("quantity", input.Quantity),
	)
	run.With(observability.F("user_id", input.UserID), observability.F("product_id", input.ProductID))
	defer func() { run.End(err) }()

	if input.UserID == "" {
		return nil, domain.ErrMissingUser
	}
	c, err := uc.load(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	if !c.Contains(input.ProductID) {
		return nil, fmt.Errorf("%w: %s", domain.ErrItemNotFound, input.ProductID)
	}
	if input.Quantity > 0 {
		if _, err := uc.product(ctx, input.ProductID, input.Quantity); err != nil {
			return nil, err
		}
	}
	if err := c.SetQuantity(input.ProductID, input.Quantity); err != nil {
		return nil, err
	}

	out, err := uc.store(ctx, c)
	if err == nil && out == nil {
		run.Mark("CART_DELETED")
	}
	return out, err
}

// RemoveItemUseCase drops a line; the cart is deleted when nothing is left.
type RemoveItemUseCase struct{ base }

func NewRemoveItemUseCase(carts domain.Repository, tel observability.Observability) *RemoveItemUseCase {
	return &RemoveItemUseCase{newBase(carts, nil, tel)}
}

func (uc *RemoveItemUseCase) Execute(ctx context.Context, input UpdateItemInput) (_ *domain.Cart, err error) {
	ctx, run := uc.in.Start(ctx, "RemoveCartItem",
		attribute.String("user.id", input.UserID),
		attribute.String("product.id", input.ProductID),
	)
	defer func() { run.End(err) }()

	c, err := uc.load(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	if !c.RemoveItem(input.ProductID) {
		return nil, fmt.Errorf("%w: %s", domain.ErrItemNotFound, input.ProductID)
	}
	return uc.store(ctx, c)
}

type GetCartUseCase struct{ base }

func NewGetCartUseCase(carts domain.Repository, tel observability.Observability) *GetCartUseCase {
	return &GetCartUseCase{newBase(carts, nil, tel)}
}

func (uc *GetCartUseCase) Execute(ctx context.Context, userID string) (_ *domain.Cart, err error) {
	ctx, run := uc.in.Start(ctx, "GetCart", attribute.String("user.id", userID))
	defer func() { run.End(err) }()

	if userID == "" {
		return nil, domain.ErrMissingUser
	}
	return uc.load(ctx, userID)
}
