// Package cartsync keeps carts consistent with orders and product changes.
package cartsync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/iclalusta/e-commerce-microservice/internal/application"
	domcart "github.com/iclalusta/e-commerce-microservice/internal/domain/cart"
	"github.com/iclalusta/e-commerce-microservice/internal/domain/errs"
	domorder "github.com/iclalusta/e-commerce-microservice/internal/domain/order"
	domoutbox "github.com/iclalusta/e-commerce-microservice/internal/domain/outbox"
	domproduct "github.com/iclalusta/e-commerce-microservice/internal/domain/product"
	"github.com/iclalusta/e-commerce-microservice/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const (
	cartService        = "cart-service"
	useCaseClearCart   = "ClearCart"
	useCaseSyncCarts   = "SyncProductInCarts"
	defaultParallelism = 8
)

// VersionGate remembers the newest product version applied to carts.
type VersionGate interface {
	Current(ctx context.Context, productID string) (int64, error)
	// Advance stores version when it is newer than the current one.
	Advance(ctx context.Context, productID string, version int64) (bool, error)
}

// ClearCartUseCase drops the buyer's cart once their order is created.
type ClearCartUseCase struct {
	carts domcart.Repository
	in    application.Instruments
}

var _ application.UseCase[domorder.OrderCreatedEvent, bool] = (*ClearCartUseCase)(nil)

func NewClearCartUseCase(carts domcart.Repository, tel observability.Observability) *ClearCartUseCase {
	return &ClearCartUseCase{carts: carts, in: application.NewInstruments(tel, cartService)}
}

// Execute reports whether a cart existed. An absent cart is not an error so
// redelivery is harmless.
func (uc *ClearCartUseCase) Execute(ctx context.Context, evt domorder.OrderCreatedEvent) (existed bool, err error) {
	ctx, run := uc.in.Start(ctx, useCaseClearCart,
		attribute.String("order.id", evt.OrderID),
		attribute.String("user.id", evt.UserID),
	)
	run.With(observability.F("order_id", evt.OrderID), observability.F("user_id", evt.UserID))
	defer func() { run.End(err) }()

	if evt.UserID == "" {
		run.Fail("USER_ID_REQUIRED")
		return false, domoutbox.Permanent(errs.Validation("order.created without userId"))
	}

	_, err = uc.carts.Get(ctx, evt.UserID)
	switch {
	case errors.Is(err, domcart.ErrNotFound):
		run.Mark("NO_CART")
		return false, nil
	case err != nil:
		run.Fail("CART_LOAD_FAILED")
		return false, fmt.Errorf("cartsync: load cart: %w", err)
	}

	if err := uc.carts.Delete(ctx, evt.UserID); err != nil {
		run.Fail("CART_DELETE_FAILED")
		return true, fmt.Errorf("cartsync: delete cart: %w", err)
	}
	return true, nil
}

// SyncResult counts what one product.updated did to the carts referencing it.
type SyncResult struct {
	Stale    bool
	Matched  int
	Repriced int
	Removed  int
	Deleted  int
}

// SyncProductUseCase applies a product snapshot to every cart holding the product.
// Out-of-stock products are removed (empty carts are deleted); otherwise the
// cached price is refreshed and quantities are left alone.
type SyncProductUseCase struct {
	carts       domcart.Repository
	gate        VersionGate
	parallelism int
	in          application.Instruments
}

var _ application.UseCase[domproduct.ProductUpdatedEvent, *SyncResult] = (*SyncProductUseCase)(nil)

type Option func(*SyncProductUseCase)

// WithParallelism bounds how many carts are written concurrently.
func WithParallelism(n int) Option {
	return func(uc *SyncProductUseCase) {
		if n > 0 {
			uc.parallelism = n
		}
	}
}

func NewSyncProductUseCase(carts domcart.Repository, gate VersionGate, tel observability.Observability, opts ...Option) *SyncProductUseCase {
	uc := &SyncProductUseCase{
		carts:       carts,
		gate:        gate,
		parallelism: defaultParallelism,
		in:          application.NewInstruments(tel, cartService),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *SyncProductUseCase) Execute(ctx context.Context, evt domproduct.ProductUpdatedEvent) (_ *SyncResult, err error) {
	ctx, run := uc.in.Start(ctx, useCaseSyncCarts,
		attribute.String("product.id", evt.ProductID),
		attribute.Int64("product.version", evt.Version),
		attribute.Bool("product.out_of_stock", evt.OutOfStock()),
	)
	run.With(
		observability.F("product_id", evt.ProductID),
		observability.F("version", evt.Version),
		observability.F("stock", evt.Stock),
	)
	defer func() { run.End(err) }()

	if evt.ProductID == "" {
		run.Fail("PRODUCT_ID_REQUIRED")
		return nil, domoutbox.Permanent(errs.Validation("product.updated without productId"))
	}

	res := &SyncResult{}
	if evt.Version > 0 && uc.gate != nil {
		current, err := uc.gate.Current(ctx, evt.ProductID)
		if err != nil {
			run.Fail("VERSION_LOOKUP_FAILED")
			return nil, fmt.Errorf("cartsync: version lookup: %w", err)
		}
		if evt.Version <= current {
			res.Stale = true
			run.Mark("STALE")
			run.With(observability.F("current_version", current))
			return res, nil
		}
	}

	carts, err := uc.carts.FindByProduct(ctx, evt.ProductID)
	if err != nil {
		run.Fail("CART_QUERY_FAILED")
		return nil, fmt.Errorf("cartsync: find carts: %w", err)
	}
	res.Matched = len(carts)

	var repriced, removed, deleted atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.parallelism)
	for _, c := range carts {
		g.Go(func() error {
			switch {
			case evt.OutOfStock():
				c.RemoveItem(evt.ProductID)
				if c.IsEmpty() {
					if err := uc.carts.Delete(gctx, c.UserID); err != nil {
						return fmt.Errorf("cartsync: delete cart %s: %w", c.UserID, err)
					}
					deleted.Add(1)
					return nil
				}
				removed.Add(1)
			default:
				if !c.Reprice(evt.ProductID, evt.Price) {
					return nil
				}
				repriced.Add(1)
			}
			if err := uc.carts.Save(gctx, c); err != nil {
				return fmt.Errorf("cartsync: save cart %s: %w", c.UserID, err)
			}
			return nil
		})
	}
	err = g.Wait()
	res.Repriced, res.Removed, res.Deleted = int(repriced.Load()), int(removed.Load()), int(deleted.Load())
	run.With(
		observability.F("carts_matched", res.Matched),
		observability.F("carts_repriced", res.Repriced),
		observability.F("carts_removed_item", res.Removed),
		observability.F("carts_deleted", res.Deleted),
	)
	if err != nil {
		run.Fail("CART_UPDATE_FAILED")
		return res, err
	}

	if evt.Version > 0 && uc.gate != nil {
		if _, err := uc.gate.Advance(ctx, evt.ProductID, evt.Version); err != nil {
			// carts are already correct; a later redelivery re-applies the same snapshot.
			run.Fail("VERSION_ADVANCE_FAILED")
			return res, fmt.Errorf("cartsync: advance version: %w", err)
		}
	}
	return res, nil
}
