package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iclalusta/e-commerce-microservice/internal/application"
	"github.com/iclalusta/e-commerce-microservice/internal/domain/errs"
	domorder "github.com/iclalusta/e-commerce-microservice/internal/domain/order"
	domoutbox "github.com/iclalusta/e-commerce-microservice/internal/domain/outbox"
	domproduct "github.com/iclalusta/e-commerce-microservice/internal/domain/product"
	"github.com/iclalusta/e-commerce-microservice/internal/observability"
	"go.opentelemetry.io/otel/attribute"
)

const (
	productService      = "product-service"
	useCaseReconcile    = "ReconcileStock"
	busPeer             = "event-bus"
	defaultPublishLimit = 5 * time.Second
)

// ErrInFlight means another delivery holds the claim for a decrement; the
// event is redelivered once that claim completes or its lease runs out.
var ErrInFlight = errors.New("stock: decrement in flight")

// Ledger records which (order, product) decrements were already applied.
// A claim is pending until Complete; a pending claim abandoned by a crash
// expires so the decrement is retried instead of lost.
type Ledger interface {
	Claim(ctx context.Context, key string) (domoutbox.Claim, error)
	// Complete marks key done once the decrement is durable.
	Complete(ctx context.Context, key string) error
	// Release forgets key so a redelivery can apply it again.
	Release(ctx context.Context, key string) error
}

// ReconcileResult summarizes one order.created delivery.
type ReconcileResult struct {
	Applied    []string
	Duplicates []string
	Missing    []string
	Refused    []string
	Oversold   map[string]int
}

// ReconcileStockUseCase decrements product stock for a created order and
// announces each product's new state on product.updated.
//
// The order service already charged the buyer, so by default stock is not
// re-validated: a decrement past zero floors at zero and is reported as
// oversold. With recheck enabled, an insufficient stock refuses the decrement
// for that product instead.
type ReconcileStockUseCase struct {
	products  domproduct.Repository
	ledger    Ledger
	publisher domoutbox.Publisher
	recheck   bool

	publishTimeout time.Duration

	in       application.Instruments
	ext      application.External
	oversold observability.Counter
}

type Option func(*ReconcileStockUseCase)

// WithRecheck refuses decrements that would take stock below zero.
func WithRecheck(enabled bool) Option {
	return func(uc *ReconcileStockUseCase) { uc.recheck = enabled }
}

func WithPublishTimeout(d time.Duration) Option {
	return func(uc *ReconcileStockUseCase) {
		if d > 0 {
			uc.publishTimeout = d
		}
	}
}

func NewReconcileStockUseCase(
	products domproduct.Repository,
	ledger Ledger,
	publisher domoutbox.Publisher,
	tel observability.Observability,
	opts ...Option,
) *ReconcileStockUseCase {
	uc := &ReconcileStockUseCase{
		products:       products,
		ledger:         ledger,
		publisher:      publisher,
		publishTimeout: defaultPublishLimit,
		in:             application.NewInstruments(tel, productService),
		ext:            application.NewExternal(tel),
		oversold:       observability.Resolve(tel).Metrics().Counter(observability.MStockOversold),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Execute is safe to call repeatedly with the same event: each (order, product)
// decrement is applied at most once, while product.updated is re-announced.
func (uc *ReconcileStockUseCase) Execute(ctx context.Context, evt domorder.OrderCreatedEvent) (_ *ReconcileResult, err error) {
	ctx, run := uc.in.Start(ctx, useCaseReconcile,
		attribute.String("order.id", evt.OrderID),
		attribute.Int("items", len(evt.Items)),
	)
	run.With(observability.F("order_id", evt.OrderID))
	defer func() { run.End(err) }()

	if evt.OrderID == "" {
		run.Fail("ORDER_ID_REQUIRED")
		return nil, domoutbox.Permanent(errs.Validation("order.created without orderId"))
	}

	res := &ReconcileResult{Oversold: map[string]int{}}
	for _, line := range mergeLines(evt.Items) {
		p, err := uc.apply(ctx, run, evt.OrderID, line, res)
		if err != nil {
			run.Fail("STOCK_UPDATE_FAILED")
			return res, err
		}
		if p == nil {
			continue
		}
		if err := uc.announce(ctx, p); err != nil {
			run.Fail("EVENT_PUBLISH_FAILED")
			return res, err
		}
	}

	run.With(
		observability.F("applied", len(res.Applied)),
		observability.F("duplicates", len(res.Duplicates)),
		observability.F("missing", len(res.Missing)),
		observability.F("refused", len(res.Refused)),
	)
	if len(res.Applied) == 0 && len(res.Duplicates) > 0 {
		run.Mark("DUPLICATE_DELIVERY")
	}
	return res, nil
}

// LedgerKey identifies one product decrement of one order.
func LedgerKey(orderID, productID string) string {
	return fmt.Sprintf("stock:%s:%s", orderID, productID)
}

type line struct {
	productID string
	quantity  int
}

// mergeLines folds repeated products into one line, keeping first-seen order.
func mergeLines(items []domorder.EventItem) []line {
	idx := make(map[string]int, len(items))
	out := make([]line, 0, len(items))
	for _, it := range items {
		if i, ok := idx[it.ProductID]; ok {
			out[i].quantity += it.Quantity
			continue
		}
		idx[it.ProductID] = len(out)
		out = append(out, line{productID: it.ProductID, quantity: it.Quantity})
	}
	return out
}

// apply returns the product to announce, or nil when there is nothing to announce.
func (uc *ReconcileStockUseCase) apply(ctx context.Context, run *application.Run, orderID string, l line, res *ReconcileResult) (*domproduct.Product, error) {
	log := run.Logger().With(
		observability.F("product_id", l.productID),
		observability.F("quantity", l.quantity),
	)
	if l.quantity <= 0 {
		res.Refused = append(res.Refused, l.productID)
		log.Warn("consistency_warning", observability.F("reason", "non_positive_quantity"))
		return nil, nil
	}
	p, err := uc.products.Get(ctx, l.productID)
	if errors.Is(err, domproduct.ErrNotFound) {
		res.Missing = append(res.Missing, l.productID)
		log.Warn("consistency_warning",
			observability.F("reason", "product_not_found"),
			observability.Err(errs.Consistency("order %s references unknown product %s", orderID, l.productID)),
		)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stock: load product %s: %w", l.productID, err)
	}

	key := LedgerKey(orderID, l.productID)
	claim, err := uc.ledger.Claim(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("stock: claim %s: %w", key, err)
	}
	switch claim {
	case domoutbox.ClaimDone:
		res.Duplicates = append(res.Duplicates, l.productID)
		log.Debug("stock_decrement_already_applied")
		return p, nil
	case domoutbox.ClaimHeld:
		log.Info("stock_decrement_in_flight")
		return nil, fmt.Errorf("%w: %s", ErrInFlight, key)
	}

	shortfall, err := p.DecreaseStock(l.quantity, !uc.recheck)
	if errors.Is(err, domproduct.ErrInsufficientStock) {
		res.Refused = append(res.Refused, l.productID)
		log.Warn("consistency_warning",
			observability.F("reason", "insufficient_stock"),
			observability.F("stock", p.Stock),
			observability.Err(errs.Consistency("%s", err.Error())),
		)
		return nil, uc.release(ctx, key, nil)
	}
	if err != nil {
		return nil, uc.release(ctx, key, err)
	}
	if shortfall > 0 {
		res.Oversold[l.productID] = shortfall
		uc.oversold.Add(1)
		log.Warn("stock_oversold", observability.F("shortfall", shortfall))
	}

	if err := uc.products.Save(ctx, p); err != nil {
		return nil, uc.release(ctx, key, fmt.Errorf("stock: save product %s: %w", l.productID, err))
	}
	res.Applied = append(res.Applied, l.productID)

	// The decrement is durable. If the done mark is lost the pending lease
	// expires and a later redelivery could apply it again, so say so loudly.
	if err := uc.ledger.Complete(context.WithoutCancel(ctx), key); err != nil {
		log.Error("stock_ledger_complete_failed", observability.Err(err))
	}
	return p, nil
}

// release drops the claim taken by this delivery and returns cause, joined with
// any release failure.
func (uc *ReconcileStockUseCase) release(ctx context.Context, key string, cause error) error {
	if err := uc.ledger.Release(context.WithoutCancel(ctx), key); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (uc *ReconcileStockUseCase) announce(ctx context.Context, p *domproduct.Product) error {
	pubCtx, cancel := context.WithTimeout(ctx, uc.publishTimeout)
	defer cancel()

	start := time.Now()
	err := uc.publisher.Publish(pubCtx, domproduct.NewProductUpdatedEvent(p))
	uc.ext.Observe(busPeer, domproduct.TopicProductUpdated, start, err)
	if err != nil {
		return errs.External(busPeer, err)
	}
	return nil
}
