package product

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iclalusta/e-commerce-microservice/internal/application"
	"github.com/iclalusta/e-commerce-microservice/internal/domain/errs"
	domoutbox "github.com/iclalusta/e-commerce-microservice/internal/domain/outbox"
	domain "github.com/iclalusta/e-commerce-microservice/internal/domain/product"
	"github.com/iclalusta/e-commerce-microservice/internal/observability"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const (
	productService = "product-service"
	busPeer        = "event-bus"
	saveAttempts   = 3
)

type IDGenerator interface {
	NewID() string
}

type GetProductUseCase struct {
	repo domain.Repository
	in   application.Instruments
}

func NewGetProductUseCase(repo domain.Repository, tel observability.Observability) *GetProductUseCase {
	return &GetProductUseCase{repo: repo, in: application.NewInstruments(tel, productService)}
}

func (uc *GetProductUseCase) Execute(ctx context.Context, id string) (_ *domain.Product, err error) {
	ctx, run := uc.in.Start(ctx, "GetProduct", attribute.String("product.id", id))
	defer func() { run.End(err) }()

	p, err := uc.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			run.Mark("NOT_FOUND")
			return nil, err
		}
		run.Fail("REPO_GET_FAILED")
		return nil, fmt.Errorf("product: get: %w", err)
	}
	return p, nil
}

type ListProductsUseCase struct {
	repo domain.Repository
	in   application.Instruments
}

func NewListProductsUseCase(repo domain.Repository, tel observability.Observability) *ListProductsUseCase {
	return &ListProductsUseCase{repo: repo, in: application.NewInstruments(tel, productService)}
}

func (uc *ListProductsUseCase) Execute(ctx context.Context) (_ []*domain.Product, err error) {
	ctx, run := uc.in.Start(ctx, "ListProducts")
	defer func() { run.End(err) }()

	products, err := uc.repo.List(ctx)
	if err != nil {
		run.Fail("REPO_LIST_FAILED")
		return nil, fmt.Errorf("product: list: %w", err)
	}
	run.With(observability.F("count", len(products)))
	return products, nil
}

type CreateProductInput struct {
	// ID is optional; one is generated when blank.
	ID    string
	Name  string
	Price decimal.Decimal
	Stock int
}

// CreateProductUseCase adds a product to the catalog. Nothing is announced:
// no cart can reference a product before it exists.
type CreateProductUseCase struct {
	repo domain.Repository
	ids  IDGenerator
	in   application.Instruments
}

func NewCreateProductUseCase(repo domain.Repository, ids IDGenerator, tel observability.Observability) *CreateProductUseCase {
	return &CreateProductUseCase{repo: repo, ids: ids, in: application.NewInstruments(tel, productService)}
}

func (uc *CreateProductUseCase) Execute(ctx context.Context, input CreateProductInput) (_ *domain.Product, err error) {
	ctx, run := uc.in.Start(ctx, "CreateProduct")
	defer func() { run.End(err) }()

	id := strings.TrimSpace(input.ID)
	if id == "" {
		id = uc.ids.NewID()
	} else if _, getErr := uc.repo.Get(ctx, id); getErr == nil {
		run.Fail("PRODUCT_EXISTS")
		return nil, fmt.Errorf("%w: product %s already exists", domain.ErrConflict, id)
	} else if !errors.Is(getErr, domain.ErrNotFound) {
		run.Fail("REPO_GET_FAILED")
		return nil, fmt.Errorf("product: get: %w", getErr)
	}
	run.With(observability.F("product_id", id))

	p, err := domain.New(id, input.Name, input.Price, input.Stock)
	if err != nil {
		run.Fail("INVALID_PRODUCT")
		return nil, err
	}
	if err = uc.repo.Save(ctx, p); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			run.Fail("PRODUCT_EXISTS")
			return nil, err
		}
		run.Fail("REPO_SAVE_FAILED")
		return nil, fmt.Errorf("product: save: %w", err)
	}
	return p, nil
}

// mutator loads a product, changes it and saves it, retrying the optimistic
// write against the fresh row, then announces the result on product.updated.
type mutator struct {
	repo      domain.Repository
	publisher domoutbox.Publisher
	in        application.Instruments
	ext       application.External
}

func newMutator(repo domain.Repository, publisher domoutbox.Publisher, tel observability.Observability) mutator {
	return mutator{
		repo:      repo,
		publisher: publisher,
		in:        application.NewInstruments(tel, productService),
		ext:       application.NewExternal(tel),
	}
}

func (m mutator) mutate(ctx context.Context, run *application.Run, id string, change func(*domain.Product) error) (*domain.Product, error) {
	if id == "" {
		run.Fail("PRODUCT_ID_REQUIRED")
		return nil, errs.Validation("product id is required")
	}
	for attempt := 1; ; attempt++ {
		p, err := m.repo.Get(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				run.Mark("NOT_FOUND")
				return nil, err
			}
			run.Fail("REPO_GET_FAILED")
			return nil, fmt.Errorf("product: get: %w", err)
		}
		if err := change(p); err != nil {
			run.Fail("INVALID_CHANGE")
			return nil, err
		}
		err = m.repo.Save(ctx, p)
		if err == nil {
			run.With(observability.F("version", p.Version), observability.F("stock", p.Stock))
			return p, nil
		}
		if !errors.Is(err, domain.ErrConflict) || attempt >= saveAttempts {
			run.Fail("REPO_SAVE_FAILED")
			return nil, fmt.Errorf("product: save: %w", err)
		}
		run.Logger().Debug("product_save_conflict", observability.F("attempt", attempt))
	}
}

func (m mutator) announce(ctx context.Context, run *application.Run, p *domain.Product) error {
	start := time.Now()
	err := m.publisher.Publish(ctx, domain.NewProductUpdatedEvent(p))
	m.ext.Observe(busPeer, domain.TopicProductUpdated, start, err)
	if err != nil {
		run.Fail("EVENT_PUBLISH_FAILED")
		return errs.External(busPeer, err)
	}
	return nil
}

// UpdateProductInput carries the fields to change; nil fields are kept.
type UpdateProductInput struct {
	ID    string
	Patch domain.Patch
}

// UpdateProductUseCase changes a product and announces it on product.updated.
type UpdateProductUseCase struct{ mutator }

func NewUpdateProductUseCase(repo domain.Repository, publisher domoutbox.Publisher, tel observability.Observability) *UpdateProductUseCase {
	return &UpdateProductUseCase{newMutator(repo, publisher, tel)}
}

func (uc *UpdateProductUseCase) Execute(ctx context.Context, input UpdateProductInput) (_ *domain.Product, err error) {
	ctx, run := uc.in.Start(ctx, "UpdateProduct", attribute.String("product.id", input.ID))
	run.With(observability.F("product_id", input.ID))
	defer func() { run.End(err) }()

	p, err := uc.mutate(ctx, run, input.ID, func(p *domain.Product) error { return p.Apply(input.Patch) })
	if err != nil {
		return nil, err
	}
	return p, uc.announce(ctx, run, p)
}

type IncreaseStockInput struct {
	ID       string
	Quantity int
}

// IncreaseStockUseCase restocks a product and announces the new level.
type IncreaseStockUseCase struct{ mutator }

func NewIncreaseStockUseCase(repo domain.Repository, publisher domoutbox.Publisher, tel observability.Observability) *IncreaseStockUseCase {
	return &IncreaseStockUseCase{newMutator(repo, publisher, tel)}
}

func (uc *IncreaseStockUseCase) Execute(ctx context.Context, input IncreaseStockInput) (_ *domain.Product, err error) {
	ctx, run := uc.in.Start(ctx, "IncreaseStock",
		attribute.String("product.id", input.ID),
		attribute.Int("quantity", input.Quantity),
	)
	run.With(observability.F("product_id", input.ID), observability.F("quantity", input.Quantity))
	defer func() { run.End(err) }()

	if input.Quantity <= 0 {
		run.Fail("QUANTITY_INVALID")
		return nil, domain.ErrInvalidQuantity
	}
	p, err := uc.mutate(ctx, run, input.ID, func(p *domain.Product) error { return p.IncreaseStock(input.Quantity) })
	if err != nil {
		return nil, err
	}
	return p, uc.announce(ctx, run, p)
}

// DeleteProductUseCase removes a product. Its final snapshot goes out with
// zero stock so carts drop the line.
type DeleteProductUseCase struct{ mutator }

func NewDeleteProductUseCase(repo domain.Repository, publisher domoutbox.Publisher, tel observability.Observability) *DeleteProductUseCase {
	return &DeleteProductUseCase{newMutator(repo, publisher, tel)}
}

func (uc *DeleteProductUseCase) Execute(ctx context.Context, id string) (err error) {
	ctx, run := uc.in.Start(ctx, "DeleteProduct", attribute.String("product.id", id))
	run.With(observability.F("product_id", id))
	defer func() { run.End(err) }()

	if id == "" {
		run.Fail("PRODUCT_ID_REQUIRED")
		return errs.Validation("product id is required")
	}
	p, err := uc.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			run.Mark("NOT_FOUND")
			return err
		}
		run.Fail("REPO_GET_FAILED")
		return fmt.Errorf("product: get: %w", err)
	}
	if err = uc.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			run.Mark("NOT_FOUND")
			return err
		}
		run.Fail("REPO_DELETE_FAILED")
		return fmt.Errorf("product: delete: %w", err)
	}
	p.Withdraw()
	return uc.announce(ctx, run, p)
}
