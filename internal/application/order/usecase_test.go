package order_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	apporder "github.com/iclalusta/e-commerce-microservice/internal/application/order"
	"github.com/iclalusta/e-commerce-microservice/internal/domain/errs"
	domain "github.com/iclalusta/e-commerce-microservice/internal/domain/order"
	domoutbox "github.com/iclalusta/e-commerce-microservice/internal/domain/outbox"
	pay "github.com/iclalusta/e-commerce-microservice/internal/domain/payment"
	"github.com/iclalusta/e-commerce-microservice/internal/infrastructure/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type stubCarts struct {
	cart *apporder.CartSnapshot
	err  error
}

func (s *stubCarts) GetCart(context.Context, string) (*apporder.CartSnapshot, error) {
	return s.cart, s.err
}

type stubPayments struct {
	result pay.Result
	err    error
	calls  atomic.Int32
	last   pay.Request
	// after runs once the charge is decided, before the result is returned.
	after func()
}

func (s *stubPayments) Authorize(_ context.Context, req pay.Request) (pay.Result, error) {
	s.calls.Add(1)
	s.last = req
	if s.after != nil {
		s.after()
	}
	return s.result, s.err
}

type stubPublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
	err    error
}

func (s *stubPublisher) Publish(ctx context.Context, e domoutbox.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.events = append(s.events, e)
	return nil
}

type seqIDs struct{ n atomic.Int32 }

func (s *seqIDs) NewID() string { return fmt.Sprintf("order-%d", s.n.Add(1)) }

type CreateOrderSuite struct {
	suite.Suite
	repo      *memory.OrderRepository
	carts     *stubCarts
	payments  *stubPayments
	publisher *stubPublisher
	uc        *apporder.CreateOrderUseCase
}

func TestCreateOrderSuite(t *testing.T) {
	suite.Run(t, new(CreateOrderSuite))
}

func (s *CreateOrderSuite) SetupTest() {
	s.repo = memory.NewOrderRepository()
	s.carts = &stubCarts{cart: &apporder.CartSnapshot{
		UserID: "42",
		Items: []apporder.CartLine{
			{ProductID: "p1", Quantity: 2, Price: decimal.RequireFromString("10.00")},
			{ProductID: "p2", Quantity: 1, Price: decimal.RequireFromString("5.50")},
		},
	}}
	s.payments = &stubPayments{result: pay.Result{Success: true, Status: pay.StatusCompleted}}
	s.publisher = &stubPublisher{}
	s.uc = apporder.NewCreateOrderUseCase(s.repo, s.carts, s.payments, s.publisher, &seqIDs{}, nil)
}

func (s *CreateOrderSuite) input() apporder.CreateOrderInput {
	return apporder.CreateOrderInput{UserID: "42", ShippingAddress: "1 Main St"}
}

func (s *CreateOrderSuite) TestHappyPathPublishesOrderCreated() {
	res, err := s.uc.Execute(context.Background(), s.input())
	s.Require().NoError(err)

	o := res.Order
	s.Equal(domain.StatusProcessing, o.Status)
	s.True(decimal.RequireFromString("25.50").Equal(o.TotalAmount))
	s.True(o.TotalAmount.Equal(s.payments.last.Amount))

	stored, err := s.repo.FindByID(context.Background(), o.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusProcessing, stored.Status)

	s.Require().Len(s.publisher.events, 1)
	evt := s.publisher.events[0].(domain.OrderCreatedEvent)
	s.Equal(o.ID, evt.OrderID)
	s.Equal("42", evt.UserID)
	s.Len(evt.Items, 2)
	s.True(decimal.RequireFromString("10.00").Equal(evt.Items[0].PriceAtOrderTime))
}

func (s *CreateOrderSuite) TestDeclinedPaymentPersistsFailedAndEmitsNothing() {
	s.payments.result = pay.Result{Success: false, Status: pay.StatusFailed}

	res, err := s.uc.Execute(context.Background(), s.input())
	s.Require().Error(err)
	s.ErrorIs(err, errs.ErrPaymentDeclined)
	s.Require().NotNil(res)

	stored, err := s.repo.FindByID(context.Background(), res.Order.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusFailed, stored.Status)
	s.Empty(s.publisher.events)
}

func (s *CreateOrderSuite) TestUnreachablePaymentFailsOrder() {
	s.payments.err = errors.New("connection refused")

	res, err := s.uc.Execute(context.Background(), s.input())
	s.ErrorIs(err, errs.ErrExternalService)

	stored, ferr := s.repo.FindByID(context.Background(), res.Order.ID)
	s.Require().NoError(ferr)
	s.Equal(domain.StatusFailed, stored.Status)
	s.Empty(s.publisher.events)
}

func (s *CreateOrderSuite) TestEmptyCartPersistsNothing() {
	s.carts.cart = &apporder.CartSnapshot{UserID: "42"}

	res, err := s.uc.Execute(context.Background(), s.input())
	s.ErrorIs(err, errs.ErrEmptyCart)
	s.Nil(res)
	s.Zero(s.payments.calls.Load())

	all, err := s.repo.FindAll(context.Background())
	s.Require().NoError(err)
	s.Empty(all)
}

func (s *CreateOrderSuite) TestMissingCartIsEmpty() {
	s.carts.cart = nil

	_, err := s.uc.Execute(context.Background(), s.input())
	s.ErrorIs(err, errs.ErrEmptyCart)
}

func (s *CreateOrderSuite) TestUnreachableCartIsExternal() {
	s.carts.err = errors.New("dial tcp: timeout")

	_, err := s.uc.Execute(context.Background(), s.input())
	s.ErrorIs(err, errs.ErrExternalService)
	s.Zero(s.payments.calls.Load())
}

func (s *CreateOrderSuite) TestValidation() {
	_, err := s.uc.Execute(context.Background(), apporder.CreateOrderInput{ShippingAddress: "x"})
	s.ErrorIs(err, errs.ErrValidation)

	_, err = s.uc.Execute(context.Background(), apporder.CreateOrderInput{UserID: "42", ShippingAddress: "  "})
	s.ErrorIs(err, errs.ErrValidation)

	all, _ := s.repo.FindAll(context.Background())
	s.Empty(all)
}

func (s *CreateOrderSuite) TestPublishFailureLeavesOrderProcessing() {
	s.publisher.err = errors.New("broker down")

	res, err := s.uc.Execute(context.Background(), s.input())
	s.ErrorIs(err, errs.ErrExternalService)
	s.Require().NotNil(res)

	stored, ferr := s.repo.FindByID(context.Background(), res.Order.ID)
	s.Require().NoError(ferr)
	s.Equal(domain.StatusProcessing, stored.Status)
}

func (s *CreateOrderSuite) TestCallerCancelAfterPaymentStillCompletesSaga() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.payments.after = cancel

	res, err := s.uc.Execute(ctx, s.input())
	s.Require().NoError(err)
	s.Equal(domain.StatusProcessing, res.Order.Status)

	stored, err := s.repo.FindByID(context.Background(), res.Order.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusProcessing, stored.Status)
	s.Len(s.publisher.events, 1)
}

func (s *CreateOrderSuite) TestAlreadyCanceledCallerStartsNothing() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := s.uc.Execute(ctx, s.input())
	s.ErrorIs(err, context.Canceled)
	s.Nil(res)
	s.Zero(s.payments.calls.Load())
}

func (s *CreateOrderSuite) TestIdempotencyKeyReplaysFirstOrder() {
	in := s.input()
	in.IdempotencyKey = "k-1"

	first, err := s.uc.Execute(context.Background(), in)
	s.Require().NoError(err)
	second, err := s.uc.Execute(context.Background(), in)
	s.Require().NoError(err)

	s.True(second.Replayed)
	s.Equal(first.Order.ID, second.Order.ID)
	s.Equal(int32(1), s.payments.calls.Load())
	s.Len(s.publisher.events, 1)
}

func TestUpdateOrderTransitions(t *testing.T) {
	repo := memory.NewOrderRepository()
	o, err := domain.New("o1", "42", "1 Main St", []domain.Item{
		{ProductID: "p1", Quantity: 1, PriceAtOrderTime: decimal.NewFromInt(3)},
	})
	require.NoError(t, err)
	require.NoError(t, repo.Insert(context.Background(), o))
	uc := apporder.NewUpdateOrderUseCase(repo, nil)

	completed := string(domain.StatusCompleted)
	_, err = uc.Execute(context.Background(), apporder.UpdateOrderInput{ID: "o1", Status: &completed})
	assert.ErrorIs(t, err, errs.ErrValidation, "PENDING cannot jump to COMPLETED")

	processing := string(domain.StatusProcessing)
	_, err = uc.Execute(context.Background(), apporder.UpdateOrderInput{ID: "o1", Status: &processing})
	assert.ErrorIs(t, err, errs.ErrValidation, "PROCESSING is reached through checkout only")
	failed := string(domain.StatusFailed)
	_, err = uc.Execute(context.Background(), apporder.UpdateOrderInput{ID: "o1", Status: &failed})
	assert.ErrorIs(t, err, errs.ErrValidation, "FAILED is reached through checkout only")

	stored, err := repo.FindByID(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)

	cancelled := string(domain.StatusCancelled)
	addr := "2 Side St"
	updated, err := uc.Execute(context.Background(), apporder.UpdateOrderInput{ID: "o1", Status: &cancelled, ShippingAddress: &addr})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, updated.Status)
	assert.Equal(t, "2 Side St", updated.ShippingAddress)

	bogus := "SHIPPED"
	_, err = uc.Execute(context.Background(), apporder.UpdateOrderInput{ID: "o1", Status: &bogus})
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = uc.Execute(context.Background(), apporder.UpdateOrderInput{ID: "missing", Status: &processing})
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestListOrdersByUser(t *testing.T) {
	repo := memory.NewOrderRepository()
	for i, user := range []string{"a", "b", "a"} {
		o, err := domain.New(fmt.Sprintf("o%d", i), user, "addr", []domain.Item{
			{ProductID: "p", Quantity: 1, PriceAtOrderTime: decimal.NewFromInt(1)},
		})
		require.NoError(t, err)
		require.NoError(t, repo.Insert(context.Background(), o))
	}
	uc := apporder.NewListOrdersUseCase(repo, nil)

	mine, err := uc.Execute(context.Background(), apporder.ListOrdersInput{UserID: "a"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	all, err := uc.Execute(context.Background(), apporder.ListOrdersInput{All: true})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = uc.Execute(context.Background(), apporder.ListOrdersInput{})
	assert.ErrorIs(t, err, errs.ErrValidation)
}
