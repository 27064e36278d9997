package cart_test

import (
	"context"
	"errors"
	"testing"

	appcart "github.com/iclalusta/e-commerce-microservice/internal/application/cart"
	domain "github.com/iclalusta/e-commerce-microservice/internal/domain/cart"
	"github.com/iclalusta/e-commerce-microservice/internal/domain/errs"
	domoutbox "github.com/iclalusta/e-commerce-microservice/internal/domain/outbox"
	domproduct "github.com/iclalusta/e-commerce-microservice/internal/domain/product"
	"github.com/iclalusta/e-commerce-microservice/internal/infrastructure/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	carts    *memory.CartRepository
	products *memory.ProductRepository
	add      *appcart.AddItemUseCase
	update   *appcart.UpdateItemUseCase
	remove   *appcart.RemoveItemUseCase
	get      *appcart.GetCartUseCase
}

func setup(t *testing.T) fixture {
	t.Helper()
	p1, err := domproduct.New("p1", "pen", decimal.RequireFromString("1.25"), 5)
	require.NoError(t, err)
	p2, err := domproduct.New("p2", "ink", decimal.RequireFromString("3.00"), 1)
	require.NoError(t, err)

	carts := memory.NewCartRepository()
	products := memory.NewProductRepository(p1, p2)
	return fixture{
		carts:    carts,
		products: products,
		add:      appcart.NewAddItemUseCase(carts, products, nil),
		update:   appcart.NewUpdateItemUseCase(carts, products, nil),
		remove:   appcart.NewRemoveItemUseCase(carts, nil),
		get:      appcart.NewGetCartUseCase(carts, nil),
	}
}

func TestAddItemCreatesCartWithCurrentPrice(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	c, err := f.add.Execute(ctx, appcart.AddItemInput{UserID: "u1", ProductID: "p1", Quantity: 2})
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.True(t, c.Items[0].Price.Equal(decimal.RequireFromString("1.25")))

	c, err = f.add.Execute(ctx, appcart.AddItemInput{UserID: "u1", ProductID: "p1", Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, c.Items[0].Quantity)
}

func TestAddItemChecksStockForWholeLine(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.add.Execute(ctx, appcart.AddItemInput{UserID: "u1", ProductID: "p2", Quantity: 1})
	require.NoError(t, err)

	_, err = f.add.Execute(ctx, appcart.AddItemInput{UserID: "u1", ProductID: "p2", Quantity: 1})
	assert.ErrorIs(t, err, domproduct.ErrInsufficientStock)
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestAddItemUnknownProduct(t *testing.T) {
	f := setup(t)

	_, err := f.add.Execute(context.Background(), appcart.AddItemInput{UserID: "u1", ProductID: "nope", Quantity: 1})
	assert.ErrorIs(t, err, errs.ErrNotFound)
	_, err = f.get.Execute(context.Background(), "u1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAddItemRejectsNonPositiveQuantity(t *testing.T) {
	f := setup(t)

	_, err := f.add.Execute(context.Background(), appcart.AddItemInput{UserID: "u1", ProductID: "p1", Quantity: 0})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestSettingLastLineToZeroDeletesCart(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.add.Execute(ctx, appcart.AddItemInput{UserID: "u1", ProductID: "p1", Quantity: 1})
	require.NoError(t, err)

	c, err := f.update.Execute(ctx, appcart.UpdateItemInput{UserID: "u1", ProductID: "p1", Quantity: 0})
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = f.get.Execute(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateItemKeepsOtherLines(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.add.Execute(ctx, appcart.AddItemInput{UserID: "u1", ProductID: "p1", Quantity: 1})
	require.NoError(t, err)
	_, err = f.add.Execute(ctx, appcart.AddItemInput{UserID: "u1", ProductID: "p2", Quantity: 1})
	require.NoError(t, err)

	c, err := f.update.Execute(ctx, appcart.UpdateItemInput{UserID: "u1", ProductID: "p1", Quantity: 4})
	require.NoError(t, err)
	require.Len(t, c.Items, 2)
	assert.Equal(t, 4, c.Items[0].Quantity)

	_, err = f.update.Execute(ctx, appcart.UpdateItemInput{UserID: "u1", ProductID: "p1", Quantity: 6})
	assert.ErrorIs(t, err, domproduct.ErrInsufficientStock)
}

func TestUpdateItemMissingLine(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.add.Execute(ctx, appcart.AddItemInput{UserID: "u1", ProductID: "p1", Quantity: 1})
	require.NoError(t, err)

	_, err = f.update.Execute(ctx, appcart.UpdateItemInput{UserID: "u1", ProductID: "p2", Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrItemNotFound)
}

func TestRemoveItem(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.add.Execute(ctx, appcart.AddItemInput{UserID: "u1", ProductID: "p1", Quantity: 1})
	require.NoError(t, err)
	_, err = f.add.Execute(ctx, appcart.AddItemInput{UserID: "u1", ProductID: "p2", Quantity: 1})
	require.NoError(t, err)

	c, err := f.remove.Execute(ctx, appcart.UpdateItemInput{UserID: "u1", ProductID: "p2"})
	require.NoError(t, err)
	assert.False(t, c.Contains("p2"))

	c, err = f.remove.Execute(ctx, appcart.UpdateItemInput{UserID: "u1", ProductID: "p1"})
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = f.remove.Execute(ctx, appcart.UpdateItemInput{UserID: "u1", ProductID: "p1"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

type publisherFunc func(context.Context, domoutbox.Event) error

func (f publisherFunc) Publish(ctx context.Context, e domoutbox.Event) error { return f(ctx, e) }

func TestAddItemAnnouncesQuantityAdded(t *testing.T) {
	f := setup(t)
	var got []domoutbox.Event
	add := appcart.NewAddItemUseCase(f.carts, f.products, nil,
		appcart.WithItemAddedPublisher(publisherFunc(func(_ context.Context, e domoutbox.Event) error {
			got = append(got, e)
			return nil
		})))

	_, err := add.Execute(context.Background(), appcart.AddItemInput{UserID: "u1", ProductID: "p1", Quantity: 2})
	require.NoError(t, err)
	_, err = add.Execute(context.Background(), appcart.AddItemInput{UserID: "u1", ProductID: "p1", Quantity: 1})
	require.NoError(t, err)
	_, err = add.Execute(context.Background(), appcart.AddItemInput{UserID: "u1", ProductID: "p1", Quantity: 10})
	require.Error(t, err)

	require.Len(t, got, 2)
	second := got[1].(domain.ItemAddedEvent)
	assert.Equal(t, domain.TopicCartItemAdded, second.EventName())
	assert.Equal(t, "u1", second.EventKey())
	assert.Equal(t, "p1", second.ProductID)
	assert.Equal(t, 1, second.QuantityAdded)
}

func TestAddItemSurvivesPublishFailure(t *testing.T) {
	f := setup(t)
	add := appcart.NewAddItemUseCase(f.carts, f.products, nil,
		appcart.WithItemAddedPublisher(publisherFunc(func(context.Context, domoutbox.Event) error {
			return errors.New("broker down")
		})))

	c, err := add.Execute(context.Background(), appcart.AddItemInput{UserID: "u1", ProductID: "p1", Quantity: 1})
	require.NoError(t, err)
	require.Len(t, c.Items, 1)

	stored, err := f.get.Execute(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Items[0].Quantity)
}
