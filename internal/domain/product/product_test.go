package product

import (
	"testing"

	"github.com/iclalusta/e-commerce-microservice/internal/domain/errs"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecreaseStockBumpsVersion(t *testing.T) {
	p, err := New("7", "Mug", decimal.NewFromInt(10), 5)
	require.NoError(t, err)

	shortfall, err := p.DecreaseStock(2, false)
	require.NoError(t, err)
	assert.Zero(t, shortfall)
	assert.Equal(t, 3, p.Stock)
	assert.Equal(t, int64(2), p.Version)
}

func TestDecreaseStockOversell(t *testing.T) {
	p, err := New("7", "Mug", decimal.NewFromInt(10), 1)
	require.NoError(t, err)

	shortfall, err := p.DecreaseStock(3, true)
	require.NoError(t, err)
	assert.Equal(t, 2, shortfall)
	assert.Equal(t, 0, p.Stock)
}

func TestDecreaseStockRecheck(t *testing.T) {
	p, err := New("7", "Mug", decimal.NewFromInt(10), 1)
	require.NoError(t, err)

	_, err = p.DecreaseStock(3, false)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 1, p.Stock)
	assert.Equal(t, int64(1), p.Version)

	_, err = p.DecreaseStock(0, true)
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestApplyIsAllOrNothing(t *testing.T) {
	p, err := New("7", "Mug", decimal.NewFromInt(10), 1)
	require.NoError(t, err)

	price := decimal.NewFromInt(15)
	stock := -1
	err = p.Apply(Patch{Price: &price, Stock: &stock})
	assert.ErrorIs(t, err, ErrInvalidStock)
	assert.True(t, decimal.NewFromInt(10).Equal(p.Price))

	stock = 0
	require.NoError(t, p.Apply(Patch{Price: &price, Stock: &stock}))
	assert.True(t, price.Equal(p.Price))
	assert.Equal(t, int64(2), p.Version)
}

func TestProductUpdatedEvent(t *testing.T) {
	p, err := New("7", "Mug", decimal.NewFromInt(10), 0)
	require.NoError(t, err)

	e := NewProductUpdatedEvent(p)
	assert.Equal(t, TopicProductUpdated, e.EventName())
	assert.Equal(t, "7", e.EventKey())
	assert.True(t, e.OutOfStock())
	assert.Equal(t, int64(1), e.Version)
}
