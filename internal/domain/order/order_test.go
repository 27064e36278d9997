package order

import (
	"testing"

	"github.com/iclalusta/e-commerce-microservice/internal/domain/errs"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleItems() []Item {
	return []Item{
		{ProductID: "7", Quantity: 2, PriceAtOrderTime: decimal.NewFromInt(10)},
		{ProductID: "9", Quantity: 1, PriceAtOrderTime: decimal.RequireFromString("5.50")},
	}
}

func TestNewComputesTotalAndStartsPending(t *testing.T) {
	o, err := New("o-1", "42", "1 Main St", sampleItems())
	require.NoError(t, err)

	assert.Equal(t, StatusPending, o.Status)
	assert.True(t, decimal.RequireFromString("25.50").Equal(o.TotalAmount), "total %s", o.TotalAmount)
	assert.Len(t, o.Items, 2)
}

func TestNewValidation(t *testing.T) {
	_, err := New("o-1", "", "addr", sampleItems())
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = New("o-1", "42", "  ", sampleItems())
	assert.ErrorIs(t, err, ErrMissingAddress)

	_, err = New("o-1", "42", "addr", nil)
	assert.ErrorIs(t, err, errs.ErrEmptyCart)

	_, err = New("o-1", "42", "addr", []Item{{ProductID: "7", Quantity: 0, PriceAtOrderTime: decimal.NewFromInt(1)}})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = New("o-1", "42", "addr", []Item{{ProductID: "7", Quantity: 1, PriceAtOrderTime: decimal.NewFromInt(-1)}})
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestNewCopiesItems(t *testing.T) {
	items := sampleItems()
	o, err := New("o-1", "42", "addr", items)
	require.NoError(t, err)

	items[0].PriceAtOrderTime = decimal.NewFromInt(999)
	assert.True(t, decimal.NewFromInt(10).Equal(o.Items[0].PriceAtOrderTime))
}

func TestHappyPathTransitions(t *testing.T) {
	o, err := New("o-1", "42", "addr", sampleItems())
	require.NoError(t, err)

	require.NoError(t, o.PaymentAuthorized())
	assert.Equal(t, StatusProcessing, o.Status)
	require.NoError(t, o.Complete())
	assert.Equal(t, StatusCompleted, o.Status)

	assert.ErrorIs(t, o.Cancel(), ErrInvalidStateTransition)
	assert.ErrorIs(t, o.PaymentDeclined("late"), ErrInvalidStateTransition)
}

func TestDeclinedIsTerminal(t *testing.T) {
	o, err := New("o-1", "42", "addr", sampleItems())
	require.NoError(t, err)

	require.NoError(t, o.PaymentDeclined("insufficient funds"))
	assert.Equal(t, StatusFailed, o.Status)
	assert.Equal(t, "insufficient funds", o.FailureReason)

	assert.ErrorIs(t, o.PaymentAuthorized(), ErrInvalidStateTransition)
	assert.ErrorIs(t, o.Complete(), ErrInvalidStateTransition)
}

func TestTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		{"pending to processing is checkout only", StatusPending, StatusProcessing, true},
		{"pending to failed is checkout only", StatusPending, StatusFailed, true},
		{"processing to failed is checkout only", StatusProcessing, StatusFailed, true},
		{"pending to cancelled", StatusPending, StatusCancelled, false},
		{"processing to completed", StatusProcessing, StatusCompleted, false},
		{"processing to cancelled", StatusProcessing, StatusCancelled, false},
		{"same status is a no-op", StatusCompleted, StatusCompleted, false},
		{"processing back to pending", StatusProcessing, StatusPending, true},
		{"completed to cancelled", StatusCompleted, StatusCancelled, true},
		{"failed to processing", StatusFailed, StatusProcessing, true},
		{"pending to completed", StatusPending, StatusCompleted, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := Restore(&Order{ID: "o-1", Status: tt.from})
			err := o.TransitionTo(tt.to)
			if tt.wantErr {
				assert.ErrorIs(t, err, errs.ErrValidation)
				assert.Equal(t, tt.from, o.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, o.Status)
		})
	}
}

func TestTransitionToReservedStatusesNamesCheckout(t *testing.T) {
	o := Restore(&Order{ID: "o-1", Status: StatusPending})
	err := o.TransitionTo(StatusProcessing)
	assert.ErrorIs(t, err, ErrReservedTransition)
	assert.Empty(t, o.FailureReason)
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("cancelled")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, s)

	_, err = ParseStatus("SHIPPED")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestChangeShippingAddressIgnoresBlank(t *testing.T) {
	o, err := New("o-1", "42", "addr", sampleItems())
	require.NoError(t, err)

	assert.False(t, o.ChangeShippingAddress(""))
	assert.Equal(t, "addr", o.ShippingAddress)
	assert.True(t, o.ChangeShippingAddress("2 Side St"))
	assert.Equal(t, "2 Side St", o.ShippingAddress)
}

func TestNewOrderCreatedEvent(t *testing.T) {
	o, err := New("o-1", "42", "addr", sampleItems())
	require.NoError(t, err)

	e := NewOrderCreatedEvent(o)
	assert.Equal(t, TopicOrderCreated, e.EventName())
	assert.Equal(t, "o-1", e.EventKey())
	assert.Equal(t, "42", e.UserID)
	require.Len(t, e.Items, 2)
	assert.Equal(t, 2, e.Items[0].Quantity)
	assert.NotEmpty(t, e.EventID)
}
