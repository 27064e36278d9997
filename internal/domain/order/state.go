package order

// OrderState implements the state pattern for order lifecycle transitions.
// Transitions only move forward; terminal states reject everything but a repeat of themselves.
type OrderState interface {
	Status() Status
	OnPaymentAuthorized(o *Order) (OrderState, error)
	OnPaymentDeclined(o *Order, reason string) (OrderState, error)
	OnFulfilled(o *Order) (OrderState, error)
	OnCancelled(o *Order) (OrderState, error)
}

func stateFor(s Status) OrderState {
	switch s {
	case StatusProcessing:
		return processingState{}
	case StatusCompleted:
		return completedState{}
	case StatusFailed:
		return failedState{}
	case StatusCancelled:
		return cancelledState{}
	default:
		return pendingState{}
	}
}

type pendingState struct{}

func (pendingState) Status() Status { return StatusPending }

func (pendingState) OnPaymentAuthorized(o *Order) (OrderState, error) {
	o.FailureReason = ""
	return processingState{}, nil
}

func (pendingState) OnPaymentDeclined(o *Order, reason string) (OrderState, error) {
	o.FailureReason = reason
	return failedState{}, nil
}

func (pendingState) OnFulfilled(*Order) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

func (pendingState) OnCancelled(*Order) (OrderState, error) {
	return cancelledState{}, nil
}

type processingState struct{}

func (processingState) Status() Status { return StatusProcessing }

func (processingState) OnPaymentAuthorized(*Order) (OrderState, error) {
	return processingState{}, nil
}

func (processingState) OnPaymentDeclined(*Order, string) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

func (processingState) OnFulfilled(*Order) (OrderState, error) {
	return completedState{}, nil
}

func (processingState) OnCancelled(*Order) (OrderState, error) {
	return cancelledState{}, nil
}

type completedState struct{}

func (completedState) Status() Status { return StatusCompleted }

func (completedState) OnPaymentAuthorized(*Order) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

func (completedState) OnPaymentDeclined(*Order, string) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

func (completedState) OnFulfilled(*Order) (OrderState, error) {
	return completedState{}, nil
}

func (completedState) OnCancelled(*Order) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

type failedState struct{}

func (failedState) Status() Status { return StatusFailed }

func (failedState) OnPaymentAuthorized(*Order) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

func (failedState) OnPaymentDeclined(o *Order, reason string) (OrderState, error) {
	o.FailureReason = reason
	return failedState{}, nil
}

func (failedState) OnFulfilled(*Order) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

func (failedState) OnCancelled(*Order) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

type cancelledState struct{}

func (cancelledState) Status() Status { return StatusCancelled }

func (cancelledState) OnPaymentAuthorized(*Order) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

func (cancelledState) OnPaymentDeclined(*Order, string) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

func (cancelledState) OnFulfilled(*Order) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

func (cancelledState) OnCancelled(*Order) (OrderState, error) {
	return cancelledState{}, nil
}
