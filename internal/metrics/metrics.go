package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	OrdersPlaced          Counter
	OrdersFailed          Counter
	LeverageUpdates       Counter
	ConditionalsCancelled Counter
	PartialSequences      Counter
	UnprotectedPositions  Counter
	ConfirmationsSkipped  Counter
	FlowsSubmitted        Counter
	FlowsFailed           Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		OrdersPlaced:          n,
		OrdersFailed:          n,
		LeverageUpdates:       n,
		ConditionalsCancelled: n,
		PartialSequences:      n,
		UnprotectedPositions:  n,
		ConfirmationsSkipped:  n,
		FlowsSubmitted:        n,
		FlowsFailed:           n,
	}
}
