package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	OrdersPlaced       Counter
	OrdersFailed       Counter
	OrdersCancelled    Counter
	RolloversStarted   Counter
	RolloversCompleted Counter
	FeedReconnects     Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		OrdersPlaced:       n,
		OrdersFailed:       n,
		OrdersCancelled:    n,
		RolloversStarted:   n,
		RolloversCompleted: n,
		FeedReconnects:     n,
	}
}
