package events

// Reporter publishes engine events.
type Reporter interface {
	Report(Event)
}

// ChanReporter writes events to a channel without blocking; events are
// dropped when the channel is full so a slow consumer never stalls the engine.
type ChanReporter struct {
	ch chan<- Event
}

func NewChanReporter(ch chan<- Event) *ChanReporter { return &ChanReporter{ch: ch} }

func (r *ChanReporter) Report(e Event) {
	if r == nil || r.ch == nil {
		return
	}
	select {
	case r.ch <- e:
	default:
	}
}
