package state

import (
	"context"
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricEventsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_state_events_applied_total",
		Help: "State events applied by the dispatcher, by event name",
	}, []string{"event"})

	metricEventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_state_events_dropped_total",
		Help: "State events dropped (unknown camera id, full queue)",
	}, []string{"reason"})

	metricFeedSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dashboard_alert_feed_size",
		Help: "Current number of alerts held in the feed",
	})
)

// Dispatcher serializes every roster/feed mutation through one goroutine.
// Push messages and REST responses race only in arrival order on the queue;
// whichever is applied last wins, which is acceptable for telemetry data.
type Dispatcher struct {
	roster *Roster
	feed   *AlertFeed

	events  chan Event
	changed chan struct{}
	done    chan struct{}

	// OnAlert, when set, is invoked for every live AlertReceived (not for
	// seeds). Used by the forwarding sink.
	OnAlert func(Alert)
}

func NewDispatcher(roster *Roster, feed *AlertFeed) *Dispatcher {
	return &Dispatcher{
		roster:  roster,
		feed:    feed,
		events:  make(chan Event, 256),
		changed: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (d *Dispatcher) Roster() *Roster  { return d.roster }
func (d *Dispatcher) Feed() *AlertFeed { return d.feed }

// Publish enqueues an event for the dispatch loop. Drops (with a metric)
// rather than blocking if the queue is full, the data is near-real-time
// telemetry and a stalled consumer must not back up the websocket reader.
func (d *Dispatcher) Publish(evt Event) {
	select {
	case d.events <- evt:
	default:
		metricEventsDropped.WithLabelValues("queue_full").Inc()
		log.Printf("Dispatcher: queue full, dropped %s", evt.eventName())
	}
}

// Changed yields a coalesced signal after each applied event. Consumers that
// miss intermediate signals still observe the latest state via snapshots.
func (d *Dispatcher) Changed() <-chan struct{} {
	return d.changed
}

// Done closes when the dispatch loop has drained and exited.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Run applies events until ctx is cancelled. It is the single writer to the
// roster and the feed.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-d.events:
			d.apply(evt)
			select {
			case d.changed <- struct{}{}:
			default:
			}
		}
	}
}

func (d *Dispatcher) apply(evt Event) {
	switch e := evt.(type) {
	case RosterReplaced:
		d.roster.ReplaceAll(e.Cameras)
	case CameraAdded:
		d.roster.Prepend(e.Camera)
	case CameraReplaced:
		if !d.roster.Replace(e.Camera) {
			metricEventsDropped.WithLabelValues("unknown_camera").Inc()
			return
		}
	case CameraStartPending:
		if !d.roster.MarkStarting(e.CameraID) {
			metricEventsDropped.WithLabelValues("unknown_camera").Inc()
			return
		}
	case CameraStatsPatched:
		if !d.roster.PatchStats(e.CameraID, e.FPS, e.Processing, e.Streaming) {
			metricEventsDropped.WithLabelValues("unknown_camera").Inc()
			return
		}
	case CameraFailed:
		if !d.roster.SetError(e.CameraID, e.Message) {
			metricEventsDropped.WithLabelValues("unknown_camera").Inc()
			return
		}
	case AlertReceived:
		d.feed.Push(e.Alert)
		metricFeedSize.Set(float64(d.feed.Len()))
		if d.OnAlert != nil {
			d.OnAlert(e.Alert)
		}
	case AlertsSeeded:
		d.feed.Seed(e.Alerts)
		metricFeedSize.Set(float64(d.feed.Len()))
	default:
		metricEventsDropped.WithLabelValues("unknown_event").Inc()
		return
	}
	metricEventsApplied.WithLabelValues(evt.eventName()).Inc()
}
