// Package forward mirrors received alerts to downstream consumers.
package forward

import (
	"encoding/json"
	"log"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/technosupport/ts-dashboard/internal/state"
)

var (
	metricForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dashboard_alerts_forwarded_total",
		Help: "Alerts published to the forwarding sink",
	})

	metricForwardErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dashboard_alert_forward_errors_total",
		Help: "Alert publish failures",
	})
)

// Sink receives every live alert the push channel delivers.
type Sink interface {
	ForwardAlert(alert state.Alert) error
	Close()
}

// NATSSink publishes alerts as JSON on one subject.
type NATSSink struct {
	conn    *nats.Conn
	subject string
}

func NewNATSSink(url, subject string) (*NATSSink, error) {
	conn, err := nats.Connect(url, nats.Name("ts-dashboard"))
	if err != nil {
		return nil, err
	}
	return &NATSSink{conn: conn, subject: subject}, nil
}

func (s *NATSSink) ForwardAlert(alert state.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	if err := s.conn.Publish(s.subject, data); err != nil {
		metricForwardErrors.Inc()
		return err
	}
	metricForwarded.Inc()
	return nil
}

func (s *NATSSink) Close() {
	s.conn.Close()
}

// Hook adapts a sink into the dispatcher's alert callback. Publish failures
// are logged and counted, never propagated; the feed itself is unaffected.
func Hook(sink Sink) func(state.Alert) {
	return func(a state.Alert) {
		if err := sink.ForwardAlert(a); err != nil {
			log.Printf("Forward: alert %d not published: %v", a.ID, err)
		}
	}
}
