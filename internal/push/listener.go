package push

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/technosupport/ts-dashboard/internal/state"
)

var (
	metricMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_push_messages_total",
		Help: "Push channel messages received, by type tag",
	}, []string{"type"})

	metricDuplicates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dashboard_push_duplicate_alerts_total",
		Help: "Alert pushes suppressed by the redelivery window",
	})
)

// State is the push connection status.
type State string

const (
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
)

// dedupWindow bounds the recently-seen alert id cache. The backend may
// redeliver an alert around reconnects; the feed must not double-insert.
const dedupWindow = 512

// envelope is the discriminated wire payload. Stats fields are pointers so
// that absent fields stay distinguishable from zero values.
type envelope struct {
	Type string `json:"type"`

	Alert *state.Alert `json:"alert,omitempty"`

	CameraID   int64    `json:"camera_id,omitempty"`
	FPS        *float64 `json:"fps,omitempty"`
	Processing *bool    `json:"processing,omitempty"`
	Streaming  *bool    `json:"streaming,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Listener owns one websocket connection and demultiplexes inbound events
// into dispatcher mutations. It does not reconnect; the session controller
// opens a fresh listener when credentials change.
type Listener struct {
	conn       *websocket.Conn
	dispatcher *state.Dispatcher
	onStatus   func(State)
	seenAlerts *lru.Cache[int64, struct{}]

	closeOnce sync.Once
	done      chan struct{}
}

// Connect dials the push endpoint and starts the read loop. The status
// callback fires with StateConnected on success and StateDisconnected when
// the read loop exits for any reason.
func Connect(ctx context.Context, wsURL string, d *state.Dispatcher, onStatus func(State)) (*Listener, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, err
	}

	seen, _ := lru.New[int64, struct{}](dedupWindow)
	l := &Listener{
		conn:       conn,
		dispatcher: d,
		onStatus:   onStatus,
		seenAlerts: seen,
		done:       make(chan struct{}),
	}

	if l.onStatus != nil {
		l.onStatus(StateConnected)
	}

	go l.readLoop()
	return l, nil
}

// Close terminates the connection. Safe to call more than once, and safe to
// call concurrently with the read loop exiting on its own.
func (l *Listener) Close() {
	l.closeOnce.Do(func() {
		l.conn.Close()
	})
}

// Done closes when the read loop has exited.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

func (l *Listener) readLoop() {
	defer close(l.done)
	defer l.Close()

	for {
		_, msg, err := l.conn.ReadMessage()
		if err != nil {
			log.Printf("Push: connection closed: %v", err)
			if l.onStatus != nil {
				l.onStatus(StateDisconnected)
			}
			return
		}
		l.handle(msg)
	}
}

func (l *Listener) handle(msg []byte) {
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		log.Printf("Push: bad payload: %v", err)
		metricMessages.WithLabelValues("malformed").Inc()
		return
	}

	switch env.Type {
	case "alert":
		metricMessages.WithLabelValues("alert").Inc()
		if env.Alert == nil {
			return
		}
		if _, dup := l.seenAlerts.Get(env.Alert.ID); dup {
			metricDuplicates.Inc()
			return
		}
		l.seenAlerts.Add(env.Alert.ID, struct{}{})
		l.dispatcher.Publish(state.AlertReceived{Alert: *env.Alert})

	case "cam_stats":
		metricMessages.WithLabelValues("cam_stats").Inc()
		l.dispatcher.Publish(state.CameraStatsPatched{
			CameraID:   env.CameraID,
			FPS:        env.FPS,
			Processing: env.Processing,
			Streaming:  env.Streaming,
		})

	case "cam_error":
		metricMessages.WithLabelValues("cam_error").Inc()
		l.dispatcher.Publish(state.CameraFailed{
			CameraID: env.CameraID,
			Message:  env.Error,
		})

	default:
		// Unknown tags are ignored for forward compatibility.
		metricMessages.WithLabelValues("unknown").Inc()
	}
}
