package state

// Event is an inbound mutation applied to the roster or the alert feed.
// Both push messages and REST responses are expressed as events so that a
// single dispatcher goroutine is the only writer (last-writer-wins is safe
// because there are no concurrent unsynchronized writers).
type Event interface {
	eventName() string
}

// RosterReplaced swaps the full camera table (initial GET /api/cameras).
type RosterReplaced struct {
	Cameras []Camera
}

// CameraAdded prepends a newly created camera (POST /api/cameras response).
type CameraAdded struct {
	Camera Camera
}

// CameraReplaced overwrites one camera with the server's authoritative
// snapshot (start/stop responses). Unlike push patches this replaces all
// live-derived fields. No-op if the id is unknown.
type CameraReplaced struct {
	Camera Camera
}

// CameraStartPending is the optimistic flip before a start request: the
// processing flag goes up and the stale error is cleared.
type CameraStartPending struct {
	CameraID int64
}

// CameraStatsPatched carries a cam_stats push. Nil fields were absent from
// the payload and must leave the current value untouched.
type CameraStatsPatched struct {
	CameraID   int64
	FPS        *float64
	Processing *bool
	Streaming  *bool
}

// CameraFailed carries a cam_error push or a failed start response: clears
// the processing flag and records the message.
type CameraFailed struct {
	CameraID int64
	Message  string
}

// AlertReceived inserts one alert at the head of the feed.
type AlertReceived struct {
	Alert Alert
}

// AlertsSeeded replaces the feed contents (initial GET /api/alerts).
type AlertsSeeded struct {
	Alerts []Alert
}

func (RosterReplaced) eventName() string     { return "roster_replaced" }
func (CameraAdded) eventName() string        { return "camera_added" }
func (CameraReplaced) eventName() string     { return "camera_replaced" }
func (CameraStartPending) eventName() string { return "camera_start_pending" }
func (CameraStatsPatched) eventName() string { return "cam_stats" }
func (CameraFailed) eventName() string       { return "cam_error" }
func (AlertReceived) eventName() string      { return "alert" }
func (AlertsSeeded) eventName() string       { return "alerts_seeded" }
