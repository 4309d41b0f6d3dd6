package state

import "time"

// Camera mirrors one configured camera on the backend. Name, RTSPURL,
// Location and FPS are fixed at creation; the remaining fields are
// live-derived and are the only ones push events may touch.
type Camera struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	RTSPURL  string `json:"rtsp_url"`
	Location string `json:"location"`
	FPS      int    `json:"fps"`

	LiveFPS    float64 `json:"live_fps"`
	Processing bool    `json:"processing"`
	Error      string  `json:"error,omitempty"`
	Streaming  bool    `json:"streaming"`
}

// Active reports whether the camera qualifies for a live preview cell:
// processing and with a configured source.
func (c Camera) Active() bool {
	return c.Processing && c.RTSPURL != ""
}

// Alert is one detection record. Immutable once received.
type Alert struct {
	ID          int64     `json:"id"`
	CameraID    int64     `json:"camera_id"`
	DetectedAt  time.Time `json:"detected_at"`
	HasSnapshot bool      `json:"has_snapshot"`
}

// User is the authenticated identity returned by the auth endpoints.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}
