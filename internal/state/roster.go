package state

import "sync"

// Roster is the authoritative in-memory camera table. Writes happen on the
// dispatcher goroutine only; the mutex makes snapshots safe for readers on
// other goroutines (cell manager, ops endpoint).
type Roster struct {
	mu      sync.RWMutex
	cameras []Camera
}

func NewRoster() *Roster {
	return &Roster{}
}

// ReplaceAll swaps the whole table, keeping server order.
func (r *Roster) ReplaceAll(cams []Camera) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cameras = make([]Camera, len(cams))
	copy(r.cameras, cams)
}

// Prepend inserts a newly created camera at the head, matching the order the
// backend lists cameras in.
func (r *Roster) Prepend(cam Camera) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cameras = append([]Camera{cam}, r.cameras...)
}

// Replace overwrites the camera with the same id. Returns false (and changes
// nothing) if the id is not present.
func (r *Roster) Replace(cam Camera) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.cameras {
		if r.cameras[i].ID == cam.ID {
			r.cameras[i] = cam
			return true
		}
	}
	return false
}

// PatchStats applies a partial cam_stats update. Nil fields leave the
// current value untouched. Unknown id is a no-op, never an insert.
func (r *Roster) PatchStats(id int64, fps *float64, processing, streaming *bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.cameras {
		if r.cameras[i].ID != id {
			continue
		}
		if fps != nil {
			r.cameras[i].LiveFPS = *fps
		}
		if processing != nil {
			r.cameras[i].Processing = *processing
		}
		if streaming != nil {
			r.cameras[i].Streaming = *streaming
		}
		return true
	}
	return false
}

// SetError records a camera fault: processing goes down, the message is kept.
// Other live fields (last observed fps) are untouched.
func (r *Roster) SetError(id int64, msg string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.cameras {
		if r.cameras[i].ID == id {
			r.cameras[i].Processing = false
			r.cameras[i].Error = msg
			return true
		}
	}
	return false
}

// MarkStarting is the optimistic pre-start flip (processing on, error
// cleared). Rolled back via SetError if the request fails.
func (r *Roster) MarkStarting(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.cameras {
		if r.cameras[i].ID == id {
			r.cameras[i].Processing = true
			r.cameras[i].Error = ""
			return true
		}
	}
	return false
}

// Get returns a copy of the camera with the given id.
func (r *Roster) Get(id int64) (Camera, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.cameras {
		if c.ID == id {
			return c, true
		}
	}
	return Camera{}, false
}

// Snapshot returns a copy of the full table.
func (r *Roster) Snapshot() []Camera {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Camera, len(r.cameras))
	copy(out, r.cameras)
	return out
}

// Active returns the cameras eligible for live preview cells.
func (r *Roster) Active() []Camera {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Camera
	for _, c := range r.cameras {
		if c.Active() {
			out = append(out, c)
		}
	}
	return out
}

func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cameras)
}
