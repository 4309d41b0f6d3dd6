package live

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/technosupport/ts-dashboard/internal/state"
)

// cellKey is the identity a mounted cell is bound to. A camera whose source
// address changed gets a new key, which forces a full remount.
type cellKey struct {
	cameraID int64
	rtspURL  string
}

// Manager keeps one live preview cell per active camera, reconciling
// against roster snapshots whenever the dispatcher reports a change.
type Manager struct {
	dispatcher *state.Dispatcher
	factory    PlayerFactory

	// StreamBase is the address the per-camera manifest paths hang off.
	StreamBase    string
	ProbeInterval time.Duration
	ProbeAttempts int
	HTTPClient    *http.Client

	mu    sync.Mutex
	cells map[cellKey]*Cell
}

func NewManager(d *state.Dispatcher, factory PlayerFactory, streamBase string) *Manager {
	return &Manager{
		dispatcher: d,
		factory:    factory,
		StreamBase: streamBase,
		cells:      make(map[cellKey]*Cell),
	}
}

// Run reconciles until ctx is cancelled, then stops every cell.
func (m *Manager) Run(ctx context.Context) {
	defer m.StopAll()

	m.Reconcile()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.dispatcher.Changed():
			m.Reconcile()
		}
	}
}

// Reconcile mounts cells for newly active cameras and unmounts cells whose
// camera went inactive, disappeared or changed its source address.
func (m *Manager) Reconcile() {
	desired := make(map[cellKey]struct{})
	for _, cam := range m.dispatcher.Roster().Active() {
		desired[cellKey{cameraID: cam.ID, rtspURL: cam.RTSPURL}] = struct{}{}
	}

	m.mu.Lock()
	var stale []*Cell
	for key, cell := range m.cells {
		if _, ok := desired[key]; !ok {
			stale = append(stale, cell)
			delete(m.cells, key)
		}
	}
	var mount []cellKey
	for key := range desired {
		if _, ok := m.cells[key]; !ok {
			mount = append(mount, key)
		}
	}
	m.mu.Unlock()

	// Stop outside the lock; Stop blocks until the cell's resources are
	// released.
	for _, cell := range stale {
		cell.Stop()
	}

	for _, key := range mount {
		log.Printf("Live: mounting preview cell for cam_%d", key.cameraID)
		cell := StartCell(CellConfig{
			CameraID:      key.cameraID,
			RTSPURL:       key.rtspURL,
			ManifestURL:   m.manifestURL(key.cameraID),
			Factory:       m.factory,
			ProbeInterval: m.ProbeInterval,
			ProbeAttempts: m.ProbeAttempts,
			HTTPClient:    m.HTTPClient,
		})
		m.mu.Lock()
		m.cells[key] = cell
		m.mu.Unlock()
	}
}

// StopAll unmounts every cell and waits for their teardown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	cells := make([]*Cell, 0, len(m.cells))
	for key, cell := range m.cells {
		cells = append(cells, cell)
		delete(m.cells, key)
	}
	m.mu.Unlock()

	for _, cell := range cells {
		cell.Stop()
	}
}

// CellCount returns the number of mounted cells.
func (m *Manager) CellCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cells)
}

// Statuses returns a stable-ordered view of every mounted cell.
func (m *Manager) Statuses() []Status {
	m.mu.Lock()
	cells := make([]*Cell, 0, len(m.cells))
	for _, cell := range m.cells {
		cells = append(cells, cell)
	}
	m.mu.Unlock()

	out := make([]Status, 0, len(cells))
	for _, cell := range cells {
		out = append(out, cell.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CameraID < out[j].CameraID })
	return out
}

func (m *Manager) manifestURL(cameraID int64) string {
	return fmt.Sprintf("%s/streams/cam_%d/index.m3u8", m.StreamBase, cameraID)
}
