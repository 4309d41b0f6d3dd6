package live

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"
)

// CellState is the lifecycle phase of one preview cell.
type CellState string

const (
	CellIdle      CellState = "idle"
	CellProbing   CellState = "probing"
	CellAttaching CellState = "attaching"
	CellPlaying   CellState = "playing"
	CellFailed    CellState = "failed"
	CellStopped   CellState = "stopped"
)

// CellConfig fixes one cell's identity and tunables. Any change to the
// camera id, the source address or the active flag means a different cell:
// the manager stops this one and mounts a fresh one.
type CellConfig struct {
	CameraID    int64
	RTSPURL     string
	ManifestURL string

	Factory       PlayerFactory
	ProbeInterval time.Duration
	ProbeAttempts int
	HTTPClient    *http.Client
}

// Cell runs one (prober, attachment) pair for an active camera. All of its
// resources hang off a single context; Stop cancels it and waits, so no
// ticker or playback session can outlive the cell.
type Cell struct {
	cfg    CellConfig
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	st      CellState
	loading bool
	lastErr string

	attach *Attachment
}

// StartCell mounts the cell and begins probing.
func StartCell(cfg CellConfig) *Cell {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cell{
		cfg:    cfg,
		cancel: cancel,
		st:     CellIdle,
	}
	c.mu.Lock()
	c.loading = true
	c.mu.Unlock()

	metricCellMounts.Inc()
	metricCellsActive.Inc()

	c.wg.Add(1)
	go c.run(ctx)
	return c
}

func (c *Cell) run(ctx context.Context) {
	defer c.wg.Done()

	prober := NewProber(c.cfg.ManifestURL, c.cfg.HTTPClient)
	if c.cfg.ProbeInterval > 0 {
		prober.Interval = c.cfg.ProbeInterval
	}
	if c.cfg.ProbeAttempts > 0 {
		prober.MaxAttempts = c.cfg.ProbeAttempts
	}

	c.setState(CellProbing)
	confirmed, err := prober.Wait(ctx)
	if err != nil {
		// Cancelled during probing; nothing to release beyond the ticker.
		return
	}
	if !confirmed {
		log.Printf("Cell cam_%d: manifest unconfirmed after %d checks, attaching anyway", c.cfg.CameraID, prober.MaxAttempts)
	}

	attach := NewAttachment(c.cfg.Factory)
	attach.OnPlaying = func() {
		c.mu.Lock()
		c.loading = false
		c.mu.Unlock()
		c.setState(CellPlaying)
	}
	attach.OnFatal = func(err error) {
		c.mu.Lock()
		c.loading = false
		c.lastErr = "Playback error"
		c.mu.Unlock()
		c.setState(CellFailed)
	}

	c.mu.Lock()
	c.attach = attach
	c.mu.Unlock()
	defer attach.Teardown()

	c.setState(CellAttaching)
	if err := attach.Attach(c.cfg.ManifestURL); err != nil {
		c.mu.Lock()
		c.loading = false
		c.lastErr = "Playback error"
		c.mu.Unlock()
		c.setState(CellFailed)
	}

	<-ctx.Done()
}

// Stop unmounts the cell: cancels the probe, tears the playback session down
// and waits until everything is released. Idempotent.
func (c *Cell) Stop() {
	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	already := c.st == CellStopped
	c.st = CellStopped
	c.mu.Unlock()
	if !already {
		metricCellsActive.Dec()
	}
}

func (c *Cell) setState(st CellState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st == CellStopped {
		return
	}
	// A failed cell stays failed until remounted; late OnPlaying from an
	// already-torn attachment must not resurrect it.
	if c.st == CellFailed && st != CellStopped {
		return
	}
	c.st = st
}

// State returns the current lifecycle phase.
func (c *Cell) State() CellState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st
}

// Status is a point-in-time view for the ops endpoint.
type Status struct {
	CameraID int64     `json:"camera_id"`
	State    CellState `json:"state"`
	Loading  bool      `json:"loading"`
	Error    string    `json:"error,omitempty"`
}

func (c *Cell) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		CameraID: c.cfg.CameraID,
		State:    c.st,
		Loading:  c.loading,
		Error:    c.lastErr,
	}
}
