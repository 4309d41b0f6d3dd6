package live

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// Player is one playback session created by a factory. Implementations stay
// inert until Load; decoding internals are the player's business, the
// controller only drives the session and reacts to its events.
type Player interface {
	// Load begins fetching the bound source.
	Load() error
	// Play starts playback after the source parsed. May fail for reasons
	// that do not invalidate the stream (autoplay policy); callers swallow
	// those errors.
	Play() error
	// Close releases the session. Must be safe to call more than once.
	Close() error
}

// PlayerHandlers are the callbacks a player fires as the session advances.
type PlayerHandlers struct {
	// OnReady fires once when the source manifest parsed successfully.
	OnReady func()
	// OnError fires for playback errors. Fatal errors end the session.
	OnError func(fatal bool, err error)
}

// PlayerFactory creates playback sessions. The production implementation is
// the headless HLS driver; tests substitute fakes.
type PlayerFactory interface {
	Create(manifestURL string, h PlayerHandlers) (Player, error)
}

// Attachment wraps a single playback session for one camera mount: creation,
// source binding, error classification, teardown. No automatic re-attach
// after a fatal error; the user remounts by cycling the camera.
type Attachment struct {
	factory PlayerFactory

	// OnPlaying fires when the stream parsed and playback was started.
	OnPlaying func()
	// OnFatal fires after the session was torn down due to a fatal error.
	OnFatal func(err error)

	mu       sync.Mutex
	player   Player
	attachID string
	torn     bool
}

func NewAttachment(factory PlayerFactory) *Attachment {
	return &Attachment{factory: factory}
}

// Attach creates the playback session and binds it to the manifest address.
func (a *Attachment) Attach(manifestURL string) error {
	a.mu.Lock()
	if a.torn {
		a.mu.Unlock()
		return nil
	}
	a.attachID = uuid.New().String()
	id := a.attachID
	a.mu.Unlock()

	player, err := a.factory.Create(manifestURL, PlayerHandlers{
		OnReady: func() { a.handleReady(id) },
		OnError: func(fatal bool, err error) { a.handleError(id, fatal, err) },
	})
	if err != nil {
		return err
	}

	a.mu.Lock()
	if a.torn {
		// Torn down while the factory was working; release immediately.
		a.mu.Unlock()
		player.Close()
		return nil
	}
	a.player = player
	a.mu.Unlock()

	return player.Load()
}

func (a *Attachment) handleReady(id string) {
	a.mu.Lock()
	stale := a.torn || a.attachID != id
	player := a.player
	a.mu.Unlock()
	if stale || player == nil {
		return
	}

	// Playback start failures do not set the error state: the stream is
	// valid and a manual user interaction may still resume it.
	if err := player.Play(); err != nil {
		log.Printf("Attachment %s: play rejected: %v", id, err)
	}
	if a.OnPlaying != nil {
		a.OnPlaying()
	}
}

func (a *Attachment) handleError(id string, fatal bool, err error) {
	a.mu.Lock()
	stale := a.torn || a.attachID != id
	a.mu.Unlock()
	if stale {
		return
	}

	if !fatal {
		metricPlaybackErrors.WithLabelValues("transient").Inc()
		log.Printf("Attachment %s: transient playback error: %v", id, err)
		return
	}

	metricPlaybackErrors.WithLabelValues("fatal").Inc()
	log.Printf("Attachment %s: fatal playback error: %v", id, err)
	a.Teardown()
	if a.OnFatal != nil {
		a.OnFatal(err)
	}
}

// Teardown destroys the session. Destroying an already-destroyed or
// never-created session is a no-op.
func (a *Attachment) Teardown() {
	a.mu.Lock()
	if a.torn {
		a.mu.Unlock()
		return
	}
	a.torn = true
	player := a.player
	a.player = nil
	a.mu.Unlock()

	if player != nil {
		player.Close()
	}
}
