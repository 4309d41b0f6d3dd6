package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/technosupport/ts-dashboard/internal/api"
	"github.com/technosupport/ts-dashboard/internal/push"
	"github.com/technosupport/ts-dashboard/internal/state"
	"github.com/technosupport/ts-dashboard/internal/tokens"
)

// alertSeedLimit is how many alerts the initial REST fetch pulls in.
const alertSeedLimit = 50

var ErrNotAuthenticated = errors.New("not authenticated")

// Controller is the top-level orchestrator: it owns the credential, drives
// login/logout, and is the exclusive owner of the single push connection.
type Controller struct {
	API        *api.Client
	Store      Store
	Dispatcher *state.Dispatcher

	mu       sync.Mutex
	user     state.User
	listener *push.Listener

	statusMu  sync.RWMutex
	statusMsg string
}

func NewController(client *api.Client, store Store, d *state.Dispatcher) *Controller {
	return &Controller{
		API:        client,
		Store:      store,
		Dispatcher: d,
	}
}

// Login authenticates, persists the session and brings the mirror up.
func (c *Controller) Login(ctx context.Context, username, password string) error {
	token, user, err := c.API.Login(ctx, username, password)
	if err != nil {
		return err
	}
	return c.establish(ctx, token, user)
}

// Register creates an account and establishes the session from the fresh
// token, exactly like a login.
func (c *Controller) Register(ctx context.Context, username, password string) error {
	token, user, err := c.API.Register(ctx, username, password)
	if err != nil {
		return err
	}
	return c.establish(ctx, token, user)
}

// Resume re-establishes a persisted session. Returns false when there is
// nothing stored or the stored token already expired.
func (c *Controller) Resume(ctx context.Context) (bool, error) {
	rec, found, err := c.Store.Load(ctx)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	claims, err := tokens.Peek(rec.Token)
	if err != nil || claims.Expired(time.Now()) {
		// Stale credential; drop it rather than dialing with it.
		if clearErr := c.Store.Clear(ctx); clearErr != nil {
			log.Printf("Session: failed to clear stale session: %v", clearErr)
		}
		return false, nil
	}

	if err := c.establish(ctx, rec.Token, rec.User); err != nil {
		return false, err
	}
	return true, nil
}

// establish adopts the credential, persists it, opens the push channel and
// seeds both stores.
func (c *Controller) establish(ctx context.Context, token string, user state.User) error {
	// A credential change tears the previous connection down first; at most
	// one live connection per session.
	c.closeListener()

	c.API.SetToken(token)
	c.mu.Lock()
	c.user = user
	c.mu.Unlock()

	if err := c.Store.Save(ctx, Record{Token: token, User: user, SavedAt: time.Now()}); err != nil {
		log.Printf("Session: failed to persist session: %v", err)
	}

	listener, err := push.Connect(ctx, c.API.WebsocketURL(token), c.Dispatcher, c.pushStatus)
	if err != nil {
		return fmt.Errorf("push channel: %w", err)
	}
	c.mu.Lock()
	c.listener = listener
	c.mu.Unlock()

	// Initial REST seeds. Push patches arriving concurrently funnel through
	// the same dispatcher, so ordering stays serialized.
	cams, err := c.API.ListCameras(ctx)
	if err != nil {
		return fmt.Errorf("camera seed: %w", err)
	}
	c.Dispatcher.Publish(state.RosterReplaced{Cameras: cams})

	alerts, err := c.API.ListAlerts(ctx, alertSeedLimit)
	if err != nil {
		return fmt.Errorf("alert seed: %w", err)
	}
	c.Dispatcher.Publish(state.AlertsSeeded{Alerts: alerts})

	log.Printf("Session: established for %s", user.Username)
	return nil
}

// Logout drops the credential, clears the persisted session and closes the
// push channel.
func (c *Controller) Logout(ctx context.Context) error {
	c.closeListener()
	c.API.SetToken("")
	c.mu.Lock()
	c.user = state.User{}
	c.mu.Unlock()
	return c.Store.Clear(ctx)
}

// Close shuts the push channel down without clearing the persisted session,
// so a restart can resume.
func (c *Controller) Close() {
	c.closeListener()
}

func (c *Controller) closeListener() {
	c.mu.Lock()
	listener := c.listener
	c.listener = nil
	c.mu.Unlock()
	if listener != nil {
		listener.Close()
		<-listener.Done()
	}
}

// User returns the authenticated identity.
func (c *Controller) User() state.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// Authenticated reports whether a credential is installed.
func (c *Controller) Authenticated() bool {
	return c.API.Token() != ""
}

// Status is the human-readable realtime connection status.
func (c *Controller) Status() string {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.statusMsg
}

func (c *Controller) pushStatus(st push.State) {
	msg := "Realtime disconnected"
	if st == push.StateConnected {
		msg = "Realtime connected"
	}
	c.statusMu.Lock()
	c.statusMsg = msg
	c.statusMu.Unlock()
	log.Printf("Session: %s", msg)
}

// AddCamera creates a camera and prepends the server's record to the roster.
func (c *Controller) AddCamera(ctx context.Context, spec api.NewCamera) error {
	if !c.Authenticated() {
		return ErrNotAuthenticated
	}
	cam, err := c.API.AddCamera(ctx, spec)
	if err != nil {
		return err
	}
	c.Dispatcher.Publish(state.CameraAdded{Camera: cam})
	return nil
}

// StartCamera flips the processing flag optimistically, then either adopts
// the server's authoritative snapshot or rolls back with the server error.
func (c *Controller) StartCamera(ctx context.Context, id int64) error {
	if !c.Authenticated() {
		return ErrNotAuthenticated
	}
	c.Dispatcher.Publish(state.CameraStartPending{CameraID: id})

	cam, err := c.API.StartCamera(ctx, id)
	if err != nil {
		msg := err.Error()
		var apiErr *api.Error
		if errors.As(err, &apiErr) {
			msg = apiErr.Message
		}
		c.Dispatcher.Publish(state.CameraFailed{CameraID: id, Message: msg})
		return err
	}
	c.Dispatcher.Publish(state.CameraReplaced{Camera: cam})
	return nil
}

// StopCamera halts a camera and adopts the server's snapshot.
func (c *Controller) StopCamera(ctx context.Context, id int64) error {
	if !c.Authenticated() {
		return ErrNotAuthenticated
	}
	cam, err := c.API.StopCamera(ctx, id)
	if err != nil {
		return err
	}
	c.Dispatcher.Publish(state.CameraReplaced{Camera: cam})
	return nil
}
