package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/technosupport/ts-dashboard/internal/state"
)

// Error is a failure reported by the backend as an {error} payload.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend error: status=%d, message=%s", e.StatusCode, e.Message)
}

// Client talks to the dashboard backend's REST surface. The bearer token is
// set after login and attached to every protected request.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	mu    sync.RWMutex
	token string
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SetToken installs (or clears) the credential used for protected routes.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, &buf)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		// The backend reports failures as {"error": "..."}. Fall back to a
		// body sample when it doesn't.
		var payload struct {
			Error string `json:"error"`
		}
		b := make([]byte, 512)
		n, _ := resp.Body.Read(b)
		if jsonErr := json.Unmarshal(b[:n], &payload); jsonErr == nil && payload.Error != "" {
			return &Error{StatusCode: resp.StatusCode, Message: payload.Error}
		}
		return &Error{StatusCode: resp.StatusCode, Message: string(b[:n])}
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string     `json:"token"`
	User  state.User `json:"user"`
}

// Login exchanges credentials for a token. The token is not installed on the
// client; the session controller decides when to adopt it.
func (c *Client) Login(ctx context.Context, username, password string) (string, state.User, error) {
	var resp authResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", credentials{username, password}, &resp)
	if err != nil {
		return "", state.User{}, err
	}
	return resp.Token, resp.User, nil
}

// Register creates an account and returns the fresh token.
func (c *Client) Register(ctx context.Context, username, password string) (string, state.User, error) {
	var resp authResponse
	err := c.do(ctx, http.MethodPost, "/auth/register", credentials{username, password}, &resp)
	if err != nil {
		return "", state.User{}, err
	}
	return resp.Token, resp.User, nil
}

// ListCameras fetches the full roster.
func (c *Client) ListCameras(ctx context.Context) ([]state.Camera, error) {
	var resp struct {
		Cameras []state.Camera `json:"cameras"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/cameras", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Cameras, nil
}

// NewCamera is the creation payload for POST /api/cameras.
type NewCamera struct {
	Name     string `json:"name"`
	RTSPURL  string `json:"rtsp_url"`
	Location string `json:"location"`
	FPS      int    `json:"fps"`
}

// AddCamera creates a camera and returns the server's record.
func (c *Client) AddCamera(ctx context.Context, spec NewCamera) (state.Camera, error) {
	var resp struct {
		Camera state.Camera `json:"camera"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/cameras", spec, &resp); err != nil {
		return state.Camera{}, err
	}
	return resp.Camera, nil
}

// StartCamera asks the backend to begin processing. The response carries the
// authoritative camera snapshot.
func (c *Client) StartCamera(ctx context.Context, id int64) (state.Camera, error) {
	var resp struct {
		Camera state.Camera `json:"camera"`
	}
	path := fmt.Sprintf("/api/cameras/%d/start", id)
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return state.Camera{}, err
	}
	return resp.Camera, nil
}

// StopCamera halts processing and returns the authoritative snapshot.
func (c *Client) StopCamera(ctx context.Context, id int64) (state.Camera, error) {
	var resp struct {
		Camera state.Camera `json:"camera"`
	}
	path := fmt.Sprintf("/api/cameras/%d/stop", id)
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return state.Camera{}, err
	}
	return resp.Camera, nil
}

// ListAlerts fetches the most recent alerts, newest first.
func (c *Client) ListAlerts(ctx context.Context, limit int) ([]state.Alert, error) {
	var resp struct {
		Alerts []state.Alert `json:"alerts"`
	}
	path := fmt.Sprintf("/api/alerts?limit=%d", limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Alerts, nil
}

// ManifestURL is the deterministic HLS playlist address for a camera.
func (c *Client) ManifestURL(id int64) string {
	return fmt.Sprintf("%s/streams/cam_%d/index.m3u8", c.BaseURL, id)
}

// WebsocketURL derives the push channel address from the REST base URL.
func (c *Client) WebsocketURL(token string) string {
	base := c.BaseURL
	if strings.HasPrefix(base, "https") {
		base = "wss" + strings.TrimPrefix(base, "https")
	} else if strings.HasPrefix(base, "http") {
		base = "ws" + strings.TrimPrefix(base, "http")
	}
	return base + "/ws?token=" + token
}
