// Package player carries the headless HLS driver: it fetches the playlist
// and pulls freshly published segments so that attachment behavior (error
// classification, teardown) is exercised end to end without a decoder.
package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/technosupport/ts-dashboard/internal/live"
)

// maxTransientErrors is how many consecutive refresh failures are tolerated
// before the session is declared dead. Individual segment hiccups self-heal
// on the next playlist refresh and never count as fatal.
const maxTransientErrors = 3

var errClosed = errors.New("player closed")

// Factory builds HTTP-backed playback sessions.
type Factory struct {
	Client *http.Client
	// RefreshInterval overrides the playlist target duration cadence.
	// Zero means follow the manifest.
	RefreshInterval time.Duration
}

func NewFactory(client *http.Client) *Factory {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Factory{Client: client}
}

func (f *Factory) Create(manifestURL string, h live.PlayerHandlers) (live.Player, error) {
	base, err := url.Parse(manifestURL)
	if err != nil {
		return nil, fmt.Errorf("bad manifest url: %w", err)
	}
	return &hlsPlayer{
		manifestURL: manifestURL,
		base:        base,
		client:      f.Client,
		refresh:     f.RefreshInterval,
		handlers:    h,
		seen:        make(map[string]struct{}),
	}, nil
}

type hlsPlayer struct {
	manifestURL string
	base        *url.URL
	client      *http.Client
	refresh     time.Duration
	handlers    live.PlayerHandlers

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	playing bool
	closed  bool

	seen       map[string]struct{}
	transients int
	readySent  bool
}

func (p *hlsPlayer) Load() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errClosed
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go p.loop(ctx)
	return nil
}

func (p *hlsPlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errClosed
	}
	p.playing = true
	return nil
}

func (p *hlsPlayer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	return nil
}

func (p *hlsPlayer) loop(ctx context.Context) {
	defer p.wg.Done()

	// First refresh happens immediately; the prober already waited for the
	// manifest to (probably) exist.
	interval := p.refresh
	if interval <= 0 {
		interval = 2 * time.Second
	}

	for {
		target, err := p.refreshOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if !p.reportError(err) {
				return
			}
		} else {
			p.transients = 0
			if p.refresh <= 0 && target > 0 {
				interval = target
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// refreshOnce fetches and parses the playlist, then pulls any segments not
// seen before. Returns the manifest target duration when present.
func (p *hlsPlayer) refreshOnce(ctx context.Context) (time.Duration, error) {
	body, status, err := p.get(ctx, p.manifestURL)
	if err != nil {
		return 0, &transientError{err}
	}
	if status == http.StatusNotFound || status == http.StatusGone {
		// The pipeline stopped publishing this stream; unrecoverable for
		// this session.
		return 0, fmt.Errorf("manifest gone: status=%d", status)
	}
	if status != http.StatusOK {
		return 0, &transientError{fmt.Errorf("manifest fetch: status=%d", status)}
	}

	target, segments, err := parsePlaylist(string(body))
	if err != nil {
		return 0, err
	}
	p.markReady()

	for _, seg := range segments {
		if _, ok := p.seen[seg]; ok {
			continue
		}
		p.seen[seg] = struct{}{}
		if err := p.fetchSegment(ctx, seg); err != nil {
			if ctx.Err() != nil {
				return target, nil
			}
			// One bad segment is a hiccup, not a dead stream.
			if p.handlers.OnError != nil {
				p.handlers.OnError(false, err)
			}
		}
	}
	return target, nil
}

func (p *hlsPlayer) fetchSegment(ctx context.Context, ref string) error {
	u, err := p.base.Parse(ref)
	if err != nil {
		return fmt.Errorf("segment url %q: %w", ref, err)
	}
	_, status, err := p.get(ctx, u.String())
	if err != nil {
		return fmt.Errorf("segment %q: %w", ref, err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("segment %q: status=%d", ref, status)
	}
	return nil
}

func (p *hlsPlayer) get(ctx context.Context, rawURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func (p *hlsPlayer) markReady() {
	p.mu.Lock()
	fire := !p.readySent && !p.closed
	p.readySent = true
	p.mu.Unlock()
	if fire && p.handlers.OnReady != nil {
		p.handlers.OnReady()
	}
}

// reportError classifies a refresh failure. Returns false when the loop must
// stop because a fatal error was reported.
func (p *hlsPlayer) reportError(err error) bool {
	var te *transientError
	if errors.As(err, &te) {
		p.transients++
		if p.transients < maxTransientErrors {
			if p.handlers.OnError != nil {
				p.handlers.OnError(false, te.cause)
			}
			return true
		}
		err = fmt.Errorf("stream unrecoverable after %d consecutive failures: %w", p.transients, te.cause)
	}
	if p.handlers.OnError != nil {
		p.handlers.OnError(true, err)
	}
	return false
}

type transientError struct {
	cause error
}

func (e *transientError) Error() string { return e.cause.Error() }
func (e *transientError) Unwrap() error { return e.cause }

// parsePlaylist extracts the target duration and segment references from a
// media playlist. Anything without an #EXTM3U header is rejected.
func parsePlaylist(body string) (time.Duration, []string, error) {
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "#EXTM3U" {
		return 0, nil, errors.New("not an m3u8 playlist")
	}

	var target time.Duration
	var segments []string
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#EXT-X-TARGETDURATION:") {
			if secs, err := strconv.ParseFloat(strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:"), 64); err == nil && secs > 0 {
				target = time.Duration(secs * float64(time.Second))
			}
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		segments = append(segments, line)
	}
	return target, segments, nil
}
