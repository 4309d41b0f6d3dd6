package live

import (
	"context"
	"net/http"
	"time"
)

const (
	// DefaultProbeInterval matches the cadence the backend pipeline needs to
	// publish its first playlist after a start.
	DefaultProbeInterval = 800 * time.Millisecond
	// DefaultProbeAttempts caps the existence checks before the attachment
	// proceeds anyway.
	DefaultProbeAttempts = 8
)

// Prober checks whether a camera's stream manifest has become fetchable.
// A successful HEAD is an optimization, not a precondition: after the
// attempt ceiling the caller must still attach, because the pipeline may
// start serving on the first real player request even when the probe saw
// nothing. Preserve that tolerance; it is not a bug.
type Prober struct {
	ManifestURL string
	Interval    time.Duration
	MaxAttempts int
	HTTPClient  *http.Client
}

func NewProber(manifestURL string, client *http.Client) *Prober {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Prober{
		ManifestURL: manifestURL,
		Interval:    DefaultProbeInterval,
		MaxAttempts: DefaultProbeAttempts,
		HTTPClient:  client,
	}
}

// Wait blocks until the manifest is confirmed present, the attempt ceiling
// is reached, or ctx is cancelled. confirmed is true only when a check
// actually succeeded. The ticker is released on every exit path.
func (p *Prober) Wait(ctx context.Context) (confirmed bool, err error) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	max := p.MaxAttempts
	if max <= 0 {
		max = DefaultProbeAttempts
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
			attempts++
			metricProbeAttempts.Inc()
			if p.check(ctx) {
				metricProbeOutcome.WithLabelValues("confirmed").Inc()
				return true, nil
			}
			if attempts >= max {
				metricProbeOutcome.WithLabelValues("assumed").Inc()
				return false, nil
			}
		}
	}
}

func (p *Prober) check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.ManifestURL, nil)
	if err != nil {
		return false
	}
	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
