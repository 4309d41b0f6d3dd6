package live_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/ts-dashboard/internal/live"
)

func manifestServer(t *testing.T, status func() int) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var heads atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			heads.Add(1)
		}
		w.WriteHeader(status())
	}))
	t.Cleanup(srv.Close)
	return srv, &heads
}

func newTestProber(url string) *live.Prober {
	p := live.NewProber(url+"/streams/cam_1/index.m3u8", nil)
	p.Interval = 2 * time.Millisecond
	return p
}

func TestProber_ReadyOnFirstSuccess(t *testing.T) {
	srv, heads := manifestServer(t, func() int { return http.StatusOK })

	p := newTestProber(srv.URL)
	confirmed, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, confirmed)
	assert.Equal(t, int64(1), heads.Load())
}

func TestProber_ReadyAfterCeilingEvenWhenEveryCheckFails(t *testing.T) {
	// The backend may start serving on the first real player request even
	// if every existence check failed; after the ceiling we proceed anyway.
	srv, heads := manifestServer(t, func() int { return http.StatusNotFound })

	p := newTestProber(srv.URL)
	confirmed, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, confirmed)
	assert.Equal(t, int64(live.DefaultProbeAttempts), heads.Load())
}

func TestProber_SucceedsMidway(t *testing.T) {
	var calls atomic.Int64
	srv, heads := manifestServer(t, func() int {
		if calls.Add(1) >= 4 {
			return http.StatusOK
		}
		return http.StatusNotFound
	})

	p := newTestProber(srv.URL)
	confirmed, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, confirmed)
	assert.Equal(t, int64(4), heads.Load())
}

func TestProber_CancelStopsPolling(t *testing.T) {
	srv, heads := manifestServer(t, func() int { return http.StatusNotFound })

	p := newTestProber(srv.URL)
	p.Interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.Wait(ctx)
		done <- err
	}()

	time.Sleep(12 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("prober did not stop on cancel")
	}

	// No further checks fire after cancellation: a leaked interval tied to
	// a torn-down camera would keep counting.
	settled := heads.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, settled, heads.Load())
}

func TestProber_UnreachableHostCountsAttempts(t *testing.T) {
	p := live.NewProber("http://127.0.0.1:1/streams/cam_1/index.m3u8", &http.Client{Timeout: 50 * time.Millisecond})
	p.Interval = 2 * time.Millisecond
	p.MaxAttempts = 3

	confirmed, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, confirmed)
}
