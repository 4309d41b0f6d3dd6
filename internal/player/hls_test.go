package player_test

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/ts-dashboard/internal/live"
	"github.com/technosupport/ts-dashboard/internal/player"
)

// fakeOrigin serves a mutable playlist and its segments.
type fakeOrigin struct {
	mu       sync.Mutex
	playlist string
	status   int
	segments map[string]bool
	fetched  map[string]int
}

func newFakeOrigin() *fakeOrigin {
	return &fakeOrigin{
		status: http.StatusOK,
		playlist: "#EXTM3U\n" +
			"#EXT-X-TARGETDURATION:2\n" +
			"#EXTINF:2.0,\n" +
			"seg_0.ts\n" +
			"#EXTINF:2.0,\n" +
			"seg_1.ts\n",
		segments: map[string]bool{"seg_0.ts": true, "seg_1.ts": true},
		fetched:  map[string]int{},
	}
}

func (o *fakeOrigin) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o.mu.Lock()
		defer o.mu.Unlock()
		switch {
		case r.URL.Path == "/streams/cam_1/index.m3u8":
			if o.status != http.StatusOK {
				w.WriteHeader(o.status)
				return
			}
			w.Write([]byte(o.playlist))
		default:
			name := r.URL.Path[len("/streams/cam_1/"):]
			o.fetched[name]++
			if o.segments[name] {
				w.Write([]byte("data"))
				return
			}
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func (o *fakeOrigin) setStatus(code int) {
	o.mu.Lock()
	o.status = code
	o.mu.Unlock()
}

func (o *fakeOrigin) fetchCount(name string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fetched[name]
}

type recorder struct {
	mu     sync.Mutex
	ready  int
	errors []struct {
		fatal bool
		err   error
	}
}

func (r *recorder) handlers() live.PlayerHandlers {
	return live.PlayerHandlers{
		OnReady: func() {
			r.mu.Lock()
			r.ready++
			r.mu.Unlock()
		},
		OnError: func(fatal bool, err error) {
			r.mu.Lock()
			r.errors = append(r.errors, struct {
				fatal bool
				err   error
			}{fatal, err})
			r.mu.Unlock()
		},
	}
}

func (r *recorder) readyCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

func (r *recorder) fatalCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.errors {
		if e.fatal {
			n++
		}
	}
	return n
}

func (r *recorder) transientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.errors {
		if !e.fatal {
			n++
		}
	}
	return n
}

func startPlayer(t *testing.T, origin *fakeOrigin) (live.Player, *recorder) {
	t.Helper()
	srv := httptest.NewServer(origin.handler())
	t.Cleanup(srv.Close)

	f := player.NewFactory(nil)
	f.RefreshInterval = 5 * time.Millisecond

	rec := &recorder{}
	p, err := f.Create(srv.URL+"/streams/cam_1/index.m3u8", rec.handlers())
	require.NoError(t, err)
	require.NoError(t, p.Load())
	t.Cleanup(func() { p.Close() })
	return p, rec
}

func TestHLSPlayer_ReadyOnceAndSegmentsFetched(t *testing.T) {
	origin := newFakeOrigin()
	p, rec := startPlayer(t, origin)

	require.Eventually(t, func() bool {
		return origin.fetchCount("seg_1.ts") > 0
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, rec.readyCount(), "OnReady fires exactly once")
	assert.Equal(t, 1, origin.fetchCount("seg_0.ts"), "segments are not re-fetched")

	require.NoError(t, p.Play())
}

func TestHLSPlayer_ManifestGoneIsFatal(t *testing.T) {
	origin := newFakeOrigin()
	_, rec := startPlayer(t, origin)

	require.Eventually(t, func() bool {
		return rec.readyCount() == 1
	}, time.Second, 5*time.Millisecond)

	origin.setStatus(http.StatusNotFound)
	require.Eventually(t, func() bool {
		return rec.fatalCount() == 1
	}, time.Second, 5*time.Millisecond)

	// The loop stopped; no further errors accumulate.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, rec.fatalCount())
}

func TestHLSPlayer_TransientErrorsEscalateAfterThreshold(t *testing.T) {
	origin := newFakeOrigin()
	_, rec := startPlayer(t, origin)

	require.Eventually(t, func() bool {
		return rec.readyCount() == 1
	}, time.Second, 5*time.Millisecond)

	// 5xx is transient; repeated consecutively it becomes fatal.
	origin.setStatus(http.StatusBadGateway)
	require.Eventually(t, func() bool {
		return rec.fatalCount() == 1
	}, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, rec.transientCount(), 1)
}

func TestHLSPlayer_MissingSegmentIsNonFatal(t *testing.T) {
	origin := newFakeOrigin()
	origin.mu.Lock()
	origin.playlist += "#EXTINF:2.0,\nseg_missing.ts\n"
	origin.mu.Unlock()

	_, rec := startPlayer(t, origin)

	require.Eventually(t, func() bool {
		return rec.transientCount() >= 1
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, rec.fatalCount())
	assert.Equal(t, 1, rec.readyCount())
}

func TestHLSPlayer_CloseIdempotentAndStopsFetching(t *testing.T) {
	origin := newFakeOrigin()
	p, _ := startPlayer(t, origin)

	require.Eventually(t, func() bool {
		return origin.fetchCount("seg_0.ts") > 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	assert.Error(t, p.Play(), "closed session refuses playback")
}

func TestHLSPlayer_RejectsGarbageManifest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html>not a playlist</html>"))
	}))
	t.Cleanup(srv.Close)

	f := player.NewFactory(nil)
	f.RefreshInterval = 5 * time.Millisecond
	rec := &recorder{}
	p, err := f.Create(srv.URL+"/index.m3u8", rec.handlers())
	require.NoError(t, err)
	require.NoError(t, p.Load())
	t.Cleanup(func() { p.Close() })

	require.Eventually(t, func() bool {
		return rec.fatalCount() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, rec.readyCount())
}
