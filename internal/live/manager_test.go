package live_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/ts-dashboard/internal/live"
	"github.com/technosupport/ts-dashboard/internal/state"
)

func newManager(t *testing.T, streamBase string, f live.PlayerFactory) (*live.Manager, *state.Dispatcher) {
	t.Helper()
	d := state.NewDispatcher(state.NewRoster(), state.NewAlertFeed(0))
	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-d.Done()
	})

	m := live.NewManager(d, f, streamBase)
	m.ProbeInterval = 2 * time.Millisecond
	m.ProbeAttempts = 2
	t.Cleanup(m.StopAll)
	return m, d
}

func replaceRoster(t *testing.T, d *state.Dispatcher, cams ...state.Camera) {
	t.Helper()
	d.Publish(state.RosterReplaced{Cameras: cams})
	require.Eventually(t, func() bool {
		if d.Roster().Len() != len(cams) {
			return false
		}
		for _, want := range cams {
			got, ok := d.Roster().Get(want.ID)
			if !ok || got.RTSPURL != want.RTSPURL {
				return false
			}
		}
		return true
	}, time.Second, 2*time.Millisecond)
}

func TestManager_MountsCellPerActiveCamera(t *testing.T) {
	srv := streamServer(t, true)
	f := &fakeFactory{}
	m, d := newManager(t, srv.URL, f)

	replaceRoster(t, d,
		state.Camera{ID: 1, RTSPURL: "rtsp://a", Processing: true},
		state.Camera{ID: 2, RTSPURL: "rtsp://b", Processing: true},
		state.Camera{ID: 3, RTSPURL: "rtsp://c", Processing: false},
		state.Camera{ID: 4, RTSPURL: "", Processing: true},
	)
	m.Reconcile()

	assert.Equal(t, 2, m.CellCount())
	statuses := m.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, int64(1), statuses[0].CameraID)
	assert.Equal(t, int64(2), statuses[1].CameraID)
}

func TestManager_FlagFlipUnmounts(t *testing.T) {
	srv := streamServer(t, true)
	f := &fakeFactory{}
	m, d := newManager(t, srv.URL, f)

	replaceRoster(t, d, state.Camera{ID: 7, RTSPURL: "rtsp://lobby", Processing: true})
	m.Reconcile()
	require.Equal(t, 1, m.CellCount())

	require.Eventually(t, func() bool {
		return f.created.Load() == 1
	}, time.Second, 2*time.Millisecond)

	// Processing drops (cam_error path): the cell must be fully released.
	d.Publish(state.CameraFailed{CameraID: 7, Message: "decode failure"})
	require.Eventually(t, func() bool {
		cam, _ := d.Roster().Get(7)
		return !cam.Processing
	}, time.Second, 2*time.Millisecond)
	m.Reconcile()

	assert.Zero(t, m.CellCount())
	assert.Equal(t, 1, f.totalCloses())
}

func TestManager_SourceChangeRemounts(t *testing.T) {
	srv := streamServer(t, true)
	f := &fakeFactory{}
	m, d := newManager(t, srv.URL, f)

	replaceRoster(t, d, state.Camera{ID: 7, RTSPURL: "rtsp://old", Processing: true})
	m.Reconcile()
	require.Eventually(t, func() bool {
		return f.created.Load() == 1
	}, time.Second, 2*time.Millisecond)

	// Same id, new source address: stale session must never keep running.
	replaceRoster(t, d, state.Camera{ID: 7, RTSPURL: "rtsp://new", Processing: true})
	m.Reconcile()

	assert.Equal(t, 1, m.CellCount())
	require.Eventually(t, func() bool {
		return f.created.Load() == 2
	}, time.Second, 2*time.Millisecond)
	assert.Equal(t, 1, f.totalCloses())
}

func TestManager_RunReconcilesOnChangeSignals(t *testing.T) {
	srv := streamServer(t, true)
	f := &fakeFactory{}
	m, d := newManager(t, srv.URL, f)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	d.Publish(state.RosterReplaced{Cameras: []state.Camera{
		{ID: 1, RTSPURL: "rtsp://a", Processing: true},
	}})

	require.Eventually(t, func() bool {
		return m.CellCount() == 1
	}, time.Second, 2*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("manager did not stop")
	}

	// Run's exit stops every cell.
	assert.Zero(t, m.CellCount())
}

func TestManager_StopAllAfterManyCycles(t *testing.T) {
	srv := streamServer(t, true)
	f := &fakeFactory{}
	m, d := newManager(t, srv.URL, f)

	for i := 0; i < 5; i++ {
		replaceRoster(t, d, state.Camera{ID: 7, RTSPURL: "rtsp://lobby", Processing: true})
		m.Reconcile()
		require.Eventually(t, func() bool {
			return f.created.Load() == int64(i+1)
		}, time.Second, 2*time.Millisecond)

		replaceRoster(t, d)
		m.Reconcile()
		require.Zero(t, m.CellCount())
	}

	// No orphaned sessions after repeated mount/unmount cycles.
	assert.Equal(t, 5, f.totalCloses())
	m.StopAll()
	assert.Equal(t, 5, f.totalCloses())
}
