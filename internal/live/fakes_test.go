package live_test

import (
	"sync"
	"sync/atomic"

	"github.com/technosupport/ts-dashboard/internal/live"
)

// fakePlayer records lifecycle calls and lets tests drive handler events.
type fakePlayer struct {
	handlers live.PlayerHandlers

	mu      sync.Mutex
	loaded  bool
	played  bool
	playErr error
	closes  int
}

func (p *fakePlayer) Load() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loaded = true
	return nil
}

func (p *fakePlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = true
	return p.playErr
}

func (p *fakePlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	return nil
}

func (p *fakePlayer) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

func (p *fakePlayer) wasPlayed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.played
}

func (p *fakePlayer) ready()                    { p.handlers.OnReady() }
func (p *fakePlayer) fail(fatal bool, err error) { p.handlers.OnError(fatal, err) }

// fakeFactory hands out fakePlayers and counts creations.
type fakeFactory struct {
	mu      sync.Mutex
	players []*fakePlayer
	created atomic.Int64
	playErr error
}

func (f *fakeFactory) Create(_ string, h live.PlayerHandlers) (live.Player, error) {
	f.created.Add(1)
	p := &fakePlayer{handlers: h, playErr: f.playErr}
	f.mu.Lock()
	f.players = append(f.players, p)
	f.mu.Unlock()
	return p, nil
}

func (f *fakeFactory) last() *fakePlayer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.players) == 0 {
		return nil
	}
	return f.players[len(f.players)-1]
}

func (f *fakeFactory) totalCloses() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.players {
		n += p.closeCount()
	}
	return n
}
