package config

import (
	"context"
	"os"
	"sync"
	"time"

	"poi-tiering/pkg/metrics"
)

// ProfileChange describes a scoring profile reload. On failure Err is set
// and Profile is the last good profile.
type ProfileChange struct {
	Profile *Profile
	Err     error
}

// Subscriber channel buffer size; small to apply back-pressure if receivers are slow.
const subBuf = 4

// ProfileWatcher polls the scoring profile file and notifies subscribers
// when its mtime moves forward and the new content parses.
type ProfileWatcher struct {
	mu        sync.RWMutex
	cur       *Profile
	closed    bool
	intv      time.Duration
	subs      []chan ProfileChange
	cancel    context.CancelFunc
	done      chan struct{}
	filePath  string
	lastMTime time.Time
}

// NewProfileWatcher loads the profile at path once and returns a watcher
// primed with it.
func NewProfileWatcher(path string, interval time.Duration) (*ProfileWatcher, error) {
	p, err := LoadProfile(path)
	if err != nil {
		return nil, err
	}
	w := &ProfileWatcher{cur: p, intv: interval, filePath: path}
	if fi, err := os.Stat(path); err == nil {
		w.lastMTime = fi.ModTime()
	}
	return w, nil
}

// Current returns the last successfully loaded profile.
func (w *ProfileWatcher) Current() *Profile {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cur
}

// Subscribe returns a channel to receive ProfileChange notifications.
// Caller should drain the channel until it is closed.
func (w *ProfileWatcher) Subscribe() <-chan ProfileChange {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch := make(chan ProfileChange, subBuf)
	if w.closed {
		close(ch)
		return ch
	}
	w.subs = append(w.subs, ch)
	return ch
}

// Start begins polling in a goroutine. It is a no-op without a file path
// or when already started.
func (w *ProfileWatcher) Start() {
	w.mu.Lock()
	if w.cancel != nil || w.closed || w.filePath == "" || w.intv <= 0 {
		w.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.loop(ctx)
}

// Close stops the watcher and closes subscriber channels.
func (w *ProfileWatcher) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	w.mu.Lock()
	for _, s := range w.subs {
		close(s)
	}
	w.subs = nil
	w.mu.Unlock()
}

func (w *ProfileWatcher) loop(ctx context.Context) {
	defer close(w.done)
	t := time.NewTicker(w.intv)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.CheckOnce()
		}
	}
}

// CheckOnce reloads the profile if the file changed since the last check.
func (w *ProfileWatcher) CheckOnce() {
	fi, err := os.Stat(w.filePath)
	if err != nil {
		return
	}
	mt := fi.ModTime()
	w.mu.RLock()
	changed := mt.After(w.lastMTime)
	w.mu.RUnlock()
	if !changed {
		return
	}

	p, err := LoadProfile(w.filePath)
	metrics.RecordProfileReload(err)

	w.mu.Lock()
	w.lastMTime = mt
	if err != nil {
		chg := ProfileChange{Profile: w.cur, Err: err}
		w.mu.Unlock()
		w.notify(chg)
		return
	}
	w.cur = p
	w.mu.Unlock()
	w.notify(ProfileChange{Profile: p})
}

func (w *ProfileWatcher) notify(chg ProfileChange) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, s := range w.subs {
		select {
		case s <- chg:
		default:
			// drop if slow; keep system moving
		}
	}
}
