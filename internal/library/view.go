package library

import (
	"context"
	"fmt"
	"sync"

	"github.com/nikbrunner/paperstack/internal/model"
)

// ViewState is the lifecycle state of a View.
type ViewState int

const (
	Idle ViewState = iota
	Loading
	Ready
	Mutating
	Closed
)

func (s ViewState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Mutating:
		return "mutating"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// View is one screen's window on the store. It reloads its keys on Focus
// and follows every store change to them while open.
type View struct {
	store *Store
	keys  []string

	mu       sync.Mutex
	state    ViewState
	lib      *model.Library
	onChange func(*model.Library)

	unsubscribe func()
}

// NewView creates a View over keys. onChange, if not nil, is called with the
// view's library whenever it changes.
func (s *Store) NewView(onChange func(*model.Library), keys ...string) *View {
	if len(keys) == 0 {
		keys = model.AllKeys
	}
	v := &View{
		store:    s,
		keys:     append([]string{}, keys...),
		state:    Idle,
		lib:      model.NewLibrary(),
		onChange: onChange,
	}
	v.unsubscribe = s.Subscribe(v.handle)
	return v
}

func (v *View) handle(ev Event) {
	if !overlaps(v.keys, ev.Keys) {
		return
	}

	v.mu.Lock()
	if v.state == Closed || v.state == Idle {
		v.mu.Unlock()
		return
	}
	v.lib = ev.Library
	cb := v.onChange
	v.mu.Unlock()

	if cb != nil {
		cb(ev.Library)
	}
}

// State returns the current lifecycle state.
func (v *View) State() ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Library returns the view's current library.
func (v *View) Library() *model.Library {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lib
}

// Focus reloads the view's keys from storage.
func (v *View) Focus(ctx context.Context) error {
	v.mu.Lock()
	if v.state == Closed {
		v.mu.Unlock()
		return ErrViewClosed
	}
	v.state = Loading
	v.mu.Unlock()

	err := v.store.Load(ctx, v.keys...)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state == Closed {
		return ErrViewClosed
	}
	if err != nil {
		v.state = Idle
		return err
	}
	v.lib = v.store.Snapshot()
	v.state = Ready
	return nil
}

// Do runs one user action. The view must be Ready; it is Mutating while
// the action runs and Ready again afterwards, even when the action fails.
func (v *View) Do(fn func() error) error {
	v.mu.Lock()
	switch v.state {
	case Closed:
		v.mu.Unlock()
		return ErrViewClosed
	case Ready:
	default:
		state := v.state
		v.mu.Unlock()
		return fmt.Errorf("view is %s, not ready", state)
	}
	v.state = Mutating
	v.mu.Unlock()

	err := fn()

	v.mu.Lock()
	if v.state == Mutating {
		v.state = Ready
	}
	v.mu.Unlock()
	return err
}

// Close detaches the view from the store.
func (v *View) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state == Closed {
		return
	}
	v.state = Closed
	v.unsubscribe()
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
