package session

import (
	"errors"
	"sync"

	"github.com/dgellow/streamauth/internal/idp"
)

var (
	// ErrFlowAlreadyInProgress is returned when a sign-in or sign-out is
	// started while another one is still running
	ErrFlowAlreadyInProgress = errors.New("authentication flow already in progress")

	// ErrNotSigningIn is returned by Commit outside of a sign-in
	ErrNotSigningIn = errors.New("no sign-in in progress")

	// ErrIncompleteSession is returned when Commit is given a user without a token or vice versa
	ErrIncompleteSession = errors.New("user and access token must be set together")
)

// State is the position of the store in the sign-in/sign-out cycle
type State int

const (
	StateIdle State = iota
	StateAuthenticating
	StateAuthenticated
	StateRevoking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateRevoking:
		return "revoking"
	default:
		return "unknown"
	}
}

// Session is a point-in-time copy of the store. User is set if and only if
// AccessToken is non-empty.
type Session struct {
	User         *idp.UserProfile
	AccessToken  string
	IsSigningIn  bool
	IsSigningOut bool
	State        State
}

// Authenticated reports whether the snapshot holds a signed-in user
func (s Session) Authenticated() bool {
	return s.User != nil && s.AccessToken != ""
}

// Listener receives a snapshot after every change to the store
type Listener func(Session)

type subscription struct {
	id int
	fn Listener
}

// Store holds the single process-wide session. Only the authentication flow
// writes to it; everything else reads snapshots or subscribes.
type Store struct {
	// notifyMu serializes updates together with their notifications, so
	// listeners see changes one at a time and in the order they happened.
	// It is always taken before mu.
	notifyMu sync.Mutex

	mu        sync.Mutex
	current   Session
	listeners []subscription
	nextID    int
}

// NewStore returns an empty store in StateIdle
func NewStore() *Store {
	return &Store{}
}

// Snapshot returns a copy of the current session
func (s *Store) Snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to be called with a snapshot after each change.
// Listeners run synchronously in registration order and never concurrently;
// the last snapshot a listener receives is the store's current state. A
// listener may call Snapshot, Subscribe or unsubscribe but must not call the
// methods that change the session, which would deadlock. The returned func
// removes the listener.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.listeners {
				if sub.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// BeginSignIn moves the store to StateAuthenticating and raises
// IsSigningIn. Signing in again from StateAuthenticated is allowed and keeps
// the current user until a new one is committed.
func (s *Store) BeginSignIn() error {
	return s.update(func(cur *Session) error {
		if cur.State == StateAuthenticating || cur.State == StateRevoking {
			return ErrFlowAlreadyInProgress
		}
		cur.State = StateAuthenticating
		cur.IsSigningIn = true
		return nil
	})
}

// Commit replaces user and token together
func (s *Store) Commit(user *idp.UserProfile, accessToken string) error {
	if user == nil || accessToken == "" {
		return ErrIncompleteSession
	}
	u := *user
	return s.update(func(cur *Session) error {
		if cur.State != StateAuthenticating {
			return ErrNotSigningIn
		}
		cur.User = &u
		cur.AccessToken = accessToken
		cur.State = StateAuthenticated
		return nil
	})
}

// EndSignIn lowers IsSigningIn. If nothing was committed the store returns
// to whatever the held credentials imply.
func (s *Store) EndSignIn() {
	_ = s.update(func(cur *Session) error {
		if !cur.IsSigningIn && cur.State != StateAuthenticating {
			return errNoChange
		}
		cur.IsSigningIn = false
		if cur.State == StateAuthenticating {
			cur.State = settledState(cur)
		}
		return nil
	})
}

// BeginSignOut moves the store to StateRevoking, raises IsSigningOut and
// returns the token to revoke (empty when signed out). ok is false when
// another flow is running, in which case nothing changes.
func (s *Store) BeginSignOut() (accessToken string, ok bool) {
	err := s.update(func(cur *Session) error {
		if cur.State == StateAuthenticating || cur.State == StateRevoking {
			return ErrFlowAlreadyInProgress
		}
		accessToken = cur.AccessToken
		cur.State = StateRevoking
		cur.IsSigningOut = true
		return nil
	})
	return accessToken, err == nil
}

// Clear drops the user and token together
func (s *Store) Clear() {
	_ = s.update(func(cur *Session) error {
		if cur.User == nil && cur.AccessToken == "" {
			return errNoChange
		}
		cur.User = nil
		cur.AccessToken = ""
		return nil
	})
}

// EndSignOut lowers IsSigningOut and returns the store to StateIdle
func (s *Store) EndSignOut() {
	_ = s.update(func(cur *Session) error {
		if !cur.IsSigningOut && cur.State != StateRevoking {
			return errNoChange
		}
		cur.IsSigningOut = false
		cur.State = settledState(cur)
		return nil
	})
}

var errNoChange = errors.New("no change")

func settledState(cur *Session) State {
	if cur.User != nil && cur.AccessToken != "" {
		return StateAuthenticated
	}
	return StateIdle
}

// update applies fn under the lock and notifies listeners if fn succeeded.
// The next update waits until every listener has returned.
func (s *Store) update(fn func(cur *Session) error) error {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if err := fn(&s.current); err != nil {
		s.mu.Unlock()
		return err
	}
	snap := s.snapshotLocked()
	listeners := make([]Listener, len(s.listeners))
	for i, sub := range s.listeners {
		listeners[i] = sub.fn
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
	return nil
}

func (s *Store) snapshotLocked() Session {
	snap := s.current
	if snap.User != nil {
		u := *snap.User
		snap.User = &u
	}
	return snap
}
