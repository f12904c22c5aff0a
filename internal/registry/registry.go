// Package registry tracks live bridge sessions for diagnostics and orderly
// shutdown. Sessions are keyed by connection identity, never by instance id:
// several browser tabs may hold independent shells on the same instance.
package registry

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/gluk-w/shellbridge/internal/logutil"
)

// Session is what the registry needs from a live bridge session.
type Session interface {
	ConnID() string
	InstanceID() string
	Snapshot() Snapshot
	// Close ends the session from the server side.
	Close(reason string) error
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	ConnID      string     `json:"conn_id"`
	InstanceID  string     `json:"instance_id"`
	State       string     `json:"state"`
	Address     string     `json:"address,omitempty"`
	RemoteAddr  string     `json:"remote_addr,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ActiveSince *time.Time `json:"active_since,omitempty"`
	BytesIn     int64      `json:"bytes_in"`
	BytesOut    int64      `json:"bytes_out"`
	LastError   string     `json:"last_error,omitempty"`
}

// Registry is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session // conn ID → session
}

func New() *Registry {
	return &Registry{sessions: make(map[string]Session)}
}

// Register adds s. It fails if another session already uses the same
// connection id.
func (r *Registry) Register(s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := s.ConnID()
	if existing, ok := r.sessions[id]; ok && existing != s {
		return fmt.Errorf("session %s already registered", id)
	}
	r.sessions[id] = s
	log.Printf("[registry] registered session %s for instance %s (%d live)", id, logutil.SanitizeForLog(s.InstanceID()), len(r.sessions))
	return nil
}

// Unregister removes s and reports whether it was present. Calling it again,
// or for a session that was never registered, is a no-op.
func (r *Registry) Unregister(s Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := s.ConnID()
	if existing, ok := r.sessions[id]; !ok || existing != s {
		return false
	}
	delete(r.sessions, id)
	log.Printf("[registry] unregistered session %s (%d live)", id, len(r.sessions))
	return true
}

// Get returns the session with the given connection id.
func (r *Registry) Get(connID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[connID]
	return s, ok
}

// List returns snapshots of every live session, oldest first.
func (r *Registry) List() []Snapshot {
	return r.filter(func(Session) bool { return true })
}

// ForInstance returns snapshots of the sessions targeting instanceID.
func (r *Registry) ForInstance(instanceID string) []Snapshot {
	return r.filter(func(s Session) bool { return s.InstanceID() == instanceID })
}

func (r *Registry) filter(keep func(Session) bool) []Snapshot {
	r.mu.RLock()
	sessions := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if keep(s) {
			sessions = append(sessions, s)
		}
	}
	r.mu.RUnlock()

	// Snapshots take the session's own lock; collect them outside ours.
	result := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		result = append(result, s.Snapshot())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ConnID < result[j].ConnID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll closes every live session with reason and returns how many were
// asked to close. Sessions unregister themselves as they finish.
func (r *Registry) CloseAll(reason string) int {
	r.mu.RLock()
	sessions := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s Session) {
			defer wg.Done()
			if err := s.Close(reason); err != nil {
				log.Printf("[registry] closing session %s: %v", s.ConnID(), err)
			}
		}(s)
	}
	wg.Wait()
	return len(sessions)
}
