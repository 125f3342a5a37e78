package session

import (
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
)

// Registry tracks which session owns each open resource, so a physical instrument is never
// driven by two sessions at once.
type Registry struct {
	owners *xsync.MapOf[string, *Session]
}

var defaultRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{owners: xsync.NewMapOf[string, *Session]()}
}

// Owner returns the session that currently owns resourceName.
func (r *Registry) Owner(resourceName string) (*Session, bool) {
	return r.owners.Load(registryKey(resourceName))
}

// Sessions returns the currently registered sessions.
func (r *Registry) Sessions() []*Session {
	sessions := make([]*Session, 0, r.owners.Size())
	r.owners.Range(func(_ string, s *Session) bool {
		sessions = append(sessions, s)
		return true
	})

	return sessions
}

// Len returns the number of owned resources.
func (r *Registry) Len() int {
	return r.owners.Size()
}

func (r *Registry) acquire(resourceName string, s *Session) bool {
	owner, loaded := r.owners.LoadOrStore(registryKey(resourceName), s)
	return !loaded || owner == s
}

func (r *Registry) release(resourceName string, s *Session) {
	r.owners.Compute(registryKey(resourceName), func(owner *Session, loaded bool) (*Session, bool) {
		return owner, !loaded || owner == s
	})
}

// VISA resource names are case-insensitive.
func registryKey(resourceName string) string {
	return strings.ToUpper(strings.TrimSpace(resourceName))
}
