package chat

import (
	"sort"
	"sync"

	"github.com/filmcrew/setchat/internal/types"
)

// Registry is the in-memory source of truth for who is online in each
// project. All mutations share one mutex domain so register,
// deregister, and supersession checks observe a consistent snapshot.
type Registry struct {
	mu       sync.Mutex
	projects map[string]map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		projects: make(map[string]map[string]*Session),
	}
}

// Register inserts or replaces the entry for the session's
// (project, identity) pair. If a session for the same pair was already
// registered it is returned so the caller can close it; the registry
// itself never closes handles.
func (r *Registry) Register(projectID string, s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.projects[projectID]
	if !ok {
		members = make(map[string]*Session)
		r.projects[projectID] = members
	}

	superseded := members[s.identity.UserID]
	members[s.identity.UserID] = s

	return superseded
}

// Deregister removes the entry for the session's (project, identity)
// pair only if the stored session is still this one. A stale deregister
// from a just-superseded session is a no-op and returns false.
func (r *Registry) Deregister(projectID string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.projects[projectID]
	if !ok {
		return false
	}

	if members[s.identity.UserID] != s {
		return false
	}

	delete(members, s.identity.UserID)
	if len(members) == 0 {
		delete(r.projects, projectID)
	}

	return true
}

// Online returns a snapshot of the identities currently connected for a
// project, ordered by user id for a stable result within one call.
func (r *Registry) Online(projectID string) []types.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.projects[projectID]
	identities := make([]types.Identity, 0, len(members))
	for _, s := range members {
		identities = append(identities, s.identity)
	}

	sort.Slice(identities, func(i, j int) bool {
		return identities[i].UserID < identities[j].UserID
	})

	return identities
}

// snapshot returns the live sessions for a project. Broadcast iterates
// the copy, never the map, so delivery cannot race with mutation.
func (r *Registry) snapshot(projectID string) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.projects[projectID]
	sessions := make([]*Session, 0, len(members))
	for _, s := range members {
		sessions = append(sessions, s)
	}

	return sessions
}
