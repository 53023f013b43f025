package chat

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/filmcrew/setchat/internal/stats"
	"github.com/filmcrew/setchat/internal/types"
)

const defaultIdleWindow = 60 * time.Second

// Metric names registered with the stats updater.
const (
	StatActiveSessions  = "ActiveSessions"
	StatSessionsTotal   = "SessionsTotal"
	StatMessagesRelayed = "MessagesRelayed"
	StatBroadcastDrops  = "BroadcastDrops"
	StatAuthFailures    = "AuthFailures"
)

// MessageStore is the durable side of the chat subsystem: append-only
// message history with cursor pagination and tombstone deletion.
type MessageStore interface {
	AppendMessage(projectID string, sender types.Identity, body string) (types.Message, error)
	PageMessages(projectID, beforeID string, limit int) ([]types.Message, string, error)
	SoftDeleteMessage(projectID, messageID string, requester types.Identity) (types.DeleteResult, error)
}

// MembershipOracle answers whether a user is a current member of a
// project and what their display identity and role are. The chat core
// treats any error as a denial.
type MembershipOracle interface {
	ProjectMember(projectID, userID string) (types.Identity, error)
}

// TokenVerifier validates a credential presented in the first frame of
// a connection and returns the user id it was issued for.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

type Options struct {
	// IdleWindow closes sessions that have not produced an inbound
	// frame for this long.
	IdleWindow time.Duration
	// RevokeActiveSessions re-verifies membership on every chat frame
	// so a revoked member is disconnected rather than grandfathered in.
	RevokeActiveSessions bool
}

// Server owns the presence registry, the broadcast router, and the set
// of live sessions for every project this process serves.
type Server struct {
	log    *log.Logger
	store  MessageStore
	oracle MembershipOracle
	tokens TokenVerifier
	stats  stats.StatsProvider

	registry *Registry
	router   *Router

	idleWindow           time.Duration
	revokeActiveSessions bool

	sessions     map[*Session]struct{}
	sessionsLock sync.Mutex
	wg           sync.WaitGroup
}

func NewServer(logger *log.Logger, store MessageStore, oracle MembershipOracle, tokens TokenVerifier,
	su stats.StatsProvider, opts Options) (*Server, error) {
	if opts.IdleWindow <= 0 {
		opts.IdleWindow = defaultIdleWindow
	}

	registry := NewRegistry()
	cs := &Server{
		log:                  logger,
		store:                store,
		oracle:               oracle,
		tokens:               tokens,
		stats:                su,
		registry:             registry,
		router:               NewRouter(registry, logger, su),
		idleWindow:           opts.IdleWindow,
		revokeActiveSessions: opts.RevokeActiveSessions,
		sessions:             make(map[*Session]struct{}),
	}

	for _, name := range []string{
		StatActiveSessions,
		StatSessionsTotal,
		StatMessagesRelayed,
		StatBroadcastDrops,
		StatAuthFailures,
	} {
		su.RegisterMetric(name)
	}

	return cs, nil
}

// ServeConn adopts an upgraded connection for a project and starts the
// session's read and write loops. Authentication happens in-band on the
// first frame.
func (cs *Server) ServeConn(conn *websocket.Conn, projectID string) *Session {
	s := newSession(conn, projectID, cs)
	cs.addSession(s)
	cs.stats.Incr(StatSessionsTotal)

	go s.writeLoop()
	go s.readLoop()

	return s
}

// Online returns the presence snapshot for a project.
func (cs *Server) Online(projectID string) []types.Identity {
	return cs.registry.Online(projectID)
}

// PublishMessageDeleted notifies live sessions that a message was
// tombstoned through the REST surface.
func (cs *Server) PublishMessageDeleted(projectID, messageID string) {
	cs.router.Publish(projectID, MessageDeletedEvent(projectID, messageID))
}

func (cs *Server) addSession(s *Session) {
	cs.sessionsLock.Lock()
	defer cs.sessionsLock.Unlock()
	cs.sessions[s] = struct{}{}
	cs.wg.Add(1)
}

func (cs *Server) removeSession(s *Session) {
	cs.sessionsLock.Lock()
	defer cs.sessionsLock.Unlock()
	if _, ok := cs.sessions[s]; ok {
		delete(cs.sessions, s)
		cs.wg.Done()
	}
}

// Shutdown closes every live session with a going-away reason, giving
// each a chance to flush its "left" notice, and waits for the session
// set to drain or the context to expire.
func (cs *Server) Shutdown(ctx context.Context) error {
	cs.sessionsLock.Lock()
	sessions := make([]*Session, 0, len(cs.sessions))
	for s := range cs.sessions {
		sessions = append(sessions, s)
	}
	cs.sessionsLock.Unlock()

	cs.log.Printf("closing %d active sessions", len(sessions))
	for _, s := range sessions {
		go s.close(reasonGoingAway)
	}

	done := make(chan struct{})
	go func() {
		cs.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
