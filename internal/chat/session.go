package chat

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/filmcrew/setchat/internal/types"
)

const (
	writeWait     = 10 * time.Second
	authWait      = 10 * time.Second
	pongWait      = 60 * time.Second
	pingInterval  = (pongWait * 9) / 10
	maxFrameSize  = 8192
	maxBodyChars  = 5000
	sendQueueSize = 256
)

type sessionState int32

const (
	stateConnecting sessionState = iota
	stateAuthenticating
	stateActive
	stateClosing
	stateClosed
)

var (
	validate = validator.New()
	bodyRule = fmt.Sprintf("required,max=%d", maxBodyChars)
)

// Session owns one accepted connection from handshake to close. The
// registry holds a non-owning reference for broadcast purposes; the
// connection and its timers are released on every exit path through
// close(), which is safe to call from any goroutine in any state.
type Session struct {
	conn      *websocket.Conn
	server    *Server
	log       *log.Logger
	projectID string
	// identity is resolved once during authentication and does not
	// change for the session's lifetime.
	identity types.Identity

	send      chan *ServerEvent
	stop      chan struct{}
	state     atomic.Int32
	active    atomic.Bool
	lastSeen  atomic.Int64
	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, projectID string, cs *Server) *Session {
	s := &Session{
		conn:      conn,
		server:    cs,
		log:       cs.log,
		projectID: projectID,
		send:      make(chan *ServerEvent, sendQueueSize),
		stop:      make(chan struct{}),
	}
	s.touch()
	return s
}

func (s *Session) setState(state sessionState) {
	s.state.Store(int32(state))
}

func (s *Session) State() sessionState {
	return sessionState(s.state.Load())
}

// touch advances the heartbeat state. Called for every inbound frame.
func (s *Session) touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

func (s *Session) lastSeenTime() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// queueEvent places an event on the session's bounded send queue.
// Returns false if the session is stopped or the queue is full, which
// the router treats as a dead handle.
func (s *Session) queueEvent(event *ServerEvent) bool {
	select {
	case <-s.stop:
		return false
	default:
	}

	select {
	case s.send <- event:
		return true
	default:
		s.log.Printf("send queue full for user %q in project %q", s.identity.UserID, s.projectID)
		return false
	}
}

// readLoop drives the session state machine: it authenticates the
// first frame, registers presence, then relays frames until the
// connection fails, the peer closes, or the session is stopped.
func (s *Session) readLoop() {
	defer s.close(reasonReadFailed)

	s.conn.SetReadLimit(maxFrameSize)

	if !s.authenticate() {
		return
	}

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.log.Printf("ws: read: %v", err)
			}
			return
		}

		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		s.touch()

		var frame ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.queueEvent(ErrorEvent(ErrCodeMalformedFrame, "invalid frame"))
			continue
		}

		switch frame.Type {
		case FramePing:
			s.queueEvent(PongEvent())
		case FrameChat:
			s.handleChat(frame)
		case FrameClose:
			s.close(reasonNormal)
			return
		default:
			s.queueEvent(ErrorEvent(ErrCodeMalformedFrame, "unknown frame type"))
		}
	}
}

// authenticate requires the very first inbound frame to carry a valid
// credential, then confirms project membership and registers presence.
// No chat content is accepted before this succeeds.
func (s *Session) authenticate() bool {
	s.setState(stateAuthenticating)
	s.conn.SetReadDeadline(time.Now().Add(authWait))

	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		s.close(reasonAuthFailed)
		return false
	}

	var cred ClientFrame
	if err := json.Unmarshal(raw, &cred); err != nil || cred.Token == "" {
		s.server.stats.Incr(StatAuthFailures)
		s.close(reasonAuthFailed)
		return false
	}

	userID, err := s.server.tokens.Verify(cred.Token)
	if err != nil {
		s.log.Printf("verify token: %v", err)
		s.server.stats.Incr(StatAuthFailures)
		s.close(reasonAuthFailed)
		return false
	}

	// Fail closed: a transient oracle error denies access the same way
	// a missing membership does.
	identity, err := s.server.oracle.ProjectMember(s.projectID, userID)
	if err != nil {
		s.log.Printf("membership check for user %q in project %q: %v", userID, s.projectID, err)
		s.close(reasonNotMember)
		return false
	}
	s.identity = identity

	superseded := s.server.registry.Register(s.projectID, s)
	s.setState(stateActive)
	s.active.Store(true)
	s.touch()
	s.server.stats.Incr(StatActiveSessions)

	if superseded != nil {
		superseded.close(reasonSuperseded)
	}

	s.queueEvent(ConnectedEvent(s.projectID, s.server.registry.Online(s.projectID)))

	// The member was already present if this session superseded an
	// older connection; re-announcing would be a duplicate.
	if superseded == nil {
		s.server.router.Publish(s.projectID, JoinedEvent(s.projectID, s.identity))
	}

	return true
}

func (s *Session) handleChat(frame ClientFrame) {
	body := strings.TrimSpace(frame.Body)
	if err := validate.Var(body, bodyRule); err != nil {
		s.queueEvent(ErrorEvent(ErrCodeValidationFailed, "message body must be between 1 and 5000 characters"))
		return
	}

	if s.server.revokeActiveSessions {
		if _, err := s.server.oracle.ProjectMember(s.projectID, s.identity.UserID); err != nil {
			s.log.Printf("membership revoked for user %q in project %q", s.identity.UserID, s.projectID)
			s.close(reasonNotMember)
			return
		}
	}

	// Persist first: a message that could not be stored is never
	// broadcast, so history and live delivery cannot diverge.
	msg, err := s.server.store.AppendMessage(s.projectID, s.identity, body)
	if err != nil {
		s.log.Printf("append message: %v", err)
		s.queueEvent(ErrorEvent(ErrCodeStorageUnavailable, "message could not be saved"))
		return
	}

	s.server.stats.Incr(StatMessagesRelayed)
	s.server.router.Publish(s.projectID, MessageEvent(msg))
}

// writeLoop serializes all writes to the connection: queued events,
// transport pings, and the idle check. The idle timer runs
// independently of frame I/O so a silent peer is detected even while a
// read is blocked.
func (s *Session) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	idle := time.NewTimer(s.server.idleWindow)
	defer func() {
		ticker.Stop()
		idle.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case event, ok := <-s.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(event)
			if err != nil {
				s.log.Printf("failed to serialize event: %v", err)
				continue
			}

			if !s.writeMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-ticker.C:
			if !s.writeMessage(websocket.PingMessage, nil) {
				return
			}
		case <-idle.C:
			elapsed := time.Since(s.lastSeenTime())
			if elapsed >= s.server.idleWindow {
				s.close(reasonIdleTimeout)
				return
			}
			idle.Reset(s.server.idleWindow - elapsed)
		case <-s.stop:
			return
		}
	}
}

func (s *Session) writeMessage(msgType int, msg []byte) bool {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := s.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			s.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

// close tears the session down exactly once: it reports the close
// reason to the peer, deregisters presence (only if the registry still
// holds this session, so a superseded session cannot delete its
// replacement's entry), publishes "left" when warranted, and releases
// the connection.
func (s *Session) close(reason closeReason) {
	s.closeOnce.Do(func() {
		s.setState(stateClosing)

		// 1006 is reserved for abnormal closure and never sent on the
		// wire; the peer is already gone in that case.
		if reason.code != websocket.CloseAbnormalClosure {
			msg := websocket.FormatCloseMessage(reason.code, reason.text)
			s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		}

		close(s.stop)

		if s.active.Load() {
			if s.server.registry.Deregister(s.projectID, s) {
				s.server.router.Publish(s.projectID, LeftEvent(s.projectID, s.identity))
			}
			s.server.stats.Decr(StatActiveSessions)
		}

		s.conn.Close()
		s.server.removeSession(s)
		s.setState(stateClosed)
	})
}
