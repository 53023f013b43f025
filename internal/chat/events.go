package chat

import (
	"time"

	"github.com/filmcrew/setchat/internal/types"
)

// Inbound frame kinds. The very first frame of a connection is the
// credential frame and carries only a token.
const (
	FrameChat  = "chat"
	FramePing  = "ping"
	FrameClose = "close"
)

// ClientFrame is a decoded inbound frame.
type ClientFrame struct {
	Type  string `json:"type"`
	Token string `json:"token,omitempty"`
	Body  string `json:"body,omitempty"`
}

// Outbound event kinds. The set is closed: receivers discriminate on
// the type tag alone.
const (
	EventConnected      = "connected"
	EventJoined         = "joined"
	EventLeft           = "left"
	EventMessage        = "message"
	EventMessageDeleted = "message_deleted"
	EventPong           = "pong"
	EventError          = "error"
)

// Per-frame error codes carried by EventError. These never close the
// session; session-fatal conditions are reported through close codes
// instead.
const (
	ErrCodeMalformedFrame     = "malformed_frame"
	ErrCodeValidationFailed   = "validation_failed"
	ErrCodeStorageUnavailable = "storage_unavailable"
)

// ServerEvent is the self-describing envelope delivered to clients.
type ServerEvent struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	ProjectID   string           `json:"project_id,omitempty"`
	User        *types.Identity  `json:"user,omitempty"`
	OnlineUsers []types.Identity `json:"online_users,omitempty"`
	Message     *types.Message   `json:"message,omitempty"`
	MessageID   string           `json:"message_id,omitempty"`
	ErrorCode   string           `json:"error_code,omitempty"`
	Error       string           `json:"error,omitempty"`
}

func ConnectedEvent(projectID string, online []types.Identity) *ServerEvent {
	return &ServerEvent{
		Type:        EventConnected,
		Timestamp:   Now(),
		ProjectID:   projectID,
		OnlineUsers: online,
	}
}

func JoinedEvent(projectID string, identity types.Identity) *ServerEvent {
	return &ServerEvent{
		Type:      EventJoined,
		Timestamp: Now(),
		ProjectID: projectID,
		User:      &identity,
	}
}

func LeftEvent(projectID string, identity types.Identity) *ServerEvent {
	return &ServerEvent{
		Type:      EventLeft,
		Timestamp: Now(),
		ProjectID: projectID,
		User:      &identity,
	}
}

func MessageEvent(msg types.Message) *ServerEvent {
	return &ServerEvent{
		Type:      EventMessage,
		Timestamp: Now(),
		ProjectID: msg.ProjectID,
		Message:   &msg,
	}
}

func MessageDeletedEvent(projectID, messageID string) *ServerEvent {
	return &ServerEvent{
		Type:      EventMessageDeleted,
		Timestamp: Now(),
		ProjectID: projectID,
		MessageID: messageID,
	}
}

func PongEvent() *ServerEvent {
	return &ServerEvent{
		Type:      EventPong,
		Timestamp: Now(),
	}
}

func ErrorEvent(code, msg string) *ServerEvent {
	return &ServerEvent{
		Type:      EventError,
		Timestamp: Now(),
		ErrorCode: code,
		Error:     msg,
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
