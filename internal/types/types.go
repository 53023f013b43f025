package types

import "time"

// Role is a member's role within a project, as assigned by the
// team-management service.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleParent Role = "parent"
	RoleChild  Role = "child"
	RoleNone   Role = "none"
)

// Elevated reports whether the role may act on other members' content,
// such as deleting their messages.
func (r Role) Elevated() bool {
	return r == RoleAdmin || r == RoleParent
}

// Identity is a project member as seen by the chat subsystem. It is
// resolved once when a session is established and does not change for
// the session's lifetime.
type Identity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"-"`
}

type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"display_name,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

// Message is a persisted chat message. ID and SentAt never change once
// the message is stored; deletion only sets the tombstone flag and
// clears the body on reads.
type Message struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Body       string    `json:"body"`
	SentAt     time.Time `json:"sent_at"`
	Deleted    bool      `json:"is_deleted"`
}

// DeleteResult is the outcome of a soft-delete request.
type DeleteResult int

const (
	DeleteOK DeleteResult = iota
	DeleteDenied
	DeleteNotFound
)
