package database

import "github.com/filmcrew/setchat/internal/types"

type ChatRepository interface {
	Ping() error
	GetAccountByEmail(email string) (Account, error)
	GetAccountByID(id string) (Account, error)
	// ProjectMember resolves a user's chat identity for a project.
	// Returns sql.ErrNoRows if the user is not a current member.
	ProjectMember(projectID, userID string) (types.Identity, error)
	AppendMessage(projectID string, sender types.Identity, body string) (types.Message, error)
	// PageMessages returns up to limit messages strictly older than the
	// cursor message, newest first, plus the cursor for the next page.
	PageMessages(projectID, beforeID string, limit int) ([]types.Message, string, error)
	SoftDeleteMessage(projectID, messageID string, requester types.Identity) (types.DeleteResult, error)
}
