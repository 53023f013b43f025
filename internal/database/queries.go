package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/filmcrew/setchat/internal/types"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200

	unknownSender = "Unknown"
)

func (db *PgChatRepository) GetAccountByEmail(email string) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT a.id, a.email, a.password_hash, COALESCE(p.name, ''), a.created_at "+
			"FROM accounts a LEFT JOIN user_profiles p ON p.user_id = a.id "+
			"WHERE a.email = $1 LIMIT 1",
		email,
	)

	var a Account
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.PasswordHash,
		&a.DisplayName,
		&a.CreatedAt,
	)

	return a, err
}

func (db *PgChatRepository) GetAccountByID(id string) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT a.id, a.email, a.password_hash, COALESCE(p.name, ''), a.created_at "+
			"FROM accounts a LEFT JOIN user_profiles p ON p.user_id = a.id "+
			"WHERE a.id = $1 LIMIT 1",
		id,
	)

	var a Account
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.PasswordHash,
		&a.DisplayName,
		&a.CreatedAt,
	)

	return a, err
}

func (db *PgChatRepository) ProjectMember(projectID, userID string) (types.Identity, error) {
	row := db.conn.QueryRow(
		"SELECT m.user_id, COALESCE(p.name, $3), m.member_role "+
			"FROM project_members m LEFT JOIN user_profiles p ON p.user_id = m.user_id "+
			"WHERE m.project_id = $1 AND m.user_id = $2 LIMIT 1",
		projectID, userID, unknownSender,
	)

	var (
		identity types.Identity
		role     string
	)
	if err := row.Scan(&identity.UserID, &identity.DisplayName, &role); err != nil {
		return types.Identity{}, err
	}

	identity.Role = types.Role(role)
	return identity, nil
}

func (db *PgChatRepository) AppendMessage(projectID string, sender types.Identity, body string) (types.Message, error) {
	msg := types.Message{
		ID:         uuid.NewString(),
		ProjectID:  projectID,
		SenderID:   sender.UserID,
		SenderName: sender.DisplayName,
		Body:       body,
		SentAt:     time.Now().UTC().Round(time.Millisecond),
	}

	_, err := db.conn.Exec(
		"INSERT INTO messages (id, project_id, sender_id, body, sent_at) "+
			"VALUES ($1, $2, $3, $4, $5)",
		msg.ID,
		msg.ProjectID,
		msg.SenderID,
		msg.Body,
		msg.SentAt,
	)
	if err != nil {
		return types.Message{}, fmt.Errorf("insert message: %w", err)
	}

	return msg, nil
}

func (db *PgChatRepository) PageMessages(projectID, beforeID string, limit int) ([]types.Message, string, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	const selectCols = "SELECT m.id, m.project_id, COALESCE(m.sender_id::text, ''), COALESCE(p.name, $2), " +
		"CASE WHEN m.is_deleted THEN '' ELSE m.body END, m.sent_at, m.is_deleted " +
		"FROM messages m LEFT JOIN user_profiles p ON p.user_id = m.sender_id " +
		"WHERE m.project_id = $1"

	var (
		rows *sql.Rows
		err  error
	)
	if beforeID == "" {
		rows, err = db.conn.Query(
			selectCols+" ORDER BY m.sent_at DESC, m.id DESC LIMIT $3",
			projectID, unknownSender, limit,
		)
	} else {
		// Resolve the cursor to its (sent_at, id) pair so the page
		// boundary stays fixed while new messages are appended
		// concurrently.
		var (
			cursorSentAt time.Time
			cursorID     string
		)
		row := db.conn.QueryRow(
			"SELECT sent_at, id FROM messages WHERE id = $1 AND project_id = $2",
			beforeID, projectID,
		)
		if scanErr := row.Scan(&cursorSentAt, &cursorID); scanErr != nil {
			return nil, "", fmt.Errorf("resolve cursor %q: %w", beforeID, scanErr)
		}

		rows, err = db.conn.Query(
			selectCols+" AND (m.sent_at, m.id) < ($3, $4::uuid) ORDER BY m.sent_at DESC, m.id DESC LIMIT $5",
			projectID, unknownSender, cursorSentAt, cursorID, limit,
		)
	}
	if err != nil {
		return nil, "", fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []types.Message
	for rows.Next() {
		var msg types.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.ProjectID,
			&msg.SenderID,
			&msg.SenderName,
			&msg.Body,
			&msg.SentAt,
			&msg.Deleted,
		); err != nil {
			return nil, "", fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterate messages: %w", err)
	}

	var nextCursor string
	if len(messages) == limit {
		nextCursor = messages[len(messages)-1].ID
	}

	return messages, nextCursor, nil
}

func (db *PgChatRepository) SoftDeleteMessage(projectID, messageID string, requester types.Identity) (types.DeleteResult, error) {
	row := db.conn.QueryRow(
		"SELECT COALESCE(sender_id::text, ''), is_deleted FROM messages "+
			"WHERE id = $1 AND project_id = $2",
		messageID, projectID,
	)

	var (
		senderID string
		deleted  bool
	)
	if err := row.Scan(&senderID, &deleted); err != nil {
		if err == sql.ErrNoRows {
			return types.DeleteNotFound, nil
		}
		return types.DeleteNotFound, fmt.Errorf("get message: %w", err)
	}

	if deleted {
		return types.DeleteNotFound, nil
	}

	if senderID != requester.UserID && !requester.Role.Elevated() {
		return types.DeleteDenied, nil
	}

	if _, err := db.conn.Exec(
		"UPDATE messages SET is_deleted = TRUE WHERE id = $1 AND project_id = $2",
		messageID, projectID,
	); err != nil {
		return types.DeleteNotFound, fmt.Errorf("tombstone message: %w", err)
	}

	return types.DeleteOK, nil
}
