package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/filmcrew/setchat/internal/types"
)

var validate = validator.New()

type MessagesResponse struct {
	Messages   []types.Message `json:"messages"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type OnlineUsersResponse struct {
	OnlineUsers []types.Identity `json:"online_users"`
}

func (a *App) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Printf("json encode: %v", err)
	}
}

// projectMember validates the project id path parameter and confirms
// the requester is a current member. Returns nil after writing an
// error response when either check fails.
func (a *App) projectMember(w http.ResponseWriter, r *http.Request) (string, *types.Identity) {
	projectID := r.PathValue("project_id")
	if _, err := uuid.Parse(projectID); err != nil {
		errResp := NewBadRequestError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return "", nil
	}

	userID, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return "", nil
	}

	identity, err := a.db.ProjectMember(projectID, userID)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewForbiddenError()
		} else {
			errResp = NewInternalServerError(err)
		}
		a.writeJson(w, errResp.StatusCode, errResp)
		return "", nil
	}

	return projectID, &identity
}

func (a *App) getMessages(w http.ResponseWriter, r *http.Request) {
	projectID, identity := a.projectMember(w, r)
	if identity == nil {
		return
	}

	var limit int
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			errResp := NewBadRequestError()
			a.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	beforeID := r.URL.Query().Get("before")
	if beforeID != "" {
		if _, err := uuid.Parse(beforeID); err != nil {
			errResp := NewBadRequestError()
			a.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	messages, nextCursor, err := a.db.PageMessages(projectID, beforeID, limit)
	if err != nil {
		a.log.Printf("page messages: %v", err)
		errResp := NewInternalServerError(err)
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	a.writeJson(w, http.StatusOK, MessagesResponse{
		Messages:   messages,
		NextCursor: nextCursor,
	})
}

func (a *App) deleteMessage(w http.ResponseWriter, r *http.Request) {
	projectID, identity := a.projectMember(w, r)
	if identity == nil {
		return
	}

	messageID := r.PathValue("message_id")
	if _, err := uuid.Parse(messageID); err != nil {
		errResp := NewBadRequestError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	result, err := a.db.SoftDeleteMessage(projectID, messageID, *identity)
	if err != nil {
		a.log.Printf("soft delete message: %v", err)
		errResp := NewInternalServerError(err)
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	switch result {
	case types.DeleteOK:
		a.cs.PublishMessageDeleted(projectID, messageID)
		a.writeJson(w, http.StatusNoContent, nil)
	case types.DeleteDenied:
		errResp := NewForbiddenError()
		a.writeJson(w, errResp.StatusCode, errResp)
	case types.DeleteNotFound:
		errResp := NewNotFoundError()
		a.writeJson(w, errResp.StatusCode, errResp)
	}
}

func (a *App) onlineUsers(w http.ResponseWriter, r *http.Request) {
	projectID, identity := a.projectMember(w, r)
	if identity == nil {
		return
	}

	a.writeJson(w, http.StatusOK, OnlineUsersResponse{
		OnlineUsers: a.cs.Online(projectID),
	})
}

// serveWs upgrades the connection and hands it to the chat server.
// Unlike the REST endpoints there is no auth middleware here: the
// session authenticates in-band with its first frame.
func (a *App) serveWs(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("project_id")
	if _, err := uuid.Parse(projectID); err != nil {
		errResp := NewBadRequestError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(a.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Println("error upgrading connection:", err)
		return
	}

	a.cs.ServeConn(conn, projectID)
}
