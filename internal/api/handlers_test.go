package api

import (
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/filmcrew/setchat/internal/auth"
	"github.com/filmcrew/setchat/internal/chat"
	"github.com/filmcrew/setchat/internal/config"
	"github.com/filmcrew/setchat/internal/database"
	"github.com/filmcrew/setchat/internal/stats"
	"github.com/filmcrew/setchat/internal/testutil"
	"github.com/filmcrew/setchat/internal/types"
)

const (
	testProjectID = "7b1d2f64-9c1e-4f4a-8d35-2f6f6a1f0c11"
	testMessageID = "5f0a7c2e-8b4d-4e6f-9a1b-3c5d7e9f0a2b"
	testUserID    = "u1"
)

var testSigningKey = []byte("test-signing-key")

func newTestApp(t *testing.T, db *database.MockChatRepository) *App {
	t.Helper()

	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Times(5)
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()

	logger := testutil.TestLogger(t)
	tokens := auth.NewTokenService(testSigningKey)

	cs, err := chat.NewServer(logger, db, db, tokens, su, chat.Options{})
	if err != nil {
		t.Fatalf("failed to create chat server: %v", err)
	}

	return NewApp(http.NewServeMux(), logger, cs, db, tokens, &config.Config{
		ServerAddr:     "localhost:0",
		AllowedOrigins: []string{"http://localhost:3000"},
	})
}

func testToken(t *testing.T, userID string) string {
	t.Helper()

	token, err := auth.NewTokenService(testSigningKey).Create(userID, time.Minute)
	if err != nil {
		t.Fatalf("create token: %v", err)
	}
	return token
}

// doRequest routes the request through the app's full handler chain so
// path parameters and middleware behave as in production.
func doRequest(a *App, method, target, token string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	a.mux.Handler.ServeHTTP(rr, req)
	return rr
}

func memberIdentity() types.Identity {
	return types.Identity{UserID: testUserID, DisplayName: "User One", Role: types.RoleChild}
}

func TestGetMessages(t *testing.T) {
	messagesURL := "/api/projects/" + testProjectID + "/chat/messages"

	t.Run("returns the newest page by default", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		db.On("ProjectMember", testProjectID, testUserID).Return(memberIdentity(), nil)

		page := []types.Message{
			{ID: "m2", ProjectID: testProjectID, SenderID: testUserID, SenderName: "User One", Body: "second"},
			{ID: "m1", ProjectID: testProjectID, SenderID: testUserID, SenderName: "User One", Body: "first"},
		}
		db.On("PageMessages", testProjectID, "", 0).Return(page, "m1", nil)

		a := newTestApp(t, db)
		rr := doRequest(a, http.MethodGet, messagesURL, testToken(t, testUserID), nil)
		assert.Equal(t, http.StatusOK, rr.Code)

		var resp MessagesResponse
		assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, page, resp.Messages)
		assert.Equal(t, "m1", resp.NextCursor)
	})

	t.Run("forwards limit and cursor parameters", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		db.On("ProjectMember", testProjectID, testUserID).Return(memberIdentity(), nil)
		db.On("PageMessages", testProjectID, testMessageID, 25).Return([]types.Message{}, "", nil)

		a := newTestApp(t, db)
		rr := doRequest(a, http.MethodGet, messagesURL+"?limit=25&before="+testMessageID, testToken(t, testUserID), nil)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("fails with 403 for a non-member", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		db.On("ProjectMember", testProjectID, testUserID).Return(types.Identity{}, sql.ErrNoRows)

		a := newTestApp(t, db)
		rr := doRequest(a, http.MethodGet, messagesURL, testToken(t, testUserID), nil)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("fails with 400 on an invalid project id", func(t *testing.T) {
		a := newTestApp(t, &database.MockChatRepository{})
		rr := doRequest(a, http.MethodGet, "/api/projects/not-a-uuid/chat/messages", testToken(t, testUserID), nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("fails with 400 on invalid paging parameters", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("ProjectMember", testProjectID, testUserID).Return(memberIdentity(), nil)
		a := newTestApp(t, db)

		for _, query := range []string{"?limit=-1", "?limit=abc", "?before=not-a-uuid"} {
			rr := doRequest(a, http.MethodGet, messagesURL+query, testToken(t, testUserID), nil)
			assert.Equal(t, http.StatusBadRequest, rr.Code, "expected 400 for %q", query)
		}
	})

	t.Run("fails with 401 without a credential", func(t *testing.T) {
		a := newTestApp(t, &database.MockChatRepository{})
		rr := doRequest(a, http.MethodGet, messagesURL, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestDeleteMessage(t *testing.T) {
	deleteURL := "/api/projects/" + testProjectID + "/chat/messages/" + testMessageID

	t.Run("tombstones the message", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		db.On("ProjectMember", testProjectID, testUserID).Return(memberIdentity(), nil)
		db.On("SoftDeleteMessage", testProjectID, testMessageID, memberIdentity()).Return(types.DeleteOK, nil)

		a := newTestApp(t, db)
		rr := doRequest(a, http.MethodDelete, deleteURL, testToken(t, testUserID), nil)
		assert.Equal(t, http.StatusNoContent, rr.Code)
	})

	t.Run("fails with 403 when the requester may not delete", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		db.On("ProjectMember", testProjectID, testUserID).Return(memberIdentity(), nil)
		db.On("SoftDeleteMessage", testProjectID, testMessageID, memberIdentity()).Return(types.DeleteDenied, nil)

		a := newTestApp(t, db)
		rr := doRequest(a, http.MethodDelete, deleteURL, testToken(t, testUserID), nil)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("fails with 404 for an unknown or already deleted message", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		db.On("ProjectMember", testProjectID, testUserID).Return(memberIdentity(), nil)
		db.On("SoftDeleteMessage", testProjectID, testMessageID, memberIdentity()).Return(types.DeleteNotFound, nil)

		a := newTestApp(t, db)
		rr := doRequest(a, http.MethodDelete, deleteURL, testToken(t, testUserID), nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("fails with 400 on an invalid message id", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("ProjectMember", testProjectID, testUserID).Return(memberIdentity(), nil)

		a := newTestApp(t, db)
		rr := doRequest(a, http.MethodDelete, "/api/projects/"+testProjectID+"/chat/messages/not-a-uuid",
			testToken(t, testUserID), nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestOnlineUsers(t *testing.T) {
	db := &database.MockChatRepository{}
	defer db.AssertExpectations(t)
	db.On("ProjectMember", testProjectID, testUserID).Return(memberIdentity(), nil)

	a := newTestApp(t, db)
	rr := doRequest(a, http.MethodGet, "/api/projects/"+testProjectID+"/chat/online-users",
		testToken(t, testUserID), nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp OnlineUsersResponse
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Empty(t, resp.OnlineUsers, "expected no online users without live sessions")
}

func TestServeWs(t *testing.T) {
	t.Run("fails with 400 on an invalid project id", func(t *testing.T) {
		a := newTestApp(t, &database.MockChatRepository{})
		rr := doRequest(a, http.MethodGet, "/api/projects/not-a-uuid/chat/ws", "", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("rejects a plain request without an upgrade handshake", func(t *testing.T) {
		a := newTestApp(t, &database.MockChatRepository{})
		rr := doRequest(a, http.MethodGet, "/api/projects/"+testProjectID+"/chat/ws", "", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
