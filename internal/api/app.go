package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"

	"github.com/filmcrew/setchat/internal/auth"
	"github.com/filmcrew/setchat/internal/chat"
	"github.com/filmcrew/setchat/internal/config"
	"github.com/filmcrew/setchat/internal/database"
)

// App is the HTTP surface of the chat subsystem: the WebSocket entry
// point plus the plain request/response endpoints for history,
// presence, deletion, and token issuance.
type App struct {
	log            *log.Logger
	db             database.ChatRepository
	cs             *chat.Server
	tokens         *auth.TokenService
	mux            *http.Server
	allowedOrigins []string
}

func NewApp(mux *http.ServeMux, logger *log.Logger, cs *chat.Server, db database.ChatRepository,
	tokens *auth.TokenService, cfg *config.Config) *App {
	a := &App{
		log:            logger,
		db:             db,
		cs:             cs,
		tokens:         tokens,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("POST /api/auth/login", a.login)
	mux.HandleFunc("GET /api/auth/session", a.authMiddleware(a.session))
	mux.HandleFunc("GET /api/auth/logout", a.authMiddleware(a.logout))
	mux.HandleFunc("GET /api/projects/{project_id}/chat/ws", a.serveWs)
	mux.HandleFunc("GET /api/projects/{project_id}/chat/messages", a.authMiddleware(a.getMessages))
	mux.HandleFunc("DELETE /api/projects/{project_id}/chat/messages/{message_id}", a.authMiddleware(a.deleteMessage))
	mux.HandleFunc("GET /api/projects/{project_id}/chat/online-users", a.authMiddleware(a.onlineUsers))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = a.errorHandler(h)

	a.mux = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return a
}

func (a *App) Start() error {
	a.log.Printf("starting server on %s\n", a.mux.Addr)
	return a.mux.ListenAndServe()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.log.Println("shutting down HTTP server...")
	if err := a.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
