package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/filmcrew/setchat/internal/api"
	"github.com/filmcrew/setchat/internal/auth"
	"github.com/filmcrew/setchat/internal/chat"
	"github.com/filmcrew/setchat/internal/config"
	"github.com/filmcrew/setchat/internal/database"
	"github.com/filmcrew/setchat/internal/stats"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dsn            string
	signingKey     string
	allowedOrigins stringSliceFlag
)

func main() {
	flag.StringVar(&addr, "addr", "", "server address (overrides SETCHAT_ADDR)")
	flag.StringVar(&dsn, "dsn", "", "postgres:// connection URL (overrides SETCHAT_DATABASE_URL)")
	flag.StringVar(&signingKey, "signing-key", "", "base64 encoded signing key (overrides SETCHAT_SIGNING_KEY)")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[setchat] ", log.LstdFlags)

	cfg, err := config.Load(addr, dsn, signingKey, allowedOrigins)
	if err != nil {
		logger.Fatal("config: ", err)
	}

	if err := database.RunMigrations(cfg.DatabaseDSN); err != nil {
		logger.Fatal("migrations: ", err)
	}

	db, err := database.NewPgChatRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open: ", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Fatal("db close: ", err)
		}
	}()

	tokens := auth.NewTokenService(cfg.SigningKey)

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := chat.NewServer(logger, db, db, tokens, statsUpdater, chat.Options{
		IdleWindow:           cfg.IdleWindow,
		RevokeActiveSessions: cfg.RevokeActiveSessions,
	})
	if err != nil {
		logger.Fatal("new chat server: ", err)
	}

	app := api.NewApp(mux, logger, chatServer, db, tokens, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := app.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
