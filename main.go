package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/varsilias/scholar-search/internal/api"
	"github.com/varsilias/scholar-search/internal/buildinfo"
	"github.com/varsilias/scholar-search/internal/catalog"
	"github.com/varsilias/scholar-search/internal/chat"
	"github.com/varsilias/scholar-search/internal/config"
	"github.com/varsilias/scholar-search/internal/logging"
	"github.com/varsilias/scholar-search/internal/middleware"
	"github.com/varsilias/scholar-search/internal/session"
	"github.com/varsilias/scholar-search/internal/ui"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		logging.New(os.Stderr, "error", false).Error("dotenv", "err", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		logging.New(os.Stderr, "error", false).Error("config", "err", err)
		os.Exit(1)
	}

	addr := flag.String("addr", cfg.Server.Addr, "HTTP listen address")
	level := flag.String("log-level", cfg.Log.Level, "log level: debug|info|warn|error")
	json := flag.Bool("log-json", cfg.Log.JSON, "log as JSON")
	replyDelay := flag.Duration("reply-delay", cfg.Chat.ReplyDelay, "simulated typing delay before a bot reply")
	flag.Parse()

	listen, err := config.ParseAddr(*addr)
	if err != nil {
		logging.New(os.Stderr, "error", false).Error("flags", "err", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, *level, *json)
	logger.Info("build", "version", buildinfo.Version, "commit", buildinfo.Commit, "built_at", buildinfo.BuiltAt)

	kb := chat.DefaultKnowledge()
	opts := []chat.Option{chat.WithReplyDelay(*replyDelay)}
	if cfg.Chat.FallbackReply != "" {
		opts = append(opts, chat.WithFallbackReply(cfg.Chat.FallbackReply))
	}
	sessionStore := session.NewMemoryStore()
	chatCtrl := chat.NewController(logger, kb, sessionStore, opts...)
	cat := catalog.Default(cfg.Catalog.Latency)

	uih, err := ui.New(logger, chatCtrl, kb, cat)
	if err != nil {
		logger.Error("ui init", "err", err)
		os.Exit(1)
	}
	h := api.NewHandlers(logger, chatCtrl, cat, sessionStore)
	streams := api.NewStreams(logger, chatCtrl)

	mux := chi.NewRouter()
	mux.Use(chimw.RealIP)
	ui.RegisterRoutes(mux, uih)
	api.RegisterRoutes(mux, h, streams)

	var handler http.Handler = mux
	handler = middleware.Recoverer(logger)(handler)
	handler = middleware.AccessLog(logger)(handler)
	handler = middleware.RequestID()(handler)
	handler = middleware.VersionHeader()(handler)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	janitorDone := make(chan struct{})
	go func() {
		defer close(janitorDone)
		chatCtrl.Run(ctx, cfg.Sessions.SweepInterval, cfg.Sessions.IdleTimeout)
	}()

	// No WriteTimeout: event streams and websockets stay open.
	server := http.Server{
		Addr:              listen,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() { errChan <- server.ListenAndServe() }()
	logger.Info("scholar search is listening", "addr", listen, "reply_delay", replyDelay.String())

	select {
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			stop()
			<-janitorDone
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	// Close conversations first so their streams end and Shutdown can drain.
	<-janitorDone
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	} else {
		logger.Info("server stopped")
	}
}
