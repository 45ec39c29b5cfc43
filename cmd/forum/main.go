package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"forum/middleware"
	"forum/pkg/config"
	"forum/pkg/handlers"
	post "forum/pkg/posts"
	"forum/pkg/posts/mongorepo"
	"forum/pkg/posts/sqlrepo"
	"forum/pkg/session"
	"forum/pkg/user"
	"forum/pkg/voting"
)

func newLogger(level string) (*zap.SugaredLogger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// openStorage returns the post and user repositories for the configured
// backend together with a function that releases them.
func openStorage(ctx context.Context, cfg config.StorageConfig) (post.PostRepo, user.UserRepo, func() error, error) {
	switch cfg.Kind {
	case config.StorageMongo:
		repo, err := mongorepo.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, nil, err
		}
		closer := func() error { return repo.Close(context.Background()) }
		return repo, repo.Users(), closer, nil
	case config.StoragePostgres, config.StorageMySQL:
		repo, err := sqlrepo.Open(cfg.Kind, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		return repo, repo.Users(), repo.Close, nil
	}
	return post.NewPostMemoryRepository(), user.NewUserMemRep(), func() error { return nil }, nil
}

// newLocker uses Redis when REDIS_URL is set so several instances share
// the per-(user, item) vote lock.
func newLocker(ctx context.Context, cfg *config.Config) (voting.Locker, func() error, error) {
	if cfg.Redis.URL == "" {
		return voting.NewKeyedMutex(), func() error { return nil }, nil
	}
	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return voting.NewRedisLocker(client, cfg.Voting.LockTTL), client.Close, nil
}

func serveStatic(r *mux.Router, dir string) {
	index := filepath.Join(dir, "html", "index.html")
	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, index)
	})
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.Dir(dir))))
}

func run() error {
	if err := config.LoadDotEnv(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	lg, err := newLogger(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("new logger: %w", err)
	}
	defer lg.Sync()

	ctx := context.Background()
	posts, users, closeStorage, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStorage(); err != nil {
			lg.Errorw("close storage", "err", err)
		}
	}()

	locker, closeLocker, err := newLocker(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeLocker(); err != nil {
			lg.Errorw("close locker", "err", err)
		}
	}()

	engine := voting.NewEngine(posts, locker, lg)
	engine.MaxRetries = cfg.Voting.MaxRetries

	sm := session.NewSessionsManager(cfg.Server.SessionTTL)
	tokens := session.NewTokenManager(cfg.JWT.Secret, cfg.JWT.ExpirationTime)

	r := mux.NewRouter()
	if cfg.Server.StaticDir != "" {
		serveStatic(r, cfg.Server.StaticDir)
	}
	handlers.AddHandleFuncs(r,
		&handlers.UserHandler{Repo: users, Sessions: sm, Tokens: tokens, Logger: lg},
		handlers.NewPostHandler(posts, engine, lg),
		&handlers.VoteHandler{Engine: engine, Users: users, Logger: lg},
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      middleware.Auth(sm, tokens, lg, r),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		lg.Infow("server starting",
			"addr", server.Addr,
			"storage", cfg.Storage.Kind,
			"redisLock", cfg.Redis.URL != "")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		return err
	case <-quit:
	}

	lg.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	lg.Info("server stopped")
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
