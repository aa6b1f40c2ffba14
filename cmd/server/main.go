package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"twquote/internal/account"
	"twquote/internal/app"
	"twquote/internal/chatbot"
	"twquote/internal/config"
	"twquote/internal/logging"
	"twquote/internal/store"
	"twquote/internal/web"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server")
	}
}

func run(cfg config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := app.NewCache(cfg, log)
	if err != nil {
		return err
	}
	res := app.NewResolver(cfg, c, log)

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	popular := make([]web.Popular, 0, len(cfg.Server.Popular))
	for _, code := range cfg.Server.Popular {
		name := cfg.Names.Table[code]
		if name == "" {
			name = code
		}
		popular = append(popular, web.Popular{Code: code, Name: name})
	}

	srv, err := web.New(web.Config{
		Resolver:       res,
		Bot:            chatbot.New(res, chatbot.DefaultKeywords()),
		Accounts:       &account.Service{Users: st},
		Store:          st,
		Popular:        popular,
		RequestTimeout: cfg.RequestTimeout(),
		Log:            log,
	})
	if err != nil {
		return err
	}

	hs := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout() + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", hs.Addr).Int("quote_providers", len(res.Quotes)).Msg("server listening")
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return hs.Shutdown(shutdownCtx)
}

// openStore uses Postgres when a DSN is configured and memory otherwise.
func openStore(ctx context.Context, cfg config.Config, log zerolog.Logger) (store.Store, error) {
	if cfg.Database.DSN == "" {
		log.Warn().Msg("no database configured; accounts and watchlists are kept in memory")
		return store.NewMemory(), nil
	}
	return store.OpenPostgres(ctx, cfg.Database.DSN, cfg.ConnectTimeout(), log)
}
