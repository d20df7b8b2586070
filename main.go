package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/nicebartender/squad-bridge/command"
	"github.com/nicebartender/squad-bridge/db"
	"github.com/nicebartender/squad-bridge/dispatch"
	"github.com/nicebartender/squad-bridge/online"
	"github.com/nicebartender/squad-bridge/packet"
	"github.com/nicebartender/squad-bridge/rpc"
	"github.com/nicebartender/squad-bridge/session"
	"github.com/nicebartender/squad-bridge/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := LoadConfig(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	state := session.NewState()
	queue := command.NewQueue(cfg.QueueSize)

	dispatcher := dispatch.New(queue, state, packet.Codec{})
	dispatcher.PollInterval = cfg.PollInterval
	dispatcher.ErrorBackoff = cfg.ErrorBackoff
	dispatcher.Gesture.Interval = cfg.EmoteInterval

	hub := ws.NewHub(cfg.APIToken)
	router := rpc.NewRouter(hub, database, queue, state)
	router.Stats = dispatcher.Stats
	router.Token = cfg.APIToken
	if cfg.IngressRate > 0 {
		router.Limiter = rate.NewLimiter(rate.Limit(cfg.IngressRate), max(cfg.IngressBurst, 1))
	}

	go hub.Run(ctx)
	go dispatcher.Run(ctx)
	if cfg.JournalRetention > 0 {
		go pruneJournal(ctx, database, cfg.JournalRetention)
	}

	if cfg.GameAddr != "" {
		client := online.NewClient(cfg.GameAddr, cfg.Key, cfg.IV, cfg.Region, state)
		go func() {
			if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("game connection stopped", "err", err)
			}
		}()
	} else {
		slog.Warn("no game server configured, running in API-only mode")
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	router.Register(mux)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("squad-bridge starting", "addr", cfg.ListenAddr, "game", cfg.GameAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	slog.Info("shutdown complete")
	return nil
}

func pruneJournal(ctx context.Context, database *db.DB, retention time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		n, err := database.PruneCommands(time.Now().Add(-retention))
		if err != nil {
			slog.Error("journal prune failed", "err", err)
		} else if n > 0 {
			slog.Info("journal pruned", "deleted", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
