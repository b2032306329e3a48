// Package server implements the websocket relay peers use to find each other
// and exchange WebRTC offers, answers and ICE candidates. It holds no game
// state: once the data channels are up, the relay only tracks presence.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amkisko/snake/internal/config"
	"github.com/amkisko/snake/internal/version"
)

const timeout = 10 * time.Second

// Serve runs the relay until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, cfg *config.Server) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hub := NewHub(cfg.MaxPeers)
	go hub.Run(ctx)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Bind, strconv.Itoa(cfg.Port)),
		Handler:           NewRouter(cfg, hub),
		IdleTimeout:       10 * time.Minute,
		ReadHeaderTimeout: timeout,
	}

	slog.Info("starting relay", "version", version.Version, "max_peers", cfg.MaxPeers)

	errs := make(chan error, 1)
	go func() {
		slog.Info("listening", "url", cfg.Scheme()+"://"+srv.Addr+strings.TrimSuffix(cfg.Prefix, "/")+"/")

		var err error
		if cfg.TLSCert != "" && cfg.TLSKey != "" {
			err = srv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	slog.Info("relay stopped")

	return nil
}
