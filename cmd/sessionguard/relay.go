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

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-session-guard/broadcast"
	"github.com/jrsteele09/go-session-guard/internal/config"
)

// runRelay serves the websocket relay that contexts use as their broadcast
// channel. The relay is stateless: it holds no sessions and no credentials,
// it only fans messages out.
func runRelay() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	displayAppname("Session Guard")
	log := newLogger()
	hub := broadcast.NewHub(log)

	router := mux.NewRouter()
	router.Handle("/ws", hub)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","clients":%d}`, hub.ClientCount())
	}).Methods(http.MethodGet)

	server := &http.Server{Addr: cfg.Relay.ListenAddr, Handler: router}
	go listenAndServe(server, log)
	waitForStopSignal()
	return shutdown(server)
}

func listenAndServe(server *http.Server, log zerolog.Logger) {
	log.Info().Str("addr", server.Addr).Msg("relay listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("relay.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("relay.Shutdown: %w", err)
	}
	return nil
}
