// routes_serve.go - Server-Start und Lifecycle-Management
// Enthaelt: Serve() - Hauptfunktion zum Starten des HTTP-Servers

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/lczero/lc0go/envconfig"
	"github.com/lczero/lc0go/logutil"
	"github.com/lczero/lc0go/neural"
	"github.com/lczero/lc0go/version"
)

// Serve startet den HTTP-Server auf ln mit der DefaultRegistry
func Serve(ln net.Listener) error {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
	slog.Info("server config", "env", envconfig.Values())

	if envconfig.LogLevel() <= slog.LevelDebug {
		gin.SetMode(gin.DebugMode)
	}

	if name := envconfig.DefaultBackend(); name != "" {
		neural.DefaultRegistry.SetDefaultBackend(name)
	}
	// Ein falsches Default-Backend beendet den Start
	if err := neural.DefaultRegistry.Validate(); err != nil {
		return err
	}

	names, err := neural.ListBackendNames()
	if err != nil {
		return err
	}
	slog.Info("available backends", "backends", names)

	s := NewServer(neural.DefaultRegistry, ln.Addr())
	srvr := &http.Server{Handler: s.GenerateRoutes()}

	ctx, done := context.WithCancel(context.Background())

	// listen for a ctrl+c and close all instances
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		srvr.Close()
		s.Close()
		done()
	}()

	slog.Info(fmt.Sprintf("Listening on %s (version %s)", ln.Addr(), version.Version))

	err = srvr.Serve(ln)
	// If server is closed from the signal handler, wait for the ctx to be done
	// otherwise error out quickly
	if !errors.Is(err, http.ErrServerClosed) {
		s.Close()
		return err
	}
	<-ctx.Done()
	return nil
}
