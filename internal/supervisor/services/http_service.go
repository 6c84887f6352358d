// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/tomtom215/healthsync/internal/logging"
)

const defaultShutdownTimeout = 10 * time.Second

// HTTPServer is the lifecycle subset of *http.Server.
type HTTPServer interface {
	Serve(ln net.Listener) error
	Shutdown(ctx context.Context) error
}

// HTTPServerService runs the admin HTTP server under suture. Each Serve
// binds a fresh listener, so a restart after a bind failure retries the
// address. Cancellation triggers a graceful Shutdown bounded by
// shutdownTimeout; in-flight requests finish first.
type HTTPServerService struct {
	server          HTTPServer
	addr            string
	shutdownTimeout time.Duration
	bound           atomic.Pointer[net.TCPAddr]
}

// NewHTTPServerService serves server on addr. A non-positive
// shutdownTimeout means ten seconds.
func NewHTTPServerService(server HTTPServer, addr string, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	return &HTTPServerService{
		server:          server,
		addr:            addr,
		shutdownTimeout: shutdownTimeout,
	}
}

// Addr returns the bound address, or nil while the service is not
// listening. With port 0 this is where the kernel placed the listener.
func (h *HTTPServerService) Addr() *net.TCPAddr {
	return h.bound.Load()
}

// Serve implements suture.Service.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", h.addr)
	if err != nil {
		return fmt.Errorf("admin http listen on %s: %w", h.addr, err)
	}
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		h.bound.Store(tcp)
	}
	defer h.bound.Store(nil)

	logging.Info().Str("addr", ln.Addr().String()).Msg("Admin API listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("admin http server failed: %w", err)

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.shutdownTimeout)
		defer cancel()

		if err := h.server.Shutdown(shutdownCtx); err != nil {
			<-errCh
			return fmt.Errorf("admin http shutdown: %w", err)
		}
		<-errCh
		logging.Info().Msg("Admin API stopped")
		return ctx.Err()
	}
}

// String implements fmt.Stringer for suture's event log.
func (h *HTTPServerService) String() string {
	return "admin-http"
}
