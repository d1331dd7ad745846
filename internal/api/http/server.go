// Package http provides the read-only HTTP API over the mempool engine's
// cache, rate, and latest-arrivals accessors.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/branched-services/go-mempoolsync/pkg/mempool"
)

// Reader bundles the engine accessors this API depends on; consumers
// should wire *mempool.Engine in but the handlers only ever see this
// interface, mirroring the teacher's EstimateReader dependency inversion.
type Reader interface {
	mempool.SnapshotReader
	mempool.RateReader
	mempool.LatestReader
	mempool.InfoReader
}

// Server serves the mempool read API.
type Server struct {
	addr   string
	reader Reader
	logger *slog.Logger
	server *http.Server
}

// NewServer creates a new API server.
func NewServer(addr string, reader Reader, logger *slog.Logger) *Server {
	s := &Server{
		addr:   addr,
		reader: reader,
		logger: logger.With("component", "http"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/mempool", s.handleSummary)
	mux.HandleFunc("/api/v1/mempool/recent", s.handleRecent)
	mux.HandleFunc("/api/v1/mempool/stream", s.handleStream)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.withMiddleware(mux),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Run starts the server. Blocks until context is canceled.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("mempool API starting", "addr", s.addr)
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("mempool API shutting down")
	return s.server.Shutdown(ctx)
}

func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		next.ServeHTTP(w, r)

		s.logger.Debug("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_us", time.Since(start).Microseconds(),
		)
	})
}

// summaryResponse is the API response for the mempool summary endpoint.
type summaryResponse struct {
	CacheSize       int     `json:"cacheSize"`
	InfoSize        int     `json:"infoSize"`
	InfoBytes       int     `json:"infoBytes"`
	TxPerSecond     float64 `json:"txPerSecond"`
	VBytesPerSecond float64 `json:"vBytesPerSecond"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	snap := s.reader.GetSnapshot()
	info := s.reader.GetInfo()
	rate := s.reader.GetRate()

	resp := summaryResponse{
		CacheSize:       len(snap.Transactions),
		InfoSize:        info.Size,
		InfoBytes:       info.Bytes,
		TxPerSecond:     rate.TxPerSecond,
		VBytesPerSecond: rate.VBytesPerSecond,
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"latest": s.reader.GetLatest(),
	})
}

// handleStream provides server-sent events of the mempool summary,
// polling the engine's already-cheap accessors (same pattern as the
// teacher's handleStream for gas estimates).
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastSize = -1

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := s.reader.GetSnapshot()
			size := len(snap.Transactions)
			if size == lastSize {
				continue
			}
			lastSize = size

			rate := s.reader.GetRate()
			data, _ := json.Marshal(map[string]any{
				"cacheSize":       size,
				"txPerSecond":     rate.TxPerSecond,
				"vBytesPerSecond": rate.VBytesPerSecond,
			})
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
