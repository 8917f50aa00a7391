package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxBodyBytes = 1 << 20

// SetMetricsHandler mounts a Prometheus scrape endpoint at /metrics.
func (s *Server) SetMetricsHandler(h http.Handler) {
	s.metricsHandler = h
}

// ServeHTTP adapts net/http requests onto Dispatch.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if r.Body != nil {
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeResponse(w, errorDetail(http.StatusUnprocessableEntity, "Request body too large"))
			return
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &payload); err != nil {
				writeResponse(w, errorDetail(http.StatusUnprocessableEntity, "Malformed JSON body"))
				return
			}
		}
	}

	headers := make(map[string]string, len(r.Header))
	for name, values := range r.Header {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}

	writeResponse(w, s.Dispatch(r.Context(), r.Method, r.URL.Path, payload, headers))
}

func writeResponse(w http.ResponseWriter, resp *Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if resp.CorrelationID != "" {
		w.Header().Set(CorrelationHeader, resp.CorrelationID)
	}
	w.WriteHeader(resp.StatusCode)
	_ = json.NewEncoder(w).Encode(resp.Body)
}

// Start runs the HTTP server on addr and blocks until it stops.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	if s.metricsHandler != nil {
		mux.Handle("/metrics", s.metricsHandler)
	}
	mux.Handle("/", s)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}
