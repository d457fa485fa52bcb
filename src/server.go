// Copyright (c) 2026 Khaled Abbas
//
// This source code is licensed under the Business Source License 1.1.
//
// Change Date: 4 years after the first public release of this version.
// Change License: MIT
//
// On the Change Date, this version of the code automatically converts
// to the MIT License. Prior to that date, use is subject to the
// Additional Use Grant. See the LICENSE file for details.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Mahadi1000/taskmanager-server/src/logging"
	"github.com/Mahadi1000/taskmanager-server/src/metrics"
	"github.com/Mahadi1000/taskmanager-server/src/model"
	"github.com/Mahadi1000/taskmanager-server/src/service"
)

const (
	livenessMessage = "Simple Task Manager Crud is running..."
	maxBodyBytes    = 1 << 20
)

var errBadBody = errors.New("request body must be a JSON object")

// MessageResponse is the acknowledgment body for delete and partial update
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

// APIServer holds dependencies for the HTTP handlers
type APIServer struct {
	tasks   *service.TaskService
	metrics *metrics.Metrics
}

// NewAPIServer binds the HTTP handlers to the task service and request metrics.
func NewAPIServer(tasks *service.TaskService, m *metrics.Metrics) *APIServer {
	return &APIServer{tasks: tasks, metrics: m}
}

// Routes builds the full handler chain: OTel, CORS, request IDs, panic
// recovery, then the route table. Unmatched requests get JSON errors.
func (s *APIServer) Routes(allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()
	s.handle(mux, "GET /{$}", s.rootHandler)
	s.handle(mux, "GET /tasks", s.listTasksHandler)
	s.handle(mux, "POST /tasks", s.createTaskHandler)
	s.handle(mux, "PUT /tasks/{id}", s.replaceStatusHandler)
	s.handle(mux, "PATCH /tasks/{id}", s.updateTaskHandler)
	s.handle(mux, "DELETE /tasks/{id}", s.deleteTaskHandler)
	s.handle(mux, "GET /healthz", s.healthHandler)
	mux.Handle("GET /metrics", s.metrics.Handler())

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
	})

	return otelhttp.NewHandler(corsHandler.Handler(requestID(recoverer(jsonFallback(mux)))), "taskmaster-api")
}

// jsonFallback answers the mux's own 404 and 405 replies with an
// ErrorResponse instead of plain text.
func jsonFallback(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, pattern := mux.Handler(r)
		if pattern != "" {
			mux.ServeHTTP(w, r)
			return
		}

		fw := &fallbackWriter{header: http.Header{}, status: http.StatusOK}
		h.ServeHTTP(fw, r)
		if allow := fw.header.Get("Allow"); allow != "" {
			w.Header().Set("Allow", allow)
		}
		writeJSON(w, fw.status, ErrorResponse{Error: http.StatusText(fw.status)})
	})
}

// fallbackWriter keeps the status and headers of a mux fallback handler and
// drops its body.
type fallbackWriter struct {
	header http.Header
	status int
}

func (f *fallbackWriter) Header() http.Header         { return f.header }
func (f *fallbackWriter) Write(b []byte) (int, error) { return len(b), nil }
func (f *fallbackWriter) WriteHeader(code int)        { f.status = code }

func (s *APIServer) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, s.metrics.Instrument(pattern, h))
}

// StartAPIServer serves handler on port until ctx is cancelled, then shuts
// down gracefully within shutdownTimeout.
func StartAPIServer(ctx context.Context, port string, handler http.Handler, shutdownTimeout time.Duration) error {
	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logging.Log(fmt.Sprintf("Server is running on port %s", port), slog.LevelInfo)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server startup failed: %w", err)
	case <-ctx.Done():
		logging.Log("Shutdown signal received, closing server...", slog.LevelInfo)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		logging.Log("Server exited cleanly", slog.LevelInfo)
	}

	return nil
}

func (s *APIServer) rootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, livenessMessage)
}

func (s *APIServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.tasks.Ping(r.Context()); err != nil {
		logging.LogContext(r.Context(), slog.LevelWarn, "Health check failed", "error", err.Error())
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *APIServer) listTasksHandler(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *APIServer) createTaskHandler(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeObject(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	task, err := s.tasks.Create(r.Context(), fields)
	if err != nil {
		writeError(w, err)
		return
	}
	logging.UpdateSpanValue(r.Context(), "task.id", task.ID())
	writeJSON(w, http.StatusCreated, task)
}

func (s *APIServer) deleteTaskHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.tasks.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Task deleted successfully"})
}

func (s *APIServer) replaceStatusHandler(w http.ResponseWriter, r *http.Request) {
	body, err := decodeObject(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	status, ok := body[model.StatusField].(string)
	if !ok {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "status must be a string"})
		return
	}

	task, err := s.tasks.ReplaceStatus(r.Context(), r.PathValue("id"), status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *APIServer) updateTaskHandler(w http.ResponseWriter, r *http.Request) {
	patch, err := decodeObject(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	if err := s.tasks.PartialUpdate(r.Context(), r.PathValue("id"), patch); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Task updated successfully"})
}

// decodeObject reads a body holding exactly one JSON object. An empty body
// is an empty object.
func decodeObject(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))

	var body map[string]any
	err := dec.Decode(&body)
	if errors.Is(err, io.EOF) {
		return map[string]any{}, nil
	}
	if err != nil || body == nil {
		return nil, errBadBody
	}

	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, errBadBody
	}
	return body, nil
}

// writeError maps service errors onto the HTTP error taxonomy. Driver
// errors are logged by the service and never reach the client.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidID):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid task ID"})
	case errors.Is(err, service.ErrInvalidField):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid field name"})
	case errors.Is(err, service.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Task not found"})
	default:
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal Server Error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestID propagates X-Request-ID, minting one when the client sent none.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		logging.UpdateSpanValue(r.Context(), "request.id", id)
		next.ServeHTTP(w, r)
	})
}

func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logging.LogContext(r.Context(), slog.LevelError, "Recovered from handler panic",
					"panic", fmt.Sprint(rec), "method", r.Method, "path", r.URL.Path)
				writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal Server Error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
