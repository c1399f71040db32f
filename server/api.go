// Package server exposes the pipeline to collaborators: an HTTP API for
// single-shot runs and a JSON-RPC endpoint that streams command output.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/lexcodex/replanify/executor"
	"github.com/lexcodex/replanify/replan"
	"github.com/lexcodex/replanify/roles"
)

// Pipeline drives one request to a terminal report.
type Pipeline interface {
	Run(ctx context.Context, req replan.Request) (*replan.Report, error)
}

// PipelineFactory builds a pipeline bound to a sink, so each connection
// can observe its own run's output.
type PipelineFactory func(sink executor.OutputSink) Pipeline

// APIServer exposes HTTP endpoints for running the pipeline without an
// editor attached.
type APIServer struct {
	Pipeline  PipelineFactory
	Roles     *roles.Registry
	Workspace string
	Logger    *log.Logger
}

// PipelineRequest describes the incoming API payload.
type PipelineRequest struct {
	Role string `json:"role"`
	Text string `json:"text"`
	// Root overrides the server's workspace for this run.
	Root string `json:"root,omitempty"`
}

// PipelineResponse describes the API response.
type PipelineResponse struct {
	Report *replan.Report `json:"report"`
	Error  string         `json:"error,omitempty"`
}

// RoleInfo is the wire shape of one role policy.
type RoleInfo struct {
	Name           string   `json:"name"`
	DisplayName    string   `json:"display_name"`
	AllowedActions []string `json:"allowed_actions"`
	RestrictPath   string   `json:"restrict_path,omitempty"`
}

// Serve starts listening on the provided address.
func (s *APIServer) Serve(addr string) error {
	return s.ServeContext(context.Background(), addr)
}

// ServeContext allows the caller to control shutdown via context cancellation.
func (s *APIServer) ServeContext(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	if s.Logger != nil {
		s.Logger.Printf("[api] listening on %s", addr)
	}
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Handler returns the API routes.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/pipeline", s.handlePipeline)
	mux.HandleFunc("/api/roles", s.handleRoles)
	return mux
}

func (s *APIServer) handlePipeline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req PipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	role, ok := s.Roles.Get(req.Role)
	if !ok {
		http.Error(w, "unknown role: "+req.Role, http.StatusBadRequest)
		return
	}
	root := req.Root
	if root == "" {
		root = s.Workspace
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()
	pipeline := s.Pipeline(executor.DiscardSink)
	report, err := pipeline.Run(ctx, replan.Request{
		Role: role,
		Text: req.Text,
		Root: root,
		Mode: executor.ModeCaptured,
	})
	resp := PipelineResponse{Report: report}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, resp)
}

func (s *APIServer) handleRoles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	infos := make([]RoleInfo, 0)
	for _, name := range s.Roles.Names() {
		cfg, ok := s.Roles.Get(name)
		if !ok {
			continue
		}
		info := RoleInfo{
			Name:         cfg.Name,
			DisplayName:  cfg.DisplayName,
			RestrictPath: cfg.RestrictPath,
		}
		for _, kind := range cfg.AllowedKinds {
			info.AllowedActions = append(info.AllowedActions, string(kind))
		}
		infos = append(infos, info)
	}
	writeJSON(w, infos)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
