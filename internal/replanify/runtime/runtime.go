package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"

	"github.com/lexcodex/replanify/executor"
	"github.com/lexcodex/replanify/llm"
	"github.com/lexcodex/replanify/persistence"
	"github.com/lexcodex/replanify/replan"
	"github.com/lexcodex/replanify/roles"
	"github.com/lexcodex/replanify/server"
)

// Runtime wires the CLI and server entry points to the shared pipeline.
// It centralizes the role registry, model client, journal, and logging.
type Runtime struct {
	Config  Config
	Roles   *roles.Registry
	Model   *llm.Client
	Journal *persistence.RunJournal
	Logger  *log.Logger

	logFile io.Closer
}

// New builds a runtime from the normalized config. The optional config
// file and role definitions are folded in before anything is constructed.
func New(cfg Config) (*Runtime, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	if file, err := LoadFileConfig(cfg.ConfigPath); err == nil {
		cfg.apply(file)
		if err := cfg.Normalize(); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	logFile, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	logger := log.New(io.MultiWriter(os.Stderr, logFile), "replanify ", log.LstdFlags|log.Lmicroseconds)

	registry := roles.DefaultRegistry()
	if err := roles.LoadDir(registry, cfg.RolesDir); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("load roles: %w", err)
	}

	var journal *persistence.RunJournal
	if cfg.JournalPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.JournalPath), 0o755); err != nil {
			logFile.Close()
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
		journal, err = persistence.NewRunJournal(cfg.JournalPath)
		if err != nil {
			logFile.Close()
			return nil, fmt.Errorf("open journal: %w", err)
		}
	}

	model := llm.NewClient(cfg.OllamaEndpoint, cfg.OllamaModel)
	model.SetDebugLogging(cfg.Debug)

	return &Runtime{
		Config:  cfg,
		Roles:   registry,
		Model:   model,
		Journal: journal,
		Logger:  logger,
		logFile: logFile,
	}, nil
}

// Close releases resources managed by the runtime.
func (r *Runtime) Close() error {
	var firstErr error
	if r.Journal != nil {
		firstErr = r.Journal.Close()
	}
	if r.logFile != nil {
		if err := r.logFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Pipeline builds a controller bound to the given sink. Each call returns
// a fresh controller so concurrent server runs do not share state.
func (r *Runtime) Pipeline(sink executor.OutputSink) server.Pipeline {
	ctrl := replan.New(llm.NewLoggingCompleter(r.Model, r.Logger, r.Config.Debug))
	ctrl.Sink = sink
	ctrl.MaxAttempts = r.Config.MaxAttempts
	ctrl.CommandTimeout = r.Config.CommandTimeout
	if r.Journal != nil {
		ctrl.Journal = r.Journal
	}
	if fixer, ok := r.Roles.Get("fixer"); ok {
		ctrl.FixerRole = fixer
	}
	return ctrl
}

// RunOnce drives one piece of model output through the pipeline against
// the configured workspace, streaming to the given writer.
func (r *Runtime) RunOnce(ctx context.Context, roleName, text string, out io.Writer) (*replan.Report, error) {
	if roleName == "" {
		roleName = r.Config.RoleName
	}
	role, ok := r.Roles.Get(roleName)
	if !ok {
		return nil, fmt.Errorf("unknown role %q", roleName)
	}
	pipeline := r.Pipeline(&executor.WriterSink{W: out})
	return pipeline.Run(ctx, replan.Request{
		Role: role,
		Text: text,
		Root: r.Config.Workspace,
		Mode: r.Config.ExecutionMode(),
	})
}

// Serve runs the HTTP API and the JSON-RPC endpoint until the context is
// canceled. The first listener or server error stops both.
func (r *Runtime) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	api := &server.APIServer{
		Pipeline:  r.Pipeline,
		Roles:     r.Roles,
		Workspace: r.Config.Workspace,
		Logger:    r.Logger,
	}
	rpc := &server.RPCServer{
		Pipeline:  r.Pipeline,
		Roles:     r.Roles,
		Workspace: r.Config.Workspace,
		Logger:    r.Logger,
	}

	ln, err := net.Listen("tcp", r.Config.RPCAddr)
	if err != nil {
		return fmt.Errorf("rpc listen: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- api.ServeContext(ctx, r.Config.ServerAddr)
	}()
	go func() {
		errCh <- rpc.Serve(ctx, ln)
	}()

	err = <-errCh
	cancel()
	<-errCh
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
