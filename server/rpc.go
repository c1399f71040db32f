package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/lexcodex/replanify/executor"
	"github.com/lexcodex/replanify/replan"
	"github.com/lexcodex/replanify/roles"
)

// RPCServer streams pipeline runs over JSON-RPC. Clients call
// `pipeline/run` and receive `pipeline/output` notifications line by line
// while commands execute, then `pipeline/exit` and the final report.
type RPCServer struct {
	Pipeline  PipelineFactory
	Roles     *roles.Registry
	Workspace string
	Logger    *log.Logger
}

// RunParams is the `pipeline/run` request payload.
type RunParams struct {
	Role string `json:"role"`
	Text string `json:"text"`
	Root string `json:"root,omitempty"`
}

// OutputNotification is the `pipeline/output` payload.
type OutputNotification struct {
	Stream string `json:"stream"`
	Line   string `json:"line"`
}

// LogNotification is the `pipeline/log` payload.
type LogNotification struct {
	Message string `json:"message"`
}

// ExitNotification is the `pipeline/exit` payload, sent once per run with
// the exit code of the last command that ran (zero when none failed).
type ExitNotification struct {
	ExitCode int `json:"exit_code"`
}

// Serve accepts connections until the context is canceled.
func (s *RPCServer) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	if s.Logger != nil {
		s.Logger.Printf("[rpc] listening on %s", ln.Addr())
	}
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.HandleConn(ctx, conn)
	}
}

// HandleConn serves one JSON-RPC connection until the peer disconnects.
func (s *RPCServer) HandleConn(ctx context.Context, rwc io.ReadWriteCloser) {
	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
	handler := jsonrpc2.HandlerWithError(s.handle)
	conn := jsonrpc2.NewConn(ctx, stream, handler)
	<-conn.DisconnectNotify()
}

func (s *RPCServer) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
	switch req.Method {
	case "pipeline/run":
		return s.handleRun(ctx, conn, req)
	case "pipeline/roles":
		return s.roleInfos(), nil
	default:
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "method not handled"}
	}
}

func (s *RPCServer) handleRun(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
	var params RunParams
	if req.Params != nil {
		if err := json.Unmarshal(*req.Params, &params); err != nil {
			return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
		}
	}
	role, ok := s.Roles.Get(params.Role)
	if !ok {
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "unknown role: " + params.Role}
	}
	root := params.Root
	if root == "" {
		root = s.Workspace
	}
	sink := &rpcSink{ctx: ctx, conn: conn}
	pipeline := s.Pipeline(sink)
	report, err := pipeline.Run(ctx, replan.Request{
		Role: role,
		Text: params.Text,
		Root: root,
		Mode: executor.ModeStreaming,
	})
	if err != nil {
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: err.Error()}
	}
	exit := ExitNotification{}
	if failed, ok := report.Outcome.FailedOutcome(); ok {
		exit.ExitCode = failed.ExitCode
	}
	_ = conn.Notify(ctx, "pipeline/exit", exit)
	return report, nil
}

func (s *RPCServer) roleInfos() []RoleInfo {
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
	return infos
}

// rpcSink forwards executor output to the connected peer. Notify errors
// are dropped; a dead peer ends the run via its context, not via the sink.
type rpcSink struct {
	ctx  context.Context
	conn *jsonrpc2.Conn
}

func (s *rpcSink) Logf(format string, args ...interface{}) {
	_ = s.conn.Notify(s.ctx, "pipeline/log", LogNotification{Message: fmt.Sprintf(format, args...)})
}

func (s *rpcSink) Line(stream executor.Stream, line string) {
	_ = s.conn.Notify(s.ctx, "pipeline/output", OutputNotification{
		Stream: string(stream),
		Line:   line,
	})
}
