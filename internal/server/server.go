// Package server exposes the runnables tree and the executor to editors over
// JSON-RPC 2.0.
package server

import (
	"cmp"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/url"
	"path/filepath"
	"slices"
	"sync"

	lsp "github.com/sourcegraph/go-lsp"
	"github.com/sourcegraph/jsonrpc2"

	"runnel.dev/pkg/runnel/internal/adapter"
	"runnel.dev/pkg/runnel/internal/domain"
	m "runnel.dev/pkg/runnel/internal/model"
)

// DidChangeMethod is the notification pushed with every non-empty patch
// while watching.
const DidChangeMethod = "runnel/didChange"

var (
	errMethodNotFound = &jsonrpc2.Error{
		Code: jsonrpc2.CodeMethodNotFound, Message: "method not found"}
	errInvalidParams = &jsonrpc2.Error{
		Code: jsonrpc2.CodeInvalidParams, Message: "invalid params"}
	errNotInitialized = &jsonrpc2.Error{
		Code: -32002, Message: "server not initialized"}
)

// Options configure a Server.
type Options struct {
	// Patterns are discovery patterns used when initialize names no root.
	Patterns []string
	// Watch refreshes on source changes and pushes runnel/didChange.
	Watch    bool
	Executor domain.ExecutorOptions
}

// Server answers runnel requests for one connection at a time.
type Server struct {
	workspace domain.Workspace
	executor  domain.Executor
	watcher   adapter.WatchAdapter
	opts      Options

	mu       sync.Mutex
	patterns []string
	ready    bool
	watching bool
}

// New constructs a Server. Runnables are started with runner.
func New(ws domain.Workspace, runner adapter.TestRunnerAdapter, watcher adapter.WatchAdapter, opts Options) *Server {
	return &Server{
		workspace: ws,
		executor:  domain.NewExecutor(runner, ws, opts.Executor),
		watcher:   watcher,
		opts:      opts,
		patterns:  opts.Patterns,
	}
}

// Serve handles requests read from rwc until the peer disconnects or ctx is done.
func (s *Server) Serve(ctx context.Context, rwc io.ReadWriteCloser) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn := jsonrpc2.NewConn(ctx,
		jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{}),
		s.handler())

	select {
	case <-conn.DisconnectNotify():
	case <-ctx.Done():
		_ = conn.Close()
	}

	if running := s.executor.Running(); len(running) > 0 {
		slog.Info("Aborting runs of closed connection", "running", len(running))
		s.executor.Abort(running)
	}

	return nil
}

func (s *Server) handler() jsonrpc2.Handler {
	return routingHandler(map[string]method{
		"initialize":             s.initialize,
		"runnel/workspace":       s.workspaceTree,
		"runnel/file":            s.file,
		"runnel/patch":           s.patch,
		"runnel/run":             s.run,
		"runnel/abort":           s.abort,
		"runnel/results":         s.results,
		"runnel/poll":            s.poll,
		"shutdown":               s.shutdown,
		"initialized":            noop,
		"exit":                   exit,
		"$/cancelRequest":        noop,
		"$/setTraceNotification": noop,
	})
}

type method func(context.Context, jsonrpc2.JSONRPC2, json.RawMessage) (any, error)

func noop(_ context.Context, _ jsonrpc2.JSONRPC2, _ json.RawMessage) (any, error) {
	return nil, nil
}

func exit(_ context.Context, conn jsonrpc2.JSONRPC2, _ json.RawMessage) (any, error) {
	return nil, conn.Close()
}

func routingHandler(methods map[string]method) jsonrpc2.Handler {
	return jsonrpc2.HandlerWithError(func(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
		fn, ok := methods[req.Method]
		if !ok {
			return nil, errMethodNotFound
		}

		var params json.RawMessage
		if req.Params != nil {
			params = *req.Params
		}

		return fn(ctx, conn, params)
	})
}

// decode unmarshals optional params into v.
func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	if json.Unmarshal(raw, v) != nil {
		return errInvalidParams
	}

	return nil
}

// InitializeResult answers initialize.
type InitializeResult struct {
	Capabilities lsp.ServerCapabilities `json:"capabilities"`
	Version      uint64                 `json:"version"`
	Runnables    int                    `json:"runnables"`
}

func (s *Server) initialize(ctx context.Context, conn jsonrpc2.JSONRPC2, raw json.RawMessage) (any, error) {
	var params lsp.InitializeParams
	if err := decode(raw, &params); err != nil {
		return nil, err
	}

	s.mu.Lock()
	switch {
	case params.RootURI != "":
		s.patterns = []string{uriToPath(params.RootURI) + "/..."}
	case params.RootPath != "":
		s.patterns = []string{filepath.Clean(params.RootPath) + "/..."}
	}
	s.ready = true
	patterns := s.patterns
	s.mu.Unlock()

	snap, _, err := s.workspace.Refresh(ctx, patterns)
	if err != nil {
		return nil, err
	}

	if s.opts.Watch {
		s.startWatch(ctx, conn, patterns)
	}

	return InitializeResult{Version: snap.Version(), Runnables: len(snap.Runnables())}, nil
}

// startWatch follows source changes for the lifetime of ctx, the
// connection context.
func (s *Server) startWatch(ctx context.Context, conn jsonrpc2.JSONRPC2, patterns []string) {
	s.mu.Lock()
	if s.watching {
		s.mu.Unlock()
		return
	}
	s.watching = true
	s.mu.Unlock()

	changes, err := s.watcher.Watch(ctx, adapter.WatchRoots(patterns))
	if err != nil {
		slog.Error("Failed to start watching", "error", err)
		return
	}

	go func() {
		for range changes {
			_, patch, err := s.workspace.Refresh(ctx, patterns)
			if err != nil {
				slog.Warn("Refresh failed, keeping previous tree", "error", err)
				continue
			}

			if patch.IsEmpty() {
				continue
			}

			if err := conn.Notify(ctx, DidChangeMethod, patch); err != nil {
				slog.Warn("Failed to notify client", "error", err)
				return
			}
		}
	}()
}

func (s *Server) initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ready
}

// WorkspaceResult carries the current tree.
type WorkspaceResult struct {
	Version uint64       `json:"version"`
	Root    m.AppendItem `json:"root"`
}

func (s *Server) workspaceTree(_ context.Context, _ jsonrpc2.JSONRPC2, _ json.RawMessage) (any, error) {
	if !s.initialized() {
		return nil, errNotInitialized
	}

	snap := s.workspace.Snapshot()

	return WorkspaceResult{Version: snap.Version(), Root: snap.Root()}, nil
}

func (s *Server) file(_ context.Context, _ jsonrpc2.JSONRPC2, raw json.RawMessage) (any, error) {
	if !s.initialized() {
		return nil, errNotInitialized
	}

	var params lsp.TextDocumentIdentifier
	if err := decode(raw, &params); err != nil || params.URI == "" {
		return nil, errInvalidParams
	}

	mod, ok := s.workspace.File(m.Path(uriToPath(params.URI)))
	if !ok {
		return nil, nil
	}

	return mod, nil
}

func (s *Server) patch(ctx context.Context, _ jsonrpc2.JSONRPC2, _ json.RawMessage) (any, error) {
	if !s.initialized() {
		return nil, errNotInitialized
	}

	s.mu.Lock()
	patterns := s.patterns
	s.mu.Unlock()

	_, patch, err := s.workspace.Refresh(ctx, patterns)
	if err != nil {
		return nil, err
	}

	return patch, nil
}

// IDsParams names runnables for run and abort.
type IDsParams struct {
	IDs []m.ID `json:"ids"`
}

// RunResult lists the ids a run request started.
type RunResult struct {
	Started []m.ID `json:"started"`
}

func (s *Server) run(ctx context.Context, _ jsonrpc2.JSONRPC2, raw json.RawMessage) (any, error) {
	if !s.initialized() {
		return nil, errNotInitialized
	}

	var params IDsParams
	if err := decode(raw, &params); err != nil {
		return nil, err
	}

	started := s.executor.Run(ctx, params.IDs)
	if started == nil {
		started = []m.ID{}
	}

	return RunResult{Started: started}, nil
}

func (s *Server) abort(_ context.Context, _ jsonrpc2.JSONRPC2, raw json.RawMessage) (any, error) {
	var params IDsParams
	if err := decode(raw, &params); err != nil {
		return nil, err
	}

	s.executor.Abort(params.IDs)

	return nil, nil
}

func (s *Server) results(_ context.Context, _ jsonrpc2.JSONRPC2, _ json.RawMessage) (any, error) {
	out := make([]m.RunStatus, 0)
	for _, st := range s.executor.Results() {
		out = append(out, st)
	}

	slices.SortFunc(out, func(a, b m.RunStatus) int { return cmp.Compare(a.ID, b.ID) })

	return out, nil
}

func (s *Server) poll(_ context.Context, _ jsonrpc2.JSONRPC2, _ json.RawMessage) (any, error) {
	out := s.executor.Poll()
	if out == nil {
		out = []m.RunStatus{}
	}

	return out, nil
}

func (s *Server) shutdown(_ context.Context, _ jsonrpc2.JSONRPC2, _ json.RawMessage) (any, error) {
	s.executor.Abort(s.executor.Running())
	return nil, nil
}

// uriToPath turns a file URI into a local path. Plain paths pass through.
func uriToPath(uri lsp.DocumentURI) string {
	u, err := url.Parse(string(uri))
	if err != nil || u.Scheme != "file" {
		return filepath.Clean(string(uri))
	}

	return filepath.Clean(filepath.FromSlash(u.Path))
}
