// Package lsp is the language server front end: Content-Length framed
// JSON-RPC over a byte stream, the LSP lifecycle, document synchronization
// and the problemFrames/impactRequirements request.
//
// Notifications are handled in arrival order on the read loop. Requests run
// on their own goroutines, bounded by server.maxConcurrentRequests, and may
// be cancelled with $/cancelRequest.
package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"pfls/internal/config"
	"pfls/internal/impact"
	"pfls/internal/model"
	"pfls/internal/slogutil"
	"pfls/internal/watcher"
	"pfls/internal/workspace"
)

// Options configures a Server.
type Options struct {
	Version    string
	Root       string         // workspace root; taken from initialize when empty
	ConfigPath string         // explicit config file instead of <root>/.pfls/config.json
	Config     *config.Config // used as is instead of loading files
	Session    *workspace.Session
	Logger     *slog.Logger
}

type requestHandler func(s *Server, ctx context.Context, params json.RawMessage) (any, error)

// Server is one language server session over a single connection.
type Server struct {
	conn     *Conn
	opts     Options
	logger   *slog.Logger
	clientLv *slog.LevelVar
	session  *workspace.Session
	validate *validator.Validate
	handlers map[string]requestHandler
	flights  singleflight.Group

	mu          sync.Mutex
	cfg         *config.Config
	engine      *impact.Engine
	sem         *semaphore.Weighted
	root        string
	initialized bool
	shutdown    bool
	exitCode    int
	watcher     *watcher.Watcher

	inflightMu sync.Mutex
	inflight   map[string]context.CancelFunc
	wg         sync.WaitGroup
}

// NewServer creates a server reading requests from r and writing replies
// to w.
func NewServer(r io.Reader, w io.Writer, opts Options) *Server {
	base := opts.Logger
	if base == nil {
		base = slogutil.NewDiscardLogger()
	}
	conn := NewConn(r, w)

	// Nothing reaches the editor until initialize has read logging.clientLevel.
	clientLv := new(slog.LevelVar)
	clientLv.Set(slogutil.LevelSilent)
	logger := slog.New(slogutil.NewTeeHandler(base.Handler(), slogutil.NewClientHandler(clientLv, logToClient(conn))))

	session := opts.Session
	if session == nil {
		session = workspace.NewSession(logger)
	}

	cfg := config.DefaultConfig()
	s := &Server{
		conn:     conn,
		opts:     opts,
		logger:   logger.With("session", session.ID()),
		clientLv: clientLv,
		session:  session,
		validate: newValidator(),
		handlers: map[string]requestHandler{
			MethodImpactRequirements: (*Server).handleImpact,
			MethodDefinition:         (*Server).handleDefinition,
			MethodCompletion:         (*Server).handleCompletion,
		},
		cfg:      cfg,
		engine:   impact.NewEngine(impact.WithLogger(logger)),
		sem:      semaphore.NewWeighted(int64(cfg.Server.MaxConcurrentRequests)),
		inflight: make(map[string]context.CancelFunc),
	}
	session.Subscribe(s.publishDiagnostics)
	return s
}

// logToClient forwards log records as window/logMessage notifications.
func logToClient(conn *Conn) slogutil.ClientSink {
	return func(level slog.Level, message string) error {
		t := MessageLog
		switch {
		case level >= slog.LevelError:
			t = MessageError
		case level >= slog.LevelWarn:
			t = MessageWarning
		case level >= slog.LevelInfo:
			t = MessageInfo
		}
		return conn.Notify(MethodLogMessage, LogMessageParams{Type: t, Message: message})
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Session returns the workspace session the server edits.
func (s *Server) Session() *workspace.Session { return s.session }

// ExitCode is 0 when the client sent shutdown before exit, 1 otherwise.
func (s *Server) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode
}

// Serve runs the read loop until exit or end of input. In-flight requests
// are cancelled and awaited before it returns.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer s.stopWatcher()
	finish := func() {
		cancel()
		s.wg.Wait()
	}

	s.logger.Info("language server starting", "version", s.opts.Version)

	for {
		msg, err := s.conn.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Info("language server shutting down (EOF)")
				finish()
				return nil
			}
			if errors.Is(err, ErrMalformedHeader) {
				s.logger.Warn("skipping message with malformed header")
				continue
			}
			var syntaxErr *SyntaxError
			if errors.As(err, &syntaxErr) {
				s.logger.Warn("invalid JSON message", "error", err)
				s.reply(nullID, nil, &RPCError{Code: ParseError, Message: syntaxErr.Error()})
				continue
			}
			finish()
			return fmt.Errorf("read message: %w", err)
		}

		if s.dispatch(ctx, msg) {
			s.logger.Info("language server exiting", "code", s.ExitCode())
			finish()
			return nil
		}
	}
}

// dispatch routes one message. It reports whether the server should exit.
func (s *Server) dispatch(ctx context.Context, msg *Message) bool {
	switch {
	case msg.IsRequest():
		s.handleRequest(ctx, msg)
	case msg.IsNotification():
		return s.handleNotification(ctx, msg)
	case msg.IsResponse():
		s.logger.Debug("ignoring client response", "id", string(msg.ID))
	default:
		s.reply(msg.ID, nil, &RPCError{Code: InvalidRequest, Message: "invalid message: not a request or notification"})
	}
	return false
}

func (s *Server) handleRequest(ctx context.Context, msg *Message) {
	s.logger.Debug("handling request", "method", msg.Method, "id", string(msg.ID))

	s.mu.Lock()
	initialized, shutdown := s.initialized, s.shutdown
	s.mu.Unlock()

	switch {
	case msg.Method == MethodInitialize:
		if initialized {
			s.reply(msg.ID, nil, &RPCError{Code: InvalidRequest, Message: "server already initialized"})
			return
		}
		start := time.Now()
		result, err := s.handleInitialize(msg.Params)
		rpcErr := rpcErrorFor(err)
		recordRequest(ctx, msg.Method, codeOf(rpcErr), time.Since(start))
		s.reply(msg.ID, result, rpcErr)
		return
	case !initialized:
		s.reply(msg.ID, nil, &RPCError{Code: ServerNotInitialized, Message: "server not initialized"})
		return
	case shutdown:
		s.reply(msg.ID, nil, &RPCError{Code: InvalidRequest, Message: "server is shutting down"})
		return
	case msg.Method == MethodShutdown:
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		s.reply(msg.ID, nil, nil)
		return
	}

	h, ok := s.handlers[msg.Method]
	if !ok {
		s.reply(msg.ID, nil, &RPCError{Code: MethodNotFound, Message: "Unsupported request method: " + msg.Method})
		return
	}

	// Tracked before the goroutine starts so a $/cancelRequest read next
	// reaches a request still waiting for a slot.
	reqCtx, cancel := context.WithCancel(ctx)
	key := string(msg.ID)
	s.track(key, cancel)

	sem := s.semaphore()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.untrack(key)
		defer cancel()
		if err := sem.Acquire(reqCtx, 1); err != nil {
			s.logger.Debug("request cancelled while queued", "method", msg.Method, "id", key)
			s.reply(msg.ID, nil, rpcErrorFor(err))
			return
		}
		defer sem.Release(1)
		s.run(reqCtx, msg, h)
	}()
}

// run executes one request handler and sends its reply.
func (s *Server) run(ctx context.Context, msg *Message, h requestHandler) {
	start := time.Now()
	logger := s.logger.With("method", msg.Method, "rid", uuid.NewString())

	result, err := s.call(ctx, logger, msg, h)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	rpcErr := rpcErrorFor(err)
	if rpcErr != nil {
		result = nil
		logger.Debug("request failed", "code", rpcErr.Code, "error", rpcErr.Message)
	}

	recordRequest(ctx, msg.Method, codeOf(rpcErr), time.Since(start))
	logger.Debug("request done", "duration", time.Since(start))
	s.reply(msg.ID, result, rpcErr)
}

// call runs h, turning a panic into an internal error.
func (s *Server) call(ctx context.Context, logger *slog.Logger, msg *Message, h requestHandler) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("request handler panicked", "panic", r, "stack", string(debug.Stack()))
			result = nil
			err = &RPCError{Code: InternalError, Message: fmt.Sprintf("internal error handling %s: %v", msg.Method, r)}
		}
	}()
	return h(s, ctx, msg.Params)
}

func (s *Server) handleNotification(ctx context.Context, msg *Message) bool {
	s.logger.Debug("handling notification", "method", msg.Method)

	switch msg.Method {
	case MethodExit:
		s.mu.Lock()
		if !s.shutdown {
			s.exitCode = 1
		}
		s.mu.Unlock()
		return true
	case MethodCancelRequest:
		var p CancelParams
		if err := json.Unmarshal(msg.Params, &p); err == nil && hasID(p.ID) {
			s.cancel(string(p.ID))
		}
		return false
	}

	s.mu.Lock()
	initialized := s.initialized
	s.mu.Unlock()
	if !initialized {
		s.logger.Debug("dropping notification before initialize", "method", msg.Method)
		return false
	}

	var err error
	switch msg.Method {
	case MethodInitialized:
		s.startWorkspace(ctx)
	case MethodDidOpen:
		err = s.didOpen(msg.Params)
	case MethodDidChange:
		err = s.didChange(msg.Params)
	case MethodDidClose:
		err = s.didClose(msg.Params)
	case MethodDidSave:
	case MethodDidChangeWatchedFiles:
		err = s.didChangeWatchedFiles(msg.Params)
	default:
		s.logger.Debug("unknown notification", "method", msg.Method)
	}
	if err != nil {
		s.logger.Warn("notification failed", "method", msg.Method, "error", err)
	}
	return false
}

func (s *Server) handleInitialize(raw json.RawMessage) (any, error) {
	var p InitializeParams
	if err := s.decode(raw, &p); err != nil {
		return nil, err
	}

	root := s.opts.Root
	if root == "" {
		root = rootFromParams(p)
	}
	cfg := s.loadConfig(root)

	if len(p.InitializationOptions) > 0 && !hasNullValue(p.InitializationOptions) {
		var o config.Overrides
		if err := json.Unmarshal(p.InitializationOptions, &o); err != nil {
			return nil, invalidParams("invalid initializationOptions: " + err.Error())
		}
		cfg.ApplyOverrides(&o)
		if err := cfg.Validate(); err != nil {
			return nil, invalidParams("invalid initializationOptions: " + err.Error())
		}
	}

	engine, err := impact.NewEngineFromConfig(cfg.Impact, s.logger)
	if err != nil {
		return nil, invalidParams(err.Error())
	}

	s.mu.Lock()
	s.cfg = cfg
	s.root = root
	s.engine = engine
	s.sem = semaphore.NewWeighted(int64(cfg.Server.MaxConcurrentRequests))
	s.initialized = true
	s.mu.Unlock()
	s.clientLv.Set(slogutil.LevelFromString(cfg.Logging.ClientLevel))

	s.logger.Info("client initialized",
		"root", root,
		"defaultMaxHops", engine.DefaultMaxHops(),
		"maxHopsLimit", engine.MaxHopsLimit(),
		"policy", engine.Policy(),
	)

	return InitializeResult{
		Capabilities: ServerCapabilities{
			TextDocumentSync:   TextDocumentSyncOptions{OpenClose: true, Change: SyncFull},
			DefinitionProvider: true,
			CompletionProvider: &CompletionOptions{TriggerCharacters: []string{":", " "}},
			Experimental:       map[string]any{"impactRequirements": true},
		},
		ServerInfo: ServerInfo{Name: "pfls", Version: s.opts.Version},
	}, nil
}

// loadConfig resolves the configuration for root. A broken config file is
// logged and replaced by the defaults so the editor keeps a working server.
func (s *Server) loadConfig(root string) *config.Config {
	if s.opts.Config != nil {
		cfg := *s.opts.Config
		return &cfg
	}
	if root == "" && s.opts.ConfigPath == "" {
		return config.DefaultConfig()
	}
	cfg, err := config.Resolve(root, s.opts.ConfigPath)
	if err != nil {
		s.logger.Warn("using default configuration", "root", root, "error", err)
		return config.DefaultConfig()
	}
	return cfg
}

func rootFromParams(p InitializeParams) string {
	if p.RootURI != "" {
		if path, ok := model.URIToPath(p.RootURI); ok {
			return path
		}
	}
	for _, f := range p.WorkspaceFolders {
		if path, ok := model.URIToPath(f.URI); ok {
			return path
		}
	}
	return p.RootPath
}

// startWorkspace indexes the workspace roots in the background and then
// starts the disk watcher.
func (s *Server) startWorkspace(ctx context.Context) {
	s.mu.Lock()
	cfg, root := s.cfg, s.root
	s.mu.Unlock()

	roots := cfg.RootsFor(root)
	if len(roots) == 0 {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.session.LoadRoots(ctx, roots, cfg.Workspace.Include, cfg.Workspace.Exclude); err != nil {
			s.logger.Warn("workspace load failed", "error", err)
			return
		}
		if !cfg.Workspace.Watch {
			return
		}
		w, err := watcher.New(watcher.ConfigFrom(cfg.Workspace), s.session, s.logger)
		if err != nil {
			s.logger.Warn("disk watcher unavailable", "error", err)
			return
		}
		if err := w.Start(ctx, roots); err != nil {
			w.Stop()
			s.logger.Warn("disk watcher unavailable", "error", err)
			return
		}
		s.mu.Lock()
		s.watcher = w
		s.mu.Unlock()
	}()
}

func (s *Server) stopWatcher() {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()
	if w != nil {
		w.Stop()
	}
}

func (s *Server) semaphore() *semaphore.Weighted {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sem
}

func (s *Server) currentEngine() *impact.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

func (s *Server) track(id string, cancel context.CancelFunc) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	s.inflight[id] = cancel
}

func (s *Server) untrack(id string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, id)
}

func (s *Server) cancel(id string) {
	s.inflightMu.Lock()
	cancel, ok := s.inflight[id]
	s.inflightMu.Unlock()
	if ok {
		s.logger.Debug("cancelling request", "id", id)
		cancel()
	}
}

func (s *Server) reply(id json.RawMessage, result any, rpcErr *RPCError) {
	if err := s.conn.Reply(id, result, rpcErr); err != nil {
		s.logger.Error("failed to write response", "id", string(id), "error", err)
	}
}

// decode unmarshals and validates request params.
func (s *Server) decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 || hasNullValue(raw) {
		return invalidParams("missing params")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return invalidParams("invalid params: " + err.Error())
	}
	if err := s.validate.Struct(v); err != nil {
		return err
	}
	return nil
}

func hasNullValue(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

func codeOf(rpcErr *RPCError) int {
	if rpcErr == nil {
		return 0
	}
	return rpcErr.Code
}
