package lsp

import (
	"bytes"
	"encoding/json"

	"pfls/internal/model"
)

// Message is a JSON-RPC 2.0 message. Requests carry an ID and a method,
// notifications only a method, responses an ID and a result or an error.
type Message struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

var nullID = json.RawMessage("null")

func hasID(id json.RawMessage) bool {
	return len(id) > 0 && !bytes.Equal(id, nullID)
}

// IsRequest checks if the message is a request
func (m *Message) IsRequest() bool { return m.Method != "" && hasID(m.ID) }

// IsNotification checks if the message is a notification
func (m *Message) IsNotification() bool { return m.Method != "" && !hasID(m.ID) }

// IsResponse checks if the message is a response
func (m *Message) IsResponse() bool { return m.Method == "" && hasID(m.ID) }

// RPCError represents a JSON-RPC error
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return e.Message }

// JSON-RPC and LSP error codes
const (
	ParseError           = -32700
	InvalidRequest       = -32600
	MethodNotFound       = -32601
	InvalidParams        = -32602
	InternalError        = -32603
	ServerNotInitialized = -32002
	RequestCancelled     = -32800
	ContentModified      = -32801
)

// Methods handled by the server.
const (
	MethodInitialize            = "initialize"
	MethodInitialized           = "initialized"
	MethodShutdown              = "shutdown"
	MethodExit                  = "exit"
	MethodCancelRequest         = "$/cancelRequest"
	MethodDidOpen               = "textDocument/didOpen"
	MethodDidChange             = "textDocument/didChange"
	MethodDidClose              = "textDocument/didClose"
	MethodDidSave               = "textDocument/didSave"
	MethodDefinition            = "textDocument/definition"
	MethodCompletion            = "textDocument/completion"
	MethodPublishDiagnostics    = "textDocument/publishDiagnostics"
	MethodImpactRequirements    = "problemFrames/impactRequirements"
	MethodDidChangeWatchedFiles = "workspace/didChangeWatchedFiles"
	MethodLogMessage            = "window/logMessage"
)

// DiagnosticSource tags every diagnostic the server publishes.
const DiagnosticSource = "pfls"

type InitializeParams struct {
	ProcessID             *int              `json:"processId"`
	RootURI               string            `json:"rootUri,omitempty"`
	RootPath              string            `json:"rootPath,omitempty"`
	WorkspaceFolders      []WorkspaceFolder `json:"workspaceFolders,omitempty"`
	InitializationOptions json.RawMessage   `json:"initializationOptions,omitempty"`
}

type WorkspaceFolder struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   ServerInfo         `json:"serverInfo"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type ServerCapabilities struct {
	TextDocumentSync   TextDocumentSyncOptions `json:"textDocumentSync"`
	DefinitionProvider bool                    `json:"definitionProvider"`
	CompletionProvider *CompletionOptions      `json:"completionProvider,omitempty"`
	Experimental       map[string]any          `json:"experimental,omitempty"`
}

// TextDocumentSyncKind values.
const (
	SyncNone = 0
	SyncFull = 1
)

type TextDocumentSyncOptions struct {
	OpenClose bool `json:"openClose"`
	Change    int  `json:"change"`
}

type CompletionOptions struct {
	TriggerCharacters []string `json:"triggerCharacters,omitempty"`
}

type TextDocumentIdentifier struct {
	URI string `json:"uri" validate:"required"`
}

type VersionedTextDocumentIdentifier struct {
	URI     string `json:"uri" validate:"required"`
	Version int32  `json:"version"`
}

type TextDocumentItem struct {
	URI        string `json:"uri" validate:"required"`
	LanguageID string `json:"languageId"`
	Version    int32  `json:"version"`
	Text       string `json:"text"`
}

type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

type TextDocumentContentChangeEvent struct {
	Text string `json:"text"`
}

type DidChangeTextDocumentParams struct {
	TextDocument   VersionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges" validate:"min=1"`
}

type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     model.Position         `json:"position"`
}

type CancelParams struct {
	ID json.RawMessage `json:"id"`
}

// ImpactParams are the params of problemFrames/impactRequirements.
type ImpactParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     model.Position         `json:"position"`
	MaxHops      *int                   `json:"maxHops,omitempty" validate:"omitempty,gte=0"`
	Policy       string                 `json:"policy,omitempty" validate:"omitempty,oneof=semantic undirected"`
}

// ImpactResult is the reply of problemFrames/impactRequirements.
type ImpactResult struct {
	SeedKind             string   `json:"seedKind"`
	SeedID               string   `json:"seedId"`
	ImpactedRequirements []string `json:"impactedRequirements"`
	MaxHops              int      `json:"maxHops"`
}

type Location struct {
	URI   string     `json:"uri"`
	Range model.Span `json:"range"`
}

// Diagnostic is the wire form of model.Diagnostic.
type Diagnostic struct {
	Range    model.Span     `json:"range"`
	Severity model.Severity `json:"severity"`
	Code     string         `json:"code,omitempty"`
	Source   string         `json:"source"`
	Message  string         `json:"message"`
}

// MessageType is the severity of a window/logMessage.
type MessageType int

const (
	MessageError   MessageType = 1
	MessageWarning MessageType = 2
	MessageInfo    MessageType = 3
	MessageLog     MessageType = 4
)

type LogMessageParams struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

type PublishDiagnosticsParams struct {
	URI         string       `json:"uri"`
	Version     *int32       `json:"version,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// CompletionItemKind values used by the server.
const (
	CompletionKindModule  = 9
	CompletionKindClass   = 7
	CompletionKindKeyword = 14
)

type CompletionItem struct {
	Label      string `json:"label"`
	Kind       int    `json:"kind"`
	Detail     string `json:"detail,omitempty"`
	InsertText string `json:"insertText,omitempty"`
}

// FileChangeType values of workspace/didChangeWatchedFiles.
const (
	FileCreated = 1
	FileChanged = 2
	FileDeleted = 3
)

type FileEvent struct {
	URI  string `json:"uri" validate:"required"`
	Type int    `json:"type" validate:"oneof=1 2 3"`
}

type DidChangeWatchedFilesParams struct {
	Changes []FileEvent `json:"changes" validate:"dive"`
}
