package lsp

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// MaxContentLength bounds a single message body (64MB).
const MaxContentLength = 64 * 1024 * 1024

// ErrMalformedHeader is returned for a header block without a usable
// Content-Length. The block is consumed, so reading can continue.
var ErrMalformedHeader = errors.New("malformed message header")

// SyntaxError is returned when a message body is not valid JSON.
type SyntaxError struct {
	Err error
}

func (e *SyntaxError) Error() string { return "invalid JSON message: " + e.Err.Error() }
func (e *SyntaxError) Unwrap() error { return e.Err }

// Conn reads and writes Content-Length framed JSON-RPC messages.
// Writes are serialized; reads must come from a single goroutine.
type Conn struct {
	r   *bufio.Reader
	w   io.Writer
	wmu sync.Mutex
}

// NewConn wraps a byte stream pair.
func NewConn(r io.Reader, w io.Writer) *Conn {
	return &Conn{r: bufio.NewReader(r), w: w}
}

// Read reads the next message. It returns io.EOF when the stream ends
// between messages.
func (c *Conn) Read() (*Message, error) {
	length, err := c.readHeaders()
	if err != nil {
		return nil, err
	}

	content := make([]byte, length)
	if _, err := io.ReadFull(c.r, content); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	var msg Message
	if err := json.Unmarshal(content, &msg); err != nil {
		return nil, &SyntaxError{Err: err}
	}
	return &msg, nil
}

func (c *Conn) readHeaders() (int, error) {
	length := -1
	sawHeader := false
	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && !sawHeader && strings.TrimSpace(line) == "" {
				return 0, io.EOF
			}
			if errors.Is(err, io.EOF) {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			if !sawHeader {
				continue
			}
			break
		}
		sawHeader = true

		name, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 || n > MaxContentLength {
			length = -1
			continue
		}
		length = n
	}

	if length < 0 {
		return 0, ErrMalformedHeader
	}
	return length, nil
}

// Write sends one message.
func (c *Conn) Write(msg *Message) error {
	msg.Jsonrpc = "2.0"
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	if _, err := fmt.Fprintf(c.w, "Content-Length: %d\r\n\r\n", len(data)); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := c.w.Write(data); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	return nil
}

// Notify sends a notification.
func (c *Conn) Notify(method string, params any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	return c.Write(&Message{Method: method, Params: raw})
}

// Reply sends a result, or rpcErr when it is set. A nil result is sent as
// JSON null.
func (c *Conn) Reply(id json.RawMessage, result any, rpcErr *RPCError) error {
	if len(id) == 0 {
		id = nullID
	}
	if rpcErr != nil {
		return c.Write(&Message{ID: id, Error: rpcErr})
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return c.Write(&Message{ID: id, Error: &RPCError{Code: InternalError, Message: "failed to encode result: " + err.Error()}})
	}
	return c.Write(&Message{ID: id, Result: raw})
}
