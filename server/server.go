// Package server exposes the compiler over a websocket. Each message on a
// connection is a compile request; every request gets fresh compiler state,
// so connections are served concurrently without coordination.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/strager/quill"
	"github.com/strager/quill/wasmrun"
)

type Config struct {
	Addr string

	// MaxSourceBytes bounds the source text of a single request.
	MaxSourceBytes int64

	// Execute allows clients to ask for main to be run after compiling.
	Execute bool

	// RunTimeout bounds a single execution of main.
	RunTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		MaxSourceBytes: 64 << 10,
		Execute:        true,
		RunTimeout:     5 * time.Second,
	}
}

// Request is one client message.
type Request struct {
	Source  string `json:"source"`
	Execute bool   `json:"execute"`
}

// Response answers exactly one Request. WASM is base64 in JSON.
type Response struct {
	ID     string   `json:"id"`
	OK     bool     `json:"ok"`
	WASM   []byte   `json:"wasm,omitempty"`
	Result *int32   `json:"result,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

type Server struct {
	config   Config
	logger   *log.Logger
	upgrader websocket.Upgrader
}

// New creates a server. A nil logger logs through the standard logger.
func New(config Config, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		config: config,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler routes GET /compile to the websocket endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /compile", s.serveCompile)
	return mux
}

// ListenAndServe serves on config.Addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{Addr: s.config.Addr, Handler: s.Handler()}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Printf("listening on %s", s.config.Addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) serveCompile(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		s.logger.Printf("%s: upgrade failed: %v", r.RemoteAddr, err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(s.readLimit())
	s.logger.Printf("%s: connected", r.RemoteAddr)

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Printf("%s: read: %v", r.RemoteAddr, err)
			}
			break
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		resp := s.handle(r.Context(), message)
		s.logger.Printf("%s: request %s ok=%t", r.RemoteAddr, resp.ID, resp.OK)
		if err := conn.WriteJSON(resp); err != nil {
			s.logger.Printf("%s: write: %v", r.RemoteAddr, err)
			break
		}
	}
	s.logger.Printf("%s: disconnected", r.RemoteAddr)
}

// readLimit bounds an encoded request. JSON escapes a source byte into at most
// six bytes (\u00XX), and the envelope needs a little more, so any source
// within MaxSourceBytes reaches handle and gets a proper response.
func (s *Server) readLimit() int64 {
	return 6*s.config.MaxSourceBytes + 4096
}

// handle decodes one message and compiles it.
func (s *Server) handle(ctx context.Context, message []byte) Response {
	resp := Response{ID: uuid.NewString()}

	var req Request
	if err := json.Unmarshal(message, &req); err != nil {
		resp.Errors = []string{fmt.Sprintf("invalid request: %v", err)}
		return resp
	}
	if size := int64(len(req.Source)); size > s.config.MaxSourceBytes {
		resp.Errors = []string{fmt.Sprintf("source is %s, limit is %s",
			humanize.Bytes(uint64(size)), humanize.Bytes(uint64(s.config.MaxSourceBytes)))}
		return resp
	}
	if req.Execute && !s.config.Execute {
		resp.Errors = []string{"execution is disabled on this server"}
		return resp
	}

	wasm, err := quill.Compile(req.Source)
	if err != nil {
		resp.Errors = diagnostics(err)
		return resp
	}
	resp.WASM = wasm

	if req.Execute {
		runCtx := ctx
		if s.config.RunTimeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, s.config.RunTimeout)
			defer cancel()
		}
		result, err := wasmrun.Run(runCtx, wasm)
		if err != nil {
			resp.Errors = []string{err.Error()}
			return resp
		}
		resp.Result = &result
	}

	resp.OK = true
	return resp
}

// diagnostics flattens a compile error into one message per diagnostic.
func diagnostics(err error) []string {
	var parseErr *quill.ParseError
	if errors.As(err, &parseErr) {
		var messages []string
		for _, e := range parseErr.Errors.Errors() {
			messages = append(messages, e.Error())
		}
		return messages
	}
	return []string{err.Error()}
}
