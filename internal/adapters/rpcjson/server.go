package rpcjson

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/stejskal/web-predator/internal/explorer"
	"go.uber.org/zap"
)

// Server exposes one explorer Session over a unix socket speaking
// JSON-RPC 2.0, one JSON value per request.
type Server struct {
	handler  *Handler
	log      *zap.Logger
	listener net.Listener
	path     string
	ctx      context.Context
	cancel   context.CancelFunc
}

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      any             `json:"id"`
}

type response struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	ID      any    `json:"id"`
}

func Start(path string, session *explorer.Session, log *zap.Logger) (*Server, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("rpc socket path is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = ln.Close()
		_ = os.Remove(path)
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		handler:  NewHandler(session, log),
		log:      log,
		listener: ln,
		path:     path,
		ctx:      ctx,
		cancel:   cancel,
	}
	go s.serve()
	return s, nil
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

// Close stops accepting connections and cancels in-flight calls.
func (s *Server) Close() error {
	s.cancel()
	err := s.listener.Close()
	_ = os.Remove(s.path)
	return err
}

func (s *Server) handleConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)

	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			_ = enc.Encode(response{JSONRPC: "2.0", Error: &Error{Code: CodeParse, Message: "parse error"}, ID: nil})
			return
		}

		resp := s.dispatch(s.ctx, req)
		if err := enc.Encode(resp); err != nil {
			s.log.Debug("write response failed", zap.Error(err))
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req request) response {
	if req.JSONRPC != "2.0" || strings.TrimSpace(req.Method) == "" {
		return response{JSONRPC: "2.0", Error: &Error{Code: CodeInvalidRequest, Message: "invalid request"}, ID: req.ID}
	}
	result, err := s.handler.Call(ctx, req.Method, req.Params)
	if err != nil {
		var rpcErr *Error
		if !errors.As(err, &rpcErr) {
			rpcErr = &Error{Code: CodeInternal, Message: err.Error()}
		}
		return response{JSONRPC: "2.0", Error: rpcErr, ID: req.ID}
	}
	return response{JSONRPC: "2.0", Result: result, ID: req.ID}
}
