package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/stejskal/web-predator/internal/adapters/rpcjson"
)

// rpcClient talks to a running session daemon over its unix socket.
type rpcClient struct {
	socket  string
	timeout time.Duration
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcjson.Error  `json:"error"`
	ID      any             `json:"id"`
}

func newRPCClient(socket string, timeout time.Duration) *rpcClient {
	return &rpcClient{socket: socket, timeout: timeout}
}

func (c *rpcClient) call(ctx context.Context, method string, params any, out any) error {
	dialer := net.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "unix", c.socket)
	if err != nil {
		return fmt.Errorf("session daemon at %s: %w", c.socket, err)
	}
	defer func() { _ = conn.Close() }()
	if c.timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.timeout))
	}

	req := rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return err
	}

	var resp rpcResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(resp.Result, out)
}

// localClient runs the same methods against an in-process session, used
// with the http transport when no daemon holds the state.
type localClient struct {
	handler *rpcjson.Handler
}

func (c *localClient) call(ctx context.Context, method string, params any, out any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	result, err := c.handler.Call(ctx, method, raw)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
