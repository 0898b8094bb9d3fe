package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/soyeahso/wayfarer/internal/agent"
	"github.com/soyeahso/wayfarer/internal/config"
	"github.com/soyeahso/wayfarer/internal/logging"
	"github.com/soyeahso/wayfarer/internal/version"
)

// ErrClosed is returned for calls on a client whose connection has ended.
var ErrClosed = errors.New("mcp: connection closed")

// Client is a connection to one MCP server. It implements agent.ToolSource.
type Client struct {
	name string
	cmd  *exec.Cmd
	w    io.WriteCloser
	log  *logging.Logger

	wmu     sync.Mutex
	mu      sync.Mutex
	pending map[int64]chan Response
	nextID  atomic.Int64

	done    chan struct{}
	readErr error
}

// Spawn starts the configured server process and completes the
// initialize handshake.
func Spawn(ctx context.Context, cfg config.MCPServerConfig, log *logging.Logger) (*Client, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = os.Environ()
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp %s: stdin: %w", cfg.Name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp %s: stdout: %w", cfg.Name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("mcp %s: starting %s: %w", cfg.Name, cfg.Command, err)
	}

	c := NewConn(cfg.Name, stdout, stdin, log)
	c.cmd = cmd
	if err := c.Initialize(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// NewConn wraps an established stream pair. Call Initialize before use.
func NewConn(name string, r io.Reader, w io.WriteCloser, log *logging.Logger) *Client {
	c := &Client{
		name:    name,
		w:       w,
		log:     log.Sub("mcp." + name),
		pending: make(map[int64]chan Response),
		done:    make(chan struct{}),
	}
	go c.readLoop(r)
	return c
}

// Name returns the configured server name.
func (c *Client) Name() string { return c.name }

// Initialize performs the MCP handshake.
func (c *Client) Initialize(ctx context.Context) error {
	var res InitializeResult
	err := c.call(ctx, "initialize", InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      ServerInfo{Name: "wayfarer", Version: version.Version},
	}, &res)
	if err != nil {
		return fmt.Errorf("mcp %s: initialize: %w", c.name, err)
	}
	c.log.Info().
		Str("server", res.ServerInfo.Name).
		Str("protocol", res.ProtocolVersion).
		Msg("MCP server connected")
	return c.notify("notifications/initialized")
}

// ListTools implements agent.ToolSource.
func (c *Client) ListTools(ctx context.Context) ([]agent.ToolSpec, error) {
	var res ListToolsResult
	if err := c.call(ctx, "tools/list", struct{}{}, &res); err != nil {
		return nil, fmt.Errorf("mcp %s: tools/list: %w", c.name, err)
	}
	specs := make([]agent.ToolSpec, 0, len(res.Tools))
	for _, t := range res.Tools {
		specs = append(specs, agent.ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: string(t.InputSchema),
		})
	}
	return specs, nil
}

// ExecuteTool implements agent.ToolSource. A tool-level failure reported
// by the server comes back as text for the model, not as an error.
func (c *Client) ExecuteTool(ctx context.Context, req agent.ToolRequest) (string, error) {
	args := json.RawMessage(req.Input)
	if len(strings.TrimSpace(req.Input)) == 0 {
		args = json.RawMessage(`{}`)
	}
	var res CallToolResult
	if err := c.call(ctx, "tools/call", CallToolParams{Name: req.Name, Arguments: args}, &res); err != nil {
		return "", fmt.Errorf("mcp %s: %s: %w", c.name, req.Name, err)
	}

	var b strings.Builder
	for i, item := range res.Content {
		if item.Type != "text" {
			continue
		}
		if i > 0 && b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(item.Text)
	}
	if res.IsError {
		return "Error: " + b.String(), nil
	}
	return b.String(), nil
}

// Close ends the connection and stops the server process, if any.
func (c *Client) Close() error {
	err := c.w.Close()
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
		_ = c.cmd.Wait()
	}
	return err
}

func (c *Client) call(ctx context.Context, method string, params, out any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	id := c.nextID.Add(1)
	ch := make(chan Response, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(strconv.FormatInt(id, 10)),
		Method:  method,
		Params:  raw,
	}); err != nil {
		return err
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return resp.Error
		}
		if out == nil || len(resp.Result) == 0 {
			return nil
		}
		return json.Unmarshal(resp.Result, out)
	case <-c.done:
		if c.readErr != nil {
			return fmt.Errorf("%w: %v", ErrClosed, c.readErr)
		}
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) notify(method string) error {
	return c.write(Request{JSONRPC: "2.0", Method: method})
}

func (c *Client) write(req Request) error {
	b, err := json.Marshal(req)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("mcp %s: write: %w", c.name, err)
	}
	return nil
}

func (c *Client) readLoop(r io.Reader) {
	defer close(c.done)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			c.log.Debug().Err(err).Msg("ignoring non-JSON line")
			continue
		}
		id, err := strconv.ParseInt(string(resp.ID), 10, 64)
		if err != nil {
			// server-initiated request or notification
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[id]
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
	c.readErr = scanner.Err()
}

// SpawnAll starts every configured server. Servers that fail to start are
// logged and skipped so one broken server does not disable the rest.
func SpawnAll(ctx context.Context, cfgs []config.MCPServerConfig, log *logging.Logger) []*Client {
	var clients []*Client
	for _, cfg := range cfgs {
		c, err := Spawn(ctx, cfg, log)
		if err != nil {
			log.Warn().Err(err).Str("server", cfg.Name).Msg("MCP server unavailable")
			continue
		}
		clients = append(clients, c)
	}
	return clients
}
