package toolexecutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog/log"

	"github.com/harun/turnstream/pkg/protocol"
)

const (
	mcpCallTimeout = 30 * time.Second
	mcpExitGrace   = 200 * time.Millisecond
)

// ErrBridgeClosed is returned for calls to an MCP server whose process exited
var ErrBridgeClosed = errors.New("mcp server is not running")

// MCPServerAdapter bridges the tools of a Model Context Protocol server that
// speaks newline-delimited JSON-RPC over stdio. The process is started lazily.
type MCPServerAdapter struct {
	serverID string
	command  string
	args     []string
	env      []string

	mu      sync.Mutex
	process *exec.Cmd
	output  *exitReader
	client  *mcpclient.Client
	exited  chan struct{}
}

// NewMCPServerAdapter creates a new adapter for an MCP server. env, when
// non-empty, replaces the environment of the server process.
func NewMCPServerAdapter(serverID, command string, args []string, env ...string) *MCPServerAdapter {
	return &MCPServerAdapter{
		serverID: serverID,
		command:  command,
		args:     args,
		env:      env,
	}
}

// Available reports whether the server command can be run and, once started,
// whether the process is still alive
func (a *MCPServerAdapter) Available() bool {
	if a == nil || strings.TrimSpace(a.command) == "" {
		return false
	}

	a.mu.Lock()
	exited := a.exited
	started := a.process != nil
	a.mu.Unlock()

	if started {
		select {
		case <-exited:
			return false
		default:
			return true
		}
	}

	_, err := exec.LookPath(a.command)
	return err == nil
}

// exitReader reports the end of the server's stdout once
type exitReader struct {
	r    io.Reader
	once sync.Once
	done func()
}

func (e *exitReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err != nil {
		e.close()
	}
	return n, err
}

func (e *exitReader) close() {
	e.once.Do(e.done)
}

// Start starts the MCP server process and performs the initialize handshake
func (a *MCPServerAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.process != nil {
		return nil
	}

	// The process outlives the request that started it; Stop ends it.
	cmd := exec.Command(a.command, a.args...)
	if len(a.env) > 0 {
		cmd.Env = a.env
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", a.command, err)
	}

	exited := make(chan struct{})
	output := &exitReader{r: stdout, done: func() {
		close(exited)
		_ = cmd.Wait()
		log.Debug().Str("server", a.serverID).Msg("MCP server output closed")
	}}

	client := mcpclient.NewClient(transport.NewIO(output, stdin, io.NopCloser(strings.NewReader(""))))
	if err := client.Start(context.Background()); err != nil {
		_ = cmd.Process.Kill()
		return fmt.Errorf("failed to start MCP transport: %w", err)
	}

	a.process = cmd
	a.output = output
	a.client = client
	a.exited = exited
	log.Debug().Str("server", a.serverID).Str("command", a.command).Msg("MCP server started")

	initCtx, cancel := a.callContext(ctx)
	defer cancel()

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "turnstream", Version: "0.1.0"}
	if _, err := client.Initialize(initCtx, req); err != nil {
		err = a.closedOr(err)
		_ = client.Close()
		_ = cmd.Process.Kill()
		output.close()
		return fmt.Errorf("mcp initialize: %w", err)
	}
	return nil
}

// callContext bounds a request by mcpCallTimeout and ends it when the process exits.
// The caller holds no lock.
func (a *MCPServerAdapter) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	callCtx, cancel := context.WithTimeout(ctx, mcpCallTimeout)
	exited := a.exited
	go func() {
		select {
		case <-exited:
			cancel()
		case <-callCtx.Done():
		}
	}()
	return callCtx, cancel
}

// closedOr maps failures caused by the process exiting to ErrBridgeClosed
func (a *MCPServerAdapter) closedOr(err error) error {
	select {
	case <-a.exited:
		return ErrBridgeClosed
	default:
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("MCP request timed out after %v: %w", mcpCallTimeout, err)
	}

	// A failed write can be seen before the end of stdout is.
	var terr *transport.Error
	if errors.As(err, &terr) && !errors.Is(err, context.Canceled) {
		select {
		case <-a.exited:
			return ErrBridgeClosed
		case <-time.After(mcpExitGrace):
		}
	}
	return err
}

// connected starts the server if needed and returns its client
func (a *MCPServerAdapter) connected(ctx context.Context) (*mcpclient.Client, error) {
	if err := a.Start(ctx); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	select {
	case <-a.exited:
		return nil, ErrBridgeClosed
	default:
	}
	return a.client, nil
}

// Tools lists the server's tools as function tool specs
func (a *MCPServerAdapter) Tools(ctx context.Context) ([]protocol.ToolSpec, error) {
	client, err := a.connected(ctx)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := a.callContext(ctx)
	defer cancel()

	result, err := client.ListTools(callCtx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, a.closedOr(err)
	}

	specs := make([]protocol.ToolSpec, 0, len(result.Tools))
	for _, t := range result.Tools {
		if t.Name == "" {
			continue
		}
		specs = append(specs, protocol.NewFunctionTool(t.Name, t.Description, inputSchema(t)))
	}
	return specs, nil
}

func inputSchema(t mcp.Tool) map[string]interface{} {
	schema := map[string]interface{}{}
	if data, err := json.Marshal(t.InputSchema); err == nil {
		_ = json.Unmarshal(data, &schema)
	}
	if s, _ := schema["type"].(string); s == "" {
		schema["type"] = "object"
	}
	if _, ok := schema["properties"]; !ok {
		schema["properties"] = map[string]interface{}{}
	}
	return schema
}

// Call runs a tool on the server. The JSON arguments are forwarded as-is; the
// text content of the result is joined into the returned output.
func (a *MCPServerAdapter) Call(ctx context.Context, name, arguments string) (string, error) {
	args := map[string]interface{}{}
	if strings.TrimSpace(arguments) != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return "", fmt.Errorf("failed to parse arguments for %s: %w", name, err)
		}
	}

	client, err := a.connected(ctx)
	if err != nil {
		return "", err
	}

	callCtx, cancel := a.callContext(ctx)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := client.CallTool(callCtx, req)
	if err != nil {
		return "", a.closedOr(err)
	}

	texts := make([]string, 0, len(result.Content))
	for _, c := range result.Content {
		if text, ok := mcp.AsTextContent(c); ok {
			texts = append(texts, text.Text)
		}
	}
	output := strings.Join(texts, "\n")
	if result.IsError {
		return "", errors.New(output)
	}
	return output, nil
}

// Stop stops the MCP server process. Calls made afterwards return ErrBridgeClosed.
func (a *MCPServerAdapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		_ = a.client.Close()
	}
	if a.process != nil && a.process.Process != nil {
		if err := a.process.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return err
		}
		a.output.close()
	}
	return nil
}
