// Package remotebackend implements the remote-subprocess backend (C5): a
// child process reached over MCP stdio, with connect-timeout,
// single-retry reconnect, and re-authentication semantics. Grounded on
// the client/transport wiring and Initialize/ListTools/CallTool shape of
// an MCP upstream client, and the reconnect-on-failure policy of a
// managed-client wrapper, adapted from a general-purpose multi-transport
// client down to the single stdio-transport-with-reauth case this system
// needs.
package remotebackend

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	uptransport "github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/everything-chalna/oh-my-notionmcp/internal/contracts"
	"github.com/everything-chalna/oh-my-notionmcp/internal/metrics"
	"github.com/everything-chalna/oh-my-notionmcp/internal/oauthcache"
	"github.com/everything-chalna/oh-my-notionmcp/internal/secureenv"
)

const (
	connectDeadline   = 30 * time.Second
	reconnectDeadline = 10 * time.Second
	reauthDeadline    = 120 * time.Second
)

// Spec is the immutable subprocess launch descriptor: everything needed
// to rebuild an identical transport+client pair during reconnect/reauth.
type Spec struct {
	Command          string
	Args             []string
	Cwd              string
	DefaultURL       string
	AllowNpxFallback bool
}

// Backend owns the child process and its MCP client. The zero value is
// not usable; construct with New.
type Backend struct {
	spec       Spec
	env        *secureenv.Manager
	logger     *zap.Logger
	metrics    *metrics.Registry
	tokenCacheDir string

	mu        sync.Mutex
	mcpClient *client.Client
	tools     map[string]contracts.ToolDescriptor
}

// New constructs a Backend. It does not connect; call Connect.
func New(spec Spec, env *secureenv.Manager, tokenCacheDir string, logger *zap.Logger, reg *metrics.Registry) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = metrics.Noop()
	}
	return &Backend{
		spec:          spec,
		env:           env,
		tokenCacheDir: tokenCacheDir,
		logger:        logger,
		metrics:       reg,
		tools:         map[string]contracts.ToolDescriptor{},
	}
}

// RemoteURL extracts the remote endpoint from the launch spec's argv, per
// the fixed URL-extraction rule: `node <url>` uses argv[1]; `npx ...
// mcp-remote <url> ...` uses the entry right after "mcp-remote"; anything
// else falls back to the configured default.
func (s Spec) RemoteURL() string {
	switch s.Command {
	case "node":
		if len(s.Args) >= 1 {
			return s.Args[0]
		}
	case "npx":
		for i, a := range s.Args {
			if a == "mcp-remote" && i+1 < len(s.Args) {
				return s.Args[i+1]
			}
		}
	}
	return s.DefaultURL
}

// Connect spawns the child process and completes MCP initialize +
// list_tools, bounded by a 30-second deadline. A timeout or any failure
// leaves the Backend unconnected; the caller treats this as
// PermanentBackendUnavailable and enters degraded mode.
func (b *Backend) Connect(ctx context.Context) error {
	return b.connect(ctx, connectDeadline)
}

// connect is Connect's implementation parameterized over the deadline, so
// Reauth can apply its own extended deadline instead of inheriting
// Connect's fixed 30 seconds.
func (b *Backend) connect(ctx context.Context, deadline time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	c, err := b.buildAndStart(ctx)
	if err != nil {
		return fmt.Errorf("remotebackend: connect: %w", err)
	}

	toolList, err := listTools(ctx, c)
	if err != nil {
		c.Close()
		return fmt.Errorf("remotebackend: connect: initial list_tools: %w", err)
	}

	b.mu.Lock()
	b.mcpClient = c
	b.tools = toolList
	b.mu.Unlock()

	return nil
}

func (b *Backend) buildAndStart(ctx context.Context) (*client.Client, error) {
	var env []string
	if b.env != nil {
		env = b.env.BuildSecureEnvironment()
	}

	tr := uptransport.NewStdio(b.spec.Command, env, b.spec.Args...)
	c := client.NewClient(tr)

	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("start stdio client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "oh-my-notionmcp", Version: "0.1.0"}
	initReq.Params.Capabilities = mcp.ClientCapabilities{}

	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, fmt.Errorf("initialize: %w", err)
	}

	return c, nil
}

func listTools(ctx context.Context, c *client.Client) (map[string]contracts.ToolDescriptor, error) {
	result, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, err
	}

	out := make(map[string]contracts.ToolDescriptor, len(result.Tools))
	for _, t := range result.Tools {
		schema := map[string]interface{}{}
		out[t.Name] = contracts.ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		}
	}
	return out, nil
}

// ListTools returns the tool descriptors discovered at Connect time.
func (b *Backend) ListTools(_ context.Context) ([]contracts.ToolDescriptor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]contracts.ToolDescriptor, 0, len(b.tools))
	for _, t := range b.tools {
		out = append(out, t)
	}
	return out, nil
}

// HasTool reports whether name was present in the last list_tools result.
func (b *Backend) HasTool(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.tools[name]
	return ok
}

// FindToolName resolves name by direct lookup only; the remote backend
// has no truncated-name aliasing concern.
func (b *Backend) FindToolName(name string) (string, bool) {
	if b.HasTool(name) {
		return name, true
	}
	return "", false
}

// CallTool forwards to the child process. On any failure it rebuilds the
// transport exactly once (bounded by a 10-second reconnect deadline,
// including a fresh list_tools), then retries the original call exactly
// once, returning whatever that retry produces.
func (b *Backend) CallTool(ctx context.Context, name string, args map[string]interface{}) (*contracts.CallResult, error) {
	b.mu.Lock()
	c := b.mcpClient
	b.mu.Unlock()
	if c == nil {
		return nil, fmt.Errorf("remotebackend: not connected")
	}

	result, err := callOnce(ctx, c, name, args)
	if err == nil {
		return result, nil
	}

	b.logger.Warn("remotebackend: call failed, attempting single reconnect",
		zap.String("tool", name), zap.Error(err))
	originalErr := err

	_ = c.Close()

	reconnectCtx, cancel := context.WithTimeout(ctx, reconnectDeadline)
	newClient, reconnectErr := b.buildAndStart(reconnectCtx)
	var newTools map[string]contracts.ToolDescriptor
	if reconnectErr == nil {
		newTools, reconnectErr = listTools(reconnectCtx, newClient)
	}
	cancel()

	if reconnectErr != nil {
		return nil, fmt.Errorf("remotebackend: original call failed (%v); reconnect also failed: %w", originalErr, reconnectErr)
	}

	b.metrics.BackendReconnects.Inc()

	b.mu.Lock()
	b.mcpClient = newClient
	b.tools = newTools
	b.mu.Unlock()

	return callOnce(ctx, newClient, name, args)
}

func callOnce(ctx context.Context, c *client.Client, name string, args map[string]interface{}) (*contracts.CallResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := c.CallTool(ctx, req)
	if err != nil {
		return nil, err
	}

	blocks := make([]contracts.ContentBlock, 0, len(result.Content))
	for _, item := range result.Content {
		if text, ok := mcp.AsTextContent(item); ok {
			blocks = append(blocks, contracts.ContentBlock{Type: "text", Text: text.Text})
		}
	}

	return &contracts.CallResult{Content: blocks, IsError: result.IsError}, nil
}

// Reauth disconnects, evicts every token-cache file matching this
// backend's remote URL hash, and reconnects with an extended deadline to
// allow an interactive OAuth round trip.
func (b *Backend) Reauth(ctx context.Context) (oauthcache.Summary, error) {
	b.mu.Lock()
	if b.mcpClient != nil {
		_ = b.mcpClient.Close()
		b.mcpClient = nil
	}
	b.mu.Unlock()

	hash := oauthcache.HashURL(b.spec.RemoteURL())
	summary, err := oauthcache.Evict(b.tokenCacheDir, hash)
	if err != nil {
		return oauthcache.Summary{}, fmt.Errorf("remotebackend: reauth: evict token cache: %w", err)
	}

	if err := b.connect(ctx, reauthDeadline); err != nil {
		return summary, fmt.Errorf("remotebackend: reauth: reconnect: %w", err)
	}

	return summary, nil
}

// Close tears down the child process and transport.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mcpClient == nil {
		return nil
	}
	err := b.mcpClient.Close()
	b.mcpClient = nil
	return err
}

// IsAuthError reports whether an error message looks like an expired or
// invalid OAuth credential, the trigger for the router's login hint.
func IsAuthError(msg string) bool {
	lower := strings.ToLower(msg)
	for _, needle := range []string{"401", "unauthorized", "token expired", "token invalid", "authentication"} {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}
