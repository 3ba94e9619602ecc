// Package localbackend implements the local fast backend (C4): a
// read-only allowlisted view over the hosted REST API, backed by the
// response cache and, where possible, the SQLite fast-path before ever
// reaching the network. Grounded on the general "resolve tool, dispatch,
// wrap result" shape of an MCP upstream client, adapted from an
// MCP-subprocess client to an in-process REST dispatcher with its own
// caching and allowlisting concerns.
package localbackend

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/everything-chalna/oh-my-notionmcp/internal/cache"
	"github.com/everything-chalna/oh-my-notionmcp/internal/cachekey"
	"github.com/everything-chalna/oh-my-notionmcp/internal/contracts"
	"github.com/everything-chalna/oh-my-notionmcp/internal/fastpath"
	"github.com/everything-chalna/oh-my-notionmcp/internal/httpapi"
	"github.com/everything-chalna/oh-my-notionmcp/internal/metrics"
)

const (
	maxToolNameBytes    = 64
	ambiguousAlias      = "\x00ambiguous"
	controlForceRefresh = "__mcpFastForceRefresh"
)

// Operation is one entry of the operation table: an HTTP method/path
// template paired with the OperationID used for allowlisting and the
// full (pre-truncation) tool name callers resolve against.
type Operation struct {
	OperationID string
	Method      string
	Path        string
	ToolName    string
	Description string
}

// AuthContext carries the per-call credentials the cache key must be
// sensitive to (two different callers must never share a cache entry)
// and that get forwarded to the HTTP client as headers.
type AuthContext struct {
	Authorization string
	APIVersion    string
}

type authContextKey struct{}

// WithAuth attaches auth to ctx for a subsequent CallTool call. The
// server layer calls this once per inbound request, before dispatching
// through the router.
func WithAuth(ctx context.Context, auth AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// AuthFromContext retrieves the AuthContext attached by WithAuth, or the
// zero value if none was attached.
func AuthFromContext(ctx context.Context) AuthContext {
	auth, _ := ctx.Value(authContextKey{}).(AuthContext)
	return auth
}

// Backend is the local fast backend. Construct with New.
type Backend struct {
	canonicalOps map[string]Operation // full tool name -> operation
	exposed      map[string]string    // external (possibly truncated) name -> full tool name
	allowlist    map[string]string    // operation ID -> allowed HTTP method

	http     httpapi.Client
	cache    *cache.Manager
	fastPath *fastpath.FastPath
	logger   *zap.Logger
	metrics  *metrics.Registry
	baseURL  string
}

// New builds a Backend from a fixed operation table and a read-only
// allowlist (operation ID -> permitted HTTP method). Tool names longer
// than 64 bytes are truncated for external exposure; a collision between
// two distinct operations truncating to the same name makes that name
// unresolvable (ambiguous) rather than silently picking one.
func New(operations []Operation, allowlist map[string]string, httpClient httpapi.Client, cacheMgr *cache.Manager, fp *fastpath.FastPath, baseURL string, logger *zap.Logger, reg *metrics.Registry) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = metrics.Noop()
	}

	b := &Backend{
		canonicalOps: make(map[string]Operation, len(operations)),
		exposed:      make(map[string]string, len(operations)),
		allowlist:    allowlist,
		http:         httpClient,
		cache:        cacheMgr,
		fastPath:     fp,
		baseURL:      strings.TrimRight(baseURL, "/"),
		logger:       logger,
		metrics:      reg,
	}

	truncatedSeen := map[string]string{}
	for _, op := range operations {
		b.canonicalOps[op.ToolName] = op

		if len(op.ToolName) <= maxToolNameBytes {
			b.exposed[op.ToolName] = op.ToolName
			continue
		}

		trunc := truncateBytes(op.ToolName, maxToolNameBytes)
		existing, seen := truncatedSeen[trunc]
		switch {
		case !seen:
			truncatedSeen[trunc] = op.ToolName
			b.exposed[trunc] = op.ToolName
		case existing != op.ToolName:
			truncatedSeen[trunc] = ambiguousAlias
			delete(b.exposed, trunc)
		}
	}

	return b
}

func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (b *Backend) resolve(name string) (Operation, bool) {
	canonical, ok := b.exposed[name]
	if !ok {
		return Operation{}, false
	}
	op, ok := b.canonicalOps[canonical]
	return op, ok
}

// ListTools returns every externally-resolvable tool, regardless of its
// allowlist status — a blocked tool is still listed, so a caller sees a
// typed refusal rather than "tool not found".
func (b *Backend) ListTools(_ context.Context) ([]contracts.ToolDescriptor, error) {
	out := make([]contracts.ToolDescriptor, 0, len(b.exposed))
	for external, canonical := range b.exposed {
		op := b.canonicalOps[canonical]
		out = append(out, contracts.ToolDescriptor{
			Name:        external,
			Description: op.Description,
			InputSchema: map[string]interface{}{},
		})
	}
	return out, nil
}

// HasTool reports whether name resolves to a known operation (allowlist
// status aside).
func (b *Backend) HasTool(name string) bool {
	_, ok := b.resolve(name)
	return ok
}

// FindToolName resolves name through the same direct-or-alias table
// CallTool uses.
func (b *Backend) FindToolName(name string) (string, bool) {
	if _, ok := b.resolve(name); ok {
		return name, true
	}
	return "", false
}

// Close releases nothing the Backend itself owns; the cache, fast-path,
// and HTTP client outlive it and are closed by their owners.
func (b *Backend) Close() error {
	return nil
}

// CallTool implements the dispatch algorithm: resolve, allowlist-check,
// rehydrate parameters, split control fields, check the cache, try the
// SQLite fast-path, and finally fall through to the HTTP client.
func (b *Backend) CallTool(ctx context.Context, name string, rawArgs map[string]interface{}) (*contracts.CallResult, error) {
	auth := AuthFromContext(ctx)

	op, ok := b.resolve(name)
	if !ok {
		return policyResult("unknown_tool", fmt.Sprintf("unknown tool: %s", name), ""), nil
	}

	allowedMethod, allowlisted := b.allowlist[op.OperationID]
	if !allowlisted || !strings.EqualFold(allowedMethod, op.Method) {
		return policyResult("READ_ONLY_OPERATION_BLOCKED",
			fmt.Sprintf("operation %s is not available in read-only mode", op.OperationID), op.OperationID), nil
	}

	rehydrated, _ := rehydrate(rawArgs).(map[string]interface{})
	sanitized := make(map[string]interface{}, len(rehydrated))
	for k, v := range rehydrated {
		sanitized[k] = v
	}
	forceRefresh, _ := sanitized[controlForceRefresh].(bool)
	delete(sanitized, controlForceRefresh)

	authFingerprint := authFingerprintOf(auth)
	opID := op.OperationID
	key, err := cachekey.Build(
		cachekey.Operation{Method: op.Method, Path: op.Path, OperationID: &opID},
		map[string]interface{}{
			"args":             sanitized,
			"auth_fingerprint": authFingerprint,
			"base_url":         b.baseURL,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("localbackend: build cache key: %w", err)
	}

	if !forceRefresh {
		if cached, ok := b.cache.Get(key); ok {
			return contracts.TextResult(cached), nil
		}
	}

	if !forceRefresh && b.fastPath != nil && fastpath.Supports(op.OperationID) {
		result, ok, err := b.callFastPath(ctx, op, sanitized)
		if err != nil {
			b.logger.Warn("localbackend: fast-path lookup failed, falling through to HTTP",
				zap.String("operation_id", op.OperationID), zap.Error(err))
		} else if ok {
			payload, marshalErr := json.Marshal(result)
			if marshalErr != nil {
				return nil, fmt.Errorf("localbackend: marshal fast-path result: %w", marshalErr)
			}
			b.cache.Set(key, string(payload))
			b.metrics.FastPathHits.Inc()
			return contracts.TextResult(string(payload)), nil
		}
	}

	pathParams, queryParams, body := splitArgs(op.Path, op.Method, sanitized)
	headers := map[string]string{}
	if auth.Authorization != "" {
		headers["Authorization"] = auth.Authorization
	}

	resp, err := b.http.Do(ctx, httpapi.Operation{Method: op.Method, Path: op.Path, BaseURL: b.baseURL}, pathParams, queryParams, body, headers)
	if err != nil {
		var httpErr *httpapi.HttpClientError
		if e, ok := err.(*httpapi.HttpClientError); ok {
			httpErr = e
		} else {
			httpErr = &httpapi.HttpClientError{Message: err.Error()}
		}
		errPayload, marshalErr := json.Marshal(map[string]interface{}{
			"status":      "error",
			"message":     httpErr.Message,
			"data":        httpErr.Data,
			"http_status": httpErr.Status,
		})
		if marshalErr != nil {
			return nil, fmt.Errorf("localbackend: marshal error result: %w", marshalErr)
		}
		return &contracts.CallResult{
			Content: []contracts.ContentBlock{{Type: "text", Text: string(errPayload)}},
			IsError: true,
		}, nil
	}

	payload, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("localbackend: marshal http response: %w", err)
	}
	b.cache.Set(key, string(payload))
	b.cache.SaveAsync()

	return contracts.TextResult(string(payload)), nil
}

func policyResult(code, message, operationID string) *contracts.CallResult {
	payload, _ := json.Marshal(map[string]interface{}{
		"error":        code,
		"message":      message,
		"operation_id": operationID,
	})
	return &contracts.CallResult{
		Content: []contracts.ContentBlock{{Type: "text", Text: string(payload)}},
		IsError: true,
	}
}

func authFingerprintOf(auth AuthContext) string {
	sum := sha256.Sum256([]byte(auth.Authorization + "|" + auth.APIVersion))
	return hex.EncodeToString(sum[:])
}

// callFastPath dispatches to the matching fastpath.FastPath method by
// operation ID, extracting the relevant ID/pagination arguments from the
// sanitized parameter map.
func (b *Backend) callFastPath(ctx context.Context, op Operation, args map[string]interface{}) (interface{}, bool, error) {
	switch op.OperationID {
	case fastpath.OpRetrievePage:
		return b.fastPath.RetrievePage(ctx, stringArg(args, "page_id"))
	case fastpath.OpRetrieveBlock:
		return b.fastPath.RetrieveBlock(ctx, stringArg(args, "block_id"))
	case fastpath.OpGetBlockChildren:
		return b.fastPath.GetBlockChildren(ctx, stringArg(args, "block_id"), stringArg(args, "start_cursor"), intArg(args, "page_size"))
	default:
		return nil, false, nil
	}
}

func stringArg(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

func intArg(args map[string]interface{}, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// rehydrate recursively walks v; any string whose trimmed value looks
// like a JSON object or array is parsed and substituted, then walked
// again in case the parsed value itself contains further stringified
// JSON (a common shape for tool-call arguments passed through a
// text-only transport).
func rehydrate(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = rehydrate(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = rehydrate(item)
		}
		return out
	case string:
		trimmed := strings.TrimSpace(val)
		looksLikeObject := strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")
		looksLikeArray := strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")
		if !looksLikeObject && !looksLikeArray {
			return val
		}
		var parsed interface{}
		if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
			return val
		}
		switch parsed.(type) {
		case map[string]interface{}, []interface{}:
			return rehydrate(parsed)
		default:
			return val
		}
	default:
		return v
	}
}

// splitArgs partitions sanitized arguments into path parameters (any key
// appearing as a `{key}` placeholder in the path template), query
// parameters (GET's remainder), and a request body (every other
// method's remainder).
func splitArgs(path, method string, args map[string]interface{}) (pathParams, queryParams map[string]interface{}, body interface{}) {
	pathParams = map[string]interface{}{}
	rest := map[string]interface{}{}
	for k, v := range args {
		if strings.Contains(path, "{"+k+"}") {
			pathParams[k] = v
		} else {
			rest[k] = v
		}
	}
	if strings.EqualFold(method, "GET") {
		return pathParams, rest, nil
	}
	return pathParams, nil, rest
}
