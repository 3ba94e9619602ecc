// Package router merges the official (remote) and fast (local) tool
// surfaces into a single route table and dispatches each call according
// to the mode that table assigns. Grounded on a per-upstream tool
// aggregation loop style, adapted from "merge many upstream servers" to
// "merge exactly two backends with a read/write-aware boosting policy".
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/everything-chalna/oh-my-notionmcp/internal/activity"
	"github.com/everything-chalna/oh-my-notionmcp/internal/contracts"
	"github.com/everything-chalna/oh-my-notionmcp/internal/fastpath"
	"github.com/everything-chalna/oh-my-notionmcp/internal/metrics"
	"github.com/everything-chalna/oh-my-notionmcp/internal/oauthcache"
	"github.com/everything-chalna/oh-my-notionmcp/internal/reqcontext"
)

// State is the router's connectivity state machine.
type State int

const (
	StateInit State = iota
	StateConnecting
	StateReady
	StateDegradedReadOnly
	StateDead
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateDegradedReadOnly:
		return "degraded_read_only"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Reauthenticator is the subset of the remote backend the router needs
// for the reauth meta tool, kept narrow so router tests can fake it.
type Reauthenticator interface {
	Reauth(ctx context.Context) (oauthcache.Summary, error)
}

const reauthToolName = "notion-reauth"

var writeLookingPrefixes = []string{
	"create-", "update-", "delete-", "append-", "archive-", "unarchive-",
	"duplicate-", "move-", "insert-", "add-", "remove-", "patch-",
}

var readLookingPrefixes = []string{
	"get-", "list-", "retrieve-", "search", "fetch", "query-", "read-", "post-search",
}

var boostEligibleNames = map[string]bool{
	"fetch":      true,
	"search":     true,
	"get-users":  true,
}

// fetchBoostCandidates are tried, in order, for an OFFICIAL_WITH_FAST_BOOST
// "fetch" call whose precondition (a single `id` argument) holds.
var fetchBoostCandidates = []string{
	"retrieve-a-page", "retrieve-a-database", "retrieve-a-data-source",
	"retrieve-a-block", "retrieve-a-comment",
}

// fetchBoostIDKey names the path-parameter key each candidate operation
// expects its resolved id under (see operations.go's path templates).
var fetchBoostIDKey = map[string]string{
	"retrieve-a-page":        "page_id",
	"retrieve-a-database":    "database_id",
	"retrieve-a-data-source": "data_source_id",
	"retrieve-a-block":       "block_id",
	"retrieve-a-comment":     "comment_id",
}

// Router owns the two backends and the route table derived from them.
type Router struct {
	official        contracts.Backend
	fast            contracts.Backend
	reauthenticator Reauthenticator
	logger          *zap.Logger
	metrics         *metrics.Registry

	mu         sync.RWMutex
	state      State
	officialUp bool
	fastUp     bool
	routes     map[string]contracts.RouteEntry

	activityLog *activity.Log
}

// New constructs a Router. official and/or fast may be nil if that
// backend is not configured; reauthenticator may be nil if the remote
// backend does not support reauth (e.g. it is absent).
func New(official, fast contracts.Backend, reauthenticator Reauthenticator, logger *zap.Logger, reg *metrics.Registry) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = metrics.Noop()
	}
	return &Router{
		official:        official,
		fast:            fast,
		reauthenticator: reauthenticator,
		logger:          logger,
		metrics:         reg,
		state:           StateInit,
		routes:          map[string]contracts.RouteEntry{},
	}
}

// SetActivityLog attaches a ring buffer that every CallTool dispatch is
// recorded to. Optional; a nil router.activityLog (the default) disables
// recording entirely with no extra cost on the hot path.
func (r *Router) SetActivityLog(log *activity.Log) {
	r.mu.Lock()
	r.activityLog = log
	r.mu.Unlock()
}

// State returns the router's current connectivity state.
func (r *Router) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *Router) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Start connects both backends concurrently (all-settled: both attempts
// run to completion regardless of whether one fails first), derives the
// resulting state, and builds the route table. It returns an error only
// when neither backend ends up usable (StateDead).
func (r *Router) Start(ctx context.Context) error {
	r.setState(StateConnecting)

	var wg sync.WaitGroup
	var officialErr, fastErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		officialErr = r.connectOfficial(ctx)
	}()
	go func() {
		defer wg.Done()
		fastErr = r.connectFast(ctx)
	}()
	wg.Wait()

	r.mu.Lock()
	r.officialUp = officialErr == nil
	r.fastUp = fastErr == nil
	r.mu.Unlock()

	switch {
	case officialErr == nil && fastErr == nil:
		r.setState(StateReady)
	case officialErr != nil && fastErr == nil:
		r.logger.Warn("router: official backend unavailable, entering degraded read-only mode", zap.Error(officialErr))
		r.setState(StateDegradedReadOnly)
	case officialErr == nil && fastErr != nil:
		r.logger.Warn("router: fast backend unavailable, continuing official-only", zap.Error(fastErr))
		r.setState(StateReady)
	default:
		r.setState(StateDead)
		return fmt.Errorf("router: no backend available (official: %v, fast: %v)", officialErr, fastErr)
	}

	return r.rebuildRouteTable(ctx)
}

func (r *Router) connectOfficial(ctx context.Context) error {
	if r.official == nil {
		return fmt.Errorf("no official backend configured")
	}
	type connecter interface {
		Connect(context.Context) error
	}
	if c, ok := r.official.(connecter); ok {
		return c.Connect(ctx)
	}
	_, err := r.official.ListTools(ctx)
	return err
}

func (r *Router) connectFast(ctx context.Context) error {
	if r.fast == nil {
		return fmt.Errorf("no fast backend configured")
	}
	_, err := r.fast.ListTools(ctx)
	return err
}

// rebuildRouteTable derives the route table per the availability/name-class
// table: official-only tools route OFFICIAL (or OFFICIAL_WITH_FAST_BOOST
// for the boost-eligible names); tools present in both route
// FAST_THEN_OFFICIAL_SAME_NAME when they look read-only, else OFFICIAL;
// fast-only exposure (the router is in degraded mode) is restricted to
// read-looking tools and routes FAST_ONLY.
func (r *Router) rebuildRouteTable(ctx context.Context) error {
	r.mu.RLock()
	officialUp, fastUp := r.officialUp, r.fastUp
	r.mu.RUnlock()

	entries := map[string]contracts.RouteEntry{}

	if officialUp {
		officialTools, err := r.official.ListTools(ctx)
		if err != nil {
			return fmt.Errorf("router: list official tools: %w", err)
		}

		fastByNormalized := map[string]bool{}
		if fastUp {
			fastTools, err := r.fast.ListTools(ctx)
			if err != nil {
				return fmt.Errorf("router: list fast tools: %w", err)
			}
			for _, t := range fastTools {
				fastByNormalized[normalize(t.Name)] = true
			}
		}

		for _, t := range officialTools {
			n := normalize(t.Name)
			switch {
			case fastByNormalized[n] && isReadLooking(n) && !isWriteLooking(n):
				entries[t.Name] = contracts.RouteEntry{Mode: contracts.RouteFastThenOfficialSameName, ToolName: t.Name}
			case fastByNormalized[n]:
				entries[t.Name] = contracts.RouteEntry{Mode: contracts.RouteOfficial, ToolName: t.Name}
			case boostEligibleNames[n]:
				entries[t.Name] = contracts.RouteEntry{Mode: contracts.RouteOfficialWithFastBoost, ToolName: t.Name}
			default:
				entries[t.Name] = contracts.RouteEntry{Mode: contracts.RouteOfficial, ToolName: t.Name}
			}
		}
	} else if fastUp {
		fastTools, err := r.fast.ListTools(ctx)
		if err != nil {
			return fmt.Errorf("router: list fast tools: %w", err)
		}
		for _, t := range fastTools {
			n := normalize(t.Name)
			if isReadLooking(n) && !isWriteLooking(n) {
				entries[t.Name] = contracts.RouteEntry{Mode: contracts.RouteFastOnly, ToolName: t.Name}
			}
		}
	}

	entries[reauthToolName] = contracts.RouteEntry{Mode: contracts.RouteFastOnly, ToolName: reauthToolName}

	r.mu.Lock()
	r.routes = entries
	r.mu.Unlock()
	return nil
}

// ExposedTools returns the tool names this router currently dispatches,
// for the MCP server layer's dynamic tool registration.
func (r *Router) ExposedTools() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.routes))
	for name := range r.routes {
		out = append(out, name)
	}
	return out
}

func normalize(name string) string {
	lower := strings.ToLower(name)
	for _, p := range []string{"notion-", "notion_", "notion:"} {
		if strings.HasPrefix(lower, p) {
			return strings.TrimPrefix(lower, p)
		}
	}
	return lower
}

func isWriteLooking(normalized string) bool {
	for _, p := range writeLookingPrefixes {
		if strings.HasPrefix(normalized, p) {
			return true
		}
	}
	return false
}

func isReadLooking(normalized string) bool {
	for _, p := range readLookingPrefixes {
		if strings.HasPrefix(normalized, p) {
			return true
		}
	}
	return false
}

// CallTool dispatches name through its assigned route, or the reauth
// meta tool if name matches it.
func (r *Router) CallTool(ctx context.Context, name string, args map[string]interface{}) (*contracts.CallResult, error) {
	started := time.Now()

	if name == reauthToolName {
		result, err := r.callReauth(ctx)
		r.recordActivity(ctx, activity.TypeReauth, name, "", started, result, err)
		return result, err
	}

	r.mu.RLock()
	entry, ok := r.routes[name]
	r.mu.RUnlock()
	if !ok {
		result := contracts.ErrorResult(fmt.Sprintf("unknown tool: %s", name))
		r.recordActivity(ctx, activity.TypePolicyDecision, name, "", started, result, nil)
		return result, nil
	}

	r.metrics.RouteDispatch.WithLabelValues(entry.Mode.String()).Inc()

	var result *contracts.CallResult
	var err error
	switch entry.Mode {
	case contracts.RouteOfficial:
		result, err = r.callOfficial(ctx, entry.ToolName, args)
	case contracts.RouteFastOnly:
		result, err = r.callFast(ctx, entry.ToolName, args)
	case contracts.RouteOfficialWithFastBoost:
		result, err = r.callWithFastBoost(ctx, entry.ToolName, args)
	case contracts.RouteFastThenOfficialSameName:
		result, err = r.callFastThenOfficial(ctx, entry.ToolName, args)
	default:
		result = contracts.ErrorResult(fmt.Sprintf("router: tool %s has no dispatchable route", name))
	}

	r.recordActivity(ctx, activity.TypeToolCall, name, entry.Mode.String(), started, result, err)
	return result, err
}

// recordActivity is a no-op when no activity log is attached (the common
// case for unit tests and for processes that never set one).
func (r *Router) recordActivity(ctx context.Context, typ activity.Type, toolName, routeMode string, started time.Time, result *contracts.CallResult, callErr error) {
	r.mu.RLock()
	log := r.activityLog
	r.mu.RUnlock()
	if log == nil {
		return
	}

	rec := activity.Record{
		Type:          typ,
		ToolName:      toolName,
		RouteMode:     routeMode,
		CorrelationID: reqcontext.GetCorrelationID(ctx),
		DurationMs:    time.Since(started).Milliseconds(),
		Status:        "success",
	}
	switch {
	case callErr != nil:
		rec.Status = "error"
		rec.ErrorMessage = callErr.Error()
	case result != nil && result.IsError:
		rec.Status = "error"
		rec.ErrorMessage = result.FirstText()
	case result != nil:
		rec.Response = result.FirstText()
	}
	if typ == activity.TypePolicyDecision {
		rec.Status = "blocked"
	}
	log.RecordAsync(rec)
}

func (r *Router) callOfficial(ctx context.Context, name string, args map[string]interface{}) (*contracts.CallResult, error) {
	if r.official == nil {
		return contracts.ErrorResult("official backend is not available"), nil
	}
	result, err := r.official.CallTool(ctx, name, args)
	if err != nil {
		msg := err.Error()
		if isAuthErr(msg) {
			msg += "; run the reauth tool to refresh credentials"
		}
		return contracts.ErrorResult(msg), nil
	}
	if result.IsError && isAuthErr(result.FirstText()) {
		result.Content[0].Text += "; run the reauth tool to refresh credentials"
	}
	return result, nil
}

func (r *Router) callFast(ctx context.Context, name string, args map[string]interface{}) (*contracts.CallResult, error) {
	if r.fast == nil {
		return contracts.ErrorResult("fast backend is not available"), nil
	}
	return r.fast.CallTool(ctx, name, args)
}

// callWithFastBoost attempts the fast-path equivalent of an OFFICIAL tool
// call first; a non-error, non-empty result short-circuits the official
// round trip entirely.
func (r *Router) callWithFastBoost(ctx context.Context, officialName string, args map[string]interface{}) (*contracts.CallResult, error) {
	if r.fast != nil {
		if normalize(officialName) == "fetch" {
			if result, ok := r.callFetchBoost(ctx, args); ok {
				return result, nil
			}
		} else if boostName, boostArgs, ok := boostEquivalent(officialName, args); ok {
			result, err := r.fast.CallTool(ctx, boostName, boostArgs)
			if err == nil && !result.IsError && !isEmptyReadResult(result) {
				return result, nil
			}
		}
	}
	return r.callOfficial(ctx, officialName, args)
}

// boostEquivalent maps an official tool call onto its fast-path
// equivalent. ok=false means no eligible boost exists for this call.
// "fetch" is handled separately (callFetchBoost) since it tries several
// candidate operations rather than one fixed equivalent.
func boostEquivalent(officialName string, args map[string]interface{}) (string, map[string]interface{}, bool) {
	switch normalize(officialName) {
	case "search":
		return "post-search", args, true
	case "get-users":
		if userID, isString := args["user_id"].(string); isString && userID != "" {
			return "get-user", args, true
		}
		return "get-users", args, true
	default:
		return "", nil, false
	}
}

// extractFetchID requires args to contain only an `id` field and resolves
// it to the bare id string each candidate operation's path parameter
// needs: a `collection://`-prefixed reference resolves to its suffix,
// normalized to dashed form when the suffix is a UUID and passed through
// as-is otherwise (the suffix may be any opaque reference); without the
// prefix a UUID-ish token must be extractable and is normalized to
// dashed form.
func extractFetchID(args map[string]interface{}) (string, bool) {
	if len(args) != 1 {
		return "", false
	}
	id, ok := args["id"].(string)
	if !ok || id == "" {
		return "", false
	}
	if suffix, hasPrefix := strings.CutPrefix(id, "collection://"); hasPrefix {
		if normalized, ok := fastpath.NormalizeID(suffix); ok {
			return normalized, true
		}
		return suffix, suffix != ""
	}
	return fastpath.NormalizeID(fastpath.ExtractUUID(id))
}

// fetchBoostPreconditionHolds requires args to contain only an `id` field,
// and that id is either a `collection://`-prefixed reference or contains
// an extractable UUID.
func fetchBoostPreconditionHolds(args map[string]interface{}) bool {
	_, ok := extractFetchID(args)
	return ok
}

func (r *Router) callFetchBoost(ctx context.Context, args map[string]interface{}) (*contracts.CallResult, bool) {
	if r.fast == nil {
		return nil, false
	}
	id, ok := extractFetchID(args)
	if !ok {
		return nil, false
	}
	for _, candidate := range fetchBoostCandidates {
		candidateArgs := map[string]interface{}{fetchBoostIDKey[candidate]: id}
		result, err := r.fast.CallTool(ctx, candidate, candidateArgs)
		if err == nil && !result.IsError && !isEmptyReadResult(result) {
			return result, true
		}
	}
	return nil, false
}

func (r *Router) callFastThenOfficial(ctx context.Context, name string, args map[string]interface{}) (*contracts.CallResult, error) {
	if r.fast != nil {
		result, err := r.fast.CallTool(ctx, name, args)
		if err == nil && !result.IsError && !isEmptyReadResult(result) {
			return result, nil
		}
	}
	return r.callOfficial(ctx, name, args)
}

// isEmptyReadResult reports whether a successful call result is a parsed
// JSON object whose "results", "users", or "items" field is a present but
// zero-length array — the signal that the fast-path answered but found
// nothing, so the official path should be tried instead.
func isEmptyReadResult(result *contracts.CallResult) bool {
	if result == nil || result.IsError || len(result.Content) != 1 {
		return false
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(result.Content[0].Text), &parsed); err != nil {
		return false
	}
	for _, key := range []string{"results", "users", "items"} {
		if arr, ok := parsed[key].([]interface{}); ok && len(arr) == 0 {
			return true
		}
	}
	return false
}

func (r *Router) callReauth(ctx context.Context) (*contracts.CallResult, error) {
	if r.reauthenticator == nil {
		return contracts.ErrorResult("reauth is not supported by this backend configuration"), nil
	}
	summary, err := r.reauthenticator.Reauth(ctx)
	if err != nil {
		return contracts.ErrorResult(fmt.Sprintf("reauth failed: %v", err)), nil
	}
	payload, marshalErr := json.Marshal(summary)
	if marshalErr != nil {
		return nil, fmt.Errorf("router: marshal reauth summary: %w", marshalErr)
	}
	return contracts.TextResult(string(payload)), nil
}

func isAuthErr(msg string) bool {
	lower := strings.ToLower(msg)
	for _, needle := range []string{"401", "unauthorized", "token expired", "token invalid", "authentication"} {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}
