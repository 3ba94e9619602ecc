// Package contracts holds the shared vocabulary both backends and the
// router speak: tool descriptors, route table entries, and call results.
// Kept dependency-light so every other package can import it without cycles.
package contracts

import "context"

// ToolDescriptor describes a single backend-exposed tool. Name is
// immutable for the lifetime of a backend connection.
type ToolDescriptor struct {
	Name         string
	Description  string
	InputSchema  map[string]interface{}
	ReadOnlyHint bool
}

// RouteMode is one of the four dispatch strategies the router can assign
// to a tool.
type RouteMode int

const (
	RouteOfficial RouteMode = iota
	RouteFastOnly
	RouteOfficialWithFastBoost
	RouteFastThenOfficialSameName
)

func (m RouteMode) String() string {
	switch m {
	case RouteOfficial:
		return "OFFICIAL"
	case RouteFastOnly:
		return "FAST_ONLY"
	case RouteOfficialWithFastBoost:
		return "OFFICIAL_WITH_FAST_BOOST"
	case RouteFastThenOfficialSameName:
		return "FAST_THEN_OFFICIAL_SAME_NAME"
	default:
		return "UNKNOWN"
	}
}

// RouteEntry is one row of the router's route table.
type RouteEntry struct {
	Mode     RouteMode
	ToolName string
}

// ContentBlock is a single MCP tool-result content item: a tool result
// is `{content: [{type:'text', text:<string>}...], is_error?}`.
type ContentBlock struct {
	Type string
	Text string
}

// CallResult is the backend-agnostic shape of a tool call's outcome.
type CallResult struct {
	Content []ContentBlock
	IsError bool
}

// TextResult builds a single-text-block success result.
func TextResult(text string) *CallResult {
	return &CallResult{Content: []ContentBlock{{Type: "text", Text: text}}}
}

// ErrorResult builds a single-text-block error result.
func ErrorResult(text string) *CallResult {
	return &CallResult{Content: []ContentBlock{{Type: "text", Text: text}}, IsError: true}
}

// FirstText returns the text of the first content block, or "" if absent.
func (r *CallResult) FirstText() string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	return r.Content[0].Text
}

// Backend is the capability set the router depends on: list tools, call
// a tool, check/resolve a tool name, close. Both the in-process local
// backend and the subprocess remote backend satisfy it; the router never
// branches on which variant it holds.
type Backend interface {
	ListTools(ctx context.Context) ([]ToolDescriptor, error)
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*CallResult, error)
	HasTool(name string) bool
	FindToolName(name string) (string, bool)
	Close() error
}
