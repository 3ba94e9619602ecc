package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everything-chalna/oh-my-notionmcp/internal/contracts"
	"github.com/everything-chalna/oh-my-notionmcp/internal/oauthcache"
)

type fakeBackend struct {
	connectErr error
	tools      []contracts.ToolDescriptor
	callFunc   func(ctx context.Context, name string, args map[string]interface{}) (*contracts.CallResult, error)
	calls      []string
}

func (f *fakeBackend) Connect(_ context.Context) error { return f.connectErr }
func (f *fakeBackend) ListTools(_ context.Context) ([]contracts.ToolDescriptor, error) {
	return f.tools, nil
}
func (f *fakeBackend) HasTool(name string) bool {
	for _, t := range f.tools {
		if t.Name == name {
			return true
		}
	}
	return false
}
func (f *fakeBackend) FindToolName(name string) (string, bool) {
	return name, f.HasTool(name)
}
func (f *fakeBackend) CallTool(ctx context.Context, name string, args map[string]interface{}) (*contracts.CallResult, error) {
	f.calls = append(f.calls, name)
	return f.callFunc(ctx, name, args)
}
func (f *fakeBackend) Close() error { return nil }

type fakeReauthenticator struct {
	summary oauthcache.Summary
	err     error
}

func (f *fakeReauthenticator) Reauth(_ context.Context) (oauthcache.Summary, error) {
	return f.summary, f.err
}

func textResultFunc(text string) func(context.Context, string, map[string]interface{}) (*contracts.CallResult, error) {
	return func(context.Context, string, map[string]interface{}) (*contracts.CallResult, error) {
		return contracts.TextResult(text), nil
	}
}

func TestStart_BothUp_StateReady(t *testing.T) {
	official := &fakeBackend{tools: []contracts.ToolDescriptor{{Name: "create-a-page"}}}
	fast := &fakeBackend{tools: []contracts.ToolDescriptor{{Name: "retrieve-a-page"}}}
	r := New(official, fast, nil, nil, nil)

	require.NoError(t, r.Start(context.Background()))
	assert.Equal(t, StateReady, r.State())
}

func TestStart_OfficialFails_DegradedReadOnly(t *testing.T) {
	official := &fakeBackend{connectErr: assertErr("boom")}
	fast := &fakeBackend{tools: []contracts.ToolDescriptor{{Name: "retrieve-a-page"}}}
	r := New(official, fast, nil, nil, nil)

	require.NoError(t, r.Start(context.Background()))
	assert.Equal(t, StateDegradedReadOnly, r.State())
}

func TestStart_BothFail_Dead(t *testing.T) {
	official := &fakeBackend{connectErr: assertErr("boom")}
	r := New(official, nil, nil, nil, nil)

	err := r.Start(context.Background())
	assert.Error(t, err)
	assert.Equal(t, StateDead, r.State())
}

func TestRouteTable_OfficialOnlyBoostEligibleGetsBoostMode(t *testing.T) {
	official := &fakeBackend{tools: []contracts.ToolDescriptor{{Name: "search"}, {Name: "create-a-page"}}}
	r := New(official, nil, nil, nil, nil)
	require.NoError(t, r.Start(context.Background()))

	names := r.ExposedTools()
	assert.Contains(t, names, "search")
	assert.Contains(t, names, "create-a-page")

	r.mu.RLock()
	searchEntry := r.routes["search"]
	writeEntry := r.routes["create-a-page"]
	r.mu.RUnlock()
	assert.Equal(t, contracts.RouteOfficialWithFastBoost, searchEntry.Mode)
	assert.Equal(t, contracts.RouteOfficial, writeEntry.Mode)
}

func TestRouteTable_BothPresentReadToolGetsFastThenOfficial(t *testing.T) {
	official := &fakeBackend{tools: []contracts.ToolDescriptor{{Name: "retrieve-a-page"}}}
	fast := &fakeBackend{tools: []contracts.ToolDescriptor{{Name: "retrieve-a-page"}}}
	r := New(official, fast, nil, nil, nil)
	require.NoError(t, r.Start(context.Background()))

	r.mu.RLock()
	entry := r.routes["retrieve-a-page"]
	r.mu.RUnlock()
	assert.Equal(t, contracts.RouteFastThenOfficialSameName, entry.Mode)
}

func TestRouteTable_BothPresentWriteToolStaysOfficial(t *testing.T) {
	official := &fakeBackend{tools: []contracts.ToolDescriptor{{Name: "create-a-page"}}}
	fast := &fakeBackend{tools: []contracts.ToolDescriptor{{Name: "create-a-page"}}}
	r := New(official, fast, nil, nil, nil)
	require.NoError(t, r.Start(context.Background()))

	r.mu.RLock()
	entry := r.routes["create-a-page"]
	r.mu.RUnlock()
	assert.Equal(t, contracts.RouteOfficial, entry.Mode)
}

func TestCallTool_FastThenOfficial_FastNonEmptyShortCircuits(t *testing.T) {
	official := &fakeBackend{
		tools:    []contracts.ToolDescriptor{{Name: "retrieve-a-page"}},
		callFunc: textResultFunc(`{"object":"page","id":"official"}`),
	}
	fast := &fakeBackend{
		tools:    []contracts.ToolDescriptor{{Name: "retrieve-a-page"}},
		callFunc: textResultFunc(`{"object":"page","id":"fast"}`),
	}
	r := New(official, fast, nil, nil, nil)
	require.NoError(t, r.Start(context.Background()))

	result, err := r.CallTool(context.Background(), "retrieve-a-page", map[string]interface{}{"page_id": "abc"})
	require.NoError(t, err)
	assert.Contains(t, result.FirstText(), "fast")
	assert.Empty(t, official.calls, "official must not be called when fast returned a non-empty result")
}

func TestCallTool_FastThenOfficial_EmptyResultFallsThrough(t *testing.T) {
	official := &fakeBackend{
		tools:    []contracts.ToolDescriptor{{Name: "retrieve-a-page"}},
		callFunc: textResultFunc(`{"object":"page","id":"official"}`),
	}
	fast := &fakeBackend{
		tools:    []contracts.ToolDescriptor{{Name: "retrieve-a-page"}},
		callFunc: textResultFunc(`{"object":"list","results":[]}`),
	}
	r := New(official, fast, nil, nil, nil)
	require.NoError(t, r.Start(context.Background()))

	result, err := r.CallTool(context.Background(), "retrieve-a-page", map[string]interface{}{"page_id": "abc"})
	require.NoError(t, err)
	assert.Contains(t, result.FirstText(), "official")
	assert.Len(t, fast.calls, 1)
	assert.Len(t, official.calls, 1)
}

func TestCallTool_DegradedMode_OnlyReadLookingFastToolsExposed(t *testing.T) {
	official := &fakeBackend{connectErr: assertErr("down")}
	fast := &fakeBackend{tools: []contracts.ToolDescriptor{
		{Name: "retrieve-a-page"}, {Name: "create-a-page"},
	}}
	r := New(official, fast, nil, nil, nil)
	require.NoError(t, r.Start(context.Background()))

	names := r.ExposedTools()
	assert.Contains(t, names, "retrieve-a-page")
	assert.NotContains(t, names, "create-a-page")
}

func TestCallTool_Reauth_RoutesToReauthenticator(t *testing.T) {
	reauth := &fakeReauthenticator{summary: oauthcache.Summary{Status: "reauth_triggered", DeletedFiles: 2}}
	r := New(nil, nil, reauth, nil, nil)

	result, err := r.CallTool(context.Background(), reauthToolName, nil)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, result.FirstText(), "reauth_triggered")
}

func TestCallTool_UnknownToolReturnsError(t *testing.T) {
	r := New(nil, nil, nil, nil, nil)
	result, err := r.CallTool(context.Background(), "does-not-exist", nil)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestIsEmptyReadResult(t *testing.T) {
	assert.True(t, isEmptyReadResult(contracts.TextResult(`{"object":"list","results":[]}`)))
	assert.False(t, isEmptyReadResult(contracts.TextResult(`{"object":"list","results":[1]}`)))
	assert.False(t, isEmptyReadResult(contracts.ErrorResult(`{"results":[]}`)))
}

func TestFetchBoostPreconditionHolds(t *testing.T) {
	assert.True(t, fetchBoostPreconditionHolds(map[string]interface{}{"id": "550e8400-e29b-41d4-a716-446655440000"}))
	assert.True(t, fetchBoostPreconditionHolds(map[string]interface{}{"id": "collection://abc"}))
	assert.False(t, fetchBoostPreconditionHolds(map[string]interface{}{"id": "not-a-uuid"}))
	assert.False(t, fetchBoostPreconditionHolds(map[string]interface{}{"id": "550e8400-e29b-41d4-a716-446655440000", "extra": 1}))
}

func TestExtractFetchID_NormalizesHex32ToDashed(t *testing.T) {
	id, ok := extractFetchID(map[string]interface{}{"id": "collection://abcdef01234567890abcdef012345678"})
	require.True(t, ok)
	assert.Equal(t, "abcdef01-2345-6789-0abc-def012345678", id)
}

func TestExtractFetchID_PlainUUIDExtractedAndNormalized(t *testing.T) {
	id, ok := extractFetchID(map[string]interface{}{"id": "550E8400-E29B-41D4-A716-446655440000"})
	require.True(t, ok)
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", id)
}

func TestCallFetchBoost_BuildsCandidateSpecificIDKey(t *testing.T) {
	var gotName string
	var gotArgs map[string]interface{}
	fast := &fakeBackend{
		tools: []contracts.ToolDescriptor{{Name: "retrieve-a-page"}},
		callFunc: func(_ context.Context, name string, args map[string]interface{}) (*contracts.CallResult, error) {
			gotName = name
			gotArgs = args
			return contracts.TextResult(`{"object":"page"}`), nil
		},
	}
	r := New(nil, fast, nil, nil, nil)

	result, ok := r.callFetchBoost(context.Background(), map[string]interface{}{"id": "collection://abcdef01234567890abcdef012345678"})
	require.True(t, ok)
	require.NotNil(t, result)
	assert.Equal(t, "retrieve-a-page", gotName)
	assert.Equal(t, map[string]interface{}{"page_id": "abcdef01-2345-6789-0abc-def012345678"}, gotArgs)
}

func TestCallFetchBoost_FallsThroughCandidatesWithMatchingIDKeys(t *testing.T) {
	var names []string
	var argsPerCall []map[string]interface{}
	fast := &fakeBackend{
		callFunc: func(_ context.Context, name string, args map[string]interface{}) (*contracts.CallResult, error) {
			names = append(names, name)
			argsPerCall = append(argsPerCall, args)
			if name == "retrieve-a-block" {
				return contracts.TextResult(`{"object":"block"}`), nil
			}
			return contracts.ErrorResult("not found"), nil
		},
	}
	r := New(nil, fast, nil, nil, nil)

	result, ok := r.callFetchBoost(context.Background(), map[string]interface{}{"id": "550e8400-e29b-41d4-a716-446655440000"})
	require.True(t, ok)
	require.NotNil(t, result)
	require.Equal(t, []string{"retrieve-a-page", "retrieve-a-database", "retrieve-a-data-source", "retrieve-a-block"}, names)
	for i, name := range names {
		assert.Equal(t, map[string]interface{}{fetchBoostIDKey[name]: "550e8400-e29b-41d4-a716-446655440000"}, argsPerCall[i])
	}
}

type assertErrType string

func (e assertErrType) Error() string { return string(e) }

func assertErr(msg string) error { return assertErrType(msg) }
