package server

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everything-chalna/oh-my-notionmcp/internal/contracts"
	"github.com/everything-chalna/oh-my-notionmcp/internal/localbackend"
	"github.com/everything-chalna/oh-my-notionmcp/internal/router"
)

type fakeBackend struct {
	tools    []contracts.ToolDescriptor
	lastArgs map[string]interface{}
	result   *contracts.CallResult
}

func (f *fakeBackend) Connect(context.Context) error { return nil }
func (f *fakeBackend) ListTools(context.Context) ([]contracts.ToolDescriptor, error) {
	return f.tools, nil
}
func (f *fakeBackend) HasTool(name string) bool { return true }
func (f *fakeBackend) FindToolName(name string) (string, bool) { return name, true }
func (f *fakeBackend) CallTool(_ context.Context, _ string, args map[string]interface{}) (*contracts.CallResult, error) {
	f.lastArgs = args
	return f.result, nil
}
func (f *fakeBackend) Close() error { return nil }

func TestMakeHandler_UnwrapsArgumentsObjectAndForwardsToRouter(t *testing.T) {
	fast := &fakeBackend{
		tools:  []contracts.ToolDescriptor{{Name: "retrieve-a-page"}},
		result: contracts.TextResult(`{"object":"page"}`),
	}
	rt := router.New(nil, fast, nil, nil, nil)
	require.NoError(t, rt.Start(context.Background()))

	s := New(rt, localbackend.AuthContext{Authorization: "Bearer abc"}, nil)
	handler := s.makeHandler("retrieve-a-page")

	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]interface{}{
		"arguments": map[string]interface{}{"page_id": "abc"},
	}

	result, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsError)
	assert.Equal(t, "abc", fast.lastArgs["page_id"])
}

func TestMakeHandler_ErrorResultBecomesToolResultError(t *testing.T) {
	fast := &fakeBackend{
		tools:  []contracts.ToolDescriptor{{Name: "retrieve-a-page"}},
		result: contracts.ErrorResult("not found"),
	}
	rt := router.New(nil, fast, nil, nil, nil)
	require.NoError(t, rt.Start(context.Background()))

	s := New(rt, localbackend.AuthContext{}, nil)
	handler := s.makeHandler("retrieve-a-page")

	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]interface{}{"page_id": "missing"}

	result, err := handler(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
