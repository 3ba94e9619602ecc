package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotionClient_Do_SubstitutesPathAndQueryParams(t *testing.T) {
	var gotPath, gotQuery, gotVersion, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotQuery = r.URL.RawQuery
		gotVersion = r.Header.Get("Notion-Version")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("X-Request-Id", "abc123")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"object":"page","id":"p1"}`))
	}))
	defer srv.Close()

	c := New("2022-06-28")
	resp, err := c.Do(context.Background(),
		Operation{Method: "get", Path: "/v1/pages/{page_id}", BaseURL: srv.URL},
		map[string]interface{}{"page_id": "abc def"},
		map[string]interface{}{"page_size": 10},
		nil,
		map[string]string{"Authorization": "Bearer tok"},
	)

	require.NoError(t, err)
	assert.Equal(t, "/v1/pages/abc%20def", gotPath)
	assert.Equal(t, "page_size=10", gotQuery)
	assert.Equal(t, "2022-06-28", gotVersion)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "abc123", resp.Headers["X-Request-Id"])

	obj, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "p1", obj["id"])
}

func TestNotionClient_Do_MarshalsJSONBody(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New("")
	_, err := c.Do(context.Background(),
		Operation{Method: "POST", Path: "/v1/pages", BaseURL: srv.URL},
		nil, nil,
		map[string]interface{}{"title": "hello"},
		nil,
	)

	require.NoError(t, err)
	assert.Equal(t, "hello", gotBody["title"])
}

func TestNotionClient_Do_NonTwoxxReturnsHttpClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"page not found"}`))
	}))
	defer srv.Close()

	c := New("2022-06-28")
	resp, err := c.Do(context.Background(),
		Operation{Method: "GET", Path: "/v1/pages/missing", BaseURL: srv.URL},
		nil, nil, nil, nil,
	)

	require.Nil(t, resp)
	require.Error(t, err)
	var httpErr *HttpClientError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.Status)
	assert.Equal(t, "page not found", httpErr.Message)
}

func TestNotionClient_Do_NonJSONBodyStillSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New("2022-06-28")
	resp, err := c.Do(context.Background(),
		Operation{Method: "DELETE", Path: "/v1/blocks/b1", BaseURL: srv.URL},
		nil, nil, nil, nil,
	)

	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.Status)
	assert.Nil(t, resp.Data)
}

func TestNotionClient_Do_InvalidURLErrors(t *testing.T) {
	c := New("2022-06-28")
	_, err := c.Do(context.Background(),
		Operation{Method: "GET", Path: "/v1/pages", BaseURL: "http://[::1"},
		nil, nil, nil, nil,
	)

	require.Error(t, err)
	var httpErr *HttpClientError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 0, httpErr.Status)
}

func TestSubstitutePathParams(t *testing.T) {
	assert.Equal(t, "/v1/pages", substitutePathParams("/v1/pages", nil))
	assert.Equal(t, "/v1/pages/123", substitutePathParams("/v1/pages/{page_id}", map[string]interface{}{"page_id": 123}))
	assert.Equal(t,
		"/v1/blocks/b1/children",
		substitutePathParams("/v1/blocks/{block_id}/children", map[string]interface{}{"block_id": "b1"}),
	)
}
