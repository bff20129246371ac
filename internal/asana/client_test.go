package asana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/errs"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*RESTClient, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	client := &RESTClient{HTTP: srv.Client(), BaseURL: srv.URL, Token: "tok"}
	return client, srv.Close
}

func TestRESTClient_GetTask_ParsesTagsAndSection(t *testing.T) {
	client, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"gid":           "123",
				"name":          "fix crash",
				"notes":         "stack trace here",
				"permalink_url": "https://app.asana.com/0/1/123",
				"tags":          []map[string]any{{"gid": "t1", "name": "synced"}},
				"memberships": []map[string]any{
					{"section": map[string]any{"gid": "s1", "name": "Backlog"}},
				},
			},
		})
	})
	defer closeFn()

	task, err := client.GetTask(context.Background(), "123")
	require.NoError(t, err)
	assert.Equal(t, "fix crash", task.Name)
	assert.Equal(t, []string{"synced"}, task.Tags)
	assert.Equal(t, "s1", task.SectionGID)
	assert.Equal(t, "Backlog", task.SectionName)
}

func TestRESTClient_ListTasks_UsesSectionEndpointWhenGiven(t *testing.T) {
	var gotPath string
	client, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{}})
	})
	defer closeFn()

	_, err := client.ListTasks(context.Background(), "proj1", "sec1")
	require.NoError(t, err)
	assert.Equal(t, "/sections/sec1/tasks", gotPath)
}

func TestRESTClient_ListTasks_UsesProjectEndpointWhenNoSection(t *testing.T) {
	var gotPath string
	client, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{}})
	})
	defer closeFn()

	_, err := client.ListTasks(context.Background(), "proj1", "")
	require.NoError(t, err)
	assert.Equal(t, "/projects/proj1/tasks", gotPath)
}

func TestRESTClient_AddTag_PostsExpectedBody(t *testing.T) {
	var body map[string]any
	client, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
	})
	defer closeFn()

	err := client.AddTag(context.Background(), "task1", "tag1")
	require.NoError(t, err)
	data := body["data"].(map[string]any)
	assert.Equal(t, "tag1", data["tag"])
}

func TestRESTClient_ListWorkspaceTags_BuildsNameToGIDMap(t *testing.T) {
	client, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"gid": "g1", "name": "synced"},
				{"gid": "g2", "name": "needs-info"},
			},
		})
	})
	defer closeFn()

	tags, err := client.ListWorkspaceTags(context.Background(), "ws1")
	require.NoError(t, err)
	assert.Equal(t, "g1", tags["synced"])
	assert.Equal(t, "g2", tags["needs-info"])
}

func TestRESTClient_ClassifiesErrorsByStatus(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   errs.Code
	}{
		{401, "", errs.CodeAuthFailed},
		{403, "rate limit exceeded", errs.CodeRateLimited},
		{404, "", errs.CodeNotFound},
		{422, "task already exists", errs.CodeAlreadyExists},
		{422, "missing required field", errs.CodeValidationFail},
		{500, "", errs.CodeAPIError},
	}
	for _, tc := range cases {
		client, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(tc.body))
		})
		_, err := client.GetTask(context.Background(), "x")
		assert.Equal(t, tc.want, errs.CodeOf(err))
		closeFn()
	}
}
