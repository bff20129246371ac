package triage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/agent"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/asana"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/vcs"
)

type fakeTracker struct {
	asana.Client
	comments []string
	moved    []string
	tagged   []string
}

func (f *fakeTracker) CreateComment(ctx context.Context, taskGID, text string) error {
	f.comments = append(f.comments, text)
	return nil
}

func (f *fakeTracker) AddToSection(ctx context.Context, taskGID, sectionGID string) error {
	f.moved = append(f.moved, taskGID)
	return nil
}

func (f *fakeTracker) AddTag(ctx context.Context, taskGID, tagGID string) error {
	f.tagged = append(f.tagged, taskGID)
	return nil
}

type fakeProvider struct {
	text string
}

func (f fakeProvider) Name() string { return "fake" }

func (f fakeProvider) Execute(ctx context.Context, prompt string, opts ...agent.ExecuteOption) (*agent.Result, error) {
	return &agent.Result{Text: f.text, Success: true}, nil
}

type fakeClient struct {
	vcs.Client
	created []vcs.CreateIssueParams
}

func (f *fakeClient) CreateIssue(ctx context.Context, p vcs.CreateIssueParams) (int, string, error) {
	f.created = append(f.created, p)
	return len(f.created), "https://example.com/issues/" + p.Title, nil
}

func TestBatch_HighConfidenceCreatesNormalIssue(t *testing.T) {
	provider := fakeProvider{text: `[{"task_id":"t1","issue_type":"bug","priority":"high","component":"auth","summary":"token refresh race","confidence":0.9,"related_files":["auth/token.go"],"acceptance_criteria":["fix race"]}]`}
	client := &fakeClient{}
	cfg := Config{Provider: provider, Client: client, ConfidenceThresh: 0.6, NeedsInfoLabels: []string{"needs-info"}}

	results, err := Batch(context.Background(), []Task{{ID: "t1", Name: "Fix token race"}}, cfg)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].NeedsInfo)
	assert.Equal(t, 1, results[0].IssueNum)
}

func TestBatch_LowConfidenceCreatesNeedsInfoIssue(t *testing.T) {
	provider := fakeProvider{text: `[{"task_id":"t1","issue_type":"bug","priority":"low","confidence":0.25}]`}
	client := &fakeClient{}
	cfg := Config{Provider: provider, Client: client, ConfidenceThresh: 0.6, NeedsInfoLabels: []string{"needs-info"}}

	results, err := Batch(context.Background(), []Task{{ID: "t1", Name: "Vague task"}}, cfg)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].NeedsInfo)
	assert.NotEmpty(t, client.created[0].Labels)
	assert.Contains(t, client.created[0].Labels, "needs-info")
}

func TestBatch_SkipsTasksAlreadySynced(t *testing.T) {
	provider := fakeProvider{text: `[]`}
	client := &fakeClient{}
	cfg := Config{Provider: provider, Client: client, SyncedTag: "autofix-synced"}

	results, err := Batch(context.Background(), []Task{{ID: "t1", Tags: []string{"autofix-synced"}}}, cfg)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Skipped)
}

func TestBatch_NormalPathMovesAndTagsSourceTask(t *testing.T) {
	provider := fakeProvider{text: `[{"task_id":"t1","issue_type":"bug","priority":"high","component":"auth","summary":"fix it","confidence":0.9}]`}
	client := &fakeClient{}
	tracker := &fakeTracker{}
	cfg := Config{
		Provider: provider, Client: client, Tracker: tracker,
		ConfidenceThresh: 0.6, ProcessedSection: "sec-processed", SyncedTagGID: "tag-synced",
	}

	results, err := Batch(context.Background(), []Task{{ID: "t1", Name: "Fix it"}}, cfg)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Len(t, tracker.comments, 1)
	assert.Equal(t, []string{"t1"}, tracker.moved)
	assert.Equal(t, []string{"t1"}, tracker.tagged)
}

func TestBatch_NeedsInfoPathCommentsButDoesNotMoveOrTag(t *testing.T) {
	provider := fakeProvider{text: `[{"task_id":"t1","issue_type":"bug","priority":"low","confidence":0.1}]`}
	client := &fakeClient{}
	tracker := &fakeTracker{}
	cfg := Config{
		Provider: provider, Client: client, Tracker: tracker,
		ConfidenceThresh: 0.6, NeedsInfoLabels: []string{"needs-info"},
		ProcessedSection: "sec-processed", SyncedTagGID: "tag-synced",
	}

	results, err := Batch(context.Background(), []Task{{ID: "t1", Name: "Vague"}}, cfg)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Len(t, tracker.comments, 1)
	assert.Empty(t, tracker.moved)
	assert.Empty(t, tracker.tagged)
}

func TestParseBatchResponse_StripsMarkdownFences(t *testing.T) {
	items, err := parseBatchResponse("```json\n[{\"task_id\":\"t1\",\"confidence\":0.5}]\n```")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "t1", items[0].TaskID)
}
