package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExport_NodesInDeclarationOrder(t *testing.T) {
	retry := &RetryPolicy{MaxAttempts: 1, Interval: 2 * time.Second, BackoffRate: 2}
	a := taskStep("Register Tag", "producer.registerTag")
	a.Task.Retry = retry
	a = catching(writing(a, "tag"), Start(jobFailed()))

	def, err := Compile("producer", chainOf(a, jobSucceeded()), WithVersion("v2"))
	require.NoError(t, err)

	doc := Export(def)
	require.Equal(t, "producer", doc.Name)
	require.Equal(t, "v2", doc.Version)
	require.Equal(t, def.Fingerprint, doc.Fingerprint)
	require.Len(t, doc.Nodes, 3)

	tag := doc.Nodes[0]
	require.Equal(t, "Register Tag", tag.Name)
	require.Equal(t, KindTask, tag.Kind)
	require.Equal(t, "producer.registerTag", tag.Target)
	require.Equal(t, "Job Succeeded", tag.Next)
	require.Equal(t, "Job Failed", tag.Catch)
	require.Equal(t, &RetryDocument{MaxAttempts: 1, Interval: "2s", BackoffRate: 2}, tag.Retry)
	require.False(t, tag.End)

	require.Equal(t, "JobFailed", doc.Nodes[1].Error)
	require.False(t, doc.Nodes[2].End, "terminal nodes do not carry End")
}

func TestExport_TaskAtEndOfScopeIsMarkedEnd(t *testing.T) {
	def, err := Compile("j", chainOf(taskStep("A", "a"), taskStep("B", "b")))
	require.NoError(t, err)

	doc := Export(def)
	require.False(t, doc.Nodes[0].End)
	require.True(t, doc.Nodes[1].End)
}

func TestComputeFingerprint_StableAndStructural(t *testing.T) {
	build := func(target string) *Definition {
		def, err := Compile("j", chainOf(taskStep("A", target), jobSucceeded()))
		require.NoError(t, err)
		return def
	}

	require.Equal(t, build("a").Fingerprint, build("a").Fingerprint)
	require.NotEqual(t, build("a").Fingerprint, build("b").Fingerprint)
}

func TestExport_JSONShape(t *testing.T) {
	def, err := Compile("j", Start(taskStep("A", "a")))
	require.NoError(t, err)

	b, err := json.Marshal(Export(def))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	require.Equal(t, "A", raw["startAt"])
	nodes := raw["nodes"].([]any)
	require.Equal(t, "Task", nodes[0].(map[string]any)["kind"])
	require.Equal(t, true, nodes[0].(map[string]any)["end"])
}
