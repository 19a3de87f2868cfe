package dag

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upper(_ context.Context, payload json.RawMessage) Result {
	var s string
	if err := json.Unmarshal(payload, &s); err != nil {
		return Result{Error: err}
	}
	out, _ := json.Marshal(strings.ToUpper(s))
	return Result{Payload: out}
}

func split(_ context.Context, payload json.RawMessage) Result {
	var s string
	if err := json.Unmarshal(payload, &s); err != nil {
		return Result{Error: err}
	}
	out, _ := json.Marshal(strings.Fields(s))
	return Result{Payload: out}
}

func join(_ context.Context, payload json.RawMessage) Result {
	var parts []string
	if err := json.Unmarshal(payload, &parts); err != nil {
		return Result{Error: err}
	}
	out, _ := json.Marshal(strings.Join(parts, "-"))
	return Result{Payload: out, Status: "done"}
}

func TestProcessSimpleAndLoop(t *testing.T) {
	d := New()
	d.AddNode("split", "Split", split, true)
	d.AddNode("upper", "Upper", upper)
	d.AddNode("join", "Join", join)
	require.NoError(t, d.AddEdge("each word", LoopEdge, "split", "upper"))
	require.NoError(t, d.AddEdge("then join", SimpleEdge, "split", "join"))

	res := d.Process(context.Background(), json.RawMessage(`"a bc d"`))
	require.NoError(t, res.Error)
	assert.Equal(t, "join", res.NodeKey)
	assert.Equal(t, "done", res.Status)
	assert.JSONEq(t, `"A-BC-D"`, string(res.Payload))
	assert.NotEmpty(t, res.TaskID)
}

func TestProcessStopsAtFirstError(t *testing.T) {
	boom := errors.New("boom")
	var calls []string
	record := func(name string, err error) Handler {
		return func(_ context.Context, payload json.RawMessage) Result {
			calls = append(calls, name)
			return Result{Payload: payload, Error: err}
		}
	}
	d := New()
	d.AddNode("a", "A", record("a", nil), true)
	d.AddNode("b", "B", record("b", boom))
	d.AddNode("c", "C", record("c", nil))
	require.NoError(t, d.AddEdge("a-b", SimpleEdge, "a", "b", "c"))

	res := d.Process(context.Background(), json.RawMessage(`1`))
	assert.ErrorIs(t, res.Error, boom)
	assert.Contains(t, res.Error.Error(), "B")
	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestLoopEdgeNeedsArray(t *testing.T) {
	d := New()
	d.AddNode("a", "A", upper, true)
	d.AddNode("b", "B", upper)
	require.NoError(t, d.AddEdge("loop", LoopEdge, "a", "b"))
	res := d.Process(context.Background(), json.RawMessage(`"x"`))
	assert.ErrorContains(t, res.Error, "expected array")
}

func TestAddEdgeUnknownNode(t *testing.T) {
	d := New()
	d.AddNode("a", "A", upper)
	assert.ErrorIs(t, d.AddEdge("x", SimpleEdge, "a", "missing"), ErrUnknownNode)
	assert.ErrorIs(t, d.AddEdge("x", SimpleEdge, "missing", "a"), ErrUnknownNode)
	assert.Error(t, d.AddEdge("x", EdgeType(9), "a", "a"))
}

func TestStartNode(t *testing.T) {
	assert.ErrorIs(t, New().Process(context.Background(), nil).Error, ErrNoStartNode)

	// without an explicit start the node nobody points at is used
	d := New()
	d.AddNode("second", "Second", upper)
	d.AddNode("first", "First", split)
	require.NoError(t, d.AddEdge("e", LoopEdge, "first", "second"))
	res := d.Process(context.Background(), json.RawMessage(`"x y"`))
	require.NoError(t, res.Error)
	assert.JSONEq(t, `["X","Y"]`, string(res.Payload))
}

func TestProcessCancelled(t *testing.T) {
	d := New()
	d.AddNode("a", "A", upper, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Process(ctx, json.RawMessage(`"x"`)).Error, context.Canceled)
}

func TestLoopResultBelongsToSource(t *testing.T) {
	d := New()
	d.AddNode("split", "Split", split, true)
	d.AddNode("upper", "Upper", upper)
	require.NoError(t, d.AddEdge("each word", LoopEdge, "split", "upper"))

	first := d.Process(context.Background(), json.RawMessage(`"a b"`))
	require.NoError(t, first.Error)
	assert.Equal(t, "split", first.NodeKey)
	assert.JSONEq(t, `["A","B"]`, string(first.Payload))

	second := d.Process(context.Background(), json.RawMessage(`"a b"`))
	require.NoError(t, second.Error)
	assert.NotEqual(t, first.TaskID, second.TaskID)
}
