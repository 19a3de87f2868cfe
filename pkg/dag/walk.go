package dag

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oarkflow/xid"
)

func NewID() string {
	return xid.New().String()
}

// walk carries one Process call through the graph. Every result it
// produces is stamped with the same run ID.
type walk struct {
	dag *DAG
	id  string
}

func (w *walk) visit(ctx context.Context, nodeKey string, payload json.RawMessage) Result {
	if err := ctx.Err(); err != nil {
		return Result{TaskID: w.id, NodeKey: nodeKey, Error: err}
	}
	node, ok := w.dag.Nodes[nodeKey]
	if !ok {
		return Result{TaskID: w.id, NodeKey: nodeKey, Error: fmt.Errorf("%w %s", ErrUnknownNode, nodeKey)}
	}
	result := node.Handler(ctx, payload)
	result.NodeKey = node.Key
	result.TaskID = w.id
	if result.Error != nil {
		result.Error = fmt.Errorf("%s: %w", node.Label, result.Error)
		return result
	}
	return w.follow(ctx, result)
}

// follow runs the outgoing edges of result's node in insertion order. Each
// edge receives the result of the one before it.
func (w *walk) follow(ctx context.Context, result Result) Result {
	for _, edge := range w.dag.Edges {
		if edge.Source != result.NodeKey {
			continue
		}
		switch edge.EdgeType {
		case SimpleEdge:
			result = w.chain(ctx, edge.Targets, result)
		case LoopEdge:
			result = w.fanOut(ctx, edge, result)
		}
		if result.Error != nil {
			return result
		}
	}
	return result
}

// chain feeds result to the first target and each target's result to the
// next.
func (w *walk) chain(ctx context.Context, targets []string, result Result) Result {
	for _, target := range targets {
		result = w.visit(ctx, target, result.Payload)
		if result.Error != nil {
			return result
		}
	}
	return result
}

// fanOut visits every target once per element of the source's JSON array
// payload and collects the outputs into one array attributed to the source.
func (w *walk) fanOut(ctx context.Context, edge Edge, result Result) Result {
	var items []json.RawMessage
	if err := json.Unmarshal(result.Payload, &items); err != nil {
		return Result{TaskID: w.id, NodeKey: edge.Source, Error: fmt.Errorf("expected array for LoopEdge from %s: %w", edge.Source, err)}
	}
	collected := make([]json.RawMessage, 0, len(items)*len(edge.Targets))
	for _, item := range items {
		for _, target := range edge.Targets {
			out := w.visit(ctx, target, item)
			if out.Error != nil {
				return out
			}
			collected = append(collected, out.Payload)
		}
	}
	payload, err := json.Marshal(collected)
	if err != nil {
		return Result{TaskID: w.id, NodeKey: edge.Source, Error: err}
	}
	return Result{TaskID: w.id, NodeKey: edge.Source, Payload: payload}
}
