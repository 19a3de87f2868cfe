// Package dag runs keyed steps connected by simple and loop edges.
package dag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrNoStartNode = errors.New("no start node found")
	ErrUnknownNode = errors.New("unknown node")
)

type Result struct {
	TaskID  string
	NodeKey string
	Payload json.RawMessage
	Status  string
	Error   error
}

type EdgeType int

const (
	SimpleEdge EdgeType = iota
	// LoopEdge feeds every element of the source's JSON array payload to the
	// targets, in order, and aggregates their payloads into a new array.
	LoopEdge
)

func (e EdgeType) String() string {
	switch e {
	case SimpleEdge:
		return "simple"
	case LoopEdge:
		return "loop"
	}
	return fmt.Sprintf("EdgeType(%d)", int(e))
}

type Handler func(ctx context.Context, payload json.RawMessage) Result

type Node struct {
	Label   string
	Key     string
	Handler Handler
}

type Edge struct {
	Label    string
	Source   string
	Targets  []string
	EdgeType EdgeType
}

type DAG struct {
	Nodes     map[string]*Node
	Edges     []Edge
	mu        sync.RWMutex
	startNode string
}

func New() *DAG {
	return &DAG{
		Nodes: make(map[string]*Node),
	}
}

func (d *DAG) AddNode(key, label string, handler Handler, firstNode ...bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Nodes[key] = &Node{
		Label:   label,
		Key:     key,
		Handler: handler,
	}
	if len(firstNode) > 0 && firstNode[0] {
		d.startNode = key
	}
}

// AddEdge links source to targets. Every key must already be a node.
func (d *DAG) AddEdge(label string, edgeType EdgeType, source string, targets ...string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.Nodes[source]; !ok {
		return fmt.Errorf("edge %q: %w %s", label, ErrUnknownNode, source)
	}
	for _, t := range targets {
		if _, ok := d.Nodes[t]; !ok {
			return fmt.Errorf("edge %q: %w %s", label, ErrUnknownNode, t)
		}
	}
	if edgeType != SimpleEdge && edgeType != LoopEdge {
		return fmt.Errorf("edge %q: unsupported edge type %s", label, edgeType)
	}
	d.Edges = append(d.Edges, Edge{
		Label:    label,
		Source:   source,
		EdgeType: edgeType,
		Targets:  targets,
	})
	return nil
}

// Process runs the graph from its start node. The first handler error
// stops processing and is returned in the result.
func (d *DAG) Process(ctx context.Context, payload json.RawMessage) Result {
	d.mu.RLock()
	defer d.mu.RUnlock()
	start := d.getStartNode()
	if start == nil {
		return Result{Error: ErrNoStartNode}
	}
	w := &walk{dag: d, id: NewID()}
	return w.visit(ctx, start.Key, payload)
}

func (d *DAG) getStartNode() *Node {
	if d.startNode != "" {
		return d.Nodes[d.startNode]
	}
	var start *Node
	for key, node := range d.Nodes {
		if d.isStartNode(key) && (start == nil || key < start.Key) {
			start = node
		}
	}
	return start
}

func (d *DAG) isStartNode(nodeKey string) bool {
	for _, edge := range d.Edges {
		for _, target := range edge.Targets {
			if target == nodeKey {
				return false
			}
		}
	}
	return true
}
