// Package chain provides the linked sequence of stages applied to every measurement
package chain

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/jzx17/gometer/pkg/types"
)

// linkMu serializes every link mutation in the process. Links only change at
// setup time; dispatch reads next pointers without it.
var linkMu sync.Mutex

// Node holds one stage and a reference to the next node in its chain
type Node struct {
	stage types.Stage
	name  string
	next  atomic.Pointer[Node]
}

// NewNode wraps a stage so it can be linked into a chain
func NewNode(stage types.Stage) (*Node, error) {
	if stage == nil {
		return nil, types.ErrNilStage
	}
	return &Node{
		stage: stage,
		name:  types.StageName(stage),
	}, nil
}

// MustNode is NewNode for stages known to be non-nil
func MustNode(stage types.Stage) *Node {
	n, err := NewNode(stage)
	if err != nil {
		panic(err)
	}
	return n
}

// Stage returns the wrapped stage
func (n *Node) Stage() types.Stage {
	return n.stage
}

// Name returns the stage name used in logs and metrics
func (n *Node) Name() string {
	return n.name
}

// Next returns the node currently linked after n
func (n *Node) Next() *Node {
	return n.next.Load()
}

// AddStage links s into the chain right after n and returns s.
// If n has no successor, s is appended along with its own suffix. Otherwise s
// takes n's place in front of the old suffix, which is spliced behind it.
// The call is a no-op when s is n, when s is already reachable from n, or when
// linking would create a cycle.
func (n *Node) AddStage(s *Node) *Node {
	if s == nil || s == n {
		return s
	}

	linkMu.Lock()
	defer linkMu.Unlock()

	if reaches(s.next.Load(), s, n) || reaches(n.next.Load(), s, n) {
		return s
	}

	if next := n.next.Load(); next != nil {
		s.next.Store(next)
	}
	n.next.Store(s)
	return s
}

// reaches walks from start and reports whether it meets a or b.
// The walk is bounded by the set of visited nodes so it terminates even if
// handed a malformed list.
func reaches(start, a, b *Node) bool {
	seen := make(map[*Node]struct{})
	for cur := start; cur != nil; cur = cur.next.Load() {
		if cur == a || cur == b {
			return true
		}
		if _, ok := seen[cur]; ok {
			return true
		}
		seen[cur] = struct{}{}
	}
	return false
}

// ErrorFunc receives a stage failure. A non-nil return skips the remaining
// stages for the current measurement.
type ErrorFunc func(*types.StageError) error

// Dispatch runs every stage from n onward, in link order, on m.
// Stage errors and panics are reported to onErr and never escape.
func (n *Node) Dispatch(ctx context.Context, m types.Measurement, onErr ErrorFunc) {
	for cur := n; cur != nil; cur = cur.next.Load() {
		if err := cur.process(ctx, m); err != nil {
			if onErr == nil || onErr(err) != nil {
				return
			}
		}
	}
}

// process runs one stage with panic recovery support
func (n *Node) process(ctx context.Context, m types.Measurement) (stageErr *types.StageError) {
	defer func() {
		if r := recover(); r != nil {
			var buf [4096]byte
			size := runtime.Stack(buf[:], false)

			var cause error
			switch v := r.(type) {
			case error:
				cause = fmt.Errorf("panic: %w", v)
			default:
				cause = fmt.Errorf("panic: %v", v)
			}
			stageErr = types.NewStageError(n.name, m, cause).
				WithContext("stack_trace", string(buf[:size]))
		}
	}()

	if err := n.stage.Process(ctx, m); err != nil {
		return types.NewStageError(n.name, m, err)
	}
	return nil
}

// ResetAll resets every stage from n onward, once each, in link order
func (n *Node) ResetAll() {
	for cur := n; cur != nil; cur = cur.next.Load() {
		cur.stage.Reset()
	}
}

// Nodes returns the nodes from n onward in link order
func (n *Node) Nodes() []*Node {
	var nodes []*Node
	for cur := n; cur != nil; cur = cur.next.Load() {
		nodes = append(nodes, cur)
	}
	return nodes
}

// Len returns the number of nodes from n onward
func (n *Node) Len() int {
	size := 0
	for cur := n; cur != nil; cur = cur.next.Load() {
		size++
	}
	return size
}
