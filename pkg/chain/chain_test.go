package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/gometer/internal/testutils"
	"github.com/jzx17/gometer/pkg/types"
)

func node(name string) *Node {
	return MustNode(testutils.NewRecordingStage(name, nil))
}

func names(n *Node) []string {
	var out []string
	for _, cur := range n.Nodes() {
		out = append(out, cur.Name())
	}
	return out
}

// acyclic walks from n and fails if any node is visited twice
func acyclic(t *testing.T, n *Node) {
	t.Helper()
	seen := map[*Node]bool{}
	for cur := n; cur != nil; cur = cur.Next() {
		require.False(t, seen[cur], "cycle through %s", cur.Name())
		seen[cur] = true
	}
}

func TestNewNode(t *testing.T) {
	_, err := NewNode(nil)
	assert.ErrorIs(t, err, types.ErrNilStage)

	assert.Panics(t, func() { MustNode(nil) })

	n, err := NewNode(testutils.NewCountingStage("count"))
	require.NoError(t, err)
	assert.Equal(t, "count", n.Name())
	assert.Nil(t, n.Next())
	assert.Equal(t, 1, n.Len())
}

func TestAddStage(t *testing.T) {
	t.Run("append to single node", func(t *testing.T) {
		a, b := node("a"), node("b")

		got := a.AddStage(b)

		assert.Same(t, b, got)
		assert.Equal(t, []string{"a", "b"}, names(a))
	})

	t.Run("insert after root splices remainder", func(t *testing.T) {
		a, b, c := node("a"), node("b"), node("c")

		a.AddStage(b)
		a.AddStage(c)

		assert.Equal(t, []string{"a", "c", "b"}, names(a))
	})

	t.Run("fluent chaining", func(t *testing.T) {
		a, b, c := node("a"), node("b"), node("c")

		a.AddStage(b).AddStage(c)

		assert.Equal(t, []string{"a", "b", "c"}, names(a))
	})

	t.Run("appended node keeps its suffix", func(t *testing.T) {
		a, b, c := node("a"), node("b"), node("c")
		b.AddStage(c)

		a.AddStage(b)

		assert.Equal(t, []string{"a", "b", "c"}, names(a))
	})

	t.Run("self link is a no-op", func(t *testing.T) {
		a := node("a")

		got := a.AddStage(a)

		assert.Same(t, a, got)
		assert.Nil(t, a.Next())
	})

	t.Run("node already in chain is a no-op", func(t *testing.T) {
		a, b, c := node("a"), node("b"), node("c")
		a.AddStage(b).AddStage(c)

		a.AddStage(c)
		a.AddStage(b)

		assert.Equal(t, []string{"a", "b", "c"}, names(a))
	})

	t.Run("two node cycle is refused", func(t *testing.T) {
		a, b := node("a"), node("b")

		a.AddStage(b)
		b.AddStage(a)

		acyclic(t, a)
		acyclic(t, b)
		assert.Equal(t, []string{"a", "b"}, names(a))
	})

	t.Run("longer cycle is refused", func(t *testing.T) {
		a, b, c, d := node("a"), node("b"), node("c"), node("d")
		a.AddStage(b).AddStage(c).AddStage(d)

		d.AddStage(a)
		c.AddStage(a)
		d.AddStage(b)

		acyclic(t, a)
		assert.Equal(t, []string{"a", "b", "c", "d"}, names(a))
	})

	t.Run("nil is ignored", func(t *testing.T) {
		a := node("a")

		assert.Nil(t, a.AddStage(nil))
		assert.Equal(t, 1, a.Len())
	})

	t.Run("arbitrary sequences stay acyclic", func(t *testing.T) {
		nodes := []*Node{node("0"), node("1"), node("2"), node("3"), node("4")}
		for i := range nodes {
			for j := range nodes {
				nodes[i].AddStage(nodes[(i*3+j)%len(nodes)])
				for _, n := range nodes {
					acyclic(t, n)
				}
			}
		}
	})
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("link order", func(t *testing.T) {
		log := &testutils.Log{}
		a := MustNode(testutils.NewRecordingStage("a", log))
		a.AddStage(MustNode(testutils.NewRecordingStage("b", log))).
			AddStage(MustNode(testutils.NewRecordingStage("c", log)))

		a.Dispatch(ctx, testutils.Finished("X", 1), nil)

		assert.Equal(t, []string{"process:a", "process:b", "process:c"}, log.Entries())
	})

	t.Run("continue after error", func(t *testing.T) {
		failing := &testutils.FailingStage{}
		tail := testutils.NewCountingStage("tail")
		head := MustNode(failing)
		head.AddStage(MustNode(tail))

		var reported []*types.StageError
		head.Dispatch(ctx, testutils.Finished("X", 1), func(err *types.StageError) error {
			reported = append(reported, err)
			return nil
		})

		require.Len(t, reported, 1)
		assert.Equal(t, "failing", reported[0].Stage)
		assert.ErrorIs(t, reported[0], testutils.ErrStage)
		assert.Equal(t, 1, tail.Count())
	})

	t.Run("stop after error", func(t *testing.T) {
		tail := testutils.NewCountingStage("tail")
		head := MustNode(&testutils.FailingStage{})
		head.AddStage(MustNode(tail))

		head.Dispatch(ctx, testutils.Finished("X", 1), func(err *types.StageError) error {
			return err
		})

		assert.Equal(t, 0, tail.Count())
	})

	t.Run("nil handler stops the chain", func(t *testing.T) {
		tail := testutils.NewCountingStage("tail")
		head := MustNode(&testutils.FailingStage{})
		head.AddStage(MustNode(tail))

		head.Dispatch(ctx, testutils.Finished("X", 1), nil)

		assert.Equal(t, 0, tail.Count())
	})

	t.Run("panic is recovered", func(t *testing.T) {
		tail := testutils.NewCountingStage("tail")
		head := MustNode(testutils.PanicStage{})
		head.AddStage(MustNode(tail))

		var reported *types.StageError
		assert.NotPanics(t, func() {
			head.Dispatch(ctx, testutils.Finished("X", 1), func(err *types.StageError) error {
				reported = err
				return nil
			})
		})

		require.NotNil(t, reported)
		assert.Contains(t, reported.Error(), "stage exploded")
		assert.Contains(t, reported.Context, "stack_trace")
		assert.Equal(t, 1, tail.Count())
	})

	t.Run("panic with error value unwraps", func(t *testing.T) {
		sentinel := errors.New("sentinel")
		head := MustNode(panicWith{err: sentinel})

		var reported *types.StageError
		head.Dispatch(ctx, testutils.Finished("X", 1), func(err *types.StageError) error {
			reported = err
			return nil
		})

		require.NotNil(t, reported)
		assert.ErrorIs(t, reported, sentinel)
	})
}

type panicWith struct{ err error }

func (p panicWith) Process(context.Context, types.Measurement) error { panic(p.err) }
func (p panicWith) Reset()                                          {}

func TestResetAll(t *testing.T) {
	log := &testutils.Log{}
	a := MustNode(testutils.NewRecordingStage("a", log))
	a.AddStage(MustNode(testutils.NewRecordingStage("b", log)))

	a.ResetAll()

	assert.Equal(t, []string{"reset:a", "reset:b"}, log.Entries())
}

func TestNodes(t *testing.T) {
	a, b := node("a"), node("b")
	a.AddStage(b)

	nodes := a.Nodes()

	require.Len(t, nodes, 2)
	assert.Same(t, a, nodes[0])
	assert.Same(t, b, nodes[1])
	assert.Equal(t, 2, a.Len())
	assert.Same(t, b.Stage(), nodes[1].Stage())
}
