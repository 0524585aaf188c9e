package testtree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(t *T) {}

func buildABC(t *testing.T) *Tree {
	b := NewBuilder("root")
	b.Test(NodeOptions{Name: "A"}, noop)
	b.Suite(NodeOptions{Name: "group"}, func(b *Builder) {
		b.Test(NodeOptions{Name: "B"}, noop)
		b.Test(NodeOptions{Name: "C"}, noop)
	})
	tree, err := b.Build()
	require.NoError(t, err)
	return tree
}

func TestBuilderAssignsPaths(t *testing.T) {
	tree := buildABC(t)
	tests := tree.Tests()
	require.Len(t, tests, 3)
	assert.Equal(t, "0", tests[0].Path())
	assert.Equal(t, "1.0", tests[1].Path())
	assert.Equal(t, "1.1", tests[2].Path())
	assert.Equal(t, "group/C", tests[2].TestID().String())
}

func TestResolvePath(t *testing.T) {
	tree := buildABC(t)

	n, ok := tree.Resolve("1.1")
	require.True(t, ok)
	assert.Equal(t, "C", n.Info().Name())

	n, ok = tree.Resolve("")
	require.True(t, ok)
	assert.Equal(t, tree.Root, n)

	for _, bad := range []string{"2", "1.2", "0.0", "x", "-1", "1..0"} {
		t.Run(bad, func(t *testing.T) {
			_, ok := tree.Resolve(bad)
			assert.False(t, ok)
		})
	}
}

func TestTestIDsAreStable(t *testing.T) {
	first := buildABC(t).Tests()
	second := buildABC(t).Tests()
	for i := range first {
		assert.Equal(t, first[i].ID(), second[i].ID())
	}
	assert.NotEqual(t, first[0].ID(), first[1].ID())
}

func TestBuilderRejectsInvalidNodes(t *testing.T) {
	t.Run("missing name", func(t *testing.T) {
		b := NewBuilder("root")
		b.Test(NodeOptions{}, noop)
		_, err := b.Build()
		assert.Error(t, err)
	})

	t.Run("min above max", func(t *testing.T) {
		b := NewBuilder("root")
		b.Suite(NodeOptions{Name: "s"}, func(b *Builder) {
			b.Test(NodeOptions{Name: "t", MinVersion: "2.1", MaxVersion: "2.0"}, noop)
		})
		_, err := b.Build()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "greater than maxVersion")
	})

	t.Run("bad version", func(t *testing.T) {
		b := NewBuilder("root")
		b.Test(NodeOptions{Name: "t", MinVersion: "1.x"}, noop)
		_, err := b.Build()
		assert.Error(t, err)
	})
}

func TestOnlyIsInheritedAtConstruction(t *testing.T) {
	b := NewBuilder("root")
	var inner, outer *Test
	b.Suite(NodeOptions{Name: "focused", Only: true}, func(b *Builder) {
		inner = b.Test(NodeOptions{Name: "inner"}, noop)
	})
	outer = b.Test(NodeOptions{Name: "outer"}, noop)
	tree, err := b.Build()
	require.NoError(t, err)

	assert.True(t, tree.OnlyMode)
	assert.True(t, inner.Only())
	assert.False(t, outer.Only())
}

func TestProjection(t *testing.T) {
	b := NewBuilder("root")
	b.Suite(NodeOptions{Name: "s", Description: "a suite", MinVersion: "1"}, func(b *Builder) {
		b.Test(NodeOptions{Name: "t", MaxVersion: "2.0"}, noop)
	})
	tree, err := b.Build()
	require.NoError(t, err)

	p := Project(tree.Root)
	require.Len(t, p.Children, 1)
	s := p.Children[0]
	assert.Equal(t, "s", s.Name)
	assert.Equal(t, "0", s.Path)
	assert.Equal(t, "a suite", s.Description)
	assert.Equal(t, "1", s.MinVersion)
	require.Len(t, s.Children, 1)
	assert.Equal(t, "2.0", s.Children[0].MaxVersion)
	assert.NotEmpty(t, s.Children[0].ID)
	assert.Equal(t, "pending", s.Children[0].Status)
	assert.Nil(t, s.Children[0].StartedAt)
}
