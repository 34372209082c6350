package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildGraph(t *testing.T, specs []NodeSpec) *Graph {
	t.Helper()
	g, err := Build(specs)
	require.NoError(t, err)
	return g
}

func TestBuild(t *testing.T) {
	t.Run("unknown dependency is rejected", func(t *testing.T) {
		_, err := Build([]NodeSpec{
			{ID: "train", DependsOn: []string{"preprocess"}},
		})
		assert.ErrorContains(t, err, `depends on unknown stage "preprocess"`)
	})

	t.Run("self dependency is rejected", func(t *testing.T) {
		_, err := Build([]NodeSpec{
			{ID: "train", DependsOn: []string{"train"}},
		})
		assert.ErrorContains(t, err, "cannot depend on itself")
	})
}

func TestTopoSort(t *testing.T) {
	t.Run("every stage follows all its dependencies", func(t *testing.T) {
		g := buildGraph(t, []NodeSpec{
			{ID: "deploy", DependsOn: []string{"evaluate"}},
			{ID: "evaluate", DependsOn: []string{"train"}},
			{ID: "train", DependsOn: []string{"preprocess", "features"}},
			{ID: "features", DependsOn: []string{"preprocess"}},
			{ID: "preprocess"},
		})

		order, err := g.TopoSort()
		require.NoError(t, err)
		require.Len(t, order, 5)

		pos := make(map[string]int, len(order))
		for i, id := range order {
			pos[id] = i
		}
		for _, id := range g.Order() {
			deps, err := g.Dependencies(id)
			require.NoError(t, err)
			for _, dep := range deps {
				assert.Less(t, pos[dep], pos[id], "%s must come after %s", id, dep)
			}
		}
	})

	t.Run("independent stages keep declaration order", func(t *testing.T) {
		g := buildGraph(t, []NodeSpec{
			{ID: "c"},
			{ID: "a"},
			{ID: "b"},
		})
		order, err := g.TopoSort()
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "a", "b"}, order)
	})

	t.Run("cycle fails before any ordering is produced", func(t *testing.T) {
		g := buildGraph(t, []NodeSpec{
			{ID: "a", DependsOn: []string{"b"}},
			{ID: "b", DependsOn: []string{"a"}},
		})
		order, err := g.TopoSort()
		assert.Nil(t, order)
		assert.ErrorContains(t, err, "circular dependency")
	})
}

func TestGroups(t *testing.T) {
	t.Run("dependencies lie in strictly earlier groups", func(t *testing.T) {
		g := buildGraph(t, []NodeSpec{
			{ID: "preprocess"},
			{ID: "features", DependsOn: []string{"preprocess"}},
			{ID: "validate", DependsOn: []string{"preprocess"}},
			{ID: "train", DependsOn: []string{"features", "validate"}},
		})
		groups, err := g.Groups()
		require.NoError(t, err)
		assert.Equal(t, [][]string{
			{"preprocess"},
			{"features", "validate"},
			{"train"},
		}, groups)
	})

	t.Run("group members keep declaration order", func(t *testing.T) {
		g := buildGraph(t, []NodeSpec{
			{ID: "z"},
			{ID: "m"},
			{ID: "a"},
		})
		groups, err := g.Groups()
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"z", "m", "a"}}, groups)
	})

	t.Run("cycle stalls grouping with an error", func(t *testing.T) {
		g := buildGraph(t, []NodeSpec{
			{ID: "a", DependsOn: []string{"b"}},
			{ID: "b", DependsOn: []string{"a"}},
		})
		groups, err := g.Groups()
		assert.Nil(t, groups)
		assert.ErrorContains(t, err, "circular dependency detected among stages: a, b")
	})
}
