package community

import (
	"reflect"
	"sort"
	"testing"
)

// triangles builds two unit-weight triangles joined by a single bridge
// edge: 0-1-2 and 3-4-5 with 2-3 in between.
func triangles() (int, []weightedEdge) {
	return 6, []weightedEdge{
		{0, 1, 1}, {1, 2, 1}, {0, 2, 1},
		{3, 4, 1}, {4, 5, 1}, {3, 5, 1},
		{2, 3, 1},
	}
}

func groupsOf(la levelAssignment) [][]int {
	groups := make([][]int, la.numComms)
	for node, c := range la.membership {
		groups[c] = append(groups[c], node)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })
	return groups
}

func TestClusterSeparatesTriangles(t *testing.T) {
	n, edges := triangles()
	levels := cluster(n, edges, defaultMaxSweeps, defaultMaxLevels)
	if len(levels) == 0 {
		t.Fatal("no levels produced")
	}
	got := groupsOf(levels[0])
	want := [][]int{{0, 1, 2}, {3, 4, 5}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("level 0 = %v, want %v", got, want)
	}
}

func TestClusterMergesClique(t *testing.T) {
	// K4 plus an isolated node. The clique collapses into one community,
	// the isolated node stays a singleton.
	edges := []weightedEdge{
		{0, 1, 1}, {0, 2, 1}, {0, 3, 1},
		{1, 2, 1}, {1, 3, 1}, {2, 3, 1},
	}
	levels := cluster(5, edges, defaultMaxSweeps, defaultMaxLevels)
	if len(levels) == 0 {
		t.Fatal("no levels produced")
	}
	got := groupsOf(levels[0])
	want := [][]int{{0, 1, 2, 3}, {4}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("level 0 = %v, want %v", got, want)
	}
}

func TestClusterEmptyGraph(t *testing.T) {
	if levels := cluster(0, nil, defaultMaxSweeps, defaultMaxLevels); levels != nil {
		t.Errorf("levels = %v, want nil", levels)
	}
}

func TestClusterNoEdgesYieldsSingletons(t *testing.T) {
	levels := cluster(3, nil, defaultMaxSweeps, defaultMaxLevels)
	if len(levels) != 1 {
		t.Fatalf("levels = %d, want 1", len(levels))
	}
	if levels[0].numComms != 3 {
		t.Errorf("numComms = %d, want 3 singletons", levels[0].numComms)
	}
}

func TestClusterDeterministic(t *testing.T) {
	n, edges := triangles()
	first := cluster(n, edges, defaultMaxSweeps, defaultMaxLevels)
	for i := 0; i < 5; i++ {
		again := cluster(n, edges, defaultMaxSweeps, defaultMaxLevels)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs: %v vs %v", i, again, first)
		}
	}
}

func TestClusterHierarchyPartitions(t *testing.T) {
	n, edges := triangles()
	levels := cluster(n, edges, defaultMaxSweeps, defaultMaxLevels)

	for lvl, la := range levels {
		seen := map[int]bool{}
		for node, c := range la.membership {
			if c < 0 || c >= la.numComms {
				t.Fatalf("level %d: node %d assigned out-of-range community %d", lvl, node, c)
			}
			seen[c] = true
		}
		if len(seen) != la.numComms {
			t.Errorf("level %d: %d distinct communities, numComms = %d", lvl, len(seen), la.numComms)
		}
		if lvl > 0 && len(la.membership) != levels[lvl-1].numComms {
			t.Errorf("level %d maps %d nodes, previous level has %d communities",
				lvl, len(la.membership), levels[lvl-1].numComms)
		}
	}
}
