// Package community computes the hierarchical clustering of a campaign's
// approved subgraph with Louvain-style modularity optimization, and runs
// full and partial rebuilds against the store.
package community

import "sort"

// weightedEdge is one undirected edge between dense node indices.
type weightedEdge struct {
	from, to int
	weight   float64
}

// arena is one level's graph in dense-index form. Aggregation builds a
// fresh, smaller arena per level, so no level references another.
type arena struct {
	n         int
	neighbors [][]halfEdge
	selfLoop  []float64
	degree    []float64 // incident weight per node, self loops counted twice
	total     float64   // sum of all edge weights including self loops
}

type halfEdge struct {
	to     int
	weight float64
}

func buildArena(n int, edges []weightedEdge) *arena {
	a := &arena{
		n:         n,
		neighbors: make([][]halfEdge, n),
		selfLoop:  make([]float64, n),
		degree:    make([]float64, n),
	}
	for _, e := range edges {
		if e.from == e.to {
			a.selfLoop[e.from] += e.weight
			a.degree[e.from] += 2 * e.weight
			a.total += e.weight
			continue
		}
		a.neighbors[e.from] = append(a.neighbors[e.from], halfEdge{to: e.to, weight: e.weight})
		a.neighbors[e.to] = append(a.neighbors[e.to], halfEdge{to: e.from, weight: e.weight})
		a.degree[e.from] += e.weight
		a.degree[e.to] += e.weight
		a.total += e.weight
	}
	return a
}

// localMove runs the local-moving phase: every node starts in its own
// community and is repeatedly moved to the neighboring community with the
// greatest strictly positive modularity gain. Nodes are visited in index
// order and candidate communities in ascending index order with a
// strictly-greater comparison, so the lowest-indexed community wins ties
// and the result is deterministic. Returns the community assignment and
// whether any node moved at all.
func localMove(a *arena, maxSweeps int) ([]int, bool) {
	comm := make([]int, a.n)
	sumTot := make([]float64, a.n)
	for i := range comm {
		comm[i] = i
		sumTot[i] = a.degree[i]
	}
	if a.total == 0 {
		return comm, false
	}

	m := a.total
	anyMoved := false
	for sweep := 0; sweep < maxSweeps; sweep++ {
		moved := false
		for i := 0; i < a.n; i++ {
			old := comm[i]

			// Weight from i to each neighboring community.
			neighW := map[int]float64{old: 0}
			for _, h := range a.neighbors[i] {
				neighW[comm[h.to]] += h.weight
			}

			sumTot[old] -= a.degree[i]

			candidates := make([]int, 0, len(neighW))
			for c := range neighW {
				candidates = append(candidates, c)
			}
			sort.Ints(candidates)

			best := old
			bestGain := gain(neighW[old], sumTot[old], a.degree[i], m)
			for _, c := range candidates {
				if c == old {
					continue
				}
				if g := gain(neighW[c], sumTot[c], a.degree[i], m); g > bestGain {
					bestGain = g
					best = c
				}
			}

			comm[i] = best
			sumTot[best] += a.degree[i]
			if best != old {
				moved = true
				anyMoved = true
			}
		}
		if !moved {
			break
		}
	}
	return comm, anyMoved
}

// gain is the modularity delta of inserting a node with degree k and
// community-link weight kIn into a community with total degree sumTot.
// Constant factors shared by all candidates are dropped since only the
// ordering matters.
func gain(kIn, sumTot, k, m float64) float64 {
	return kIn/m - sumTot*k/(2*m*m)
}

// compact renumbers an assignment to dense community indices 0..k-1 in
// order of first appearance, and returns the community count.
func compact(assignment []int) int {
	next := 0
	seen := map[int]int{}
	for i, c := range assignment {
		idx, ok := seen[c]
		if !ok {
			idx = next
			seen[c] = next
			next++
		}
		assignment[i] = idx
	}
	return next
}

// aggregate collapses each community into a single node. Edges inside a
// community become a self loop carrying the intra-community weight.
func aggregate(a *arena, assignment []int, numComms int) (int, []weightedEdge) {
	type pair struct{ lo, hi int }
	acc := map[pair]float64{}
	for i := 0; i < a.n; i++ {
		if a.selfLoop[i] > 0 {
			c := assignment[i]
			acc[pair{c, c}] += a.selfLoop[i]
		}
		for _, h := range a.neighbors[i] {
			if h.to < i {
				continue // each undirected edge once
			}
			cu, cv := assignment[i], assignment[h.to]
			if cu > cv {
				cu, cv = cv, cu
			}
			acc[pair{cu, cv}] += h.weight
		}
	}

	keys := make([]pair, 0, len(acc))
	for k := range acc {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].lo != keys[j].lo {
			return keys[i].lo < keys[j].lo
		}
		return keys[i].hi < keys[j].hi
	})

	edges := make([]weightedEdge, 0, len(keys))
	for _, k := range keys {
		edges = append(edges, weightedEdge{from: k.lo, to: k.hi, weight: acc[k]})
	}
	return numComms, edges
}

// levelAssignment maps the previous level's nodes (original entities for
// level 0) to dense community indices.
type levelAssignment struct {
	membership []int
	numComms   int
}

// cluster runs the full multi-level pipeline and returns one assignment
// per hierarchy level. maxSweeps bounds each local-moving phase and
// maxLevels the aggregation depth; both are termination safety valves,
// normal inputs converge far earlier.
func cluster(n int, edges []weightedEdge, maxSweeps, maxLevels int) []levelAssignment {
	if n == 0 {
		return nil
	}

	var levels []levelAssignment
	a := buildArena(n, edges)
	for len(levels) < maxLevels {
		assignment, moved := localMove(a, maxSweeps)
		if !moved && len(levels) > 0 {
			break
		}
		numComms := compact(assignment)
		levels = append(levels, levelAssignment{membership: assignment, numComms: numComms})
		if numComms == a.n {
			break // cannot reduce further
		}
		nextN, nextEdges := aggregate(a, assignment, numComms)
		a = buildArena(nextN, nextEdges)
	}
	return levels
}
