// Package cluster partitions records into groups presumed to denote the same entity.
//
// Candidate pairs come from blocking. Pairs scoring at least the floor become
// weighted edges; each connected component is then split by average-linkage
// agglomeration cut at the threshold, so a chain of weak links does not pull
// unrelated records together. The floor does not depend on the threshold and
// the merge order does not either, so raising the threshold only refines the
// partition.
package cluster

import (
	"container/heap"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"dedupe/internal/domain"
)

// DefaultPairFloor is the minimum score for a pair to become a graph edge.
const DefaultPairFloor = 0.05

// Stats describes the last partition.
type Stats struct {
	Candidates int
	Edges      int
	Components int
	Clusters   int

	// SkippedBlocks lists the oversized block keys the blocker ignored.
	SkippedBlocks []string
}

// Partitioner groups records using a blocker and a classifier.
type Partitioner struct {
	Blocker domain.Blocker
	Floor   float64

	stats Stats
}

// NewPartitioner returns a partitioner. A non-positive floor uses DefaultPairFloor.
func NewPartitioner(blocker domain.Blocker, floor float64) *Partitioner {
	if floor <= 0 {
		floor = DefaultPairFloor
	}
	return &Partitioner{Blocker: blocker, Floor: floor}
}

// Stats returns counters of the last Partition call.
func (p *Partitioner) Stats() Stats { return p.stats }

// Partition returns the clusters of at least two members. Members are sorted
// by id, clusters by their first member, and cluster ids follow that order.
func (p *Partitioner) Partition(clf domain.Classifier, records domain.RecordSet, threshold float64) ([]domain.Cluster, error) {
	if len(records) == 0 {
		return nil, &domain.EmptyInputError{Stage: "partition"}
	}
	if !(threshold > 0 && threshold < 1) {
		return nil, &domain.InvalidThresholdError{Threshold: threshold}
	}
	p.stats = Stats{}

	ids := records.IDs()
	index := make(map[domain.ID]int64, len(ids))
	g := simple.NewWeightedUndirectedGraph(0, 0)
	for i, id := range ids {
		index[id] = int64(i)
		g.AddNode(simple.Node(i))
	}

	candidates := p.Blocker.Pairs(records)
	p.stats.Candidates = len(candidates)
	if r, ok := p.Blocker.(domain.BlockReporter); ok {
		p.stats.SkippedBlocks = r.Skipped()
	}
	for _, pair := range candidates {
		a, aok := records[pair.Left]
		b, bok := records[pair.Right]
		if !aok || !bok {
			continue
		}
		score := clamp(clf.Score(a, b))
		if score < p.Floor {
			continue
		}
		g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(index[pair.Left]), simple.Node(index[pair.Right]), score))
		p.stats.Edges++
	}

	var clusters []domain.Cluster
	for _, component := range topo.ConnectedComponents(g) {
		if len(component) < 2 {
			continue
		}
		p.stats.Components++
		for _, group := range agglomerate(g, sortedNodes(component), threshold) {
			if len(group) < 2 {
				continue
			}
			clusters = append(clusters, buildCluster(g, group, ids))
		}
	}

	sort.Slice(clusters, func(i, j int) bool {
		return domain.LessID(clusters[i].Members[0].ID, clusters[j].Members[0].ID)
	})
	for i := range clusters {
		clusters[i].ID = i
	}
	p.stats.Clusters = len(clusters)
	return clusters, nil
}

// agglomerate runs average linkage over the nodes of one component and stops
// when no two groups average at least threshold. Pairs without an edge count
// 0, so only groups joined by an edge are tracked: with threshold > 0 nothing
// else can merge. Candidate merges sit in a max-heap and go stale when either
// group changes. Ties go to the lowest index pair.
func agglomerate(g *simple.WeightedUndirectedGraph, nodes []int64, threshold float64) [][]int64 {
	n := len(nodes)
	slot := make(map[int64]int, n)
	for i, u := range nodes {
		slot[u] = i
	}
	groups := make([][]int64, n)
	version := make([]int, n)
	// links[i][j] is the summed edge weight between groups i and j
	links := make([]map[int]float64, n)
	for i, u := range nodes {
		groups[i] = []int64{u}
		links[i] = make(map[int]float64)
	}
	h := &mergeHeap{}
	for i, u := range nodes {
		it := g.From(u)
		for it.Next() {
			j, ok := slot[it.Node().ID()]
			if !ok || j == i {
				continue
			}
			w := weight(g, u, nodes[j])
			links[i][j] = w
			if i < j {
				h.items = append(h.items, merge{avg: w, i: i, j: j})
			}
		}
	}
	heap.Init(h)

	for h.Len() > 0 {
		m := heap.Pop(h).(merge)
		if groups[m.i] == nil || groups[m.j] == nil || m.vi != version[m.i] || m.vj != version[m.j] {
			continue
		}
		if m.avg < threshold {
			break
		}
		bi, bj := m.i, m.j
		groups[bi] = append(groups[bi], groups[bj]...)
		groups[bj] = nil
		version[bi]++
		for k, w := range links[bj] {
			delete(links[k], bj)
			if k == bi {
				continue
			}
			links[bi][k] += w
			links[k][bi] = links[bi][k]
		}
		links[bj] = nil
		delete(links[bi], bj)
		for k, w := range links[bi] {
			avg := w / float64(len(groups[bi])*len(groups[k]))
			a, b := bi, k
			if b < a {
				a, b = b, a
			}
			heap.Push(h, merge{avg: avg, i: a, j: b, vi: version[a], vj: version[b]})
		}
	}

	var out [][]int64
	for i := 0; i < n; i++ {
		if groups[i] != nil {
			out = append(out, groups[i])
		}
	}
	return out
}

// merge is a candidate join of groups i < j, valid while both versions hold.
type merge struct {
	avg    float64
	i, j   int
	vi, vj int
}

type mergeHeap struct{ items []merge }

func (h *mergeHeap) Len() int { return len(h.items) }

func (h *mergeHeap) Less(a, b int) bool {
	x, y := h.items[a], h.items[b]
	if x.avg != y.avg {
		return x.avg > y.avg
	}
	if x.i != y.i {
		return x.i < y.i
	}
	return x.j < y.j
}

func (h *mergeHeap) Swap(a, b int) { h.items[a], h.items[b] = h.items[b], h.items[a] }

func (h *mergeHeap) Push(x any) { h.items = append(h.items, x.(merge)) }

func (h *mergeHeap) Pop() any {
	last := h.items[len(h.items)-1]
	h.items = h.items[:len(h.items)-1]
	return last
}

// buildCluster scores each member by its mean edge weight to the other members.
func buildCluster(g *simple.WeightedUndirectedGraph, group []int64, ids []domain.ID) domain.Cluster {
	sort.Slice(group, func(i, j int) bool { return group[i] < group[j] })
	in := make(map[int64]struct{}, len(group))
	for _, u := range group {
		in[u] = struct{}{}
	}
	members := make([]domain.Member, len(group))
	for i, u := range group {
		total := 0.0
		it := g.From(u)
		for it.Next() {
			v := it.Node().ID()
			if _, ok := in[v]; ok {
				total += weight(g, u, v)
			}
		}
		members[i] = domain.Member{ID: ids[u], Confidence: clamp(total / float64(len(group)-1))}
	}
	return domain.Cluster{Members: members}
}

func weight(g *simple.WeightedUndirectedGraph, u, v int64) float64 {
	if w, ok := g.Weight(u, v); ok && u != v {
		return w
	}
	return 0
}

func sortedNodes(nodes []graph.Node) []int64 {
	out := make([]int64, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID()
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
