package monitor

import (
	"sort"

	"github.com/OpenTransitTools/tramcast/business/data/gtfs"
)

// maxChainHops is the most segments chained to bridge a missing segment
const maxChainHops = 5

// segmentGraph indexes segments by origin station code, each list ordered by sequence
type segmentGraph map[int][]gtfs.Segment

func makeSegmentGraph(segments []gtfs.Segment) segmentGraph {
	graph := make(segmentGraph)
	for _, segment := range segments {
		graph[segment.From] = append(graph[segment.From], segment)
	}
	for from := range graph {
		outgoing := graph[from]
		sort.SliceStable(outgoing, func(i, j int) bool {
			return outgoing[i].Sequence < outgoing[j].Sequence
		})
	}
	return graph
}

// chainNode is a segment reached by the search with the node it was reached from
type chainNode struct {
	segment gtfs.Segment
	parent  int
	hops    int
}

// chain finds the shortest run of connected segments leading from station from to station to, at most
// maxChainHops long. Each following segment has a sequence at least that of the one before it.
func (g segmentGraph) chain(from int, to int) ([]gtfs.Segment, bool) {
	type visitKey struct {
		from, to, sequence int
	}
	visited := make(map[visitKey]bool)
	var nodes []chainNode
	for _, segment := range g[from] {
		key := visitKey{segment.From, segment.To, segment.Sequence}
		if visited[key] {
			continue
		}
		visited[key] = true
		nodes = append(nodes, chainNode{segment: segment, parent: -1, hops: 1})
	}
	for head := 0; head < len(nodes); head++ {
		node := nodes[head]
		if node.segment.To == to {
			return chainPath(nodes, head), true
		}
		if node.hops >= maxChainHops {
			continue
		}
		for _, next := range g[node.segment.To] {
			key := visitKey{next.From, next.To, next.Sequence}
			if next.Sequence < node.segment.Sequence || visited[key] {
				continue
			}
			visited[key] = true
			nodes = append(nodes, chainNode{segment: next, parent: head, hops: node.hops + 1})
		}
	}
	return nil, false
}

// chainPath walks back from nodes[last] to a starting segment
func chainPath(nodes []chainNode, last int) []gtfs.Segment {
	path := make([]gtfs.Segment, nodes[last].hops)
	for i := last; i >= 0; i = nodes[i].parent {
		path[nodes[i].hops-1] = nodes[i].segment
	}
	return path
}
