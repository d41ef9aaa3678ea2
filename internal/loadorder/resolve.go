package loadorder

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/roach88/bashed/internal/record"
)

// Node is one plugin as seen by the resolver.
type Node struct {
	Name     string
	Masters  []string
	IsMaster bool // ESM flag
}

// NodeOf returns the resolver view of a parsed plugin.
func NodeOf(p *record.Plugin) Node {
	return Node{Name: p.Name, Masters: p.MasterNames(), IsMaster: p.IsMaster()}
}

// Resolve computes the load order of nodes: a topological sort of the
// master graph where every master precedes its dependents.
//
// Ties among plugins with no dependency relation are broken by the
// preference list (e.g. a previously persisted order). Plugins absent from
// it come after those present, masters-flagged plugins first, then by
// case-insensitive name. The result is a pure function of its inputs.
//
// Fails with MissingMasterError when a declared master is not in nodes,
// CyclicMastersError when master declarations form a cycle and
// TooManyPluginsError beyond MaxPlugins.
func Resolve(nodes []Node, preference []string) (*LoadOrder, error) {
	if len(nodes) > MaxPlugins {
		return nil, &TooManyPluginsError{Count: len(nodes), Max: MaxPlugins}
	}

	byKey := make(map[string]int, len(nodes))
	for i, n := range nodes {
		k := record.FoldName(n.Name)
		if _, dup := byKey[k]; dup {
			return nil, fmt.Errorf("duplicate plugin %q", n.Name)
		}
		byKey[k] = i
	}

	// Deterministic iteration for error reporting.
	sorted := slices.Clone(nodes)
	slices.SortFunc(sorted, func(a, b Node) int {
		return cmp.Compare(record.FoldName(a.Name), record.FoldName(b.Name))
	})

	graph := make(dependencyGraph, len(nodes))
	indegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	for _, n := range sorted {
		k := record.FoldName(n.Name)
		graph[k] = []string{}
		seen := make(map[string]bool)
		for _, m := range n.Masters {
			mk := record.FoldName(m)
			if _, ok := byKey[mk]; !ok {
				return nil, &MissingMasterError{Plugin: n.Name, Master: m}
			}
			if seen[mk] {
				continue
			}
			seen[mk] = true
			graph[k] = append(graph[k], mk)
			indegree[k]++
			dependents[mk] = append(dependents[mk], k)
		}
	}

	prefIdx := make(map[string]int, len(preference))
	for i, name := range preference {
		k := record.FoldName(name)
		if _, dup := prefIdx[k]; !dup {
			prefIdx[k] = i
		}
	}
	rank := func(a, b string) int {
		pa, oka := prefIdx[a]
		pb, okb := prefIdx[b]
		switch {
		case oka && okb:
			return cmp.Compare(pa, pb)
		case oka:
			return -1
		case okb:
			return 1
		}
		ma, mb := nodes[byKey[a]].IsMaster, nodes[byKey[b]].IsMaster
		if ma != mb {
			if ma {
				return -1
			}
			return 1
		}
		return cmp.Compare(a, b)
	}

	var ready []string
	for k := range graph {
		if indegree[k] == 0 {
			ready = append(ready, k)
		}
	}

	order := make([]string, 0, len(nodes))
	for len(ready) > 0 {
		slices.SortFunc(ready, rank)
		k := ready[0]
		ready = ready[1:]
		order = append(order, nodes[byKey[k]].Name)
		for _, d := range dependents[k] {
			indegree[d]--
			if indegree[d] == 0 {
				ready = append(ready, d)
			}
		}
	}

	if len(order) < len(nodes) {
		remaining := make(dependencyGraph)
		for k, edges := range graph {
			if indegree[k] > 0 {
				remaining[k] = edges
			}
		}
		cycle := findCycle(remaining)
		names := make([]string, len(cycle))
		for i, k := range cycle {
			names[i] = nodes[byKey[k]].Name
		}
		return nil, &CyclicMastersError{Cycle: names}
	}

	return New(order, nil)
}

// CheckActive verifies that every active node's masters are active too.
// The first offender in load order fails with MissingMasterError.
func (lo *LoadOrder) CheckActive(nodes []Node) error {
	byName := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		byName[record.FoldName(n.Name)] = n
	}
	for _, name := range lo.Active() {
		n, ok := byName[record.FoldName(name)]
		if !ok {
			continue
		}
		for _, m := range n.Masters {
			if !lo.IsActive(m) {
				return &MissingMasterError{Plugin: n.Name, Master: m}
			}
		}
	}
	return nil
}
