// Package graph maintains the directed dependency graph between a session's
// claims, rejects circular inference and propagates truth values.
//
// Cycles are recovered, not fatal: the closing edge is kept out of the valid
// edge set, the cycle is recorded as a circular_reasoning fallacy, and every
// edge on it is excluded from propagation.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/assay/internal/model"
)

type edgeKey struct {
	from, to string
	kind     model.EdgeKind
}

// Graph operates on the DependencyGraph record of one session. It is not safe
// for concurrent use; graph mutations are sequential within a session.
type Graph struct {
	session *model.AnalysisSession
	known   map[edgeKey]bool // Stored and rejected edges
}

// New attaches a graph to the session, indexing edges and fallacies it already holds
func New(session *model.AnalysisSession) *Graph {
	g := &Graph{
		session: session,
		known:   make(map[edgeKey]bool),
	}
	for _, e := range session.Graph.Edges {
		g.known[keyOf(e)] = true
	}
	for _, f := range session.Graph.Fallacies {
		if len(f.Edges) > 0 {
			g.known[keyOf(f.Edges[0])] = true
		}
	}
	return g
}

func keyOf(e model.Edge) edgeKey {
	return edgeKey{from: e.From, to: e.To, kind: e.Kind}
}

// AddEdge inserts a dependency edge. When the edge would close a cycle it is
// not added; the returned fallacy describes the cycle instead. Re-adding a
// known or rejected edge is a no-op.
func (g *Graph) AddEdge(from, to string, kind model.EdgeKind) (*model.Fallacy, error) {
	if err := g.session.CheckMutable(); err != nil {
		return nil, err
	}
	if _, err := model.ParseEdgeKind(string(kind)); err != nil {
		return nil, fmt.Errorf("add edge: %w", err)
	}
	for _, id := range []string{from, to} {
		if _, ok := g.session.Claims[id]; !ok {
			return nil, &model.InvalidClaimError{ClaimID: id, Reason: "edge references unknown claim"}
		}
	}

	edge := model.Edge{From: from, To: to, Kind: kind, Status: model.EdgeValid}
	key := keyOf(edge)
	if g.known[key] {
		return nil, nil
	}
	g.known[key] = true

	// Any cycle created by this edge must run to -> ... -> from over stored
	// edges. Circular edges still count: a pair already caught in a cycle
	// cannot be joined again by a new kind of edge.
	path, found := g.findPath(to, from)
	if !found {
		g.session.Graph.Edges = append(g.session.Graph.Edges, edge)
		return nil, nil
	}

	edge.Status = model.EdgeCircular
	fallacy := model.Fallacy{
		Kind:  model.FallacyCircularReasoning,
		Path:  append([]string{from}, path...),
		Edges: []model.Edge{edge},
	}
	for i := 0; i+1 < len(path); i++ {
		fallacy.Edges = append(fallacy.Edges, g.excludeEdges(path[i], path[i+1])...)
	}
	fallacy.Description = describeCycle(g.session, fallacy.Path)

	g.session.Graph.Fallacies = append(g.session.Graph.Fallacies, fallacy)
	return &fallacy, nil
}

// findPath returns the first path (in edge insertion order) from src to dst
// over stored edges, circular ones included. A self loop (src == dst) is the trivial path [src].
func (g *Graph) findPath(src, dst string) ([]string, bool) {
	if src == dst {
		return []string{src}, true
	}
	adj := g.adjacency()
	visited := map[string]bool{src: true}
	var path []string

	var visit func(string) bool
	visit = func(node string) bool {
		path = append(path, node)
		if node == dst {
			return true
		}
		for _, next := range adj[node] {
			if visited[next] {
				continue
			}
			visited[next] = true
			if visit(next) {
				return true
			}
		}
		path = path[:len(path)-1]
		return false
	}

	if visit(src) {
		return path, true
	}
	return nil, false
}

// adjacency maps each claim to its distinct stored successors in insertion
// order. Rejected closing edges are never stored, so they are absent here.
func (g *Graph) adjacency() map[string][]string {
	adj := make(map[string][]string)
	seen := make(map[[2]string]bool)
	for _, e := range g.session.Graph.Edges {
		pair := [2]string{e.From, e.To}
		if seen[pair] {
			continue
		}
		seen[pair] = true
		adj[e.From] = append(adj[e.From], e.To)
	}
	return adj
}

// excludeEdges marks every from->to edge circular and returns them
func (g *Graph) excludeEdges(from, to string) []model.Edge {
	var out []model.Edge
	for i := range g.session.Graph.Edges {
		e := &g.session.Graph.Edges[i]
		if e.From == from && e.To == to {
			e.Status = model.EdgeCircular
			out = append(out, *e)
		}
	}
	return out
}

func describeCycle(s *model.AnalysisSession, path []string) string {
	if len(path) == 2 && path[0] == path[1] {
		return fmt.Sprintf("Claim depends on itself: %q", claimText(s, path[0]))
	}
	texts := make([]string, len(path))
	for i, id := range path {
		texts[i] = fmt.Sprintf("%q", claimText(s, id))
	}
	return "Circular reasoning: " + strings.Join(texts, " → ")
}

func claimText(s *model.AnalysisSession, id string) string {
	if c, ok := s.Claims[id]; ok {
		return c.Text
	}
	return id
}

// Assert fixes an externally established truth value. Asserting the opposite
// of a value the claim already holds records a contradiction.
func (g *Graph) Assert(claimID string, value model.TruthValue) error {
	if err := g.session.CheckMutable(); err != nil {
		return err
	}
	c, ok := g.session.Claims[claimID]
	if !ok {
		return &model.InvalidClaimError{ClaimID: claimID, Reason: "assertion references unknown claim"}
	}
	if !value.IsKnown() {
		return nil
	}

	attempted := model.Assignment{ClaimID: claimID, Value: value, Origin: model.OriginAsserted}
	switch c.TruthValue {
	case value:
		return nil
	case model.TruthUnknown:
		c.TruthValue = value
		c.Origin = model.OriginAsserted
		c.OriginEdge = nil
		return nil
	default:
		return g.recordContradiction(c, attempted, model.Edge{From: claimID, To: claimID})
	}
}

// Propagate applies modus tollens and modus ponens over valid edges until a
// fixed point. A contradiction halts propagation within its weakly connected
// component; other components continue. All contradictions found are
// returned joined.
func (g *Graph) Propagate() error {
	if err := g.session.CheckMutable(); err != nil {
		return err
	}

	comp := g.componentIndex()
	halted := make(map[string]bool)
	var errs []error

	apply := func(target string, value model.TruthValue, origin model.TruthOrigin, edge model.Edge) bool {
		c := g.session.Claims[target]
		switch c.TruthValue {
		case value:
			return false
		case model.TruthUnknown:
			e := edge
			c.TruthValue = value
			c.Origin = origin
			c.OriginEdge = &e
			return true
		default:
			attempted := model.Assignment{ClaimID: target, Value: value, Origin: origin, Edge: &edge}
			errs = append(errs, g.recordContradiction(c, attempted, edge))
			halted[comp[target]] = true
			return false
		}
	}

	for changed := true; changed; {
		changed = false
		for _, edge := range g.session.Graph.Edges {
			if edge.Status != model.EdgeValid || halted[comp[edge.From]] {
				continue
			}
			from, to := g.session.Claims[edge.From], g.session.Claims[edge.To]
			if edge.Kind.Necessary() && to.TruthValue == model.TruthFalse {
				if apply(edge.From, model.TruthFalse, model.OriginModusTollens, edge) {
					changed = true
				}
			}
			if halted[comp[edge.From]] {
				continue
			}
			if edge.Kind.Sufficient() && from.TruthValue == model.TruthTrue {
				if apply(edge.To, model.TruthTrue, model.OriginModusPonens, edge) {
					changed = true
				}
			}
		}
	}

	return errors.Join(errs...)
}

// recordContradiction stores the contradiction once and returns it as an error.
// The claim keeps its existing value.
func (g *Graph) recordContradiction(c *model.Claim, attempted model.Assignment, edge model.Edge) error {
	existing := model.Assignment{
		ClaimID: c.ID,
		Value:   c.TruthValue,
		Origin:  c.Origin,
		Edge:    c.OriginEdge,
	}
	contradiction := model.Contradiction{
		ClaimID:   c.ID,
		Existing:  existing,
		Attempted: attempted,
		Edge:      edge,
	}

	duplicate := false
	for _, prior := range g.session.Graph.Contradictions {
		if prior.ClaimID == c.ID && prior.Edge == edge && prior.Attempted.Value == attempted.Value {
			duplicate = true
			break
		}
	}
	if !duplicate {
		g.session.Graph.Contradictions = append(g.session.Graph.Contradictions, contradiction)
	}
	return &model.ContradictionError{Contradiction: contradiction}
}

// componentIndex maps each claim to the smallest claim id in its weakly
// connected component over valid edges.
func (g *Graph) componentIndex() map[string]string {
	parent := make(map[string]string, len(g.session.Claims))
	for id := range g.session.Claims {
		parent[id] = id
	}
	var find func(string) string
	find = func(x string) string {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		if ra < rb {
			parent[rb] = ra
		} else {
			parent[ra] = rb
		}
	}
	for _, e := range g.session.Graph.Edges {
		if e.Status == model.EdgeValid {
			union(e.From, e.To)
		}
	}
	index := make(map[string]string, len(parent))
	for id := range parent {
		index[id] = find(id)
	}
	return index
}

// Components returns the weakly connected components over valid edges, each
// sorted, ordered by their smallest claim id. Isolated claims are singletons.
func (g *Graph) Components() [][]string {
	groups := make(map[string][]string)
	for id, root := range g.componentIndex() {
		groups[root] = append(groups[root], id)
	}
	roots := make([]string, 0, len(groups))
	for root := range groups {
		roots = append(roots, root)
	}
	sort.Strings(roots)

	out := make([][]string, 0, len(roots))
	for _, root := range roots {
		members := groups[root]
		sort.Strings(members)
		out = append(out, members)
	}
	return out
}

// Fallacies returns the recorded fallacies
func (g *Graph) Fallacies() []model.Fallacy {
	return g.session.Graph.Fallacies
}

// Contradictions returns the recorded contradictions
func (g *Graph) Contradictions() []model.Contradiction {
	return g.session.Graph.Contradictions
}

// ValidEdges returns edges that take part in propagation
func (g *Graph) ValidEdges() []model.Edge {
	var out []model.Edge
	for _, e := range g.session.Graph.Edges {
		if e.Status == model.EdgeValid {
			out = append(out, e)
		}
	}
	return out
}
