package models

// Edge is one declared dependency: the requesting node asked for Name and
// got To, whatever kind To turned out to be.
type Edge struct {
	Name string
	To   *ResolutionEntry
}

// DependencyGraph owns every ResolutionEntry produced by one build and the
// edges between them. It is populated once by the builder and read-only for
// every other consumer; node identity is the entry key, so UI selection
// state stays valid across redraws.
type DependencyGraph struct {
	root  string
	nodes map[string]*ResolutionEntry
	order []string
	edges map[string][]Edge
}

func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes: make(map[string]*ResolutionEntry),
		edges: make(map[string][]Edge),
	}
}

func (g *DependencyGraph) add(e *ResolutionEntry) *ResolutionEntry {
	key := e.Key()
	if prev, ok := g.nodes[key]; ok {
		return prev
	}
	g.nodes[key] = e
	g.order = append(g.order, key)
	return e
}

// AddResolved records a successfully extracted binary under its canonical
// path, returning the existing entry if the path was already present.
func (g *DependencyGraph) AddResolved(path string, desc *ElfDescriptor) *ResolutionEntry {
	return g.add(&ResolutionEntry{Kind: EntryResolved, Path: path, Desc: desc})
}

func (g *DependencyGraph) AddUnresolved(name, requester string) *ResolutionEntry {
	return g.add(&ResolutionEntry{Kind: EntryUnresolved, Name: name, Requester: requester})
}

func (g *DependencyGraph) AddArchMismatch(name, requester, path string, expected, found ArchTriple) *ResolutionEntry {
	return g.add(&ResolutionEntry{
		Kind:      EntryArchMismatch,
		Name:      name,
		Requester: requester,
		Path:      path,
		Expected:  expected,
		Found:     found,
	})
}

func (g *DependencyGraph) AddCorrupt(name, requester, path string, err error) *ResolutionEntry {
	return g.add(&ResolutionEntry{
		Kind:      EntryCorrupt,
		Name:      name,
		Requester: requester,
		Path:      path,
		Err:       err,
	})
}

func (g *DependencyGraph) AddEdge(from, name string, to *ResolutionEntry) {
	g.edges[from] = append(g.edges[from], Edge{Name: name, To: to})
}

func (g *DependencyGraph) SetRoot(path string) {
	g.root = path
}

// Root returns the entry for the initially inspected binary.
func (g *DependencyGraph) Root() *ResolutionEntry {
	return g.nodes[g.root]
}

// Nodes returns every entry in insertion (traversal) order.
func (g *DependencyGraph) Nodes() []*ResolutionEntry {
	out := make([]*ResolutionEntry, 0, len(g.order))
	for _, key := range g.order {
		out = append(out, g.nodes[key])
	}
	return out
}

// Node looks up a resolved entry by canonical path.
func (g *DependencyGraph) Node(path string) *ResolutionEntry {
	return g.nodes[path]
}

// Edges returns the outgoing edges of the node at path, in the order the
// builder recorded them (which follows DT_NEEDED order).
func (g *DependencyGraph) Edges(path string) []Edge {
	return g.edges[path]
}

// Failures returns every non-resolved entry in traversal order.
func (g *DependencyGraph) Failures() []*ResolutionEntry {
	var out []*ResolutionEntry
	for _, key := range g.order {
		if e := g.nodes[key]; e.Kind != EntryResolved {
			out = append(out, e)
		}
	}
	return out
}

// InCycle reports whether the resolved node at path can reach itself by
// following resolved edges. Cycles are ordinary graph structure here, never
// an error; this exists so consumers can flag them.
func (g *DependencyGraph) InCycle(path string) bool {
	start := g.nodes[path]
	if start == nil || start.Kind != EntryResolved {
		return false
	}
	seen := make(map[string]bool)
	stack := g.successors(path)
	for len(stack) > 0 {
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if next == path {
			return true
		}
		if seen[next] {
			continue
		}
		seen[next] = true
		stack = append(stack, g.successors(next)...)
	}
	return false
}

func (g *DependencyGraph) successors(path string) []string {
	var out []string
	for _, e := range g.edges[path] {
		if e.To.Kind == EntryResolved {
			out = append(out, e.To.Path)
		}
	}
	return out
}
