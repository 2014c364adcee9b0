package graph

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/elfwalk/elfwalk/loader"
	"github.com/elfwalk/elfwalk/models"
	"github.com/elfwalk/elfwalk/resolver"
)

// Build resolves the transitive dependency graph of the binary at rootPath.
// Only a failure on the root itself is an error; every failure deeper in
// the graph is captured as an entry and the walk continues. The traversal
// is an explicit work-list so deep or cyclic graphs can't blow the stack,
// and ctx is polled between nodes as a cancellation point.
func Build(ctx context.Context, rootPath string, sctx *models.SearchContext) (*models.DependencyGraph, error) {
	rootDesc, err := loader.ExtractPath(rootPath)
	if err != nil {
		return nil, errors.Wrapf(err, "root binary %s", rootPath)
	}
	rootCanon := canonicalize(rootPath)
	rootDesc.Path = rootCanon

	g := models.NewDependencyGraph()
	g.SetRoot(rootCanon)
	g.AddResolved(rootCanon, rootDesc)

	// visited holds fully processed nodes; inProgress holds everything
	// enqueued but not yet finished. Each canonical path is enqueued at
	// most once, which is what guarantees termination on cyclic graphs.
	visited := make(map[string]bool)
	inProgress := map[string]bool{rootCanon: true}
	work := []string{rootCanon}

	for len(work) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := work[0]
		work = work[1:]
		if visited[path] {
			continue
		}
		node := g.Node(path)

		for _, name := range node.Desc.Needed {
			out := resolver.Resolve(name, node.Desc, sctx)
			switch out.Kind {
			case resolver.Found:
				canon := canonicalize(out.Path)
				if inProgress[canon] || visited[canon] {
					// Already enqueued or done: record the edge only,
					// never re-enqueue. An edge back to an in-progress
					// node is how a cycle shows up in the graph.
					g.AddEdge(path, name, g.Node(canon))
					continue
				}
				out.Desc.Path = canon
				entry := g.AddResolved(canon, out.Desc)
				g.AddEdge(path, name, entry)
				inProgress[canon] = true
				work = append(work, canon)
			case resolver.NotFound:
				entry := g.AddUnresolved(name, path)
				g.AddEdge(path, name, entry)
			case resolver.FoundIncompatible:
				entry := g.AddArchMismatch(name, path, out.Path,
					node.Desc.Triple(), out.FoundArch)
				g.AddEdge(path, name, entry)
			case resolver.FoundCorrupt:
				entry := g.AddCorrupt(name, path, out.Path, out.Err)
				g.AddEdge(path, name, entry)
			}
		}

		delete(inProgress, path)
		visited[path] = true
	}
	return g, nil
}

// canonicalize produces the deduplication-safe identity for a file:
// absolute, symlink-free where possible. Falls back to a cleaned absolute
// path if the file can't be fully resolved.
func canonicalize(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}
