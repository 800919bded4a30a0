// Package graph links tasks through the tables they share.
// A task that writes table T is a parent of every task that reads T.
package graph

import (
	"fmt"
	"slices"
	"sort"

	"github.com/leapstack-labs/lineagekit/pkg/core"
)

// Graph is a task dependency graph derived from lineage metadata.
// It may contain cycles; Levels reports them.
type Graph struct {
	tasks     map[string]*core.Metadata
	children  map[string][]string // producer -> consumers
	parents   map[string][]string // consumer -> producers
	producers map[string][]string // table -> writing tasks
	readers   map[string][]string // table -> reading tasks
}

// Build creates the graph for the given metadata. Later metadata with the
// same task name replaces earlier ones.
func Build(mds []*core.Metadata) *Graph {
	g := &Graph{
		tasks:     make(map[string]*core.Metadata),
		children:  make(map[string][]string),
		parents:   make(map[string][]string),
		producers: make(map[string][]string),
		readers:   make(map[string][]string),
	}
	for _, md := range mds {
		if md != nil && md.Name != "" {
			g.tasks[md.Name] = md
		}
	}

	for _, name := range g.Tasks() {
		md := g.tasks[name]
		for _, ref := range md.Outputs {
			g.producers[ref.String()] = appendUnique(g.producers[ref.String()], name)
		}
		for _, ref := range md.Inputs {
			g.readers[ref.String()] = appendUnique(g.readers[ref.String()], name)
		}
	}

	for table, writers := range g.producers {
		for _, producer := range writers {
			for _, consumer := range g.readers[table] {
				// A task reading its own output is not a dependency.
				if producer == consumer {
					continue
				}
				g.children[producer] = appendUnique(g.children[producer], consumer)
				g.parents[consumer] = appendUnique(g.parents[consumer], producer)
			}
		}
	}
	for _, m := range []map[string][]string{g.children, g.parents} {
		for k := range m {
			sort.Strings(m[k])
		}
	}

	return g
}

// Tasks returns all task names, sorted.
func (g *Graph) Tasks() []string {
	names := make([]string, 0, len(g.tasks))
	for name := range g.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Metadata returns the metadata of a task.
func (g *Graph) Metadata(name string) (*core.Metadata, bool) {
	md, ok := g.tasks[name]
	return md, ok
}

// Parents returns the tasks that write a table the task reads.
func (g *Graph) Parents(name string) []string {
	return slices.Clone(g.parents[name])
}

// Children returns the tasks that read a table the task writes.
func (g *Graph) Children(name string) []string {
	return slices.Clone(g.children[name])
}

// Producers returns the tasks that write the table.
func (g *Graph) Producers(table string) []string {
	return slices.Clone(g.producers[table])
}

// EdgeCount returns the number of task dependencies.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, children := range g.children {
		count += len(children)
	}
	return count
}

// Sources returns the tables that are read but written by no task, sorted.
func (g *Graph) Sources() []string {
	var sources []string
	for table := range g.readers {
		if len(g.producers[table]) == 0 {
			sources = append(sources, table)
		}
	}
	sort.Strings(sources)
	return sources
}

// Upstream returns all transitive parents of a task, sorted.
func (g *Graph) Upstream(name string) []string {
	return g.walk(name, g.parents)
}

// Downstream returns all transitive children of a task, sorted.
func (g *Graph) Downstream(name string) []string {
	return g.walk(name, g.children)
}

func (g *Graph) walk(start string, next map[string][]string) []string {
	seen := map[string]bool{start: true}
	queue := []string{start}
	var out []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, n := range next[id] {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
				queue = append(queue, n)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Cycle returns one dependency cycle, first task repeated at the end, or
// nil when the graph is acyclic.
func (g *Graph) Cycle() []string {
	const (
		unvisited = iota
		active
		done
	)
	state := make(map[string]int, len(g.tasks))
	var stack []string
	var cycle []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		state[id] = active
		stack = append(stack, id)
		for _, child := range g.children[id] {
			switch state[child] {
			case unvisited:
				if dfs(child) {
					return true
				}
			case active:
				start := slices.Index(stack, child)
				cycle = append(slices.Clone(stack[start:]), child)
				return true
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return false
	}

	for _, id := range g.Tasks() {
		if state[id] == unvisited && dfs(id) {
			return cycle
		}
	}
	return nil
}

// CycleError is returned by Levels for cyclic graphs.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected: %v", e.Path)
}

// Levels groups tasks by depth. Level 0 holds tasks with no parents; a task
// at level N depends only on tasks at lower levels.
func (g *Graph) Levels() ([][]string, error) {
	if cycle := g.Cycle(); cycle != nil {
		return nil, &CycleError{Path: cycle}
	}

	assigned := make(map[string]int, len(g.tasks))
	var level func(id string) int
	level = func(id string) int {
		if l, ok := assigned[id]; ok {
			return l
		}
		l := 0
		for _, p := range g.parents[id] {
			l = max(l, level(p)+1)
		}
		assigned[id] = l
		return l
	}

	var levels [][]string
	for _, id := range g.Tasks() {
		l := level(id)
		for len(levels) <= l {
			levels = append(levels, []string{})
		}
		levels[l] = append(levels[l], id)
	}
	for i := range levels {
		sort.Strings(levels[i])
	}
	return levels, nil
}

func appendUnique(list []string, s string) []string {
	if slices.Contains(list, s) {
		return list
	}
	return append(list, s)
}
