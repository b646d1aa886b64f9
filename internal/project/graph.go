package project

import (
	"fmt"
	"path"
	"slices"
)

// Normalize returns the canonical slash-separated form of a path with "."
// and ".." elements removed: "./folder/filename" becomes "folder/filename".
func Normalize(p string) string {
	return path.Clean(slashes(p))
}

func slashes(p string) string {
	b := []byte(p)
	for i, c := range b {
		if c == '\\' {
			b[i] = '/'
		}
	}
	return string(b)
}

func (p *Project) buildEdges() {
	for _, comp := range p.Components {
		deps := make(map[string]bool)
		for _, f := range comp.Files {
			for _, inc := range f.Includes {
				h := inc.Header
				if h == nil || h.External || h.Component == comp.Name {
					continue
				}
				deps[h.Component] = true
			}
		}
		comp.Deps = comp.Deps[:0]
		for name := range deps {
			comp.Deps = append(comp.Deps, name)
		}
		slices.Sort(comp.Deps)
	}
}

// findCycles runs Tarjan's algorithm over the component graph and returns
// every strongly connected component with more than one member. Self edges
// never exist since includes within a component are not edges.
func findCycles(comps map[string]*Component) [][]string {
	var (
		index   = 0
		indexes = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		stack   []string
		cycles  [][]string
	)

	var connect func(name string)
	connect = func(name string) {
		indexes[name] = index
		lowlink[name] = index
		index++
		stack = append(stack, name)
		onStack[name] = true

		for _, dep := range comps[name].Deps {
			if _, seen := indexes[dep]; !seen {
				connect(dep)
				lowlink[name] = min(lowlink[name], lowlink[dep])
			} else if onStack[dep] {
				lowlink[name] = min(lowlink[name], indexes[dep])
			}
		}

		if lowlink[name] != indexes[name] {
			return
		}
		var scc []string
		for {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[top] = false
			scc = append(scc, top)
			if top == name {
				break
			}
		}
		if len(scc) > 1 {
			slices.Sort(scc)
			cycles = append(cycles, scc)
		}
	}

	names := make([]string, 0, len(comps))
	for name := range comps {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if _, seen := indexes[name]; !seen {
			connect(name)
		}
	}
	return cycles
}

// TopoOrder returns every component with dependencies before dependents.
// Ties are broken by name so the order is stable across runs.
func (p *Project) TopoOrder() ([]string, error) {
	dependents := make(map[string][]string) // component -> components that depend on it
	inDegree := make(map[string]int)        // component -> dependency count

	for name := range p.Components {
		inDegree[name] = 0
	}
	for name, comp := range p.Components {
		for _, dep := range comp.Deps {
			if _, ok := p.Components[dep]; !ok {
				return nil, fmt.Errorf("component `%s` depends on unknown component `%s`", name, dep)
			}
			dependents[dep] = append(dependents[dep], name)
			inDegree[name]++
		}
	}

	// components with no pending dependencies, kept sorted
	var queue []string
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}
	slices.Sort(queue)

	var sorted []string
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		sorted = append(sorted, name)

		var next []string
		for _, dependent := range dependents[name] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				next = append(next, dependent)
			}
		}
		queue = append(queue, next...)
		slices.Sort(queue)
	}

	if len(sorted) != len(p.Components) {
		return nil, fmt.Errorf("dependency cycle among components")
	}
	return sorted, nil
}

// Closure returns the transitive dependencies of a component (excluding the
// component itself) in topological order, dependencies first.
func (p *Project) Closure(name string) ([]string, error) {
	if _, ok := p.Components[name]; !ok {
		return nil, fmt.Errorf("no component named `%s`", name)
	}
	reach := make(map[string]bool)
	var visit func(string)
	visit = func(n string) {
		for _, dep := range p.Components[n].Deps {
			if !reach[dep] {
				reach[dep] = true
				visit(dep)
			}
		}
	}
	visit(name)

	order, err := p.TopoOrder()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, n := range order {
		if reach[n] {
			out = append(out, n)
		}
	}
	return out, nil
}
