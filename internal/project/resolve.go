package project

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/qobs-build/evoke/internal/msg"
)

// resolver holds the search locations shared by every include of a scan.
type resolver struct {
	p        *Project
	search   []string // normalized: root-relative or absolute
	incDirs  []string // <component>/include, sorted by component
	compDirs []string // component directories, sorted by component
	external map[string]*Header
}

func (p *Project) newResolver() *resolver {
	r := &resolver{p: p, external: make(map[string]*Header)}
	for _, sp := range p.opts.SearchPaths {
		if filepath.IsAbs(sp) {
			sp = p.relPath(sp)
		}
		r.search = append(r.search, Normalize(sp))
	}
	for _, name := range p.ComponentNames() {
		dir := p.Components[name].Dir
		r.incDirs = append(r.incDirs, path.Join(dir, "include"))
		r.compDirs = append(r.compDirs, dir)
	}
	return r
}

// inTree returns the header for a root-relative path if it was scanned.
func (r *resolver) inTree(rel string) *Header {
	rel = Normalize(rel)
	if h, ok := r.p.headers[rel]; ok {
		return h
	}
	f, ok := r.p.files[rel]
	if !ok {
		return nil
	}
	h := &Header{Path: rel, Component: f.Component}
	r.p.headers[rel] = h
	return h
}

// outside resolves a path that lies outside the root by checking the
// filesystem directly.
func (r *resolver) outside(rel string) *Header {
	full := path.Clean(filepath.ToSlash(r.p.Abs(rel)))
	if h, ok := r.external[full]; ok {
		return h
	}
	fi, err := os.Stat(filepath.FromSlash(full))
	if err != nil || fi.IsDir() {
		return nil
	}
	h := &Header{Path: full, External: true}
	r.external[full] = h
	return h
}

func (r *resolver) lookup(rel string) *Header {
	rel = Normalize(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") || path.IsAbs(rel) {
		return r.outside(rel)
	}
	return r.inTree(rel)
}

// resolve finds the file an include directive refers to. The including
// file's directory is only searched for the quoted form.
func (r *resolver) resolve(from *SourceFile, inc *Include) *Header {
	if path.IsAbs(inc.Name) {
		return r.outside(inc.Name)
	}
	if !inc.System {
		if h := r.lookup(path.Join(path.Dir(from.Path), inc.Name)); h != nil {
			return h
		}
	}
	for _, sp := range r.search {
		if h := r.lookup(path.Join(sp, inc.Name)); h != nil {
			return h
		}
	}
	if h := r.inTree(inc.Name); h != nil {
		return h
	}
	for _, dir := range r.incDirs {
		if h := r.inTree(path.Join(dir, inc.Name)); h != nil {
			return h
		}
	}
	for _, dir := range r.compDirs {
		if h := r.inTree(path.Join(dir, inc.Name)); h != nil {
			return h
		}
	}
	return nil
}

func (p *Project) resolveAll() {
	r := p.newResolver()
	for _, rel := range p.sortedFiles() {
		f := p.files[rel]
		for _, inc := range f.Includes {
			inc.Header = r.resolve(f, inc)
			if inc.Header != nil {
				continue
			}
			if inc.System && systemHeaders[inc.Name] {
				continue
			}
			if p.UnknownHeaders.Add(inc.Name, f.Path) {
				msg.Debug("%s:%d: unresolved include %q", f.Path, inc.Line, inc.Name)
			}
		}
	}
}
