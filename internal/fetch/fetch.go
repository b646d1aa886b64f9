// Package fetch makes external header roots listed under [fetch] available
// locally so the scanner can use them as search paths.
package fetch

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/qobs-build/evoke/internal/msg"
)

var depShortcuts = map[string]string{
	"gh:": "https://github.com/",
	"gl:": "https://gitlab.com/",
	"bb:": "https://bitbucket.org/",
	"sr:": "https://sr.ht/",
	"cb:": "https://codeberg.org/",
}

const gitPrefix = "git:"

var (
	ErrIllegalSource = errors.New("empty or illegal fetch source")
	ErrArchive       = errors.New("archive sources are not supported, use a git source")
)

// DepsDir is where fetched roots are stored, relative to the project root.
var DepsDir = filepath.Join(".evoke", "deps")

// Root is an external header root ready to be searched.
type Root struct {
	Name string
	Dir  string
}

type Fetcher struct {
	// ProjectDir is the project root. Plain path sources are relative to it.
	ProjectDir string
	// Progress receives git clone progress. Nil discards it.
	Progress io.Writer

	clone func(ref gitURL, toWhere string, progress io.Writer) error
}

func New(projectDir string) *Fetcher {
	return &Fetcher{ProjectDir: projectDir, clone: cloneGitRepo}
}

// All fetches every source, sorted by name.
func (f *Fetcher) All(sources map[string]string) ([]Root, error) {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	slices.Sort(names)

	roots := make([]Root, 0, len(names))
	for _, name := range names {
		dir, err := f.Fetch(name, sources[name])
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", name, err)
		}
		roots = append(roots, Root{Name: name, Dir: dir})
	}
	return roots, nil
}

// Fetch resolves one source to a local directory. Git sources are cloned
// once into DepsDir and reused afterwards.
func (f *Fetcher) Fetch(name, source string) (string, error) {
	if name == "" || source == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", ErrIllegalSource
	}

	remote, ok := remoteURL(source)
	if !ok {
		if isURL(source) {
			return "", ErrArchive
		}
		// otherwise it's a path
		if filepath.IsAbs(source) {
			return source, nil
		}
		return filepath.Join(f.ProjectDir, source), nil
	}

	toWhere := filepath.Join(f.ProjectDir, DepsDir, name)
	if _, err := os.Stat(filepath.Join(toWhere, ".git")); err == nil {
		msg.Debug("fetch %s: already present in %s", name, toWhere)
		return toWhere, nil
	}

	ref := parseGitURL(remote)
	msg.Info("fetching %s from %s", name, ref.cleanURL)
	progress := f.Progress
	if progress == nil {
		progress = io.Discard
	}
	clone := f.clone
	if clone == nil {
		clone = cloneGitRepo
	}
	if err := clone(ref, toWhere, progress); err != nil {
		// a partial clone would be picked up as present next time
		os.RemoveAll(toWhere)
		return "", err
	}
	return toWhere, nil
}

// remoteURL expands git: and shortcut prefixes.
func remoteURL(source string) (string, bool) {
	// check for `git:` prefix, e.g. git:https://github.com/fmtlib/fmt.git
	if strings.HasPrefix(source, gitPrefix) {
		return source[len(gitPrefix):], true
	}
	// check for shortcut prefix, e.g. gh:fmtlib/fmt
	for shortcut, url := range depShortcuts {
		if strings.HasPrefix(source, shortcut) {
			return url + source[len(shortcut):], true
		}
	}
	return "", false
}

func isURL(maybeURL string) bool {
	u, err := url.Parse(maybeURL)
	return err == nil && u.Scheme != "" && u.Host != ""
}

type gitURL struct {
	cleanURL    string
	branch      string
	commitOrTag string
}

// someone/something@master#0.1.0
// someone/something@feature-branch#12345abc
// someone/something#12345abc
func parseGitURL(rawURL string) (res gitURL) {
	baseURL, rev, found := strings.Cut(rawURL, "#")
	if found {
		res.commitOrTag = rev
	}

	// the last @ separates the branch so ssh remotes like git@host:x keep theirs
	if i := strings.LastIndex(baseURL, "@"); i > 0 && !strings.Contains(baseURL[i:], ":") {
		res.cleanURL, res.branch = baseURL[:i], baseURL[i+1:]
	} else {
		res.cleanURL = baseURL
	}

	if !strings.HasSuffix(res.cleanURL, ".git") {
		res.cleanURL += ".git"
	}

	return
}

// cloneGitRepo clones a Git remote into the specified directory
func cloneGitRepo(ref gitURL, toWhere string, progress io.Writer) error {
	cloneOptions := &git.CloneOptions{
		URL:               ref.cleanURL,
		Progress:          progress,
		RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
	}

	if ref.commitOrTag == "" {
		cloneOptions.Depth = 1 // we can do a shallow clone of the latest commit
	}

	if ref.branch != "" {
		cloneOptions.ReferenceName = plumbing.NewBranchReferenceName(ref.branch)
		cloneOptions.SingleBranch = true
	}

	repo, err := git.PlainClone(toWhere, cloneOptions)
	if err != nil {
		return err
	}

	if ref.commitOrTag == "" {
		return nil
	}

	w, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("could not get worktree: %w", err)
	}

	revision := ref.commitOrTag
	hash, err := repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return fmt.Errorf("could not resolve revision `%s`: %w", revision, err)
	}

	err = w.Checkout(&git.CheckoutOptions{
		Hash:  *hash,
		Force: true,
	})
	if err != nil {
		return fmt.Errorf("failed to checkout `%s`: %w", revision, err)
	}
	return nil
}
