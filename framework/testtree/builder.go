package testtree

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bulk-data-tools/bulk-export-contract-tests/framework"
)

// Builder assembles a tree of suites and tests. It tracks the suite currently being
// defined and whether any node asked to be run exclusively; nothing is kept in package
// state, so independent trees can be built at the same time.
//
// The first construction error is remembered and returned by Build; later calls after
// an error are ignored.
type Builder struct {
	root     *Suite
	current  *Suite
	onlyMode bool
	err      error
}

// Tree is a built tree of suites and tests.
type Tree struct {
	Root *Suite

	// OnlyMode is true if any node was declared with Only.
	OnlyMode bool
}

func NewBuilder(rootName string) *Builder {
	root := &Suite{NodeInfo: NodeInfo{name: rootName}}
	return &Builder{root: root, current: root}
}

// Suite adds a suite to the suite currently being defined and calls define to populate it.
func (b *Builder) Suite(opts NodeOptions, define func(b *Builder)) *Suite {
	if b.err != nil {
		return nil
	}
	parent := b.current
	info, err := newNodeInfo(opts, parent, childPath(parent, len(parent.children)))
	if err != nil {
		b.fail(err)
		return nil
	}
	s := &Suite{NodeInfo: info}
	parent.children = append(parent.children, s)
	if opts.Only {
		b.onlyMode = true
	}
	if define != nil {
		b.current = s
		define(b)
		b.current = parent
	}
	return s
}

// Test adds a test to the suite currently being defined. A nil body makes the test
// "not implemented".
func (b *Builder) Test(opts NodeOptions, body Body) *Test {
	if b.err != nil {
		return nil
	}
	parent := b.current
	info, err := newNodeInfo(opts, parent, childPath(parent, len(parent.children)))
	if err != nil {
		b.fail(err)
		return nil
	}
	t := newTest(info, suiteTestID(parent).Plus(opts.Name), body)
	parent.children = append(parent.children, t)
	if opts.Only {
		b.onlyMode = true
	}
	return t
}

func (b *Builder) Before(h Hook)     { b.current.hooks.Before = h }
func (b *Builder) After(h Hook)      { b.current.hooks.After = h }
func (b *Builder) BeforeEach(h Hook) { b.current.hooks.BeforeEach = h }
func (b *Builder) AfterEach(h Hook)  { b.current.hooks.AfterEach = h }

func (b *Builder) fail(err error) {
	if b.current != nil && b.current.path != "" {
		err = fmt.Errorf("in suite %q (%s): %w", b.current.name, b.current.path, err)
	}
	b.err = err
}

// Build returns the finished tree, or the first construction error.
func (b *Builder) Build() (*Tree, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &Tree{Root: b.root, OnlyMode: b.onlyMode}, nil
}

func suiteTestID(s *Suite) framework.TestID {
	var names []string
	for ; s != nil && s.parent != nil; s = s.parent {
		names = append([]string{s.name}, names...)
	}
	return framework.TestID{Path: names}
}

// Resolve finds the node at a dot-separated path of zero-based child indices. The empty
// path is the root. It reports false for a malformed path or an index out of range.
func (t *Tree) Resolve(path string) (Node, bool) {
	var node Node = t.Root
	if path == "" {
		return node, true
	}
	for _, part := range strings.Split(path, ".") {
		index, err := strconv.Atoi(part)
		if err != nil {
			return nil, false
		}
		s, ok := node.(*Suite)
		if !ok || index < 0 || index >= len(s.children) {
			return nil, false
		}
		node = s.children[index]
	}
	return node, true
}

// Tests returns every test in declaration order.
func (t *Tree) Tests() []*Test {
	var ret []*Test
	var walk func(s *Suite)
	walk = func(s *Suite) {
		for _, c := range s.children {
			switch n := c.(type) {
			case *Suite:
				walk(n)
			case *Test:
				ret = append(ret, n)
			}
		}
	}
	walk(t.Root)
	return ret
}
