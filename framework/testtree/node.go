package testtree

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bulk-data-tools/bulk-export-contract-tests/framework"

	"github.com/google/uuid"
)

// NodeOptions describes a suite or test at the time it is added to the tree.
type NodeOptions struct {
	Name        string
	Description string
	MinVersion  string
	MaxVersion  string
	Only        bool
	Skip        bool
}

// Node is either a *Suite or a *Test.
type Node interface {
	Info() *NodeInfo
}

// NodeInfo is the static description shared by suites and tests.
type NodeInfo struct {
	name        string
	description string
	path        string
	minVersion  framework.Version
	maxVersion  framework.Version
	only        bool
	skip        bool
	parent      *Suite
}

func newNodeInfo(opts NodeOptions, parent *Suite, path string) (NodeInfo, error) {
	if opts.Name == "" {
		return NodeInfo{}, errors.New("node name is required")
	}
	info := NodeInfo{
		name:        opts.Name,
		description: opts.Description,
		path:        path,
		skip:        opts.Skip,
		parent:      parent,
	}
	// only is a snapshot of the parent's flag; later changes to the parent are not seen
	info.only = opts.Only || (parent != nil && parent.only)
	var err error
	if opts.MinVersion != "" {
		if info.minVersion, err = framework.ParseVersion(opts.MinVersion); err != nil {
			return NodeInfo{}, fmt.Errorf("%q: minVersion: %w", opts.Name, err)
		}
	}
	if opts.MaxVersion != "" {
		if info.maxVersion, err = framework.ParseVersion(opts.MaxVersion); err != nil {
			return NodeInfo{}, fmt.Errorf("%q: maxVersion: %w", opts.Name, err)
		}
	}
	if info.minVersion.IsDefined() && info.maxVersion.IsDefined() && info.minVersion.IsAbove(info.maxVersion) {
		return NodeInfo{}, fmt.Errorf("%q: minVersion %s is greater than maxVersion %s",
			opts.Name, info.minVersion, info.maxVersion)
	}
	return info, nil
}

func (n *NodeInfo) Name() string                  { return n.name }
func (n *NodeInfo) Description() string           { return n.description }
func (n *NodeInfo) Path() string                  { return n.path }
func (n *NodeInfo) MinVersion() framework.Version { return n.minVersion }
func (n *NodeInfo) MaxVersion() framework.Version { return n.maxVersion }
func (n *NodeInfo) Only() bool                    { return n.only }
func (n *NodeInfo) Skip() bool                    { return n.skip }
func (n *NodeInfo) Parent() *Suite                { return n.parent }

// AllowsVersion reports whether the version lies within the node's own bounds. An
// undefined version is always allowed.
func (n *NodeInfo) AllowsVersion(v framework.Version) bool {
	if !v.IsDefined() {
		return true
	}
	if n.minVersion.IsDefined() && v.IsBelow(n.minVersion) {
		return false
	}
	if n.maxVersion.IsDefined() && v.IsAbove(n.maxVersion) {
		return false
	}
	return true
}

func childPath(parent *Suite, index int) string {
	if parent == nil || parent.path == "" {
		return strconv.Itoa(index)
	}
	return parent.path + "." + strconv.Itoa(index)
}

// Hook is a suite-level lifecycle callback.
type Hook func(h *HookContext) error

// Hooks are the lifecycle callbacks of a Suite. BeforeEach and AfterEach apply to the
// suite's direct child tests.
type Hooks struct {
	Before     Hook
	After      Hook
	BeforeEach Hook
	AfterEach  Hook
}

// Suite is a composite node. Its children are fixed once the tree is built.
type Suite struct {
	NodeInfo
	children []Node
	hooks    Hooks
}

func (s *Suite) Info() *NodeInfo { return &s.NodeInfo }

func (s *Suite) Children() []Node {
	return append([]Node(nil), s.children...)
}

func (s *Suite) Hooks() Hooks { return s.hooks }

// SetHooks replaces the suite's hooks. It must be called before the tree is run.
func (s *Suite) SetHooks(h Hooks) { s.hooks = h }

// Body is the executable part of a Test.
type Body func(t *T)

// Test is a leaf node. Its run state is reset at the start of each run.
type Test struct {
	NodeInfo
	id        string
	testID    framework.TestID
	body      Body
	status    Status
	startedAt time.Time
	endedAt   time.Time
	errors    []error
	log       framework.CapturingLogger
}

func newTest(info NodeInfo, testID framework.TestID, body Body) *Test {
	return &Test{
		NodeInfo: info,
		testID:   testID,
		id:       uuid.NewSHA1(uuid.NameSpaceURL, []byte(info.path+"#"+testID.String())).String(),
		body:     body,
	}
}

func (t *Test) Info() *NodeInfo { return &t.NodeInfo }

// ID is stable across runs of the same tree.
func (t *Test) ID() string { return t.id }

// TestID is the chain of names from the root.
func (t *Test) TestID() framework.TestID { return t.testID }

func (t *Test) Implemented() bool { return t.body != nil }

func (t *Test) Status() Status { return t.status }

func (t *Test) StartedAt() time.Time { return t.startedAt }

func (t *Test) EndedAt() time.Time { return t.endedAt }

func (t *Test) Errors() []error { return append([]error(nil), t.errors...) }

// Log returns the test's console log.
func (t *Test) Log() framework.CapturedOutput { return t.log.Output() }

func (t *Test) logger() framework.Logger { return &t.log }

func (t *Test) reset() {
	t.status = StatusPending
	t.startedAt = time.Time{}
	t.endedAt = time.Time{}
	t.errors = nil
	t.log = framework.CapturingLogger{}
}

func (t *Test) finish(status Status, errs []error) {
	if t.status != StatusPending {
		panic(fmt.Sprintf("status of %q assigned twice", t.testID))
	}
	t.status = status
	t.errors = errs
	t.endedAt = time.Now()
}
