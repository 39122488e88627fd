package api

import (
	"fmt"
	"reflect"
	"strings"
)

// DefaultVersion is the version assigned to definitions compiled without
// WithVersion.
const DefaultVersion = "v1"

// Branch is a resolved Choice rule.
type Branch struct {
	Condition Condition
	Next      string
}

// Node is a compiled step with its outgoing edges resolved to node names.
// An empty Next means the scope ends successfully after this node.
type Node struct {
	Step Step

	Next  string
	Catch string

	Choices []Branch
	Default string

	// Failure is the failure target of a Map or Parallel node.
	Failure string
	// Iterator is the compiled inner scope of a Map node.
	Iterator *Definition
	// Branches are the compiled scopes of a Parallel node.
	Branches []*Definition
}

// Name returns the node's step name.
func (n *Node) Name() string { return n.Step.Name }

// Kind returns the node's step kind.
func (n *Node) Kind() StepKind { return n.Step.Kind }

// Edges returns every successor name of n, in a stable order.
func (n *Node) Edges() []string {
	var out []string
	add := func(s string) {
		if s != "" {
			out = append(out, s)
		}
	}
	add(n.Next)
	add(n.Catch)
	for _, b := range n.Choices {
		add(b.Next)
	}
	add(n.Default)
	add(n.Failure)
	return out
}

// Definition is a compiled scope: the top level of a journey, a Map iterator
// or a Parallel branch. Node names are unique within a scope.
type Definition struct {
	Name    string
	Version string
	StartAt string
	Nodes   map[string]*Node
	// Order lists node names in declaration order.
	Order []string
	// Inputs are the payload fields the journey input is expected to carry.
	// When set, declared task reads are checked against them.
	Inputs []string

	Fingerprint string
}

// Node returns the node with the given name.
func (d *Definition) Node(name string) (*Node, bool) {
	n, ok := d.Nodes[name]
	return n, ok
}

// CompileOption customises Compile.
type CompileOption func(*compileOptions)

type compileOptions struct {
	version string
	inputs  []string
}

// WithVersion sets the version of the compiled definition.
func WithVersion(v string) CompileOption {
	return func(o *compileOptions) { o.version = v }
}

// WithInputs declares the fields the journey input carries and enables the
// check that every declared task read is written upstream.
func WithInputs(fields ...string) CompileOption {
	return func(o *compileOptions) { o.inputs = append([]string{}, fields...) }
}

// Compile flattens chain into a Definition and validates the resulting graph.
// Any defect is returned as a *BuildError and no definition is produced.
func Compile(name string, chain Chain, opts ...CompileOption) (*Definition, error) {
	o := compileOptions{version: DefaultVersion}
	for _, opt := range opts {
		opt(&o)
	}
	if name == "" {
		return nil, &BuildError{Err: fmt.Errorf("%w: journey name", ErrEmptyStepName)}
	}

	def, err := compileScope(name, name, chain)
	if err != nil {
		return nil, err
	}
	def.Version = o.version
	def.Inputs = o.inputs

	if err := Validate(def); err != nil {
		return nil, err
	}
	def.Fingerprint = ComputeFingerprint(def)
	return def, nil
}

type pendingRef struct {
	from   string
	target string
}

type scopeCompiler struct {
	journey string
	def     *Definition
	linked  map[string]bool
	refs    []pendingRef
}

func compileScope(journey, scope string, chain Chain) (*Definition, error) {
	c := &scopeCompiler{
		journey: journey,
		def: &Definition{
			Name:  scope,
			Nodes: make(map[string]*Node),
		},
		linked: make(map[string]bool),
	}
	entry, err := c.chain(chain, "")
	if err != nil {
		return nil, err
	}
	for _, r := range c.refs {
		if _, ok := c.def.Nodes[r.target]; !ok {
			return nil, c.errf(r.from, "%w: %q", ErrUnknownSuccessor, r.target)
		}
	}
	c.def.StartAt = entry
	return c.def, nil
}

func (c *scopeCompiler) errf(step, format string, args ...any) error {
	return &BuildError{Journey: c.journey, Step: step, Err: fmt.Errorf(format, args...)}
}

// chain compiles every step of ch and links them in order. It returns the
// name of the chain's entry node. from is used for error reporting only.
func (c *scopeCompiler) chain(ch Chain, from string) (string, error) {
	if ch.IsZero() {
		return "", &BuildError{Journey: c.journey, Step: from, Err: ErrEmptyChain}
	}
	steps := ch.steps
	entries := make([]string, len(steps))
	for i, s := range steps {
		if i < len(steps)-1 && !continues(s) {
			return "", c.errf(s.Name, "%w: %q", ErrStepAfterTerminal, steps[i+1].Name)
		}
		if s.Kind == KindRef {
			if s.Ref == "" {
				return "", c.errf(from, "%w: empty reference", ErrUnknownSuccessor)
			}
			c.refs = append(c.refs, pendingRef{from: from, target: s.Ref})
			entries[i] = s.Ref
			continue
		}
		if err := c.node(s); err != nil {
			return "", err
		}
		entries[i] = s.Name
		from = s.Name
	}

	for i, s := range steps {
		if s.Kind == KindRef {
			continue
		}
		next := ""
		if i+1 < len(steps) {
			next = entries[i+1]
		}
		if err := c.link(s, next); err != nil {
			return "", err
		}
	}
	return entries[0], nil
}

// continues reports whether a step may be followed by another step in the
// same chain.
func continues(s Step) bool {
	switch s.Kind {
	case KindChoice, KindSucceed, KindFail, KindRef:
		return false
	case KindMap:
		return s.Map == nil || s.Map.Success == nil
	case KindParallel:
		return s.Parallel == nil || s.Parallel.Success == nil
	default:
		return true
	}
}

// link sets the in-chain successor of s. A node reached through several
// chains must continue the same way in each of them.
func (c *scopeCompiler) link(s Step, next string) error {
	n := c.def.Nodes[s.Name]
	switch s.Kind {
	case KindChoice, KindSucceed, KindFail:
		return nil
	case KindMap, KindParallel:
		if n.Next != "" && next == "" {
			// Success chain already supplied the successor.
			return nil
		}
	}
	if c.linked[s.Name] {
		if n.Next != next {
			return c.errf(s.Name, "%w: continues to %q and %q", ErrDuplicateStep, n.Next, next)
		}
		return nil
	}
	c.linked[s.Name] = true
	n.Next = next
	return nil
}

// node adds s to the scope, compiling its nested chains. A step declared
// again with identical content is shared.
func (c *scopeCompiler) node(s Step) error {
	if s.Name == "" {
		return &BuildError{Journey: c.journey, Err: fmt.Errorf("%w: %s step", ErrEmptyStepName, s.Kind)}
	}
	if existing, ok := c.def.Nodes[s.Name]; ok {
		if reflect.DeepEqual(existing.Step, s) {
			return nil
		}
		return c.errf(s.Name, "%w", ErrDuplicateStep)
	}
	if err := checkShape(s); err != nil {
		return c.errf(s.Name, "%w", err)
	}

	n := &Node{Step: s}
	c.def.Nodes[s.Name] = n
	c.def.Order = append(c.def.Order, s.Name)

	switch s.Kind {
	case KindTask:
		if s.Task.Catch != nil {
			entry, err := c.chain(*s.Task.Catch, s.Name)
			if err != nil {
				return err
			}
			n.Catch = entry
		}
	case KindChoice:
		for _, r := range s.Choice.Rules {
			if err := r.Condition.validate(); err != nil {
				return c.errf(s.Name, "%w: %v", ErrInvalidStep, err)
			}
			entry, err := c.chain(r.Chain, s.Name)
			if err != nil {
				return err
			}
			n.Choices = append(n.Choices, Branch{Condition: r.Condition, Next: entry})
		}
		if s.Choice.Otherwise != nil {
			entry, err := c.chain(*s.Choice.Otherwise, s.Name)
			if err != nil {
				return err
			}
			n.Default = entry
		}
	case KindMap:
		inner, err := compileScope(c.journey, s.Name, s.Map.Iterator)
		if err != nil {
			return err
		}
		n.Iterator = inner
		if err := c.successAndFailure(n, s.Map.Success, s.Map.Failure); err != nil {
			return err
		}
	case KindParallel:
		for i, b := range s.Parallel.Branches {
			inner, err := compileScope(c.journey, fmt.Sprintf("%s/%d", s.Name, i), b)
			if err != nil {
				return err
			}
			n.Branches = append(n.Branches, inner)
		}
		if err := c.successAndFailure(n, s.Parallel.Success, s.Parallel.Failure); err != nil {
			return err
		}
	}
	return nil
}

func (c *scopeCompiler) successAndFailure(n *Node, success, failure *Chain) error {
	if failure != nil {
		entry, err := c.chain(*failure, n.Name())
		if err != nil {
			return err
		}
		n.Failure = entry
	}
	if success != nil {
		entry, err := c.chain(*success, n.Name())
		if err != nil {
			return err
		}
		n.Next = entry
		c.linked[n.Name()] = true
	}
	return nil
}

// checkShape verifies that the kind-specific spec matching s.Kind is present.
func checkShape(s Step) error {
	switch s.Kind {
	case KindTask:
		if s.Task == nil {
			return ErrInvalidStep
		}
		if s.Task.Target == "" {
			return ErrMissingTarget
		}
		if s.Task.Retry != nil && s.Task.Retry.MaxAttempts < 0 {
			return fmt.Errorf("%w: negative retry count", ErrInvalidStep)
		}
	case KindWait:
		if s.Wait == nil || s.Wait.Duration < 0 || s.Wait.MaxVisits < 0 {
			return ErrInvalidStep
		}
	case KindChoice:
		if s.Choice == nil {
			return ErrInvalidStep
		}
		if len(s.Choice.Undeclared) > 0 {
			return fmt.Errorf("%w: %s", ErrUnknownVariant, strings.Join(s.Choice.Undeclared, ", "))
		}
		if len(s.Choice.Rules) == 0 {
			return ErrEmptyChoice
		}
	case KindMap:
		if s.Map == nil {
			return ErrInvalidStep
		}
		if s.Map.ItemsPath == "" || s.Map.Iterator.IsZero() {
			return ErrMissingItems
		}
		if s.Map.MaxConcurrency < 0 {
			return ErrInvalidConcurrency
		}
		if s.Map.Failure == nil {
			return ErrMissingFailureTarget
		}
	case KindParallel:
		if s.Parallel == nil {
			return ErrInvalidStep
		}
		if len(s.Parallel.Branches) == 0 {
			return ErrEmptyParallel
		}
		if s.Parallel.Failure == nil {
			return ErrMissingFailureTarget
		}
	case KindFail:
		if s.Fail == nil {
			return ErrInvalidStep
		}
	case KindSucceed:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidStep, s.Kind)
	}
	return nil
}
