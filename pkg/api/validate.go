package api

import (
	"fmt"
	"sort"
	"strings"
)

// Validate checks the structural invariants of a compiled definition and all
// of its nested scopes. It stops at the first defect.
func Validate(def *Definition) error {
	if def == nil {
		return &BuildError{Err: ErrEmptyChain}
	}
	if err := validateScope(def.Name, def); err != nil {
		return err
	}
	if len(def.Inputs) > 0 {
		return checkReads(def.Name, def, toSet(def.Inputs))
	}
	return nil
}

func validateScope(journey string, def *Definition) error {
	fail := func(step string, err error) error {
		return &BuildError{Journey: journey, Step: step, Err: err}
	}

	if len(def.Nodes) == 0 {
		return fail("", ErrEmptyChain)
	}
	if _, ok := def.Nodes[def.StartAt]; !ok {
		return fail("", fmt.Errorf("%w: start %q", ErrUnknownSuccessor, def.StartAt))
	}

	for _, name := range def.Order {
		n, ok := def.Nodes[name]
		if !ok {
			return fail(name, fmt.Errorf("%w: %q listed but not defined", ErrInvalidStep, name))
		}
		for _, e := range n.Edges() {
			if _, ok := def.Nodes[e]; !ok {
				return fail(name, fmt.Errorf("%w: %q", ErrUnknownSuccessor, e))
			}
		}
		if err := validateNode(journey, n); err != nil {
			return err
		}
	}

	if err := checkReachable(def); err != nil {
		return fail(err.step, err.err)
	}
	if err := checkCycles(def); err != nil {
		return fail(err.step, err.err)
	}
	return nil
}

func validateNode(journey string, n *Node) error {
	fail := func(err error) error {
		return &BuildError{Journey: journey, Step: n.Name(), Err: err}
	}

	switch n.Kind() {
	case KindChoice:
		if len(n.Choices) == 0 {
			return fail(ErrEmptyChoice)
		}
		if n.Default == "" {
			if missing := uncoveredVariants(n); len(missing) > 0 {
				return fail(fmt.Errorf("%w: no branch for %s", ErrNonExhaustiveChoice, strings.Join(missing, ", ")))
			}
		}
	case KindMap:
		if n.Failure == "" {
			return fail(ErrMissingFailureTarget)
		}
		if n.Iterator == nil {
			return fail(ErrMissingItems)
		}
		if err := validateScope(journey, n.Iterator); err != nil {
			return err
		}
	case KindParallel:
		if n.Failure == "" {
			return fail(ErrMissingFailureTarget)
		}
		if len(n.Branches) == 0 {
			return fail(ErrEmptyParallel)
		}
		for _, b := range n.Branches {
			if err := validateScope(journey, b); err != nil {
				return err
			}
		}
		if err := checkDisjointWrites(n); err != nil {
			return fail(err)
		}
	}
	return nil
}

// uncoveredVariants returns the declared variants of a closed-set Choice that
// no StringEquals rule on the switch path matches.
func uncoveredVariants(n *Node) []string {
	spec := n.Step.Choice
	if spec == nil || len(spec.Variants) == 0 {
		return nil
	}
	covered := make(map[string]bool)
	for _, b := range n.Choices {
		if b.Condition.Op != OpStringEquals || b.Condition.Path != spec.Path {
			continue
		}
		if s, ok := b.Condition.Value.(string); ok {
			covered[s] = true
		}
	}
	var missing []string
	for _, v := range spec.Variants {
		if !covered[v] {
			missing = append(missing, v)
		}
	}
	return missing
}

type scopeErr struct {
	step string
	err  error
}

func checkReachable(def *Definition) *scopeErr {
	seen := map[string]bool{def.StartAt: true}
	queue := []string{def.StartAt}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range def.Nodes[cur].Edges() {
			if !seen[e] {
				seen[e] = true
				queue = append(queue, e)
			}
		}
	}
	for _, name := range def.Order {
		if !seen[name] {
			return &scopeErr{step: name, err: ErrUnreachableStep}
		}
	}
	return nil
}

// checkCycles rejects any cycle that does not pass through a Wait node, by
// looking for cycles in the graph with every Wait node removed.
func checkCycles(def *Definition) *scopeErr {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(def.Nodes))
	var stack []string

	var visit func(name string) *scopeErr
	visit = func(name string) *scopeErr {
		color[name] = gray
		stack = append(stack, name)
		for _, e := range def.Nodes[name].Edges() {
			if def.Nodes[e].Kind() == KindWait {
				continue
			}
			switch color[e] {
			case gray:
				cycle := append([]string{}, stack[indexOf(stack, e):]...)
				cycle = append(cycle, e)
				return &scopeErr{step: e, err: fmt.Errorf("%w: %s", ErrUnguardedCycle, strings.Join(cycle, " -> "))}
			case white:
				if err := visit(e); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[name] = black
		return nil
	}

	for _, name := range def.Order {
		if def.Nodes[name].Kind() == KindWait || color[name] != white {
			continue
		}
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

func indexOf(xs []string, s string) int {
	for i, x := range xs {
		if x == s {
			return i
		}
	}
	return 0
}

// checkDisjointWrites rejects Parallel nodes whose branches may write the
// same top-level field.
func checkDisjointWrites(n *Node) error {
	sets := make([]map[string]bool, len(n.Branches))
	for i, b := range n.Branches {
		sets[i] = ScopeWrites(b)
	}
	for i := range sets {
		for j := i + 1; j < len(sets); j++ {
			if (sets[i]["$"] && len(sets[j]) > 0) || (sets[j]["$"] && len(sets[i]) > 0) {
				return fmt.Errorf("%w: branches %d and %d and one replaces the whole payload", ErrConflictingWrites, i, j)
			}
			for _, f := range sortedKeys(sets[i]) {
				if sets[j][f] {
					return fmt.Errorf("%w: %q written by branches %d and %d", ErrConflictingWrites, f, i, j)
				}
			}
		}
	}
	return nil
}

// ScopeWrites returns the top-level fields any node of def may write to the
// scope's payload. "$" denotes a write that replaces the whole payload.
func ScopeWrites(def *Definition) map[string]bool {
	out := make(map[string]bool)
	for _, name := range def.Order {
		for _, f := range nodeWrites(def.Nodes[name]) {
			out[f] = true
		}
	}
	return out
}

func nodeWrites(n *Node) []string {
	switch n.Kind() {
	case KindTask:
		return n.Step.Task.Writes()
	case KindMap:
		out := []string{ErrorField}
		if p := n.Step.Map.ResultPath; p != "" {
			out = append(out, TopLevel(p))
		}
		return out
	case KindParallel:
		out := []string{ErrorField}
		for _, b := range n.Branches {
			out = append(out, sortedKeys(ScopeWrites(b))...)
		}
		if p := n.Step.Parallel.ResultPath; p != "" {
			out = append(out, TopLevel(p))
		}
		return out
	}
	return nil
}

// checkReads verifies, by a must-be-written dataflow analysis, that every
// field a task declares in Reads is guaranteed to be present when the task
// runs.
func checkReads(journey string, def *Definition, inputs map[string]bool) error {
	avail := map[string]map[string]bool{def.StartAt: inputs}
	queue := []string{def.StartAt}

	propagate := func(to string, in map[string]bool, extra ...string) {
		if to == "" {
			return
		}
		next := copySet(in)
		for _, f := range extra {
			next[f] = true
		}
		cur, ok := avail[to]
		if !ok {
			avail[to] = next
			queue = append(queue, to)
			return
		}
		meet := intersect(cur, next)
		if len(meet) != len(cur) {
			avail[to] = meet
			queue = append(queue, to)
		}
	}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		n := def.Nodes[name]
		in := avail[name]
		switch n.Kind() {
		case KindTask:
			var result []string
			if p := n.Step.Task.ResultPath; p != "" {
				result = append(result, TopLevel(p))
			}
			propagate(n.Next, in, result...)
			propagate(n.Catch, in, ErrorField)
		case KindChoice:
			for _, b := range n.Choices {
				propagate(b.Next, in)
			}
			propagate(n.Default, in)
		case KindMap:
			var result []string
			if p := n.Step.Map.ResultPath; p != "" {
				result = append(result, TopLevel(p))
			}
			propagate(n.Next, in, result...)
			propagate(n.Failure, in, ErrorField)
		case KindParallel:
			merged := nodeWrites(n)[1:]
			propagate(n.Next, in, merged...)
			propagate(n.Failure, in, ErrorField)
		default:
			propagate(n.Next, in)
		}
	}

	for _, name := range def.Order {
		n := def.Nodes[name]
		in := avail[name]
		switch n.Kind() {
		case KindTask:
			if in["$"] {
				continue
			}
			for _, r := range n.Step.Task.Reads {
				if !in[TopLevel(r)] {
					return &BuildError{Journey: journey, Step: name, Err: fmt.Errorf("%w: %q", ErrUnsatisfiedRead, r)}
				}
			}
		case KindMap:
			scope := map[string]bool{n.Step.Map.ItemField: true}
			for _, c := range n.Step.Map.Carry {
				scope[TopLevel(c)] = true
			}
			if err := checkReads(journey, n.Iterator, scope); err != nil {
				return err
			}
		case KindParallel:
			for _, b := range n.Branches {
				if err := checkReads(journey, b, in); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func toSet(xs []string) map[string]bool {
	out := make(map[string]bool, len(xs))
	for _, x := range xs {
		out[TopLevel(x)] = true
	}
	return out
}

func copySet(s map[string]bool) map[string]bool {
	out := make(map[string]bool, len(s))
	for k := range s {
		out[k] = true
	}
	return out
}

func intersect(a, b map[string]bool) map[string]bool {
	out := make(map[string]bool)
	for k := range a {
		if b[k] {
			out[k] = true
		}
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
