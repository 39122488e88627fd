package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dataproduct/journeys/pkg/api"
)

// failure ends a scope unsuccessfully. It carries the detail reported on the
// execution and the error that caused it.
type failure struct {
	step   string
	detail api.ErrorDetail
	err    error
}

func (f *failure) Error() string {
	return fmt.Sprintf("step %q: %s: %s", f.step, f.detail.Error, f.detail.Cause)
}

func (f *failure) Unwrap() error { return f.err }

func newFailure(step, name string, err error) *failure {
	return &failure{
		step:   step,
		detail: api.ErrorDetail{Error: name, Cause: err.Error()},
		err:    err,
	}
}

// contextFailure reports a cancelled or timed-out execution. It is never
// routed to a catch or failure target.
func contextFailure(step string, err error) *failure {
	name := api.ErrNameCancelled
	if errors.Is(err, context.DeadlineExceeded) {
		name = api.ErrNameTimeout
	}
	return newFailure(step, name, err)
}

// outcome is the result of interpreting one node.
type outcome struct {
	// next is the node to continue with. Empty ends the scope successfully.
	next    string
	payload api.Payload
	// err is the step's own error, reported to observers even when it was
	// routed to a catch or failure target.
	err  error
	fail *failure
}

// run holds the state of one execution.
type run struct {
	engine *engineImpl
	exec   *api.Execution

	mu sync.Mutex // guards exec.History
}

func (r *run) record(ev api.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	r.mu.Lock()
	r.exec.History = append(r.exec.History, ev)
	r.mu.Unlock()
}

func childScope(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "/" + child
}

// runScope interprets def starting at its entry node and returns the payload
// the scope ended with.
func (r *run) runScope(ctx context.Context, def *api.Definition, scope string, payload api.Payload) (api.Payload, *failure) {
	visits := make(map[string]int)
	name := def.StartAt

	for {
		if err := ctx.Err(); err != nil {
			return payload, contextFailure(name, err)
		}

		node, ok := def.Node(name)
		if !ok {
			return payload, newFailure(name, api.ErrNameRuntime, fmt.Errorf("%w: %q", api.ErrUnknownSuccessor, name))
		}
		visits[name]++

		r.record(api.Event{Type: api.EventStepEntered, Step: name, Scope: scope})
		r.engine.observer.OnStepStart(ctx, r.exec, name, node.Kind())
		start := time.Now()

		out := r.step(ctx, scope, node, payload, visits[name])

		r.engine.observer.OnStepCompleted(ctx, r.exec, name, node.Kind(), out.err, time.Since(start))
		if out.err != nil {
			r.record(api.Event{Type: api.EventStepFailed, Step: name, Scope: scope, Detail: out.err.Error()})
		} else {
			r.record(api.Event{Type: api.EventStepSucceeded, Step: name, Scope: scope})
		}

		payload = out.payload
		if out.fail != nil {
			return payload, out.fail
		}
		if out.next == "" {
			return payload, nil
		}
		name = out.next
	}
}

func (r *run) step(ctx context.Context, scope string, n *api.Node, payload api.Payload, visit int) outcome {
	switch n.Kind() {
	case api.KindTask:
		return r.task(ctx, scope, n, payload)
	case api.KindChoice:
		return r.choice(n, payload)
	case api.KindWait:
		return r.wait(ctx, n, payload, visit)
	case api.KindMap:
		return r.mapItems(ctx, scope, n, payload)
	case api.KindParallel:
		return r.parallel(ctx, scope, n, payload)
	case api.KindSucceed:
		return outcome{payload: payload}
	case api.KindFail:
		spec := n.Step.Fail
		f := &failure{
			step:   n.Name(),
			detail: api.ErrorDetail{Error: spec.Error, Cause: spec.Cause},
			err:    api.ErrExecutionFailed,
		}
		return outcome{payload: payload, fail: f}
	default:
		err := fmt.Errorf("%w: kind %q", api.ErrInvalidStep, n.Kind())
		return outcome{payload: payload, err: err, fail: newFailure(n.Name(), api.ErrNameRuntime, err)}
	}
}

func (r *run) task(ctx context.Context, scope string, n *api.Node, payload api.Payload) outcome {
	spec := n.Step.Task

	input := payload
	if spec.InputPath != "" {
		sel, ok := payload.Select(spec.InputPath)
		if !ok {
			err := fmt.Errorf("input path %q not found", spec.InputPath)
			return r.taskFailed(scope, n, payload, newFailure(n.Name(), api.ErrNameRuntime, err))
		}
		input = sel
	}

	retries := 0
	if spec.Retry != nil {
		retries = spec.Retry.MaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= retries+1; attempt++ {
		if attempt > 1 {
			r.record(api.Event{Type: api.EventTaskRetried, Step: n.Name(), Scope: scope, Attempt: attempt, Detail: lastErr.Error()})
			r.engine.observer.OnTaskRetry(ctx, r.exec, n.Name(), attempt, lastErr)
			if err := r.engine.sleep(ctx, spec.Retry.Delay(attempt-1)); err != nil {
				return outcome{payload: payload, err: err, fail: contextFailure(n.Name(), err)}
			}
		}

		result, err := r.engine.invoker.Invoke(ctx, spec.Target, input.Clone())
		if err == nil {
			if spec.ResultPath != "" {
				payload = payload.With(spec.ResultPath, api.CloneValue(result))
			}
			return outcome{next: n.Next, payload: payload}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return outcome{payload: payload, err: err, fail: contextFailure(n.Name(), ctxErr)}
		}
		lastErr = err
	}

	return r.taskFailed(scope, n, payload, newFailure(n.Name(), api.ErrorName(lastErr), lastErr))
}

// taskFailed routes an exhausted task to its catch chain, or ends the scope.
func (r *run) taskFailed(scope string, n *api.Node, payload api.Payload, f *failure) outcome {
	if n.Catch == "" {
		return outcome{payload: payload, err: f.err, fail: f}
	}
	r.record(api.Event{Type: api.EventTaskCaught, Step: n.Name(), Scope: scope, Detail: f.detail.Error})
	return outcome{
		next:    n.Catch,
		payload: payload.With(api.ErrorField, errorValue(f.detail)),
		err:     f.err,
	}
}

func errorValue(d api.ErrorDetail) map[string]any {
	return map[string]any{"Error": d.Error, "Cause": d.Cause}
}

func (r *run) choice(n *api.Node, payload api.Payload) outcome {
	for _, b := range n.Choices {
		if b.Condition.Eval(payload) {
			return outcome{next: b.Next, payload: payload}
		}
	}
	if n.Default != "" {
		return outcome{next: n.Default, payload: payload}
	}
	err := fmt.Errorf("no rule of %q matched", n.Name())
	return outcome{payload: payload, err: err, fail: newFailure(n.Name(), api.ErrNameNoChoiceMatched, err)}
}

func (r *run) wait(ctx context.Context, n *api.Node, payload api.Payload, visit int) outcome {
	spec := n.Step.Wait
	if spec.MaxVisits > 0 && visit > spec.MaxVisits {
		err := fmt.Errorf("%q entered more than %d times", n.Name(), spec.MaxVisits)
		return outcome{payload: payload, err: err, fail: newFailure(n.Name(), api.ErrNamePollLimitExceeded, err)}
	}
	if err := r.engine.sleep(ctx, spec.Duration); err != nil {
		return outcome{payload: payload, err: err, fail: contextFailure(n.Name(), err)}
	}
	return outcome{next: n.Next, payload: payload}
}

// joinFailed routes a failed Map or Parallel node to its failure target. A
// failure caused by the execution's own context is not routed.
func (r *run) joinFailed(ctx context.Context, n *api.Node, payload api.Payload, err error) outcome {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return outcome{payload: payload, err: ctxErr, fail: contextFailure(n.Name(), ctxErr)}
	}

	var f *failure
	if !errors.As(err, &f) {
		f = newFailure(n.Name(), api.ErrNameRuntime, err)
	}
	if n.Failure == "" {
		return outcome{payload: payload, err: f, fail: f}
	}
	return outcome{
		next:    n.Failure,
		payload: payload.With(api.ErrorField, errorValue(f.detail)),
		err:     f,
	}
}

func (r *run) mapItems(ctx context.Context, scope string, n *api.Node, payload api.Payload) outcome {
	spec := n.Step.Map

	raw, ok := payload.Get(spec.ItemsPath)
	if !ok {
		return r.joinFailed(ctx, n, payload, newFailure(n.Name(), api.ErrNameRuntime,
			fmt.Errorf("items path %q not found", spec.ItemsPath)))
	}
	items, ok := api.AsList(raw)
	if !ok {
		return r.joinFailed(ctx, n, payload, newFailure(n.Name(), api.ErrNameRuntime,
			fmt.Errorf("items path %q is not a list", spec.ItemsPath)))
	}

	results := make([]any, len(items))
	err := runBounded(ctx, len(items), spec.MaxConcurrency, func(ctx context.Context, i int) error {
		itemScope := childScope(scope, fmt.Sprintf("%s[%d]", n.Name(), i))
		r.record(api.Event{Type: api.EventMapItemStarted, Step: n.Name(), Scope: itemScope})

		out, f := r.runScope(ctx, n.Iterator, itemScope, r.seedItem(spec, payload, items[i]))
		if f != nil {
			r.record(api.Event{Type: api.EventMapItemFinished, Step: n.Name(), Scope: itemScope, Detail: f.detail.Error})
			return f
		}
		r.record(api.Event{Type: api.EventMapItemFinished, Step: n.Name(), Scope: itemScope})
		results[i] = map[string]any(out)
		return nil
	})
	if err != nil {
		return r.joinFailed(ctx, n, payload, err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return outcome{payload: payload, err: ctxErr, fail: contextFailure(n.Name(), ctxErr)}
	}

	if spec.ResultPath != "" {
		payload = payload.With(spec.ResultPath, results)
	}
	return outcome{next: n.Next, payload: payload}
}

// seedItem builds the payload one Map iteration starts from: the item under
// ItemField plus the carried parent fields, all deep copies.
func (r *run) seedItem(spec *api.MapSpec, parent api.Payload, item any) api.Payload {
	seed := api.Payload{}.With(spec.ItemField, api.CloneValue(item))
	for _, path := range spec.Carry {
		if v, ok := parent.Get(path); ok {
			seed = seed.With(path, api.CloneValue(v))
		}
	}
	return seed
}

func (r *run) parallel(ctx context.Context, scope string, n *api.Node, payload api.Payload) outcome {
	spec := n.Step.Parallel
	outputs := make([]api.Payload, len(n.Branches))

	err := runBounded(ctx, len(n.Branches), len(n.Branches), func(ctx context.Context, i int) error {
		branch := n.Branches[i]
		branchScope := childScope(scope, branch.Name)

		out, f := r.runScope(ctx, branch, branchScope, payload.Clone())
		if f != nil {
			r.record(api.Event{Type: api.EventParallelBranchFinished, Step: n.Name(), Scope: branchScope, Detail: f.detail.Error})
			return f
		}
		r.record(api.Event{Type: api.EventParallelBranchFinished, Step: n.Name(), Scope: branchScope})
		outputs[i] = out
		return nil
	})
	if err != nil {
		return r.joinFailed(ctx, n, payload, err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return outcome{payload: payload, err: ctxErr, fail: contextFailure(n.Name(), ctxErr)}
	}

	for i, branch := range n.Branches {
		payload = mergeBranch(payload, outputs[i], api.ScopeWrites(branch))
	}
	if spec.ResultPath != "" {
		list := make([]any, len(outputs))
		for i, out := range outputs {
			list[i] = map[string]any(out)
		}
		payload = payload.With(spec.ResultPath, list)
	}
	return outcome{next: n.Next, payload: payload}
}

// mergeBranch copies the top-level fields a branch declares it writes from
// the branch output into payload.
func mergeBranch(payload, out api.Payload, writes map[string]bool) api.Payload {
	if writes["$"] {
		merged := payload.Clone()
		for k, v := range out {
			merged[k] = v
		}
		return merged
	}
	for field := range writes {
		if v, ok := out[field]; ok {
			payload = payload.With(field, v)
		}
	}
	return payload
}
