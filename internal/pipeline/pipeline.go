// Package pipeline runs an ordered list of steps over a shared mutable context.
//
// Steps run one after another on the caller's goroutine. Before each step its
// ShouldExecute predicate is consulted; a false result skips that step only.
// A step then returns one of three actions:
//
//	Continue  run the next step
//	Skip      stop here; the pipeline succeeds
//	Abort     stop here; the pipeline fails with the given error
//
// The framework never rolls back. Retries and alternative branches belong
// inside a step.
package pipeline

import (
	"context"
	"fmt"

	"efm-go/internal/efm"
)

type actionKind int

const (
	actionContinue actionKind = iota
	actionSkip
	actionAbort
)

// Action is the outcome of a step.
type Action struct {
	kind actionKind
	err  error
}

// Continue proceeds to the next step.
var Continue = Action{kind: actionContinue}

// Skip terminates the remaining pipeline successfully.
var Skip = Action{kind: actionSkip}

// Abort terminates the pipeline with err.
func Abort(err error) Action {
	if err == nil {
		err = fmt.Errorf("step aborted without an error")
	}
	return Action{kind: actionAbort, err: err}
}

// IsContinue reports whether a is Continue.
func (a Action) IsContinue() bool { return a.kind == actionContinue }

// IsSkip reports whether a is Skip.
func (a Action) IsSkip() bool { return a.kind == actionSkip }

// Err returns the abort error, or nil for Continue and Skip.
func (a Action) Err() error { return a.err }

func (a Action) String() string {
	switch a.kind {
	case actionContinue:
		return "continue"
	case actionSkip:
		return "skip"
	default:
		return fmt.Sprintf("abort(%v)", a.err)
	}
}

// Step is one unit of work over a context of type C.
type Step[C any] interface {
	Name() string
	ShouldExecute(c C) bool
	Execute(ctx context.Context, c C) Action
}

// Pipeline owns an ordered list of steps.
type Pipeline[C any] struct {
	name   string
	steps  []Step[C]
	logger efm.Logger
}

// New creates a pipeline. A nil logger discards step logging.
func New[C any](name string, logger efm.Logger, steps ...Step[C]) *Pipeline[C] {
	if logger == nil {
		logger = efm.NewNopLogger()
	}
	return &Pipeline[C]{name: name, steps: steps, logger: logger}
}

// Name returns the pipeline name used in log lines.
func (p *Pipeline[C]) Name() string { return p.name }

// StepNames lists the steps in execution order.
func (p *Pipeline[C]) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name()
	}
	return names
}

// Run executes the steps against c. Cancellation of ctx is observed between
// steps and surfaces as an OperationCancelled error. The first Abort error is
// returned verbatim.
func (p *Pipeline[C]) Run(ctx context.Context, c C) error {
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("pipeline cancelled", "pipeline", p.name, "before", step.Name())
			return efm.NewOperationCancelledError(err)
		}

		if !step.ShouldExecute(c) {
			p.logger.Debug("step not applicable", "pipeline", p.name, "step", step.Name())
			continue
		}

		p.logger.Debug("step started", "pipeline", p.name, "step", step.Name())
		action := step.Execute(ctx, c)

		switch action.kind {
		case actionContinue:
			continue
		case actionSkip:
			p.logger.Debug("pipeline finished early", "pipeline", p.name, "step", step.Name())
			return nil
		default:
			p.logger.Warn("pipeline aborted", "pipeline", p.name, "step", step.Name(), "error", action.err)
			return action.err
		}
	}

	p.logger.Debug("pipeline completed", "pipeline", p.name)
	return nil
}

// Func adapts plain functions into a Step. It keeps small one-off steps
// readable next to the pipeline that declares them.
type Func[C any] struct {
	StepName  string
	Predicate func(c C) bool
	Run       func(ctx context.Context, c C) Action
}

func (f Func[C]) Name() string { return f.StepName }

func (f Func[C]) ShouldExecute(c C) bool {
	if f.Predicate == nil {
		return true
	}
	return f.Predicate(c)
}

func (f Func[C]) Execute(ctx context.Context, c C) Action { return f.Run(ctx, c) }
