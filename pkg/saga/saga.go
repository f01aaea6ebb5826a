package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Step represents a single step in a saga with an execute and compensate function.
type Step struct {
	Name       string
	Execute    func(ctx context.Context) error
	Compensate func(ctx context.Context) error

	// CompensateOnFailure also compensates this step when its own Execute
	// fails, for steps that can leave a partial side effect behind.
	CompensateOnFailure bool
}

// CompensationOrder is the order in which completed steps are undone.
type CompensationOrder int

const (
	// ReverseOrder undoes the most recent step first.
	ReverseOrder CompensationOrder = iota
	// StepOrder undoes steps in the order they ran.
	StepOrder
)

// DefaultCompensationTimeout bounds all compensations of one failed run.
const DefaultCompensationTimeout = 30 * time.Second

// Saga orchestrates a series of steps with automatic compensation on failure.
type Saga struct {
	name                string
	steps               []Step
	order               CompensationOrder
	compensationTimeout time.Duration
}

// New creates a new saga with the given name.
func New(name string) *Saga {
	return &Saga{name: name, compensationTimeout: DefaultCompensationTimeout}
}

// WithCompensationOrder sets the order compensations run in. The default is
// ReverseOrder.
func (s *Saga) WithCompensationOrder(order CompensationOrder) *Saga {
	s.order = order
	return s
}

// WithCompensationTimeout bounds the compensation phase. Values <= 0 keep the
// default.
func (s *Saga) WithCompensationTimeout(d time.Duration) *Saga {
	if d > 0 {
		s.compensationTimeout = d
	}
	return s
}

// AddStep adds a step to the saga.
func (s *Saga) AddStep(step Step) *Saga {
	s.steps = append(s.steps, step)
	return s
}

// Execute runs all saga steps sequentially.
// If any step fails, it compensates all previously completed steps. Compensation
// runs on a context detached from ctx's cancellation, so a caller that goes
// away mid-run does not leave side effects behind.
// Returns the index of the failed step and the error, or -1 and nil on success.
func (s *Saga) Execute(ctx context.Context) (failedStep int, err error) {
	tracer := otel.Tracer("saga")
	completed := make([]int, 0, len(s.steps))

	for i, step := range s.steps {
		stepCtx, span := tracer.Start(ctx, s.name+"."+step.Name,
			trace.WithAttributes(attribute.Int("saga.step_index", i)))
		err := step.Execute(stepCtx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "step failed")
		}
		span.End()

		if err != nil {
			if step.CompensateOnFailure {
				completed = append(completed, i)
			}
			compErr := s.compensate(ctx, completed)
			if compErr != nil {
				return i, &Error{Saga: s.name, Step: step.Name, Err: err, CompensationErr: compErr}
			}
			return i, &Error{Saga: s.name, Step: step.Name, Err: err}
		}
		completed = append(completed, i)
	}

	return -1, nil
}

func (s *Saga) compensate(ctx context.Context, completedIndexes []int) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.compensationTimeout)
	defer cancel()

	tracer := otel.Tracer("saga")
	var errs []error
	for n := range completedIndexes {
		idx := completedIndexes[n]
		if s.order == ReverseOrder {
			idx = completedIndexes[len(completedIndexes)-1-n]
		}
		step := s.steps[idx]
		if step.Compensate == nil {
			continue
		}
		compCtx, span := tracer.Start(ctx, s.name+".compensate",
			trace.WithAttributes(attribute.String("saga.step", step.Name)))
		if err := step.Compensate(compCtx); err != nil {
			span.RecordError(err)
			errs = append(errs, fmt.Errorf("compensate step %q: %w", step.Name, err))
		}
		span.End()
	}
	return errors.Join(errs...)
}

// Error is returned by Execute when a step fails. It unwraps to the step's
// error; compensation failures are kept separately so callers can report the
// step error and log the rest.
type Error struct {
	Saga            string
	Step            string
	Err             error
	CompensationErr error
}

func (e *Error) Error() string {
	if e.CompensationErr != nil {
		return fmt.Sprintf("saga %s: step %q failed (%v), compensation also failed: %v", e.Saga, e.Step, e.Err, e.CompensationErr)
	}
	return fmt.Sprintf("saga %s: step %q failed: %v", e.Saga, e.Step, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
