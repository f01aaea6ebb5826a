package saga_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cassiomorais/turnkey/pkg/saga"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaga_AllStepsSucceed(t *testing.T) {
	var executed []string

	s := saga.New("purchase").
		AddStep(saga.Step{
			Name:       "charge",
			Execute:    func(ctx context.Context) error { executed = append(executed, "charge"); return nil },
			Compensate: func(ctx context.Context) error { executed = append(executed, "refund"); return nil },
		}).
		AddStep(saga.Step{
			Name:    "issue",
			Execute: func(ctx context.Context) error { executed = append(executed, "issue"); return nil },
		})

	failedStep, err := s.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, -1, failedStep)
	assert.Equal(t, []string{"charge", "issue"}, executed)
}

func TestSaga_FailedStepNotCompensated(t *testing.T) {
	var executed []string

	s := saga.New("purchase").
		AddStep(saga.Step{
			Name:       "charge",
			Execute:    func(ctx context.Context) error { executed = append(executed, "charge"); return nil },
			Compensate: func(ctx context.Context) error { executed = append(executed, "refund"); return nil },
		}).
		AddStep(saga.Step{
			Name:       "issue",
			Execute:    func(ctx context.Context) error { return errors.New("ledger down") },
			Compensate: func(ctx context.Context) error { executed = append(executed, "cancel"); return nil },
		}).
		AddStep(saga.Step{
			Name:    "notify",
			Execute: func(ctx context.Context) error { executed = append(executed, "notify"); return nil },
		})

	failedStep, err := s.Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, failedStep)
	assert.Contains(t, err.Error(), "ledger down")
	assert.Equal(t, []string{"charge", "refund"}, executed)
}

func TestSaga_CompensateOnFailure(t *testing.T) {
	var compensated []string

	s := saga.New("purchase").
		AddStep(saga.Step{
			Name:       "charge",
			Execute:    func(ctx context.Context) error { return nil },
			Compensate: func(ctx context.Context) error { compensated = append(compensated, "refund"); return nil },
		}).
		AddStep(saga.Step{
			Name:                "issue",
			Execute:             func(ctx context.Context) error { return errors.New("attach failed") },
			Compensate:          func(ctx context.Context) error { compensated = append(compensated, "cancel"); return nil },
			CompensateOnFailure: true,
		})

	failedStep, err := s.Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, failedStep)
	assert.Equal(t, []string{"cancel", "refund"}, compensated)
}

func TestSaga_LaterStepFails_CompensatesInReverse(t *testing.T) {
	var compensated []string

	s := saga.New("purchase").
		AddStep(saga.Step{
			Name:       "charge",
			Execute:    func(ctx context.Context) error { return nil },
			Compensate: func(ctx context.Context) error { compensated = append(compensated, "refund"); return nil },
		}).
		AddStep(saga.Step{
			Name:       "issue",
			Execute:    func(ctx context.Context) error { return nil },
			Compensate: func(ctx context.Context) error { compensated = append(compensated, "cancel"); return nil },
		}).
		AddStep(saga.Step{
			Name:    "finalize",
			Execute: func(ctx context.Context) error { return errors.New("email bounced") },
		})

	failedStep, err := s.Execute(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 2, failedStep)
	assert.Equal(t, []string{"cancel", "refund"}, compensated)
}

func TestSaga_NoSteps(t *testing.T) {
	failedStep, err := saga.New("empty").Execute(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, -1, failedStep)
}

func TestSaga_ErrorUnwrapsToStepError(t *testing.T) {
	stepErr := errors.New("card declined")
	s := saga.New("purchase").
		AddStep(saga.Step{
			Name:       "fraud",
			Execute:    func(ctx context.Context) error { return nil },
			Compensate: func(ctx context.Context) error { return errors.New("refund failed") },
		}).
		AddStep(saga.Step{
			Name:    "issue",
			Execute: func(ctx context.Context) error { return stepErr },
		})

	_, err := s.Execute(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, stepErr)

	var sagaErr *saga.Error
	require.True(t, errors.As(err, &sagaErr))
	assert.Equal(t, "issue", sagaErr.Step)
	require.Error(t, sagaErr.CompensationErr)
	assert.Contains(t, sagaErr.CompensationErr.Error(), "refund failed")
}

func TestSaga_MultipleCompensationErrors_AllCollected(t *testing.T) {
	s := saga.New("purchase").
		AddStep(saga.Step{
			Name:       "charge",
			Execute:    func(ctx context.Context) error { return nil },
			Compensate: func(ctx context.Context) error { return errors.New("refund failed") },
		}).
		AddStep(saga.Step{
			Name:       "issue",
			Execute:    func(ctx context.Context) error { return nil },
			Compensate: func(ctx context.Context) error { return errors.New("cancel failed") },
		}).
		AddStep(saga.Step{
			Name:    "finalize",
			Execute: func(ctx context.Context) error { return errors.New("finalize failed") },
		})

	_, err := s.Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refund failed")
	assert.Contains(t, err.Error(), "cancel failed")
}

func TestSaga_NilCompensate(t *testing.T) {
	s := saga.New("deliver").
		AddStep(saga.Step{
			Name:    "lookup",
			Execute: func(ctx context.Context) error { return nil },
		}).
		AddStep(saga.Step{
			Name:                "notify",
			Execute:             func(ctx context.Context) error { return errors.New("fail") },
			CompensateOnFailure: true,
		})

	failedStep, err := s.Execute(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, failedStep)
}

func TestSaga_StepOrderCompensation(t *testing.T) {
	var compensated []string

	s := saga.New("purchase").
		WithCompensationOrder(saga.StepOrder).
		AddStep(saga.Step{
			Name:       "charge",
			Execute:    func(ctx context.Context) error { return nil },
			Compensate: func(ctx context.Context) error { compensated = append(compensated, "refund"); return nil },
		}).
		AddStep(saga.Step{
			Name:       "issue",
			Execute:    func(ctx context.Context) error { return nil },
			Compensate: func(ctx context.Context) error { compensated = append(compensated, "cancel"); return nil },
		}).
		AddStep(saga.Step{
			Name:    "finalize",
			Execute: func(ctx context.Context) error { return errors.New("email bounced") },
		})

	_, err := s.Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"refund", "cancel"}, compensated)
}

func TestSaga_CompensatesAfterCallerCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var compCtxErr error
	var hasDeadline bool
	s := saga.New("purchase").
		WithCompensationTimeout(5 * time.Second).
		AddStep(saga.Step{
			Name:    "charge",
			Execute: func(ctx context.Context) error { return nil },
			Compensate: func(ctx context.Context) error {
				compCtxErr = ctx.Err()
				_, hasDeadline = ctx.Deadline()
				return ctx.Err()
			},
		}).
		AddStep(saga.Step{
			Name: "notify",
			Execute: func(ctx context.Context) error {
				cancel()
				return ctx.Err()
			},
		})

	_, err := s.Execute(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	var sagaErr *saga.Error
	require.True(t, errors.As(err, &sagaErr))
	assert.NoError(t, sagaErr.CompensationErr)
	assert.NoError(t, compCtxErr)
	assert.True(t, hasDeadline)
}

func TestSaga_CompensationTimeoutBounded(t *testing.T) {
	s := saga.New("purchase").
		WithCompensationTimeout(10 * time.Millisecond).
		AddStep(saga.Step{
			Name:    "charge",
			Execute: func(ctx context.Context) error { return nil },
			Compensate: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
		}).
		AddStep(saga.Step{
			Name:    "issue",
			Execute: func(ctx context.Context) error { return errors.New("ledger down") },
		})

	_, err := s.Execute(context.Background())
	var sagaErr *saga.Error
	require.True(t, errors.As(err, &sagaErr))
	assert.ErrorIs(t, sagaErr.CompensationErr, context.DeadlineExceeded)
}
