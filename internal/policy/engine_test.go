package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubPolicySource struct {
	policies []Policy
	err      error
}

func (s *stubPolicySource) LoadPolicies(ctx context.Context) ([]Policy, error) {
	return s.policies, s.err
}

type memoryViolations struct {
	rows []Violation
	err  error
}

func (m *memoryViolations) Write(ctx context.Context, v Violation) error {
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, v)
	return nil
}

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

func newTestEngine(t *testing.T, policies []Policy, violations ViolationWriter) *Engine {
	t.Helper()
	e := NewEngine(&stubPolicySource{policies: policies}, violations, nil, fixedClock{at: time.Now().UTC()})
	require.NoError(t, e.Reload(context.Background()))
	return e
}

func TestFirstMatchWinsByPriority(t *testing.T) {
	violations := &memoryViolations{}
	e := newTestEngine(t, []Policy{
		{ID: 2, Name: "allow-all", Priority: 5, Effect: EffectAllow},
		{ID: 1, Name: "deny-reports", Priority: 10, Effect: EffectDeny, Condition: Condition{Resource: "reports"}},
	}, violations)

	denied := e.Evaluate(context.Background(), 1, "reports", "read")
	require.False(t, denied.Allowed)
	require.Equal(t, int64(1), denied.PolicyID)

	allowed := e.Evaluate(context.Background(), 1, "users", "read")
	require.True(t, allowed.Allowed)
	require.Equal(t, int64(2), allowed.PolicyID)

	require.Len(t, violations.rows, 1)
	require.Equal(t, int64(1), *violations.rows[0].PolicyID)
}

func TestNoMatchIsDefaultDeny(t *testing.T) {
	violations := &memoryViolations{}
	e := newTestEngine(t, []Policy{
		{ID: 1, Priority: 5, Effect: EffectAllow, Condition: Condition{Resource: "users"}},
	}, violations)

	outcome := e.Evaluate(context.Background(), 7, "reports", "delete")
	require.False(t, outcome.Allowed)
	require.Zero(t, outcome.PolicyID)

	require.Len(t, violations.rows, 1)
	require.Nil(t, violations.rows[0].PolicyID, "default deny records no policy id")
	require.Equal(t, "reports", violations.rows[0].Resource)
	require.Equal(t, "delete", violations.rows[0].Action)
}

func TestAllowWritesNoViolation(t *testing.T) {
	violations := &memoryViolations{}
	e := newTestEngine(t, []Policy{{ID: 1, Priority: 1, Effect: EffectAllow}}, violations)

	outcome := e.Evaluate(context.Background(), 7, "reports", "read")
	require.True(t, outcome.Allowed)
	require.Empty(t, violations.rows)
}

func TestViolationWriteFailureDoesNotFlipDecision(t *testing.T) {
	violations := &memoryViolations{err: errors.New("insert failed")}
	e := newTestEngine(t, nil, violations)

	outcome := e.Evaluate(context.Background(), 7, "reports", "read")
	require.False(t, outcome.Allowed)
}

func TestConditionUserScoping(t *testing.T) {
	violations := &memoryViolations{}
	e := newTestEngine(t, []Policy{
		{ID: 1, Priority: 10, Effect: EffectDeny, Condition: Condition{UserIDs: []int64{42}}},
		{ID: 2, Priority: 5, Effect: EffectAllow},
	}, violations)

	require.False(t, e.Evaluate(context.Background(), 42, "reports", "read").Allowed)
	require.True(t, e.Evaluate(context.Background(), 43, "reports", "read").Allowed)
}

func TestEqualPriorityBreaksTieByID(t *testing.T) {
	e := newTestEngine(t, []Policy{
		{ID: 9, Priority: 5, Effect: EffectDeny},
		{ID: 3, Priority: 5, Effect: EffectAllow},
	}, &memoryViolations{})

	outcome := e.Evaluate(context.Background(), 1, "reports", "read")
	require.True(t, outcome.Allowed)
	require.Equal(t, int64(3), outcome.PolicyID)
}

func TestReloadSwapsPolicySet(t *testing.T) {
	source := &stubPolicySource{policies: []Policy{{ID: 1, Priority: 1, Effect: EffectAllow}}}
	e := NewEngine(source, &memoryViolations{}, nil, fixedClock{at: time.Now()})
	require.NoError(t, e.Reload(context.Background()))
	require.True(t, e.Evaluate(context.Background(), 1, "r", "a").Allowed)

	source.policies = []Policy{{ID: 1, Priority: 1, Effect: EffectDeny}}
	require.NoError(t, e.Reload(context.Background()))
	require.False(t, e.Evaluate(context.Background(), 1, "r", "a").Allowed)
}
