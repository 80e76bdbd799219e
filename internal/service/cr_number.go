package service

import (
	"context"
	"fmt"
	"time"
)

// Sequencer hands out increasing counters per scope.
type Sequencer interface {
	NextSequence(ctx context.Context, scope string) (int64, error)
}

// SequenceAdvancer can move a counter forward so it never reissues values at or below floor.
type SequenceAdvancer interface {
	AdvanceSequence(ctx context.Context, scope string, floor int64) error
}

// SequenceInspector reports the highest sequence already persisted for scope.
type SequenceInspector interface {
	HighestSequence(ctx context.Context, scope string) (int64, error)
}

// NumberGenerator produces human-readable change request numbers such as CR-20261019-0007.
type NumberGenerator struct {
	primary  Sequencer
	fallback Sequencer
}

// NewNumberGenerator uses primary and falls back when it errors. Either may be nil.
func NewNumberGenerator(primary, fallback Sequencer) *NumberGenerator {
	return &NumberGenerator{primary: primary, fallback: fallback}
}

// Next returns the number for a change request created at now.
func (g *NumberGenerator) Next(ctx context.Context, now time.Time) (string, error) {
	day := sequenceScope(now)
	var (
		n   int64
		err error
	)
	if g.primary != nil {
		n, err = g.primary.NextSequence(ctx, day)
	}
	if (g.primary == nil || err != nil) && g.fallback != nil {
		n, err = g.fallback.NextSequence(ctx, day)
	}
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", fmt.Errorf("no sequence source configured")
	}
	return fmt.Sprintf("CR-%s-%04d", day, n), nil
}

// Resync moves the primary counter of now's day past every number the store
// already holds. It is a no-op unless the primary can be advanced and the
// fallback can report what it has stored.
func (g *NumberGenerator) Resync(ctx context.Context, now time.Time) error {
	advancer, ok := g.primary.(SequenceAdvancer)
	if !ok {
		return nil
	}
	inspector, ok := g.fallback.(SequenceInspector)
	if !ok {
		return nil
	}
	day := sequenceScope(now)
	highest, err := inspector.HighestSequence(ctx, day)
	if err != nil {
		return fmt.Errorf("read highest sequence: %w", err)
	}
	if highest == 0 {
		return nil
	}
	return advancer.AdvanceSequence(ctx, day, highest)
}

func sequenceScope(now time.Time) string {
	return now.UTC().Format("20060102")
}
