package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSequencer struct {
	next  int64
	err   error
	calls []string
}

func (s *stubSequencer) NextSequence(_ context.Context, scope string) (int64, error) {
	s.calls = append(s.calls, scope)
	if s.err != nil {
		return 0, s.err
	}
	s.next++
	return s.next, nil
}

func TestNumberGeneratorFormatsUTCDay(t *testing.T) {
	primary := &stubSequencer{next: 41}
	gen := NewNumberGenerator(primary, nil)

	local := time.Date(2026, 1, 1, 1, 30, 0, 0, time.FixedZone("UTC+3", 3*3600))
	number, err := gen.Next(context.Background(), local)
	require.NoError(t, err)
	assert.Equal(t, "CR-20251231-0042", number)
	assert.Equal(t, []string{"20251231"}, primary.calls)
}

func TestNumberGeneratorFallsBack(t *testing.T) {
	primary := &stubSequencer{err: errors.New("redis down")}
	fallback := &stubSequencer{}
	gen := NewNumberGenerator(primary, fallback)

	number, err := gen.Next(context.Background(), time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "CR-20261019-0001", number)
	assert.Len(t, primary.calls, 1)
	assert.Len(t, fallback.calls, 1)
}

func TestNumberGeneratorWithoutSources(t *testing.T) {
	_, err := NewNumberGenerator(nil, nil).Next(context.Background(), time.Now())
	assert.Error(t, err)

	_, err = NewNumberGenerator(&stubSequencer{err: errors.New("down")}, nil).Next(context.Background(), time.Now())
	assert.Error(t, err)
}

type stubStore struct {
	stubSequencer
	highest int64
}

func (s *stubStore) HighestSequence(context.Context, string) (int64, error) {
	return s.highest, nil
}

type advancingSequencer struct {
	stubSequencer
	floors map[string]int64
}

func (s *advancingSequencer) AdvanceSequence(_ context.Context, scope string, floor int64) error {
	if s.floors == nil {
		s.floors = map[string]int64{}
	}
	s.floors[scope] = floor
	if s.next < floor {
		s.next = floor
	}
	return nil
}

func TestNumberGeneratorResyncAdvancesPrimary(t *testing.T) {
	primary := &advancingSequencer{stubSequencer: stubSequencer{next: 3}}
	fallback := &stubStore{highest: 6}
	gen := NewNumberGenerator(primary, fallback)
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	require.NoError(t, gen.Resync(context.Background(), now))
	assert.Equal(t, map[string]int64{"20261019": 6}, primary.floors)

	number, err := gen.Next(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, "CR-20261019-0007", number)
}

func TestNumberGeneratorResyncNoop(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	plain := &stubSequencer{}
	assert.NoError(t, NewNumberGenerator(plain, &stubStore{highest: 4}).Resync(context.Background(), now))
	assert.NoError(t, NewNumberGenerator(nil, &stubStore{highest: 4}).Resync(context.Background(), now))

	primary := &advancingSequencer{}
	require.NoError(t, NewNumberGenerator(primary, &stubStore{}).Resync(context.Background(), now))
	assert.Nil(t, primary.floors)
	require.NoError(t, NewNumberGenerator(primary, &stubSequencer{}).Resync(context.Background(), now))
	assert.Nil(t, primary.floors)
}
