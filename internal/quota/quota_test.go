package quota

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aheige321/true-mastery/internal/domain"
)

type memPersister struct {
	state domain.QuotaState
	saves int
	err   error
}

func (m *memPersister) Quota() domain.QuotaState { return m.state }

func (m *memPersister) SaveQuota(q domain.QuotaState) error {
	if m.err != nil {
		return m.err
	}
	m.state = q
	m.saves++
	return nil
}

func at(day, hour int) func() time.Time {
	return func() time.Time { return time.Date(2024, 3, day, hour, 0, 0, 0, time.Local) }
}

func TestTracker_CheckRollover(t *testing.T) {
	p := &memPersister{state: domain.QuotaState{LastStudyDate: "2024-02-29", TodayNewCount: 7}}
	tr := New(p, at(1, 9), nil)

	require.NoError(t, tr.CheckRollover())
	assert.Equal(t, domain.QuotaState{LastStudyDate: "2024-03-01", TodayNewCount: 0}, p.state)
	assert.Equal(t, 1, p.saves)

	require.NoError(t, tr.CheckRollover())
	assert.Equal(t, 1, p.saves, "second call on the same day is a no-op")
}

func TestTracker_ConsumeUntilExhausted(t *testing.T) {
	p := &memPersister{}
	clock := at(1, 9)
	tr := New(p, func() time.Time { return clock() }, nil)

	const limit = 3
	assert.Equal(t, limit, tr.Remaining(limit))
	for range limit {
		require.NoError(t, tr.ConsumeNewCard())
	}
	assert.Equal(t, 0, tr.Remaining(limit))
	require.NoError(t, tr.ConsumeNewCard())
	assert.Equal(t, 0, tr.Remaining(limit), "never negative")
	assert.Equal(t, 4, p.state.TodayNewCount)

	clock = at(2, 0)
	assert.Equal(t, limit, tr.Remaining(limit), "a new day restores the full quota")
	require.NoError(t, tr.ConsumeNewCard())
	assert.Equal(t, limit-1, tr.Remaining(limit))
	assert.Equal(t, "2024-03-02", p.state.LastStudyDate)
}

func TestTracker_Remaining(t *testing.T) {
	tests := []struct {
		name  string
		state domain.QuotaState
		limit int
		want  int
	}{
		{name: "unlimited", state: domain.QuotaState{LastStudyDate: "2024-03-01", TodayNewCount: 500}, limit: domain.UnlimitedNewCards, want: math.MaxInt},
		{name: "zero limit", limit: 0, want: 0},
		{name: "partially used", state: domain.QuotaState{LastStudyDate: "2024-03-01", TodayNewCount: 5}, limit: 20, want: 15},
		{name: "stale count ignored", state: domain.QuotaState{LastStudyDate: "2024-02-01", TodayNewCount: 20}, limit: 20, want: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New(&memPersister{state: tt.state}, at(1, 12), nil)
			assert.Equal(t, tt.want, tr.Remaining(tt.limit))
		})
	}
}

func TestTracker_PersistErrors(t *testing.T) {
	p := &memPersister{err: errors.New("read-only")}
	tr := New(p, at(1, 9), nil)
	assert.Error(t, tr.ConsumeNewCard())
}
