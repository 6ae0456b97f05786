package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GoPolymarket/botfleet/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	state   model.AccountsState
	updated chan struct{}
}

func (s *staticSource) GetAccountsState() model.AccountsState { return s.state.Clone() }
func (s *staticSource) Updated() <-chan struct{} { return s.updated }

type memHistoryRepo struct {
	records []*model.HistoryRecord
	listErr error
}

func (m *memHistoryRepo) Insert(ctx context.Context, rec *model.HistoryRecord) error {
	m.records = append(m.records, rec)
	return nil
}

func (m *memHistoryRepo) List(ctx context.Context, limit int, from, to *time.Time) ([]*model.HistoryRecord, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.records, nil
}

func sampleState() model.AccountsState {
	return model.AccountsState{
		"acct1": {"exA": {{Token: "SOL", Units: decimal.NewFromInt(10), Price: decimal.NewFromInt(20), Value: decimal.NewFromInt(200), AvailableUnits: decimal.NewFromInt(10)}}},
		"empty": {},
	}
}

func TestNextDumpTime(t *testing.T) {
	at := func(h, m, s int) time.Time { return time.Date(2024, 5, 1, h, m, s, 0, time.UTC) }
	tests := []struct {
		name     string
		now      time.Time
		interval time.Duration
		want     time.Time
	}{
		{"five minute boundary", at(12, 1, 30), 5 * time.Minute, at(12, 5, 0)},
		{"exact boundary moves forward", at(12, 5, 0), 5 * time.Minute, at(12, 10, 0)},
		{"one minute", at(12, 1, 30), time.Minute, at(12, 2, 0)},
		{"hour rollover", at(12, 58, 10), 15 * time.Minute, at(13, 0, 0)},
		{"sub-minute clamps to one", at(12, 1, 30), 10 * time.Second, at(12, 2, 0)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NextDumpTime(tc.now, tc.interval))
		})
	}
}

func TestDumpAppendsJSONLines(t *testing.T) {
	src := &staticSource{state: sampleState(), updated: make(chan struct{})}
	repo := &memHistoryRepo{listErr: errors.New("db down")}
	svc, err := NewHistoryService(t.TempDir(), "history.json", time.Minute, src, repo)
	require.NoError(t, err)

	svc.Dump()
	svc.Dump()
	svc.Close()

	records, err := svc.LoadHistory(context.Background(), 0, nil, nil)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.True(t, records[0].State["acct1"]["exA"][0].Value.Equal(decimal.NewFromInt(200)))
	assert.NotNil(t, records[0].State["empty"])
	assert.Len(t, repo.records, 2)

	limited, err := svc.LoadHistory(context.Background(), 1, nil, nil)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestLoadHistoryMissingFile(t *testing.T) {
	src := &staticSource{state: sampleState(), updated: make(chan struct{})}
	svc, err := NewHistoryService(t.TempDir(), "history.json", time.Minute, src, nil)
	require.NoError(t, err)
	svc.Close()

	records, err := svc.LoadHistory(context.Background(), 0, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDumpLoopWaitsForSignalThenAligns(t *testing.T) {
	src := &staticSource{state: sampleState(), updated: make(chan struct{})}
	svc, err := NewHistoryService(t.TempDir(), "history.json", 5*time.Minute, src, nil)
	require.NoError(t, err)

	fixed := time.Date(2024, 5, 1, 12, 1, 30, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	waits := make(chan time.Duration, 8)
	var calls int32
	svc.after = func(d time.Duration) <-chan time.Time {
		waits <- d
		ch := make(chan time.Time, 1)
		if atomic.AddInt32(&calls, 1) == 1 {
			ch <- fixed
		}
		return ch
	}

	svc.Start(context.Background())

	select {
	case <-waits:
		t.Fatalf("dump loop must not run before the first state update")
	case <-time.After(50 * time.Millisecond):
	}

	close(src.updated)
	select {
	case d := <-waits:
		assert.Equal(t, 3*time.Minute+30*time.Second, d)
	case <-time.After(time.Second):
		t.Fatalf("dump loop did not start")
	}
	select {
	case <-waits:
	case <-time.After(time.Second):
		t.Fatalf("dump loop did not schedule the next dump")
	}

	svc.Close()
	records, err := svc.LoadHistory(context.Background(), 0, nil, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Timestamp.Equal(fixed))
}
