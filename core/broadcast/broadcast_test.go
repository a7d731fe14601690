package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuznya/studiobot/core/dialog"
	"github.com/kuznya/studiobot/core/storage"
	"github.com/kuznya/studiobot/core/transport"
)

const adminID = int64(999)

type fakeTransport struct {
	mu     sync.Mutex
	sent   []int64
	failAt map[int64]error
}

func (f *fakeTransport) Send(_ context.Context, chatID int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failAt[chatID]; ok {
		return err
	}
	f.sent = append(f.sent, chatID)
	return nil
}

func seedUsers(t *testing.T, r *dialog.Registry, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		_, err := r.SaveUser(context.Background(), dialog.User{ID: id})
		require.NoError(t, err)
	}
}

func TestRunDeliversToAllUsers(t *testing.T) {
	registry := dialog.NewRegistry(storage.NewMemoryStore())
	seedUsers(t, registry, 1, 2, 3, adminID)
	tr := &fakeTransport{}

	d := New(tr, registry, adminID, 0, 0)
	report, err := d.Run(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, 3, report.Total)
	require.Equal(t, 3, report.Delivered)
	require.Zero(t, report.Failed)
	require.Zero(t, report.Blocked)
	require.NoError(t, report.Errs)
	require.ElementsMatch(t, []int64{1, 2, 3}, tr.sent)
}

func TestRunCountsBlockedWithinFailed(t *testing.T) {
	registry := dialog.NewRegistry(storage.NewMemoryStore())
	seedUsers(t, registry, 1, 2, 3, 4)
	tr := &fakeTransport{failAt: map[int64]error{
		2: &transport.DeliveryError{ChatID: 2, Blocked: true},
		3: &transport.DeliveryError{ChatID: 3, Err: errors.New("timeout")},
	}}

	d := New(tr, registry, adminID, 0, 0)
	report, err := d.Run(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, 4, report.Total)
	require.Equal(t, 2, report.Delivered)
	require.Equal(t, 2, report.Failed)
	require.Equal(t, 1, report.Blocked)
	require.Equal(t, report.Total, report.Delivered+report.Failed)
	require.Error(t, report.Errs)
}

func TestRunBlockedRecipientKeepsAccountingClosed(t *testing.T) {
	registry := dialog.NewRegistry(storage.NewMemoryStore())
	seedUsers(t, registry, 1, 2, 3)
	tr := &fakeTransport{failAt: map[int64]error{
		2: &transport.DeliveryError{ChatID: 2, Blocked: true},
	}}

	d := New(tr, registry, adminID, 0, 0)
	report, err := d.Run(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, 3, report.Total)
	require.Equal(t, 2, report.Delivered)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, 1, report.Blocked)
	require.Equal(t, report.Total, report.Delivered+report.Failed)
}

func TestRunContinuesPastFailures(t *testing.T) {
	registry := dialog.NewRegistry(storage.NewMemoryStore())
	seedUsers(t, registry, 1, 2, 3)
	tr := &fakeTransport{failAt: map[int64]error{
		1: &transport.DeliveryError{ChatID: 1, Err: errors.New("boom")},
	}}

	d := New(tr, registry, adminID, 0, 0)
	report, err := d.Run(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, 2, report.Delivered)
	require.ElementsMatch(t, []int64{2, 3}, tr.sent)
}

func TestRunExcludesAdmin(t *testing.T) {
	registry := dialog.NewRegistry(storage.NewMemoryStore())
	seedUsers(t, registry, adminID)
	tr := &fakeTransport{}

	d := New(tr, registry, adminID, 0, 0)
	report, err := d.Run(context.Background(), "hello")
	require.NoError(t, err)
	require.Zero(t, report.Total)
	require.Empty(t, tr.sent)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	registry := dialog.NewRegistry(storage.NewMemoryStore())
	seedUsers(t, registry, 1, 2, 3)
	tr := &fakeTransport{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := New(tr, registry, adminID, 0, 0)
	report, err := d.Run(ctx, "hello")
	require.NoError(t, err)
	require.Zero(t, report.Delivered)
	require.Error(t, report.Errs)
}

func TestRunBumpsBroadcastCounter(t *testing.T) {
	registry := dialog.NewRegistry(storage.NewMemoryStore())
	seedUsers(t, registry, 1)
	tr := &fakeTransport{}

	d := New(tr, registry, adminID, 0, 0)
	_, err := d.Run(context.Background(), "hello")
	require.NoError(t, err)

	stats, err := registry.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.BroadcastsSent)
}
