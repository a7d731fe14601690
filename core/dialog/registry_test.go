package dialog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kuznya/studiobot/core/storage"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(storage.NewMemoryStore())
}

func TestStartDialogCreatesSession(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	session, created, err := r.StartDialog(ctx, 100)
	require.NoError(t, err)
	require.True(t, created)
	require.NotEmpty(t, session.ID)
	require.Equal(t, int64(100), session.UserID)
	require.False(t, session.StartedAt.IsZero())
}

func TestStartDialogIsIdempotent(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	first, created, err := r.StartDialog(ctx, 100)
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := r.StartDialog(ctx, 100)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)

	stats, err := r.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.TotalDialogs)
}

func TestStartDialogConcurrentSameUser(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	const workers = 16
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session, _, err := r.StartDialog(ctx, 7)
			require.NoError(t, err)
			ids[i] = session.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		require.Equal(t, ids[0], id)
	}

	stats, err := r.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.TotalDialogs)
	require.Equal(t, 1, stats.ActiveDialogs)
}

func TestEndDialogArchivesAndClearsFocus(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	const adminID = int64(999)

	session, _, err := r.StartDialog(ctx, 42)
	require.NoError(t, err)
	require.NoError(t, r.SetAdminFocus(ctx, adminID, 42))

	ended, ok, err := r.EndDialog(ctx, 42)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, session.ID, ended.ID)
	require.False(t, ended.EndedAt.IsZero())

	_, ok, err = r.GetActiveSession(ctx, 42)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = r.GetAdminFocus(ctx, adminID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEndDialogWithoutSessionIsNoOp(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	_, ok, err := r.EndDialog(ctx, 42)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRecordMessageCounts(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	_, _, err := r.StartDialog(ctx, 5)
	require.NoError(t, err)

	session, err := r.RecordMessage(ctx, 5, false)
	require.NoError(t, err)
	require.Equal(t, 1, session.UserMessages)
	require.Equal(t, 0, session.AdminMessages)

	session, err = r.RecordMessage(ctx, 5, true)
	require.NoError(t, err)
	require.Equal(t, 1, session.UserMessages)
	require.Equal(t, 1, session.AdminMessages)

	stats, err := r.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.TotalMessages)
}

func TestRecordMessageRequiresSession(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.RecordMessage(context.Background(), 5, false)
	require.ErrorIs(t, err, ErrNoActiveSession)
}

func TestSetAdminFocusRequiresSession(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	const adminID = int64(999)

	err := r.SetAdminFocus(ctx, adminID, 42)
	require.ErrorIs(t, err, ErrNoActiveSession)

	_, _, err = r.StartDialog(ctx, 42)
	require.NoError(t, err)
	require.NoError(t, r.SetAdminFocus(ctx, adminID, 42))

	focused, ok, err := r.GetAdminFocus(ctx, adminID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(42), focused)
}

func TestSetAdminFocusRacingEndDialog(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	const adminID = int64(999)

	// The stripe lock serializes the two calls: either the focus lands
	// first and EndDialog clears it, or EndDialog wins and SetAdminFocus
	// sees no session. Both orderings leave no focus behind.
	for i := 0; i < 50; i++ {
		_, _, err := r.StartDialog(ctx, 42)
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := r.SetAdminFocus(ctx, adminID, 42); err != nil {
				require.ErrorIs(t, err, ErrNoActiveSession)
			}
		}()
		go func() {
			defer wg.Done()
			_, _, err := r.EndDialog(ctx, 42)
			require.NoError(t, err)
		}()
		wg.Wait()

		_, ok, err := r.GetAdminFocus(ctx, adminID)
		require.NoError(t, err)
		require.False(t, ok, "focus must not outlive the session")
	}
}

func TestActiveSessionsOrderedByStart(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	base := time.Now().UTC()
	ticks := 0
	r.now = func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * time.Second)
	}

	for _, id := range []int64{30, 10, 20} {
		_, _, err := r.StartDialog(ctx, id)
		require.NoError(t, err)
	}

	sessions, err := r.ActiveSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	require.Equal(t, int64(30), sessions[0].UserID)
	require.Equal(t, int64(10), sessions[1].UserID)
	require.Equal(t, int64(20), sessions[2].UserID)
}

func TestSaveUserPreservesFirstSeen(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	first, err := r.SaveUser(ctx, User{ID: 1, Username: "old", ReferredBy: 77})
	require.NoError(t, err)
	require.False(t, first.JoinedAt.IsZero())

	updated, err := r.SaveUser(ctx, User{ID: 1, Username: "new"})
	require.NoError(t, err)
	require.Equal(t, first.JoinedAt, updated.JoinedAt)
	require.Equal(t, int64(77), updated.ReferredBy)
	require.Equal(t, "new", updated.Username)
}

func TestUserIDsSortedNumerically(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	for _, id := range []int64{100, 2, 30} {
		_, err := r.SaveUser(ctx, User{ID: id})
		require.NoError(t, err)
	}

	ids, err := r.UserIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{2, 30, 100}, ids)
}

func TestModeDefaultsToIdle(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	const adminID = int64(999)

	mode, err := r.GetMode(ctx, adminID)
	require.NoError(t, err)
	require.Equal(t, ModeIdle, mode)

	require.NoError(t, r.SetMode(ctx, adminID, ModeBroadcasting))
	mode, err = r.GetMode(ctx, adminID)
	require.NoError(t, err)
	require.Equal(t, ModeBroadcasting, mode)
}

func TestDisplayName(t *testing.T) {
	require.Equal(t, "@kuz", User{Username: "kuz", FirstName: "K"}.DisplayName())
	require.Equal(t, "Kuz Nya", User{FirstName: "Kuz", LastName: "Nya"}.DisplayName())
	require.Equal(t, "Kuz", User{FirstName: "Kuz"}.DisplayName())
	require.Equal(t, "", User{}.DisplayName())
}
