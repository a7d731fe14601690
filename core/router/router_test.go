package router

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kuznya/studiobot/core/dialog"
	"github.com/kuznya/studiobot/core/ratelimit"
	"github.com/kuznya/studiobot/core/storage"
	"github.com/kuznya/studiobot/core/transport"
)

const adminID = int64(999)

type capture struct {
	mu    sync.Mutex
	chats []int64
	texts []string
	fail  error
}

func (c *capture) Send(_ context.Context, chatID int64, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.chats = append(c.chats, chatID)
	c.texts = append(c.texts, text)
	return nil
}

func newTestRouter(t *testing.T, opts Options) (*Router, *dialog.Registry, *capture) {
	t.Helper()
	store := storage.NewMemoryStore()
	registry := dialog.NewRegistry(store)
	limiter := ratelimit.New(store, time.Minute, 10)
	tr := &capture{}
	opts.AdminID = adminID
	return New(registry, limiter, tr, opts), registry, tr
}

func TestUserMessageRelayedToAdmin(t *testing.T) {
	r, registry, tr := newTestRouter(t, Options{})
	ctx := context.Background()

	_, _, err := registry.StartDialog(ctx, 42)
	require.NoError(t, err)

	delivery, err := r.HandleUserMessage(ctx, dialog.User{ID: 42, Username: "kuz"}, "hello")
	require.NoError(t, err)
	require.False(t, delivery.Started)
	require.Equal(t, 1, delivery.Session.UserMessages)

	require.Equal(t, []int64{adminID}, tr.chats)
	require.Contains(t, tr.texts[0], "@kuz")
	require.Contains(t, tr.texts[0], "hello")
}

func TestUserMessageWithoutSessionRejected(t *testing.T) {
	r, _, tr := newTestRouter(t, Options{})

	_, err := r.HandleUserMessage(context.Background(), dialog.User{ID: 42}, "hello")
	require.ErrorIs(t, err, ErrNoActiveSession)
	require.Empty(t, tr.chats, "nothing may be delivered without a session")
}

func TestUserMessageAutoStartsSession(t *testing.T) {
	r, registry, tr := newTestRouter(t, Options{AutoStart: true})
	ctx := context.Background()

	delivery, err := r.HandleUserMessage(ctx, dialog.User{ID: 42}, "hello")
	require.NoError(t, err)
	require.True(t, delivery.Started)
	require.Len(t, tr.chats, 1)

	_, ok, err := registry.GetActiveSession(ctx, 42)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRateLimitedMessageDoesNotAutoStartSession(t *testing.T) {
	store := storage.NewMemoryStore()
	registry := dialog.NewRegistry(store)
	limiter := ratelimit.New(store, time.Minute, 1)
	tr := &capture{}
	r := New(registry, limiter, tr, Options{AdminID: adminID, AutoStart: true})
	ctx := context.Background()

	delivery, err := r.HandleUserMessage(ctx, dialog.User{ID: 42}, "first")
	require.NoError(t, err)
	require.True(t, delivery.Started)

	_, ended, err := registry.EndDialog(ctx, 42)
	require.NoError(t, err)
	require.True(t, ended)

	_, err = r.HandleUserMessage(ctx, dialog.User{ID: 42}, "second")
	require.ErrorIs(t, err, ErrRateLimited)

	_, ok, err := registry.GetActiveSession(ctx, 42)
	require.NoError(t, err)
	require.False(t, ok, "rate-limited message must not open a session")
}

func TestUserMessageRateLimited(t *testing.T) {
	store := storage.NewMemoryStore()
	registry := dialog.NewRegistry(store)
	limiter := ratelimit.New(store, time.Minute, 2)
	tr := &capture{}
	r := New(registry, limiter, tr, Options{AdminID: adminID})
	ctx := context.Background()

	_, _, err := registry.StartDialog(ctx, 42)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := r.HandleUserMessage(ctx, dialog.User{ID: 42}, "msg")
		require.NoError(t, err)
	}
	_, err = r.HandleUserMessage(ctx, dialog.User{ID: 42}, "msg")
	require.ErrorIs(t, err, ErrRateLimited)
	require.Len(t, tr.chats, 2, "rejected message must not be delivered")

	session, ok, err := registry.GetActiveSession(ctx, 42)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, session.UserMessages, "rejected message must not be counted")
}

func TestUserMessageTooLong(t *testing.T) {
	r, registry, tr := newTestRouter(t, Options{MaxMessageLength: 10})
	ctx := context.Background()

	_, _, err := registry.StartDialog(ctx, 42)
	require.NoError(t, err)

	_, err = r.HandleUserMessage(ctx, dialog.User{ID: 42}, strings.Repeat("a", 11))
	require.ErrorIs(t, err, ErrMessageTooLong)
	require.Empty(t, tr.chats)
}

func TestUserMessageDeliveryFailure(t *testing.T) {
	r, registry, tr := newTestRouter(t, Options{})
	ctx := context.Background()

	_, _, err := registry.StartDialog(ctx, 42)
	require.NoError(t, err)
	tr.fail = &transport.DeliveryError{ChatID: adminID, Err: errors.New("timeout")}

	_, err = r.HandleUserMessage(ctx, dialog.User{ID: 42}, "hello")
	var de *transport.DeliveryError
	require.ErrorAs(t, err, &de)

	session, ok, err := registry.GetActiveSession(ctx, 42)
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, session.UserMessages, "failed delivery must not be counted")
}

func TestAdminReplyRoutedToFocusedUser(t *testing.T) {
	r, registry, tr := newTestRouter(t, Options{})
	ctx := context.Background()

	_, _, err := registry.StartDialog(ctx, 42)
	require.NoError(t, err)
	require.NoError(t, registry.SetAdminFocus(ctx, adminID, 42))

	session, err := r.HandleAdminReply(ctx, "reply text")
	require.NoError(t, err)
	require.Equal(t, 1, session.AdminMessages)
	require.Equal(t, []int64{42}, tr.chats)
	require.Equal(t, []string{"reply text"}, tr.texts)
}

func TestAdminReplyWithoutFocus(t *testing.T) {
	r, _, tr := newTestRouter(t, Options{})

	_, err := r.HandleAdminReply(context.Background(), "reply")
	require.ErrorIs(t, err, ErrNoActiveSession)
	require.Empty(t, tr.chats)
}

func TestAdminReplyToEndedSessionClearsFocus(t *testing.T) {
	r, registry, tr := newTestRouter(t, Options{})
	ctx := context.Background()

	_, _, err := registry.StartDialog(ctx, 42)
	require.NoError(t, err)
	require.NoError(t, registry.SetAdminFocus(ctx, adminID, 42))
	_, _, err = registry.EndDialog(ctx, 42)
	require.NoError(t, err)

	_, err = r.HandleAdminReply(ctx, "reply")
	require.ErrorIs(t, err, ErrNoActiveSession)
	require.Empty(t, tr.chats)

	_, ok, err := registry.GetAdminFocus(ctx, adminID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAdminReplyNotRateLimited(t *testing.T) {
	store := storage.NewMemoryStore()
	registry := dialog.NewRegistry(store)
	limiter := ratelimit.New(store, time.Minute, 1)
	tr := &capture{}
	r := New(registry, limiter, tr, Options{AdminID: adminID})
	ctx := context.Background()

	_, _, err := registry.StartDialog(ctx, 42)
	require.NoError(t, err)
	require.NoError(t, registry.SetAdminFocus(ctx, adminID, 42))

	for i := 0; i < 5; i++ {
		_, err := r.HandleAdminReply(ctx, "reply")
		require.NoError(t, err)
	}
	require.Len(t, tr.chats, 5)
}

func TestAnonymousUserFallbackLabel(t *testing.T) {
	r, registry, tr := newTestRouter(t, Options{})
	ctx := context.Background()

	_, _, err := registry.StartDialog(ctx, 42)
	require.NoError(t, err)

	_, err = r.HandleUserMessage(ctx, dialog.User{ID: 42}, "hi")
	require.NoError(t, err)
	require.Contains(t, tr.texts[0], "id42")
}
