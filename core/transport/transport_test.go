package transport

import (
	"context"
	"errors"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestShouldRetryTransientErrors(t *testing.T) {
	require.False(t, ShouldRetry(nil))
	require.False(t, ShouldRetry(errors.New("telegram: bad request (400)")))

	require.True(t, ShouldRetry(timeoutErr{}))
	require.True(t, ShouldRetry(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	require.True(t, ShouldRetry(&url.Error{Op: "Post", URL: "https://api", Err: timeoutErr{}}))
}

func TestClassifyError(t *testing.T) {
	require.Equal(t, "timeout", classifyError(context.DeadlineExceeded))
	require.Equal(t, "dial", classifyError(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	require.Equal(t, "dns", classifyError(&net.DNSError{Name: "api.telegram.org"}))
	require.Equal(t, "unknown", classifyError(errors.New("weird")))
}

func TestSanitizeErrorRedactsToken(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123456:AAH-secret_token/sendMessage": timeout`)
	cleaned := SanitizeError(err)
	require.NotContains(t, cleaned, "AAH-secret_token")
	require.Contains(t, cleaned, "bot<redacted>")
}

func TestDeliveryError(t *testing.T) {
	cause := errors.New("boom")
	err := &DeliveryError{ChatID: 42, Err: cause}
	require.ErrorIs(t, err, cause)
	require.False(t, IsBlocked(err))

	blocked := &DeliveryError{ChatID: 42, Blocked: true}
	require.True(t, IsBlocked(blocked))
	require.Contains(t, blocked.Error(), "blocked")
}

func TestFuncAdapter(t *testing.T) {
	var gotChat int64
	var gotText string
	tr := Func(func(_ context.Context, chatID int64, text string) error {
		gotChat, gotText = chatID, text
		return nil
	})
	require.NoError(t, tr.Send(context.Background(), 7, "hi"))
	require.Equal(t, int64(7), gotChat)
	require.Equal(t, "hi", gotText)
}
