package referral

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuznya/studiobot/core/storage"
)

func newTestEngine(t *testing.T, threshold int) *Engine {
	t.Helper()
	return New(storage.NewMemoryStore(), threshold)
}

func TestAddReferralCountsUniqueReferees(t *testing.T) {
	e := newTestEngine(t, 3)
	ctx := context.Background()

	res, err := e.AddReferral(ctx, 1, 100)
	require.NoError(t, err)
	require.True(t, res.Recorded)
	require.Equal(t, 1, res.Referees)
	require.False(t, res.PromoIssued)

	// Same referee again: no-op.
	res, err = e.AddReferral(ctx, 1, 100)
	require.NoError(t, err)
	require.False(t, res.Recorded)
	require.Equal(t, 1, res.Referees)
}

func TestSelfReferralIsNoOp(t *testing.T) {
	e := newTestEngine(t, 3)
	ctx := context.Background()

	res, err := e.AddReferral(ctx, 1, 1)
	require.NoError(t, err)
	require.False(t, res.Recorded)
	require.Equal(t, 0, res.Referees)
}

func TestPromoIssuedExactlyAtThreshold(t *testing.T) {
	e := newTestEngine(t, 3)
	ctx := context.Background()

	res, err := e.AddReferral(ctx, 1, 100)
	require.NoError(t, err)
	require.False(t, res.PromoIssued)

	res, err = e.AddReferral(ctx, 1, 101)
	require.NoError(t, err)
	require.False(t, res.PromoIssued)

	res, err = e.AddReferral(ctx, 1, 102)
	require.NoError(t, err)
	require.True(t, res.PromoIssued)
	require.True(t, strings.HasPrefix(res.PromoCode, "STUDIO-"))

	code, ok, err := e.GetPromoCode(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, res.PromoCode, code)
}

func TestPromoIssuedOnlyOnce(t *testing.T) {
	e := newTestEngine(t, 2)
	ctx := context.Background()

	_, err := e.AddReferral(ctx, 1, 100)
	require.NoError(t, err)
	res, err := e.AddReferral(ctx, 1, 101)
	require.NoError(t, err)
	require.True(t, res.PromoIssued)
	issued := res.PromoCode

	// Further referrals never re-issue or rotate the code.
	res, err = e.AddReferral(ctx, 1, 102)
	require.NoError(t, err)
	require.False(t, res.PromoIssued)

	code, ok, err := e.GetPromoCode(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, issued, code)
}

func TestPromoIssuedOnceUnderConcurrency(t *testing.T) {
	e := newTestEngine(t, 3)
	ctx := context.Background()

	const referees = 12
	issued := make([]bool, referees)
	var wg sync.WaitGroup
	for i := 0; i < referees; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := e.AddReferral(ctx, 1, int64(1000+i))
			require.NoError(t, err)
			issued[i] = res.PromoIssued
		}(i)
	}
	wg.Wait()

	count := 0
	for _, v := range issued {
		if v {
			count++
		}
	}
	require.Equal(t, 1, count, "exactly one call must report the promo issue")

	n, err := e.RefereeCount(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, referees, n)
}

func TestGetPromoCodeBeforeThreshold(t *testing.T) {
	e := newTestEngine(t, 3)
	ctx := context.Background()

	_, err := e.AddReferral(ctx, 1, 100)
	require.NoError(t, err)

	_, ok, err := e.GetPromoCode(ctx, 1)
	require.NoError(t, err)
	require.False(t, ok)
}
