// Package referral tracks invite attribution and issues a promo code
// once a referrer has brought in enough unique users.
package referral

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"log/slog"

	"github.com/kuznya/studiobot/core/logger"
	"github.com/kuznya/studiobot/core/storage"
)

const (
	refPrefix   = "ref:"
	promoPrefix = "promo:"
	codePrefix  = "STUDIO-"
)

// Engine records referrals and holds issued promo codes. All writes for a
// referrer run under that referrer's stripe lock, so the promo code is
// issued exactly once even when referees arrive concurrently.
type Engine struct {
	store     storage.Store
	threshold int

	stripes [64]sync.Mutex
	now     func() time.Time
}

// New builds an engine issuing a promo after threshold unique referees.
func New(store storage.Store, threshold int) *Engine {
	return &Engine{
		store:     store,
		threshold: threshold,
		now:       time.Now,
	}
}

// Result describes the outcome of one AddReferral call.
type Result struct {
	// Referees is the referrer's unique referee count after the call.
	Referees int
	// Recorded is false for self-referrals and repeat referees.
	Recorded bool
	// PromoIssued is true only on the call that crossed the threshold.
	PromoIssued bool
	PromoCode   string
}

// AddReferral attributes refereeID to referrerID. Self-referrals and
// referees already counted are no-ops. Crossing the threshold issues the
// referrer's promo code once.
func (e *Engine) AddReferral(ctx context.Context, referrerID, refereeID int64) (Result, error) {
	if referrerID == refereeID || referrerID == 0 || refereeID == 0 {
		count, err := e.refereeCount(ctx, referrerID)
		return Result{Referees: count}, err
	}

	mu := &e.stripes[uint64(referrerID)%uint64(len(e.stripes))]
	mu.Lock()
	defer mu.Unlock()

	key := refKey(referrerID, refereeID)
	if _, exists, err := e.store.Get(ctx, key); err != nil {
		return Result{}, err
	} else if exists {
		count, err := e.refereeCount(ctx, referrerID)
		return Result{Referees: count}, err
	}

	if err := e.store.Set(ctx, key, e.now().UTC().Format(time.RFC3339)); err != nil {
		return Result{}, err
	}
	count, err := e.refereeCount(ctx, referrerID)
	if err != nil {
		return Result{}, err
	}

	res := Result{Referees: count, Recorded: true}
	logger.SVCReferrals.Info("referral recorded",
		slog.String("event", "referral.add"),
		slog.Int64("referrer_id", referrerID),
		slog.Int64("referee_id", refereeID),
		slog.Int("referees", count),
	)

	if count >= e.threshold {
		code, issued, err := e.issuePromo(ctx, referrerID)
		if err != nil {
			return Result{}, err
		}
		res.PromoIssued = issued
		if issued {
			res.PromoCode = code
		}
	}
	return res, nil
}

// GetPromoCode returns the promo code earned by userID, if any.
func (e *Engine) GetPromoCode(ctx context.Context, userID int64) (string, bool, error) {
	return e.store.Get(ctx, promoKey(userID))
}

// RefereeCount returns how many unique users userID has referred.
func (e *Engine) RefereeCount(ctx context.Context, userID int64) (int, error) {
	return e.refereeCount(ctx, userID)
}

// Threshold returns the configured referee count that earns a promo.
func (e *Engine) Threshold() int {
	return e.threshold
}

func (e *Engine) refereeCount(ctx context.Context, referrerID int64) (int, error) {
	keys, err := e.store.ScanByPrefix(ctx, refPrefix+strconv.FormatInt(referrerID, 10)+":")
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// issuePromo stores a fresh code unless one already exists. The caller
// holds the referrer's stripe lock.
func (e *Engine) issuePromo(ctx context.Context, referrerID int64) (string, bool, error) {
	key := promoKey(referrerID)
	if existing, ok, err := e.store.Get(ctx, key); err != nil {
		return "", false, err
	} else if ok {
		return existing, false, nil
	}

	code := newCode()
	if err := e.store.Set(ctx, key, code); err != nil {
		return "", false, err
	}
	logger.SVCReferrals.Info("promo issued",
		slog.String("event", "promo.issue"),
		slog.Int64("referrer_id", referrerID),
		slog.String("promo", code),
	)
	return code, true, nil
}

func newCode() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return codePrefix + raw[:8]
}

func refKey(referrerID, refereeID int64) string {
	return refPrefix + strconv.FormatInt(referrerID, 10) + ":" + strconv.FormatInt(refereeID, 10)
}

func promoKey(userID int64) string {
	return promoPrefix + strconv.FormatInt(userID, 10)
}
