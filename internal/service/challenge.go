package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/passgate/passgate/internal/domain"
	"github.com/passgate/passgate/internal/storage"
	"github.com/passgate/passgate/pkg/config"
)

// ErrNoPendingChallenge signals a replay or out-of-order verification attempt.
var ErrNoPendingChallenge = errors.New("no pending challenge")

// ChallengeBroker issues one-time challenges bound to a pending ceremony and
// hands each one out for verification exactly once. The challenge lives on
// the session record itself; sessions never share challenge state.
type ChallengeBroker struct {
	store  storage.Store
	logger *zap.Logger
	maxAge time.Duration
}

// NewChallengeBroker creates a new ChallengeBroker
func NewChallengeBroker(store storage.Store, cfg *config.Config, logger *zap.Logger) *ChallengeBroker {
	maxAge := time.Duration(cfg.Session.ChallengeMaxAgeSeconds) * time.Second
	if maxAge <= 0 {
		maxAge = 5 * time.Minute
	}

	return &ChallengeBroker{
		store:  store,
		logger: logger.Named("challenge-broker"),
		maxAge: maxAge,
	}
}

// Issue generates a fresh challenge and stores it as the session's sole
// pending challenge. Any previously issued, unconsumed challenge for the
// session is invalidated (last-issued-wins).
func (b *ChallengeBroker) Issue(ctx context.Context, session *domain.AuthSession, purpose domain.ChallengePurpose, identityID string) (string, error) {
	challenge := domain.NewChallenge()
	session.PendingChallenge = &domain.PendingChallenge{
		Challenge: challenge,
		BoundTo:   identityID,
		Purpose:   purpose,
		IssuedAt:  time.Now(),
	}

	if err := b.store.Sessions().Update(ctx, session); err != nil {
		return "", fmt.Errorf("failed to store challenge: %w", err)
	}

	b.logger.Debug("Challenge issued",
		zap.String("session_id", session.ID),
		zap.String("purpose", string(purpose)))
	return challenge, nil
}

// Consume retrieves and clears the session's pending challenge. The clear is
// persisted before the challenge value is judged, so a given challenge can
// be checked against at most once even when downstream verification fails.
func (b *ChallengeBroker) Consume(ctx context.Context, session *domain.AuthSession, purpose domain.ChallengePurpose) (*domain.PendingChallenge, error) {
	pending := session.PendingChallenge
	session.PendingChallenge = nil

	if err := b.store.Sessions().Update(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to clear challenge: %w", err)
	}

	if pending == nil || pending.Purpose != purpose {
		return nil, ErrNoPendingChallenge
	}
	if pending.Age() > b.maxAge {
		b.logger.Debug("Stale challenge rejected", zap.String("session_id", session.ID))
		return nil, ErrNoPendingChallenge
	}

	return pending, nil
}
