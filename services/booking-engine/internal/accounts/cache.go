package accounts

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dmarin-v/slotbook/services/booking-engine/internal/model"
)

// ErrCacheMiss is returned by a PreferenceStore when no cached row exists.
var ErrCacheMiss = errors.New("preference cache miss")

// PreferenceStore is the locally persisted preference cache, kept warm by the
// accounts.preferences.updated consumer so the reminder sweep does not take a
// collaborator round-trip per task.
type PreferenceStore interface {
	Get(ctx context.Context, userID string) (model.NotificationPreference, error)
}

// CachedProvider consults the local cache before the upstream provider.
// Upstream failures fall back to the cache as well, so a collaborator outage
// degrades to possibly stale preferences instead of blocking delivery.
type CachedProvider struct {
	inner  Provider
	store  PreferenceStore
	logger *slog.Logger
}

func NewCachedProvider(inner Provider, store PreferenceStore, logger *slog.Logger) *CachedProvider {
	return &CachedProvider{inner: inner, store: store, logger: logger}
}

func (p *CachedProvider) CapableOperators(ctx context.Context, categoryID string) ([]string, error) {
	return p.inner.CapableOperators(ctx, categoryID)
}

func (p *CachedProvider) Role(ctx context.Context, userID string) (Role, error) {
	return p.inner.Role(ctx, userID)
}

func (p *CachedProvider) Email(ctx context.Context, userID string) (string, error) {
	return p.inner.Email(ctx, userID)
}

func (p *CachedProvider) Preferences(ctx context.Context, userID string) (model.NotificationPreference, error) {
	if p.store != nil {
		prefs, err := p.store.Get(ctx, userID)
		if err == nil {
			return prefs, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			p.logger.Warn("preference cache read failed", "err", err, "user_id", userID)
		}
	}
	return p.inner.Preferences(ctx, userID)
}
