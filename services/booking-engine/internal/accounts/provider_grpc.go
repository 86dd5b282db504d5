//go:build protogen

package accounts

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmarin-v/slotbook/libs/grpcx"
	accountsv1 "github.com/dmarin-v/slotbook/protos/gen/accounts/v1"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/model"
)

type grpcProvider struct {
	client accountsv1.AccountsServiceClient
}

// NewProvider dials the accounts collaborator; an empty addr or a failed dial
// falls back to the static provider so the engine still starts.
func NewProvider(logger *slog.Logger, addr string, fallback *StaticProvider) (Provider, error) {
	if addr == "" {
		return fallback, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := grpcx.Dial(ctx, addr, grpcx.DialOptions{Timeout: 5 * time.Second})
	if err != nil {
		logger.Warn("accounts grpc provider unavailable, using static fallback", "err", err)
		return fallback, nil
	}
	logger.Info("accounts grpc provider enabled", "addr", addr)
	return &grpcProvider{client: accountsv1.NewAccountsServiceClient(conn)}, nil
}

func (p *grpcProvider) CapableOperators(ctx context.Context, categoryID string) ([]string, error) {
	resp, err := p.client.GetCapableOperators(ctx, &accountsv1.CapableOperatorsRequest{CategoryId: categoryID})
	if err != nil {
		return nil, err
	}
	return resp.GetOperatorIds(), nil
}

func (p *grpcProvider) Preferences(ctx context.Context, userID string) (model.NotificationPreference, error) {
	resp, err := p.client.GetPreferences(ctx, &accountsv1.PreferencesRequest{UserId: userID})
	if err != nil {
		return model.NotificationPreference{}, err
	}
	prefs := model.NotificationPreference{
		ReminderOffsetHours: int(resp.GetReminderOffsetHours()),
		EmailEnabled:        resp.GetEmailEnabled(),
		InAppEnabled:        resp.GetInAppEnabled(),
		DayBeforeEnabled:    resp.GetDayBeforeEnabled(),
		HoursBeforeEnabled:  resp.GetHoursBeforeEnabled(),
	}
	if kinds := resp.GetEnabledKinds(); len(kinds) > 0 {
		prefs.EnabledKinds = make(map[model.ReminderKind]bool, len(kinds))
		for _, k := range kinds {
			prefs.EnabledKinds[model.NormalizeReminderKind(k)] = true
		}
	}
	return prefs, nil
}

func (p *grpcProvider) Role(ctx context.Context, userID string) (Role, error) {
	resp, err := p.client.GetRole(ctx, &accountsv1.RoleRequest{UserId: userID})
	if err != nil {
		return "", err
	}
	return Role(resp.GetRole()), nil
}

func (p *grpcProvider) Email(ctx context.Context, userID string) (string, error) {
	resp, err := p.client.GetProfile(ctx, &accountsv1.ProfileRequest{UserId: userID})
	if err != nil {
		return "", err
	}
	return resp.GetEmail(), nil
}
