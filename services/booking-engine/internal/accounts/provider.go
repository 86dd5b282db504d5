package accounts

import (
	"context"

	"github.com/dmarin-v/slotbook/services/booking-engine/internal/model"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// Provider is the account/category collaborator. The engine never owns
// accounts, capabilities, roles or preferences; it only reads them.
type Provider interface {
	CapableOperators(ctx context.Context, categoryID string) ([]string, error)
	Preferences(ctx context.Context, userID string) (model.NotificationPreference, error)
	Role(ctx context.Context, userID string) (Role, error)
	Email(ctx context.Context, userID string) (string, error)
}

// StaticProvider serves fixed data; used for local development and tests, and
// as the fallback when the accounts gRPC endpoint is not configured.
type StaticProvider struct {
	Operators map[string][]string // categoryID -> operator ids, stable order
	Prefs     map[string]model.NotificationPreference
	Roles     map[string]Role
	Emails    map[string]string
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		Operators: map[string][]string{},
		Prefs:     map[string]model.NotificationPreference{},
		Roles:     map[string]Role{},
		Emails:    map[string]string{},
	}
}

func (p *StaticProvider) CapableOperators(_ context.Context, categoryID string) ([]string, error) {
	return p.Operators[categoryID], nil
}

func (p *StaticProvider) Preferences(_ context.Context, userID string) (model.NotificationPreference, error) {
	if prefs, ok := p.Prefs[userID]; ok {
		return prefs, nil
	}
	return model.DefaultPreferences(), nil
}

func (p *StaticProvider) Role(_ context.Context, userID string) (Role, error) {
	if role, ok := p.Roles[userID]; ok {
		return role, nil
	}
	return RoleCustomer, nil
}

func (p *StaticProvider) Email(_ context.Context, userID string) (string, error) {
	return p.Emails[userID], nil
}
