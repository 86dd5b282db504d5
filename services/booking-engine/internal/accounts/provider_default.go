//go:build !protogen

package accounts

import "log/slog"

// NewProvider returns the static fallback in builds without generated protos.
func NewProvider(logger *slog.Logger, addr string, fallback *StaticProvider) (Provider, error) {
	if addr != "" {
		logger.Warn("accounts grpc addr configured but protogen build tag absent; using static provider", "addr", addr)
	}
	return fallback, nil
}
