package revisit

import (
	"context"
	"log/slog"

	"github.com/fwojciec/egress"
)

var _ egress.RevisitStore = (*FallbackStore)(nil)

// FallbackStore writes through to an external store and a local one.
// When the external store fails, the local store answers instead and the
// failure is only logged.
type FallbackStore struct {
	external egress.RevisitStore
	local    egress.RevisitStore
	logger   *slog.Logger
}

// NewFallbackStore creates a FallbackStore. A nil local store uses a MemoryStore.
func NewFallbackStore(external, local egress.RevisitStore, logger *slog.Logger) *FallbackStore {
	if local == nil {
		local = NewMemoryStore()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FallbackStore{external: external, local: local, logger: logger}
}

// FindRevisit prefers the external record and falls back to the local one
// on any external failure other than a miss.
func (s *FallbackStore) FindRevisit(ctx context.Context, url string) (*egress.RevisitInfo, error) {
	info, err := s.external.FindRevisit(ctx, url)
	if err == nil {
		return info, nil
	}
	if egress.ErrorCode(err) != egress.ENOTFOUND {
		s.logger.Warn("external revisit store unavailable, using memory", "op", "find", "url", url, "err", err)
	}
	return s.local.FindRevisit(ctx, url)
}

// SaveRevisit saves to both stores. External failures are swallowed.
func (s *FallbackStore) SaveRevisit(ctx context.Context, info *egress.RevisitInfo) error {
	if err := s.local.SaveRevisit(ctx, info); err != nil {
		return err
	}
	if err := s.external.SaveRevisit(ctx, info); err != nil {
		s.logger.Warn("external revisit store unavailable, using memory", "op", "save", "url", info.URL, "err", err)
	}
	return nil
}

// DeleteRevisit deletes from both stores. External failures are swallowed.
func (s *FallbackStore) DeleteRevisit(ctx context.Context, url string) error {
	if err := s.local.DeleteRevisit(ctx, url); err != nil {
		return err
	}
	if err := s.external.DeleteRevisit(ctx, url); err != nil {
		s.logger.Warn("external revisit store unavailable, using memory", "op", "delete", "url", url, "err", err)
	}
	return nil
}
