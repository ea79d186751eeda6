package store

import (
	"context"
	"time"

	"github.com/amishk599/autoapply/internal/model"
)

// NopStore is a no-op store used in dry-run mode. Nothing is remembered, so
// quotas start at zero and no job ever counts as already applied.
type NopStore struct{}

func NewNopStore() *NopStore { return &NopStore{} }

func (s *NopStore) SaveApplication(context.Context, *model.Application) error { return nil }
func (s *NopStore) HasApplied(context.Context, string, string) (bool, error) { return false, nil }
func (s *NopStore) ListApplications(context.Context, string, int) ([]model.Application, error) {
	return nil, nil
}
func (s *NopStore) UpdateApplicationStatus(context.Context, int64, model.ApplicationStatus, time.Time) error {
	return nil
}
func (s *NopStore) Stats(_ context.Context, userID string, _ time.Time) (model.UserStats, error) {
	return model.UserStats{UserID: userID}, nil
}
func (s *NopStore) EnsureQuota(_ context.Context, userID, date string) (model.QuotaRecord, error) {
	return model.QuotaRecord{UserID: userID, Date: date}, nil
}
func (s *NopStore) IncrementQuota(context.Context, string, string, time.Time) error { return nil }
func (s *NopStore) CountApplicationsSince(context.Context, string, time.Time) (int, error) {
	return 0, nil
}
func (s *NopStore) Close() error { return nil }
