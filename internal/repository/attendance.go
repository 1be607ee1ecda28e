package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/aman-churiwal/crm-gateway/internal/models"
	"github.com/aman-churiwal/crm-gateway/internal/storage"
)

type AttendanceRepository struct {
	db  *storage.Postgres
	now func() time.Time
}

func NewAttendanceRepository(db *storage.Postgres) *AttendanceRepository {
	return &AttendanceRepository{db: db, now: time.Now}
}

// WithClock overrides the local clock, for tests.
func (r *AttendanceRepository) WithClock(now func() time.Time) *AttendanceRepository {
	r.now = now
	return r
}

// AutoFinalizeOrphanedAttendance closes every session still open from a previous
// local day. Check-out is set to the last second of the check-in day. Sessions
// that are already closed are not matched, so repeated runs change nothing.
func (r *AttendanceRepository) AutoFinalizeOrphanedAttendance(ctx context.Context) (int64, error) {
	midnight := startOfDay(r.now())

	var closed int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var orphans []models.WorkSession
		err := tx.WithContext(ctx).
			Model(&models.WorkSession{}).
			Select("id", "check_in").
			Where("check_out IS NULL AND check_in < ?", midnight).
			Find(&orphans).Error
		if err != nil {
			return err
		}

		for _, s := range orphans {
			checkOut := endOfDay(s.CheckIn.In(midnight.Location()))
			res := tx.WithContext(ctx).
				Model(&models.WorkSession{ID: s.ID}).
				Where("check_out IS NULL").
				Updates(map[string]interface{}{
					"check_out":      checkOut,
					"status":         models.WorkSessionAutoClosed,
					"auto_finalized": true,
				})
			if res.Error != nil {
				return res.Error
			}
			closed += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return closed, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return startOfDay(t).AddDate(0, 0, 1).Add(-time.Second)
}
