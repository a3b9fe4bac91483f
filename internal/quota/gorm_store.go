package quota

import (
	"context"
	"errors"
	"time"

	"github.com/modelgate/modelgate/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore persists day records in the usage_days table so budgets survive
// process restarts. Counter increments run as a single guarded UPDATE, so
// the database serializes concurrent writers per row.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore constructs a DB-backed store.
func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{db: db} }

// GetOrCreate implements Store.
func (s *GormStore) GetOrCreate(ctx context.Context, seed DayRecord) (DayRecord, error) {
	if s == nil || s.db == nil {
		return DayRecord{}, errors.New("quota: nil store")
	}
	if errEnsure := s.ensureRow(ctx, seed); errEnsure != nil {
		return DayRecord{}, errEnsure
	}
	return s.load(ctx, seed.UserID, seed.Day)
}

// Increment implements Store. The counter update is one UPDATE statement
// with arithmetic expressions; the blocked flag is recomputed from the
// resulting row inside the same transaction.
func (s *GormStore) Increment(ctx context.Context, seed DayRecord, delta Delta) (DayRecord, error) {
	if s == nil || s.db == nil {
		return DayRecord{}, errors.New("quota: nil store")
	}
	if errEnsure := s.ensureRow(ctx, seed); errEnsure != nil {
		return DayRecord{}, errEnsure
	}

	var out DayRecord
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.UsageDay{}).
			Where("user_id = ? AND day = ?", seed.UserID, seed.Day).
			Updates(map[string]any{
				"level1_count": gorm.Expr("level1_count + ?", delta.Level1),
				"level2_count": gorm.Expr("level2_count + ?", delta.Level2),
				"tokens":       gorm.Expr("tokens + ?", delta.Tokens),
				"cost_micros":  gorm.Expr("cost_micros + ?", delta.CostMicros),
				"updated_at":   time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}

		var row models.UsageDay
		if errFind := tx.
			Where("user_id = ? AND day = ?", seed.UserID, seed.Day).
			Take(&row).Error; errFind != nil {
			return errFind
		}

		rec := fromRow(row)
		applyBlocked(&rec)
		if rec.Blocked != row.Blocked || rec.BlockedReason != row.BlockedReason {
			if errBlock := tx.Model(&models.UsageDay{}).
				Where("id = ?", row.ID).
				Updates(map[string]any{
					"blocked":        rec.Blocked,
					"blocked_reason": rec.BlockedReason,
				}).Error; errBlock != nil {
				return errBlock
			}
		}
		out = rec
		return nil
	})
	if errTx != nil {
		return DayRecord{}, errTx
	}
	return out, nil
}

// PurgeBefore implements Store. Deletes in bounded batches to avoid
// long-running transactions.
func (s *GormStore) PurgeBefore(ctx context.Context, day string) error {
	if s == nil || s.db == nil {
		return errors.New("quota: nil store")
	}
	const batchSize = 5000
	for {
		res := s.db.WithContext(ctx).Exec(`
			DELETE FROM usage_days
			WHERE id IN (
				SELECT id FROM usage_days
				WHERE day < ?
				ORDER BY day ASC
				LIMIT ?
			)
		`, day, batchSize)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if ctx != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// ensureRow inserts the seed row when absent. First writer wins; later
// writers hit the unique (user_id, day) index and fall through.
func (s *GormStore) ensureRow(ctx context.Context, seed DayRecord) error {
	row := toRow(seed)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "day"}},
			DoNothing: true,
		}).
		Create(&row).Error
}

func (s *GormStore) load(ctx context.Context, userID, day string) (DayRecord, error) {
	var row models.UsageDay
	if errFind := s.db.WithContext(ctx).
		Where("user_id = ? AND day = ?", userID, day).
		Take(&row).Error; errFind != nil {
		return DayRecord{}, errFind
	}
	return fromRow(row), nil
}

func toRow(rec DayRecord) models.UsageDay {
	return models.UsageDay{
		UserID:          rec.UserID,
		Day:             rec.Day,
		TierName:        rec.Tier,
		Level1Count:     rec.Level1Count,
		Level2Count:     rec.Level2Count,
		Tokens:          rec.Tokens,
		CostMicros:      rec.CostMicros,
		Level1Limit:     rec.Limits.Level1,
		Level2Limit:     rec.Limits.Level2,
		TokenLimit:      rec.Limits.Tokens,
		CostLimitMicros: rec.Limits.CostMicros,
		Blocked:         rec.Blocked,
		BlockedReason:   rec.BlockedReason,
		ResetAt:         rec.ResetAt,
	}
}

func fromRow(row models.UsageDay) DayRecord {
	return DayRecord{
		UserID:      row.UserID,
		Day:         row.Day,
		Tier:        row.TierName,
		Level1Count: row.Level1Count,
		Level2Count: row.Level2Count,
		Tokens:      row.Tokens,
		CostMicros:  row.CostMicros,
		Limits: Limits{
			Level1:     row.Level1Limit,
			Level2:     row.Level2Limit,
			Tokens:     row.TokenLimit,
			CostMicros: row.CostLimitMicros,
		},
		Blocked:       row.Blocked,
		BlockedReason: row.BlockedReason,
		ResetAt:       row.ResetAt,
	}
}

var _ Store = (*GormStore)(nil)
