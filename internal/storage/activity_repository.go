package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/biopeak-sync/internal/models"
	"github.com/biopeak-sync/internal/types"
)

// ActivityRepository stores normalized vendor summaries in ClickHouse.
// Writes come from webhook ingestion; reads back the counts that the
// completion heuristic stamps onto finished jobs.
type ActivityRepository struct {
	db *ClickHouseDB
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db *ClickHouseDB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// InsertBatch appends a batch of normalized summaries
func (r *ActivityRepository) InsertBatch(ctx context.Context, summaries []models.ActivitySummary) error {
	if len(summaries) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO activity_summaries (
			user_id, summary_type, summary_id, start_time, duration_seconds,
			steps, calories, distance_meters, sleep_seconds, avg_heart_rate,
			avg_stress_level, weight_grams, vo2_max, activity_name, received_at
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare activity batch: %w", err)
	}

	for _, s := range summaries {
		err := batch.Append(
			s.UserID,
			string(s.SummaryType),
			s.SummaryID,
			s.StartTime,
			int32(s.DurationSeconds),
			int32(s.Steps),
			s.Calories,
			s.DistanceMeters,
			int32(s.SleepSeconds),
			int32(s.AvgHeartRate),
			int32(s.AvgStressLevel),
			s.WeightGrams,
			s.Vo2Max,
			s.ActivityName,
			s.ReceivedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to append activity summary: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to insert activity summaries: %w", err)
	}

	return nil
}

// CountForPeriod returns how many summaries of a type landed inside a period
// for a user
func (r *ActivityRepository) CountForPeriod(ctx context.Context, userID string, summaryType types.SummaryType, start, end time.Time) (int, error) {
	query := `
		SELECT count()
		FROM activity_summaries
		WHERE user_id = ? AND summary_type = ? AND start_time >= ? AND start_time <= ?
	`

	var count uint64
	err := r.db.Conn().QueryRow(ctx, query, userID, string(summaryType), start, end).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count activity summaries: %w", err)
	}

	return int(count), nil
}
