package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/miem-nvr/sink/internal/model"
)

// SyncRunRepository — история запусков батча синхронизации.
type SyncRunRepository struct {
	pool *pgxpool.Pool
}

func NewSyncRunRepository(pool *pgxpool.Pool) *SyncRunRepository {
	return &SyncRunRepository{pool: pool}
}

// Save сохраняет итог завершённого запуска.
func (r *SyncRunRepository) Save(ctx context.Context, run *model.SyncRun) error {
	query := `
		INSERT INTO sync_runs (
			id, started_at, finished_at,
			rooms_total, rooms_failed,
			lessons_added, lessons_updated, lessons_deleted, lessons_unchanged,
			no_course_code, with_group_emails, no_group_emails
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.pool.Exec(
		ctx, query,
		run.ID,
		run.StartedAt,
		run.FinishedAt,
		run.RoomsTotal,
		run.RoomsFailed,
		run.LessonsAdded,
		run.LessonsUpdated,
		run.LessonsDeleted,
		run.LessonsUnchanged,
		run.NoCourseCode,
		run.WithGroupEmails,
		run.NoGroupEmails,
	)

	if err != nil {
		return fmt.Errorf("save sync run: %w", err)
	}

	return nil
}

// Last возвращает последние запуски, новые первыми.
func (r *SyncRunRepository) Last(ctx context.Context, limit int) ([]*model.SyncRun, error) {
	query := `
		SELECT id, started_at, finished_at,
		       rooms_total, rooms_failed,
		       lessons_added, lessons_updated, lessons_deleted, lessons_unchanged,
		       no_course_code, with_group_emails, no_group_emails
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.SyncRun
	for rows.Next() {
		var run model.SyncRun
		err := rows.Scan(
			&run.ID,
			&run.StartedAt,
			&run.FinishedAt,
			&run.RoomsTotal,
			&run.RoomsFailed,
			&run.LessonsAdded,
			&run.LessonsUpdated,
			&run.LessonsDeleted,
			&run.LessonsUnchanged,
			&run.NoCourseCode,
			&run.WithGroupEmails,
			&run.NoGroupEmails,
		)
		if err != nil {
			return nil, fmt.Errorf("scan sync run: %w", err)
		}
		runs = append(runs, &run)
	}

	return runs, nil
}
