package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/miem-nvr/sink/internal/model"
)

// RoomRepository — справочник операторских привязок аудиторий РУЗ
// к календарям. Само расписание здесь не хранится: список аудиторий
// каждый цикл читается из РУЗ.
type RoomRepository struct {
	pool *pgxpool.Pool
}

func NewRoomRepository(pool *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{pool: pool}
}

// GetByRUZID возвращает привязку аудитории или nil, если аудитория
// не сопоставлена с календарём.
func (r *RoomRepository) GetByRUZID(ctx context.Context, ruzID string) (*model.RoomMapping, error) {
	query := `
		SELECT id, ruz_id, building_id, calendar_id, created_at
		FROM rooms
		WHERE ruz_id = $1
	`

	var mapping model.RoomMapping
	err := r.pool.QueryRow(ctx, query, ruzID).Scan(
		&mapping.ID,
		&mapping.RUZID,
		&mapping.BuildingID,
		&mapping.CalendarID,
		&mapping.CreatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get room by ruz id: %w", err)
	}

	return &mapping, nil
}

// List возвращает все привязки.
func (r *RoomRepository) List(ctx context.Context) ([]*model.RoomMapping, error) {
	query := `
		SELECT id, ruz_id, building_id, calendar_id, created_at
		FROM rooms
		ORDER BY ruz_id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var mappings []*model.RoomMapping
	for rows.Next() {
		var mapping model.RoomMapping
		err := rows.Scan(
			&mapping.ID,
			&mapping.RUZID,
			&mapping.BuildingID,
			&mapping.CalendarID,
			&mapping.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		mappings = append(mappings, &mapping)
	}

	return mappings, nil
}

// Upsert создаёт или обновляет привязку аудитории к календарю.
func (r *RoomRepository) Upsert(ctx context.Context, mapping *model.RoomMapping) error {
	query := `
		INSERT INTO rooms (ruz_id, building_id, calendar_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (ruz_id) DO UPDATE
		SET building_id = EXCLUDED.building_id,
		    calendar_id = EXCLUDED.calendar_id
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(
		ctx, query,
		mapping.RUZID,
		mapping.BuildingID,
		mapping.CalendarID,
	).Scan(&mapping.ID, &mapping.CreatedAt)

	if err != nil {
		return fmt.Errorf("upsert room: %w", err)
	}

	return nil
}
