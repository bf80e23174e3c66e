package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/CaramelFur/Telegram-Cooldown/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type MuteJournalRepo struct {
	pool *pgxpool.Pool
}

var _ domain.MuteJournal = (*MuteJournalRepo)(nil)

func NewMuteJournalRepo(pool *pgxpool.Pool) *MuteJournalRepo {
	return &MuteJournalRepo{pool: pool}
}

const insertMuteRecord = `
INSERT INTO mute_records (id, conversation_id, conversation_class, mute_until, escalated, issued, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

func (r *MuteJournalRepo) Record(ctx context.Context, rec domain.MuteRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := r.pool.Exec(ctx, insertMuteRecord,
		rec.ID,
		rec.Conversation.ID,
		string(rec.Conversation.Class),
		rec.MuteUntil,
		rec.Escalated,
		rec.Issued,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record mute for %s: %w", rec.Conversation, err)
	}
	return nil
}

const listRecentMuteRecords = `
SELECT id, conversation_id, conversation_class, mute_until, escalated, issued, created_at
FROM mute_records
ORDER BY created_at DESC, id
LIMIT $1`

// ListRecent returns the newest records first. A non-positive limit means
// the default, and limits are capped.
func (r *MuteJournalRepo) ListRecent(ctx context.Context, limit int) ([]domain.MuteRecord, error) {
	rows, err := r.pool.Query(ctx, listRecentMuteRecords, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list mute records: %w", err)
	}

	records, err := pgx.CollectRows(rows, scanMuteRecord)
	if err != nil {
		return nil, fmt.Errorf("failed to scan mute records: %w", err)
	}
	return records, nil
}

func scanMuteRecord(row pgx.CollectableRow) (domain.MuteRecord, error) {
	var (
		rec   domain.MuteRecord
		class string
	)
	err := row.Scan(
		&rec.ID,
		&rec.Conversation.ID,
		&class,
		&rec.MuteUntil,
		&rec.Escalated,
		&rec.Issued,
		&rec.CreatedAt,
	)
	rec.Conversation.Class = domain.ConversationClass(class)
	return rec, err
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}
