package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Recorder appends entries to the audit trail. Writes are best-effort from
// the caller's point of view: ledger services invoke Record after their
// business transaction commits and log failures instead of rolling back.
type Recorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRecorder constructs Recorder.
func NewRecorder(pool *pgxpool.Pool, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{pool: pool, logger: logger}
}

// Record persists one entry. Action, entity and entity id are mandatory.
func (r *Recorder) Record(ctx context.Context, entry Entry) error {
	if r == nil {
		return errors.New("audit recorder not initialised")
	}
	if entry.Action == "" || entry.Entity == "" || entry.EntityID == "" {
		return errors.New("audit entry requires action/entity/entity_id")
	}
	oldJSON, err := json.Marshal(entry.OldValues)
	if err != nil {
		return err
	}
	newJSON, err := json.Marshal(entry.NewValues)
	if err != nil {
		return err
	}
	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO audit_logs (id, actor_id, action, entity, entity_id, old_values, new_values, details, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, NOW()))`,
		uuid.New(), nullUUID(entry.ActorID), entry.Action, entry.Entity, entry.EntityID, oldJSON, newJSON, detailsJSON, nullTime(entry.At))
	if err != nil {
		r.logger.Error("audit write failed",
			slog.String("action", entry.Action),
			slog.String("entity", entry.Entity),
			slog.String("entity_id", entry.EntityID),
			slog.Any("error", err))
	}
	return err
}

// Timeline reads the trail with paging, newest first.
func (r *Recorder) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if r == nil {
		return Result{}, errors.New("audit recorder not initialised")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := r.pool.Query(ctx, `SELECT id, actor_id, action, entity, entity_id, old_values, new_values, details, occurred_at
FROM audit_logs
WHERE occurred_at BETWEEN COALESCE($1, '-infinity') AND COALESCE($2, 'infinity')
  AND ($3::uuid IS NULL OR actor_id = $3)
  AND ($4 = '' OR entity = $4)
  AND ($5 = '' OR action = $5)
ORDER BY occurred_at DESC, id DESC
OFFSET $6 LIMIT $7`,
		nullTime(filters.From), nullTime(filters.To), nullUUID(filters.ActorID), filters.Entity, filters.Action, offset, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return Result{}, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}

	hasNext := len(entries) > pageSize
	if hasNext {
		entries = entries[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: entries, Paging: paging}, nil
}

func scanEntry(rows pgx.Rows) (Entry, error) {
	var entry Entry
	var actorID *uuid.UUID
	var oldJSON, newJSON, detailsJSON []byte
	if err := rows.Scan(&entry.ID, &actorID, &entry.Action, &entry.Entity, &entry.EntityID, &oldJSON, &newJSON, &detailsJSON, &entry.At); err != nil {
		return Entry{}, err
	}
	if actorID != nil {
		entry.ActorID = *actorID
	}
	if len(oldJSON) > 0 {
		_ = json.Unmarshal(oldJSON, &entry.OldValues)
	}
	if len(newJSON) > 0 {
		_ = json.Unmarshal(newJSON, &entry.NewValues)
	}
	if len(detailsJSON) > 0 {
		_ = json.Unmarshal(detailsJSON, &entry.Details)
	}
	return entry, nil
}

func nullUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
