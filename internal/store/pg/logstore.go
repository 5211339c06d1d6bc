package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"meshlockr.org/internal/ids"
	"meshlockr.org/internal/logbook"
)

// LogStore persists the append-only audit log. Filtering and pagination run
// in SQL so the unbounded log never crosses the wire whole.
type LogStore struct {
	db *sql.DB
}

var _ logbook.Service = (*LogStore)(nil)

func (s *LogStore) Append(ctx context.Context, entry logbook.LogEntry) (logbook.LogEntry, error) {
	if strings.TrimSpace(entry.UserID) == "" {
		return logbook.LogEntry{}, logbook.ErrUserRequired
	}
	if strings.TrimSpace(entry.Action) == "" {
		return logbook.LogEntry{}, logbook.ErrActionRequired
	}

	entry.ID = ids.New()
	entry.CreatedAt = time.Now().UTC()
	meta, err := encodeMetadata(entry.Metadata)
	if err != nil {
		return logbook.LogEntry{}, err
	}
	if _, err := s.db.ExecContext(ctx, `
		insert into logs(id, org_id, user_id, user_email, action, metadata, created_at)
		values ($1,nullif($2,''),$3,nullif($4,''),$5,$6,$7)
	`, entry.ID, entry.OrgID, entry.UserID, entry.UserEmail, entry.Action, meta, entry.CreatedAt); err != nil {
		return logbook.LogEntry{}, err
	}
	return entry, nil
}

func (s *LogStore) List(ctx context.Context, req logbook.ListRequest) (logbook.Page, error) {
	if strings.TrimSpace(req.OrgID) == "" {
		return logbook.Page{}, logbook.ErrOrgRequired
	}
	page, limit := logbook.NormalizePaging(req.Page, req.Limit)

	where, args := logFilters(req)

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from logs where `+where, args...).Scan(&total); err != nil {
		return logbook.Page{}, err
	}

	offset := (page - 1) * limit
	query := fmt.Sprintf(`
		select id, user_id, coalesce(user_email,''), action, metadata, coalesce(org_id,''), created_at
		from logs
		where %s
		order by created_at desc, id desc
		limit $%d offset $%d
	`, where, len(args)+1, len(args)+2)
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return logbook.Page{}, err
	}
	defer rows.Close()

	logs := make([]logbook.LogEntry, 0, limit)
	for rows.Next() {
		var e logbook.LogEntry
		var meta []byte
		if err := rows.Scan(&e.ID, &e.UserID, &e.UserEmail, &e.Action, &meta, &e.OrgID, &e.CreatedAt); err != nil {
			return logbook.Page{}, err
		}
		if e.Metadata, err = decodeMetadata(meta); err != nil {
			return logbook.Page{}, err
		}
		logs = append(logs, e)
	}
	if err := rows.Err(); err != nil {
		return logbook.Page{}, err
	}

	return logbook.Page{
		Logs:       logs,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

// logFilters builds the shared WHERE clause for the count and page queries.
// The date filter covers the whole UTC day named by the YYYY-MM-DD value.
func logFilters(req logbook.ListRequest) (string, []any) {
	where := []string{"org_id = $1"}
	args := []any{req.OrgID}
	if req.UserID != "" {
		args = append(args, req.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if req.Action != "" {
		args = append(args, req.Action)
		where = append(where, fmt.Sprintf("action ilike '%%'||$%d||'%%'", len(args)))
	}
	if req.Date != "" {
		args = append(args, req.Date)
		n := len(args)
		where = append(where, fmt.Sprintf("created_at >= $%d::date and created_at < $%d::date + interval '1 day'", n, n))
	}
	return strings.Join(where, " and "), args
}

func encodeMetadata(meta map[string]any) ([]byte, error) {
	if len(meta) == 0 {
		return []byte("null"), nil
	}
	return json.Marshal(meta)
}

func decodeMetadata(raw []byte) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
