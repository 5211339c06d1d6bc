// Package pg backs the admin console services with Postgres. One Store owns
// the pool; typed views expose the per-service interfaces over it.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"meshlockr.org/internal/policy"
)

type Store struct {
	db *sql.DB
}

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Policies returns the policy.Service view of the store.
func (s *Store) Policies() *PolicyStore { return &PolicyStore{db: s.db} }

// Logs returns the logbook.Service view of the store.
func (s *Store) Logs() *LogStore { return &LogStore{db: s.db} }

// Invites returns the invite.Service view of the store.
func (s *Store) Invites() *InviteStore { return &InviteStore{db: s.db} }

// PolicyStore persists access policies. Deletes are soft: rows flip a deleted
// flag and drop out of every read path, so a late update can still miss them.
type PolicyStore struct {
	db *sql.DB
}

var _ policy.Service = (*PolicyStore)(nil)

const policyColumns = `id, org_id, allow_country, allow_state, block_time_ranges, require_trusted_device, coalesce(created_by,''), created_at, updated_at`

func (s *PolicyStore) List(ctx context.Context, orgID string) ([]policy.AccessPolicy, error) {
	if strings.TrimSpace(orgID) == "" {
		return nil, policy.ErrOrgRequired
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+policyColumns+`
		from policies
		where org_id=$1 and not deleted
		order by created_at asc, id asc
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []policy.AccessPolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PolicyStore) Create(ctx context.Context, orgID string, payload policy.Payload) (policy.AccessPolicy, error) {
	if strings.TrimSpace(orgID) == "" {
		return policy.AccessPolicy{}, policy.ErrOrgRequired
	}
	if err := payload.Validate(); err != nil {
		return policy.AccessPolicy{}, err
	}

	now := time.Now().UTC()
	p := policy.AccessPolicy{
		ID:              uuid.NewString(),
		OrgID:           orgID,
		AllowCountry:    payload.AllowCountry,
		AllowState:      payload.AllowState,
		BlockTimeRanges: payload.BlockTimeRanges,
		RequireTrusted:  payload.RequireTrusted,
		CreatedBy:       payload.CreatedBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	countries, states, ranges, err := encodeLists(p.AllowCountry, p.AllowState, p.BlockTimeRanges)
	if err != nil {
		return policy.AccessPolicy{}, err
	}
	if _, err := s.db.ExecContext(ctx, `
		insert into policies(id, org_id, allow_country, allow_state, block_time_ranges, require_trusted_device, created_by, created_at, updated_at, deleted)
		values ($1,$2,$3,$4,$5,$6,nullif($7,''),$8,$8,false)
	`, p.ID, p.OrgID, countries, states, ranges, p.RequireTrusted, p.CreatedBy, now); err != nil {
		return policy.AccessPolicy{}, err
	}
	return p, nil
}

func (s *PolicyStore) Update(ctx context.Context, id, orgID string, payload policy.Payload) (policy.AccessPolicy, error) {
	if strings.TrimSpace(id) == "" {
		return policy.AccessPolicy{}, policy.ErrIDRequired
	}
	if strings.TrimSpace(orgID) == "" {
		return policy.AccessPolicy{}, policy.ErrOrgRequired
	}
	if err := payload.Validate(); err != nil {
		return policy.AccessPolicy{}, err
	}

	countries, states, ranges, err := encodeLists(payload.AllowCountry, payload.AllowState, payload.BlockTimeRanges)
	if err != nil {
		return policy.AccessPolicy{}, err
	}
	now := time.Now().UTC()
	var createdBy string
	var createdAt time.Time
	err = s.db.QueryRowContext(ctx, `
		update policies
		set allow_country=$3, allow_state=$4, block_time_ranges=$5, require_trusted_device=$6, updated_at=$7
		where id=$1 and org_id=$2 and not deleted
		returning coalesce(created_by,''), created_at
	`, id, orgID, countries, states, ranges, payload.RequireTrusted, now).Scan(&createdBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return policy.AccessPolicy{}, policy.ErrNotFound
	}
	if err != nil {
		return policy.AccessPolicy{}, err
	}

	return policy.AccessPolicy{
		ID:              id,
		OrgID:           orgID,
		AllowCountry:    payload.AllowCountry,
		AllowState:      payload.AllowState,
		BlockTimeRanges: payload.BlockTimeRanges,
		RequireTrusted:  payload.RequireTrusted,
		CreatedBy:       createdBy,
		CreatedAt:       createdAt,
		UpdatedAt:       now,
	}, nil
}

func (s *PolicyStore) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return policy.ErrIDRequired
	}
	res, err := s.db.ExecContext(ctx, `
		update policies set deleted=true, updated_at=$2 where id=$1 and not deleted
	`, id, time.Now().UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return policy.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (policy.AccessPolicy, error) {
	var p policy.AccessPolicy
	var countries, states, ranges []byte
	if err := row.Scan(&p.ID, &p.OrgID, &countries, &states, &ranges, &p.RequireTrusted, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return policy.AccessPolicy{}, err
	}
	var err error
	if p.AllowCountry, err = decodeList(countries); err != nil {
		return policy.AccessPolicy{}, err
	}
	if p.AllowState, err = decodeList(states); err != nil {
		return policy.AccessPolicy{}, err
	}
	if p.BlockTimeRanges, err = decodeList(ranges); err != nil {
		return policy.AccessPolicy{}, err
	}
	return p, nil
}

// Lists are stored as jsonb so ordering and empty-vs-absent survive round trips.
func encodeLists(countries, states, ranges []string) ([]byte, []byte, []byte, error) {
	c, err := encodeList(countries)
	if err != nil {
		return nil, nil, nil, err
	}
	st, err := encodeList(states)
	if err != nil {
		return nil, nil, nil, err
	}
	r, err := encodeList(ranges)
	if err != nil {
		return nil, nil, nil, err
	}
	return c, st, r, nil
}

func encodeList(v []string) ([]byte, error) {
	if v == nil {
		v = []string{}
	}
	return json.Marshal(v)
}

func decodeList(raw []byte) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
