package pg

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"meshlockr.org/internal/invite"
)

// InviteStore persists join links.
type InviteStore struct {
	db *sql.DB
}

var _ invite.Service = (*InviteStore)(nil)

func (s *InviteStore) Create(ctx context.Context, inv invite.Invite) (invite.Invite, error) {
	if strings.TrimSpace(inv.OrgID) == "" {
		return invite.Invite{}, invite.ErrOrgRequired
	}
	if strings.TrimSpace(inv.Role) == "" {
		inv.Role = invite.DefaultRole
	}

	inv.ID = uuid.NewString()
	inv.Token = uuid.NewString()
	inv.CreatedAt = time.Now().UTC()

	var expires sql.NullTime
	if inv.ExpiresAt != nil {
		expires = sql.NullTime{Time: inv.ExpiresAt.UTC(), Valid: true}
	}
	if _, err := s.db.ExecContext(ctx, `
		insert into invites(id, token, org_id, email_domain, role, expires_at, max_uses, created_by, created_at)
		values ($1,$2,$3,nullif($4,''),$5,$6,$7,nullif($8,''),$9)
	`, inv.ID, inv.Token, inv.OrgID, inv.EmailDomain, inv.Role, expires, inv.MaxUses, inv.CreatedBy, inv.CreatedAt); err != nil {
		return invite.Invite{}, err
	}
	return inv, nil
}

func (s *InviteStore) List(ctx context.Context, orgID string) ([]invite.Invite, error) {
	if strings.TrimSpace(orgID) == "" {
		return nil, invite.ErrOrgRequired
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, token, org_id, coalesce(email_domain,''), role, expires_at, max_uses, coalesce(created_by,''), created_at
		from invites
		where org_id=$1
		order by created_at desc, id desc
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []invite.Invite
	for rows.Next() {
		var inv invite.Invite
		var expires sql.NullTime
		if err := rows.Scan(&inv.ID, &inv.Token, &inv.OrgID, &inv.EmailDomain, &inv.Role, &expires, &inv.MaxUses, &inv.CreatedBy, &inv.CreatedAt); err != nil {
			return nil, err
		}
		if expires.Valid {
			t := expires.Time
			inv.ExpiresAt = &t
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s *InviteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from invites where id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return invite.ErrNotFound
	}
	return nil
}
