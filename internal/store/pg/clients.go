package pg

import (
	"context"
	"database/sql"
	"errors"

	"grantdesk.org/internal/access"
	"grantdesk.org/internal/ids"
)

func (s *Store) CreateClient(ctx context.Context, c access.Client) (access.Client, error) {
	c.ID = ids.New()
	row := s.db.QueryRowContext(ctx, `
		insert into clients (id, name, email)
		values ($1, $2, $3)
		returning id, name, email, created_at, updated_at
	`, c.ID, c.Name, c.Email)
	var out access.Client
	if err := row.Scan(&out.ID, &out.Name, &out.Email, &out.CreatedAt, &out.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return access.Client{}, access.ErrConflict
		}
		return access.Client{}, err
	}
	return out, nil
}

func (s *Store) GetClient(ctx context.Context, id string) (access.Client, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, name, email, created_at, updated_at
		from clients where id=$1
	`, id)
	var out access.Client
	if err := row.Scan(&out.ID, &out.Name, &out.Email, &out.CreatedAt, &out.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return access.Client{}, access.ErrNotFound
		}
		return access.Client{}, err
	}
	return out, nil
}

func (s *Store) ListClients(ctx context.Context) ([]access.Client, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, email, created_at, updated_at
		from clients order by created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []access.Client
	for rows.Next() {
		var c access.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) UpdateClient(ctx context.Context, id string, upd access.ClientUpdate) (access.Client, error) {
	row := s.db.QueryRowContext(ctx, `
		update clients
		set name = coalesce($2, name),
		    email = coalesce($3, email),
		    updated_at = now()
		where id=$1
		returning id, name, email, created_at, updated_at
	`, id, upd.Name, upd.Email)
	var out access.Client
	if err := row.Scan(&out.ID, &out.Name, &out.Email, &out.CreatedAt, &out.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return access.Client{}, access.ErrNotFound
		}
		return access.Client{}, err
	}
	return out, nil
}

func (s *Store) DeleteClient(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from clients where id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return access.ErrNotFound
	}
	return nil
}
