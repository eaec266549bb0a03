package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"grantdesk.org/internal/access"
	"grantdesk.org/internal/ids"
)

func (s *Store) CreateIntegrationIdentity(ctx context.Context, ii access.IntegrationIdentity) (access.IntegrationIdentity, error) {
	ii.ID = ids.New()
	row := s.db.QueryRowContext(ctx, `
		insert into integration_identities (id, identity_type, identifier, platform_id, is_active)
		values ($1, $2, $3, $4, true)
		returning id, identity_type, identifier, coalesce(platform_id,''), is_active, created_at
	`, ii.ID, ii.Type, ii.Identifier, nullIfEmpty(ii.PlatformID))
	var out access.IntegrationIdentity
	if err := row.Scan(&out.ID, &out.Type, &out.Identifier, &out.PlatformID, &out.IsActive, &out.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return access.IntegrationIdentity{}, access.ErrConflict
		}
		return access.IntegrationIdentity{}, err
	}
	return out, nil
}

func (s *Store) ListIntegrationIdentities(ctx context.Context) ([]access.IntegrationIdentity, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, identity_type, identifier, coalesce(platform_id,''), is_active, created_at
		from integration_identities order by created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []access.IntegrationIdentity
	for rows.Next() {
		var ii access.IntegrationIdentity
		if err := rows.Scan(&ii.ID, &ii.Type, &ii.Identifier, &ii.PlatformID, &ii.IsActive, &ii.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, ii)
	}
	return result, rows.Err()
}

func (s *Store) ToggleIntegrationIdentity(ctx context.Context, id string) (access.IntegrationIdentity, error) {
	row := s.db.QueryRowContext(ctx, `
		update integration_identities set is_active = not is_active
		where id=$1
		returning id, identity_type, identifier, coalesce(platform_id,''), is_active, created_at
	`, id)
	var out access.IntegrationIdentity
	if err := row.Scan(&out.ID, &out.Type, &out.Identifier, &out.PlatformID, &out.IsActive, &out.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return access.IntegrationIdentity{}, access.ErrNotFound
		}
		return access.IntegrationIdentity{}, err
	}
	return out, nil
}

func (s *Store) CreatePamSession(ctx context.Context, sess access.PamSession) (access.PamSession, error) {
	sess.ID = ids.New()
	row := s.db.QueryRowContext(ctx, `
		insert into pam_sessions (id, request_id, item_id, user_id, status, expires_at)
		values ($1, $2, $3, $4, 'active', $5)
		returning id, request_id, item_id, user_id, status, expires_at, checked_in_at, created_at
	`, sess.ID, sess.RequestID, sess.ItemID, sess.UserID, sess.ExpiresAt)
	var (
		out       access.PamSession
		checkedIn sql.NullTime
	)
	if err := row.Scan(&out.ID, &out.RequestID, &out.ItemID, &out.UserID, &out.Status,
		&out.ExpiresAt, &checkedIn, &out.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return access.PamSession{}, access.ErrNotFound
		}
		return access.PamSession{}, err
	}
	out.CheckedInAt = timePtr(checkedIn)
	return out, nil
}

func (s *Store) CheckinPamSession(ctx context.Context, id string) (access.PamSession, error) {
	row := s.db.QueryRowContext(ctx, `
		update pam_sessions
		set status='checked_in', checked_in_at=now()
		where id=$1 and status='active'
		returning id, request_id, item_id, user_id, status, expires_at, checked_in_at, created_at
	`, id)
	var (
		out       access.PamSession
		checkedIn sql.NullTime
	)
	if err := row.Scan(&out.ID, &out.RequestID, &out.ItemID, &out.UserID, &out.Status,
		&out.ExpiresAt, &checkedIn, &out.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return access.PamSession{}, access.ErrNotFound
		}
		return access.PamSession{}, err
	}
	out.CheckedInAt = timePtr(checkedIn)
	return out, nil
}

func (s *Store) SaveOAuthToken(ctx context.Context, tok access.OAuthToken) (access.OAuthToken, error) {
	tok.ID = ids.New()
	row := s.db.QueryRowContext(ctx, `
		insert into oauth_tokens (id, platform_key, access_token, refresh_token, expires_at)
		values ($1, $2, $3, $4, $5)
		on conflict (platform_key) do update
		set access_token = excluded.access_token,
		    refresh_token = excluded.refresh_token,
		    expires_at = excluded.expires_at
		returning id, platform_key, access_token, coalesce(refresh_token,''), expires_at, created_at
	`, tok.ID, tok.PlatformKey, tok.AccessToken, nullIfEmpty(tok.RefreshToken), nullTime(tok.ExpiresAt))
	var (
		out     access.OAuthToken
		expires sql.NullTime
	)
	if err := row.Scan(&out.ID, &out.PlatformKey, &out.AccessToken, &out.RefreshToken,
		&expires, &out.CreatedAt); err != nil {
		return access.OAuthToken{}, err
	}
	out.ExpiresAt = timePtr(expires)
	return out, nil
}

func (s *Store) AppendAudit(ctx context.Context, e access.AuditEntry) error {
	detailsJSON := []byte("null")
	if len(e.Details) > 0 {
		raw, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		detailsJSON = raw
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_logs (id, event, actor, resource_type, resource_id, details)
		values ($1, $2, $3, $4, $5, $6)
	`, ids.New(), e.Event, nullIfEmpty(e.Actor), nullIfEmpty(e.ResourceType),
		nullIfEmpty(e.ResourceID), detailsJSON)
	return err
}
