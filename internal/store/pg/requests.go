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

const requestItemCols = `id, access_request_id, platform_id, source_item_id, item_type, label, role,
	resolved_identity, pam_config, pam_username, pam_secret_ref, client_provided_target,
	status, validated_at, validated_by, validation_mode, verification_mode, client_instructions, created_at`

func scanRequestItem(row interface{ Scan(...any) error }) (access.AccessRequestItem, error) {
	var (
		item        access.AccessRequestItem
		sourceID    sql.NullString
		resolved    sql.NullString
		rawPam      []byte
		pamUser     sql.NullString
		pamSecret   sql.NullString
		target      sql.NullString
		validatedAt sql.NullTime
		validatedBy sql.NullString
		valMode     sql.NullString
		verMode     sql.NullString
		rawSteps    []byte
	)
	if err := row.Scan(&item.ID, &item.AccessRequestID, &item.PlatformID, &sourceID, &item.ItemType,
		&item.Label, &item.Role, &resolved, &rawPam, &pamUser, &pamSecret, &target,
		&item.Status, &validatedAt, &validatedBy, &valMode, &verMode, &rawSteps, &item.CreatedAt); err != nil {
		return access.AccessRequestItem{}, err
	}
	item.SourceItemID = sourceID.String
	item.ResolvedIdentity = resolved.String
	item.PamUsername = pamUser.String
	item.PamSecretRef = pamSecret.String
	item.ClientProvidedTarget = target.String
	item.ValidatedAt = timePtr(validatedAt)
	item.ValidatedBy = validatedBy.String
	item.ValidationMode = valMode.String
	item.VerificationMode = verMode.String
	if len(rawPam) > 0 {
		var cfg access.PamConfig
		if err := json.Unmarshal(rawPam, &cfg); err != nil {
			return access.AccessRequestItem{}, fmt.Errorf("decode pam config: %w", err)
		}
		item.PamConfig = &cfg
	}
	if len(rawSteps) > 0 {
		if err := json.Unmarshal(rawSteps, &item.ClientInstructions); err != nil {
			return access.AccessRequestItem{}, fmt.Errorf("decode instructions: %w", err)
		}
	}
	return item, nil
}

func (s *Store) CreateAccessRequest(ctx context.Context, req access.AccessRequest) (access.AccessRequest, error) {
	req.ID = ids.New()
	row := s.db.QueryRowContext(ctx, `
		insert into access_requests (id, client_id, token, notes)
		values ($1, $2, $3, $4)
		returning id, client_id, token, coalesce(notes,''), completed_at, created_at
	`, req.ID, req.ClientID, req.Token, nullIfEmpty(req.Notes))
	var (
		out       access.AccessRequest
		completed sql.NullTime
	)
	if err := row.Scan(&out.ID, &out.ClientID, &out.Token, &out.Notes, &completed, &out.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return access.AccessRequest{}, access.ErrConflict
			case pgErrForeignKeyViolation:
				return access.AccessRequest{}, access.ErrNotFound
			}
		}
		return access.AccessRequest{}, err
	}
	out.CompletedAt = timePtr(completed)

	// Items are written after the parent, sequentially. A failure part-way
	// leaves the request with the items inserted so far.
	out.Items = []access.AccessRequestItem{}
	for _, item := range req.Items {
		item.AccessRequestID = out.ID
		created, err := s.insertRequestItem(ctx, item)
		if err != nil {
			return access.AccessRequest{}, err
		}
		out.Items = append(out.Items, created)
	}
	return out, nil
}

func (s *Store) insertRequestItem(ctx context.Context, item access.AccessRequestItem) (access.AccessRequestItem, error) {
	item.ID = ids.New()
	pamJSON := []byte("null")
	if item.PamConfig != nil {
		var err error
		if pamJSON, err = json.Marshal(item.PamConfig); err != nil {
			return access.AccessRequestItem{}, fmt.Errorf("marshal pam config: %w", err)
		}
	}
	stepsJSON := []byte("null")
	if len(item.ClientInstructions) > 0 {
		var err error
		if stepsJSON, err = json.Marshal(item.ClientInstructions); err != nil {
			return access.AccessRequestItem{}, fmt.Errorf("marshal instructions: %w", err)
		}
	}
	row := s.db.QueryRowContext(ctx, `
		insert into access_request_items (id, access_request_id, platform_id, source_item_id, item_type, label, role,
			resolved_identity, pam_config, verification_mode, client_instructions, status)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,'pending')
		returning `+requestItemCols+`
	`, item.ID, item.AccessRequestID, item.PlatformID, nullIfEmpty(item.SourceItemID), item.ItemType,
		item.Label, item.Role, nullIfEmpty(item.ResolvedIdentity), pamJSON,
		nullIfEmpty(item.VerificationMode), stepsJSON)
	return scanRequestItem(row)
}

func (s *Store) GetAccessRequest(ctx context.Context, id string) (access.AccessRequest, error) {
	return s.getRequest(ctx, `where id=$1`, id)
}

func (s *Store) GetAccessRequestByToken(ctx context.Context, token string) (access.AccessRequest, error) {
	return s.getRequest(ctx, `where token=$1`, token)
}

func (s *Store) getRequest(ctx context.Context, where, arg string) (access.AccessRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, client_id, token, coalesce(notes,''), completed_at, created_at
		from access_requests `+where, arg)
	var (
		out       access.AccessRequest
		completed sql.NullTime
	)
	if err := row.Scan(&out.ID, &out.ClientID, &out.Token, &out.Notes, &completed, &out.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return access.AccessRequest{}, access.ErrNotFound
		}
		return access.AccessRequest{}, err
	}
	out.CompletedAt = timePtr(completed)
	items, err := s.listRequestItems(ctx, out.ID)
	if err != nil {
		return access.AccessRequest{}, err
	}
	out.Items = items
	return out, nil
}

func (s *Store) ListAccessRequests(ctx context.Context) ([]access.AccessRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, client_id, token, coalesce(notes,''), completed_at, created_at
		from access_requests order by created_at desc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []access.AccessRequest
	for rows.Next() {
		var (
			req       access.AccessRequest
			completed sql.NullTime
		)
		if err := rows.Scan(&req.ID, &req.ClientID, &req.Token, &req.Notes, &completed, &req.CreatedAt); err != nil {
			return nil, err
		}
		req.CompletedAt = timePtr(completed)
		result = append(result, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range result {
		items, err := s.listRequestItems(ctx, result[i].ID)
		if err != nil {
			return nil, err
		}
		result[i].Items = items
	}
	return result, nil
}

func (s *Store) listRequestItems(ctx context.Context, requestID string) ([]access.AccessRequestItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+requestItemCols+`
		from access_request_items where access_request_id=$1 order by created_at
	`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []access.AccessRequestItem{}
	for rows.Next() {
		item, err := scanRequestItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) UpdateRequestItem(ctx context.Context, requestID, itemID string, upd access.RequestItemUpdate) (access.AccessRequestItem, error) {
	var stepsJSON any
	if upd.ClientInstructions != nil {
		raw, err := json.Marshal(*upd.ClientInstructions)
		if err != nil {
			return access.AccessRequestItem{}, fmt.Errorf("marshal instructions: %w", err)
		}
		stepsJSON = raw
	}
	row := s.db.QueryRowContext(ctx, `
		update access_request_items
		set client_provided_target = coalesce($3, client_provided_target),
		    pam_username = coalesce($4, pam_username),
		    pam_secret_ref = coalesce($5, pam_secret_ref),
		    resolved_identity = coalesce($6, resolved_identity),
		    client_instructions = coalesce($7, client_instructions)
		where id=$2 and access_request_id=$1
		returning `+requestItemCols+`
	`, requestID, itemID, upd.ClientProvidedTarget, upd.PamUsername, upd.PamSecretRef,
		upd.ResolvedIdentity, stepsJSON)
	item, err := scanRequestItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return access.AccessRequestItem{}, access.ErrNotFound
	}
	return item, err
}

func (s *Store) ValidateRequestItem(ctx context.Context, requestID, itemID, mode, actor string) (access.AccessRequestItem, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return access.AccessRequestItem{}, false, err
	}
	defer func() { _ = tx.Rollback() }()

	// Guarded update: already-validated items are untouched.
	res, err := tx.ExecContext(ctx, `
		update access_request_items
		set status='validated', validated_at=now(), validated_by=$3, validation_mode=$4
		where id=$2 and access_request_id=$1 and status='pending'
	`, requestID, itemID, nullIfEmpty(actor), mode)
	if err != nil {
		return access.AccessRequestItem{}, false, err
	}
	changed, err := res.RowsAffected()
	if err != nil {
		return access.AccessRequestItem{}, false, err
	}

	row := tx.QueryRowContext(ctx, `
		select `+requestItemCols+`
		from access_request_items where id=$2 and access_request_id=$1
	`, requestID, itemID)
	item, err := scanRequestItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return access.AccessRequestItem{}, false, access.ErrNotFound
	}
	if err != nil {
		return access.AccessRequestItem{}, false, err
	}

	completedNow := false
	if changed > 0 {
		// Completion is written exactly once, when the last pending item
		// flips to validated.
		res, err := tx.ExecContext(ctx, `
			update access_requests
			set completed_at = now()
			where id=$1 and completed_at is null
			  and not exists (
				select 1 from access_request_items
				where access_request_id=$1 and status <> 'validated'
			  )
		`, requestID)
		if err != nil {
			return access.AccessRequestItem{}, false, err
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			completedNow = true
		}
	}

	if err := tx.Commit(); err != nil {
		return access.AccessRequestItem{}, false, err
	}
	return item, completedNow, nil
}
