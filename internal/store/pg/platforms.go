package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"grantdesk.org/internal/access"
	"grantdesk.org/internal/catalog"
	"grantdesk.org/internal/ids"
)

const catalogPlatformCols = `id, name, slug, category, tier, client_facing, automation_feasibility, supported_item_types, access_patterns, created_at`

func scanCatalogPlatform(row interface{ Scan(...any) error }) (catalog.Platform, error) {
	var (
		p           catalog.Platform
		rawTypes    []byte
		rawPatterns []byte
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Category, &p.Tier, &p.ClientFacing,
		&p.AutomationFeasibility, &rawTypes, &rawPatterns, &p.CreatedAt); err != nil {
		return catalog.Platform{}, err
	}
	if len(rawTypes) > 0 {
		if err := json.Unmarshal(rawTypes, &p.SupportedItemTypes); err != nil {
			return catalog.Platform{}, fmt.Errorf("decode supported item types: %w", err)
		}
	}
	if len(rawPatterns) > 0 {
		if err := json.Unmarshal(rawPatterns, &p.AccessPatterns); err != nil {
			return catalog.Platform{}, fmt.Errorf("decode access patterns: %w", err)
		}
	}
	return p, nil
}

func (s *Store) ListCatalogPlatforms(ctx context.Context) ([]catalog.Platform, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+catalogPlatformCols+`
		from catalog_platforms order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []catalog.Platform
	for rows.Next() {
		p, err := scanCatalogPlatform(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) GetCatalogPlatform(ctx context.Context, id string) (catalog.Platform, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+catalogPlatformCols+`
		from catalog_platforms where id=$1
	`, id)
	p, err := scanCatalogPlatform(row)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Platform{}, access.ErrNotFound
	}
	return p, err
}

func (s *Store) CreateCatalogPlatform(ctx context.Context, p catalog.Platform) (catalog.Platform, error) {
	if p.ID == "" {
		p.ID = "cat-" + ids.New()
	}
	typesJSON, err := json.Marshal(p.SupportedItemTypes)
	if err != nil {
		return catalog.Platform{}, fmt.Errorf("marshal supported item types: %w", err)
	}
	patternsJSON, err := json.Marshal(p.AccessPatterns)
	if err != nil {
		return catalog.Platform{}, fmt.Errorf("marshal access patterns: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		insert into catalog_platforms (id, name, slug, category, tier, client_facing, automation_feasibility, supported_item_types, access_patterns)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning `+catalogPlatformCols+`
	`, p.ID, p.Name, p.Slug, p.Category, p.Tier, p.ClientFacing, p.AutomationFeasibility, typesJSON, patternsJSON)
	out, err := scanCatalogPlatform(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return catalog.Platform{}, access.ErrConflict
		}
		return catalog.Platform{}, err
	}
	return out, nil
}

func (s *Store) AddAgencyPlatform(ctx context.Context, platformID string) (access.AgencyPlatform, error) {
	// Idempotent by platform id: a second add returns the existing record
	// together with ErrConflict.
	existing, err := s.agencyPlatformByCatalogID(ctx, platformID)
	if err == nil {
		return existing, access.ErrConflict
	}
	if !errors.Is(err, access.ErrNotFound) {
		return access.AgencyPlatform{}, err
	}

	if _, err := s.GetCatalogPlatform(ctx, platformID); err != nil {
		return access.AgencyPlatform{}, err
	}

	id := ids.New()
	row := s.db.QueryRowContext(ctx, `
		insert into agency_platforms (id, platform_id, is_enabled)
		values ($1, $2, true)
		returning id, platform_id, is_enabled, created_at
	`, id, platformID)
	var ap access.AgencyPlatform
	if err := row.Scan(&ap.ID, &ap.PlatformID, &ap.IsEnabled, &ap.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return s.agencyPlatformByCatalogID(ctx, platformID)
		}
		return access.AgencyPlatform{}, err
	}
	ap.AccessItems = []access.AccessItem{}
	return ap, nil
}

func (s *Store) agencyPlatformByCatalogID(ctx context.Context, platformID string) (access.AgencyPlatform, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, platform_id, is_enabled, created_at
		from agency_platforms where platform_id=$1
	`, platformID)
	var ap access.AgencyPlatform
	if err := row.Scan(&ap.ID, &ap.PlatformID, &ap.IsEnabled, &ap.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return access.AgencyPlatform{}, access.ErrNotFound
		}
		return access.AgencyPlatform{}, err
	}
	items, err := s.listAccessItems(ctx, ap.ID)
	if err != nil {
		return access.AgencyPlatform{}, err
	}
	ap.AccessItems = items
	return ap, nil
}

func (s *Store) ListAgencyPlatforms(ctx context.Context) ([]access.AgencyPlatform, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, platform_id, is_enabled, created_at
		from agency_platforms order by created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []access.AgencyPlatform
	for rows.Next() {
		var ap access.AgencyPlatform
		if err := rows.Scan(&ap.ID, &ap.PlatformID, &ap.IsEnabled, &ap.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, ap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range result {
		items, err := s.listAccessItems(ctx, result[i].ID)
		if err != nil {
			return nil, err
		}
		result[i].AccessItems = items
	}
	return result, nil
}

func (s *Store) GetAgencyPlatform(ctx context.Context, id string) (access.AgencyPlatform, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, platform_id, is_enabled, created_at
		from agency_platforms where id=$1
	`, id)
	var ap access.AgencyPlatform
	if err := row.Scan(&ap.ID, &ap.PlatformID, &ap.IsEnabled, &ap.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return access.AgencyPlatform{}, access.ErrNotFound
		}
		return access.AgencyPlatform{}, err
	}
	items, err := s.listAccessItems(ctx, ap.ID)
	if err != nil {
		return access.AgencyPlatform{}, err
	}
	ap.AccessItems = items
	return ap, nil
}

func (s *Store) ToggleAgencyPlatform(ctx context.Context, id string) (access.AgencyPlatform, error) {
	row := s.db.QueryRowContext(ctx, `
		update agency_platforms set is_enabled = not is_enabled
		where id=$1
		returning id, platform_id, is_enabled, created_at
	`, id)
	var ap access.AgencyPlatform
	if err := row.Scan(&ap.ID, &ap.PlatformID, &ap.IsEnabled, &ap.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return access.AgencyPlatform{}, access.ErrNotFound
		}
		return access.AgencyPlatform{}, err
	}
	items, err := s.listAccessItems(ctx, ap.ID)
	if err != nil {
		return access.AgencyPlatform{}, err
	}
	ap.AccessItems = items
	return ap, nil
}

func (s *Store) DeleteAgencyPlatform(ctx context.Context, id string) error {
	// Items cascade via the FK.
	res, err := s.db.ExecContext(ctx, `delete from agency_platforms where id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return access.ErrNotFound
	}
	return nil
}

const accessItemCols = `id, agency_platform_id, item_type, access_pattern, pattern_label, label, role,
	identity_purpose, human_identity_strategy, agency_group_email, integration_identity_id,
	naming_template, agency_data, pam_config, created_at, updated_at`

func scanAccessItem(row interface{ Scan(...any) error }) (access.AccessItem, error) {
	var (
		item       access.AccessItem
		purpose    sql.NullString
		strategy   sql.NullString
		groupEmail sql.NullString
		identityID sql.NullString
		template   sql.NullString
		rawData    []byte
		rawPam     []byte
	)
	if err := row.Scan(&item.ID, &item.AgencyPlatformID, &item.ItemType, &item.AccessPattern,
		&item.PatternLabel, &item.Label, &item.Role, &purpose, &strategy, &groupEmail,
		&identityID, &template, &rawData, &rawPam, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return access.AccessItem{}, err
	}
	item.IdentityPurpose = access.IdentityPurpose(purpose.String)
	item.HumanIdentityStrategy = access.HumanIdentityStrategy(strategy.String)
	item.AgencyGroupEmail = groupEmail.String
	item.IntegrationIdentityID = identityID.String
	item.NamingTemplate = template.String
	if len(rawData) > 0 {
		if err := json.Unmarshal(rawData, &item.AgencyData); err != nil {
			return access.AccessItem{}, fmt.Errorf("decode agency data: %w", err)
		}
	}
	if len(rawPam) > 0 {
		var cfg access.PamConfig
		if err := json.Unmarshal(rawPam, &cfg); err != nil {
			return access.AccessItem{}, fmt.Errorf("decode pam config: %w", err)
		}
		item.PamConfig = &cfg
	}
	return item, nil
}

func marshalItemJSON(item access.AccessItem) (dataJSON, pamJSON []byte, err error) {
	dataJSON = []byte("null")
	if len(item.AgencyData) > 0 {
		if dataJSON, err = json.Marshal(item.AgencyData); err != nil {
			return nil, nil, fmt.Errorf("marshal agency data: %w", err)
		}
	}
	pamJSON = []byte("null")
	if item.PamConfig != nil {
		if pamJSON, err = json.Marshal(item.PamConfig); err != nil {
			return nil, nil, fmt.Errorf("marshal pam config: %w", err)
		}
	}
	return dataJSON, pamJSON, nil
}

func (s *Store) CreateAccessItem(ctx context.Context, item access.AccessItem) (access.AccessItem, error) {
	item.ID = ids.New()
	dataJSON, pamJSON, err := marshalItemJSON(item)
	if err != nil {
		return access.AccessItem{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		insert into access_items (id, agency_platform_id, item_type, access_pattern, pattern_label, label, role,
			identity_purpose, human_identity_strategy, agency_group_email, integration_identity_id,
			naming_template, agency_data, pam_config)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		returning `+accessItemCols+`
	`, item.ID, item.AgencyPlatformID, item.ItemType, item.AccessPattern, item.PatternLabel,
		item.Label, item.Role, nullIfEmpty(string(item.IdentityPurpose)),
		nullIfEmpty(string(item.HumanIdentityStrategy)), nullIfEmpty(item.AgencyGroupEmail),
		nullIfEmpty(item.IntegrationIdentityID), nullIfEmpty(item.NamingTemplate), dataJSON, pamJSON)
	out, err := scanAccessItem(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return access.AccessItem{}, access.ErrNotFound
		}
		return access.AccessItem{}, err
	}
	return out, nil
}

func (s *Store) GetAccessItem(ctx context.Context, agencyPlatformID, itemID string) (access.AccessItem, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+accessItemCols+`
		from access_items where id=$1 and agency_platform_id=$2
	`, itemID, agencyPlatformID)
	item, err := scanAccessItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return access.AccessItem{}, access.ErrNotFound
	}
	return item, err
}

func (s *Store) UpdateAccessItem(ctx context.Context, item access.AccessItem) (access.AccessItem, error) {
	dataJSON, pamJSON, err := marshalItemJSON(item)
	if err != nil {
		return access.AccessItem{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		update access_items
		set item_type=$3, access_pattern=$4, pattern_label=$5, label=$6, role=$7,
		    identity_purpose=$8, human_identity_strategy=$9, agency_group_email=$10,
		    integration_identity_id=$11, naming_template=$12, agency_data=$13, pam_config=$14,
		    updated_at=now()
		where id=$1 and agency_platform_id=$2
		returning `+accessItemCols+`
	`, item.ID, item.AgencyPlatformID, item.ItemType, item.AccessPattern, item.PatternLabel,
		item.Label, item.Role, nullIfEmpty(string(item.IdentityPurpose)),
		nullIfEmpty(string(item.HumanIdentityStrategy)), nullIfEmpty(item.AgencyGroupEmail),
		nullIfEmpty(item.IntegrationIdentityID), nullIfEmpty(item.NamingTemplate), dataJSON, pamJSON)
	out, err := scanAccessItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return access.AccessItem{}, access.ErrNotFound
	}
	return out, err
}

func (s *Store) DeleteAccessItem(ctx context.Context, agencyPlatformID, itemID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from access_items where id=$1 and agency_platform_id=$2
	`, itemID, agencyPlatformID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return access.ErrNotFound
	}
	return nil
}

func (s *Store) listAccessItems(ctx context.Context, agencyPlatformID string) ([]access.AccessItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+accessItemCols+`
		from access_items where agency_platform_id=$1 order by created_at
	`, agencyPlatformID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []access.AccessItem{}
	for rows.Next() {
		item, err := scanAccessItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
