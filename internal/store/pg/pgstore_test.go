package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"grantdesk.org/internal/access"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func TestCreateClient(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("insert into clients").
		WithArgs(sqlmock.AnyArg(), "Acme", "ops@acme.example").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "created_at", "updated_at"}).
			AddRow("c-1", "Acme", "ops@acme.example", now, now))

	c, err := s.CreateClient(context.Background(), access.Client{Name: "Acme", Email: "ops@acme.example"})
	if err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	if c.ID != "c-1" || c.Name != "Acme" {
		t.Fatalf("unexpected client: %+v", c)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetClientNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("select id, name, email, created_at, updated_at.*from clients").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	if _, err := s.GetClient(context.Background(), "missing"); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAddAgencyPlatformReturnsExistingOnConflict(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("select id, platform_id, is_enabled, created_at.*from agency_platforms").
		WithArgs("cat-google-ads").
		WillReturnRows(sqlmock.NewRows([]string{"id", "platform_id", "is_enabled", "created_at"}).
			AddRow("ap-1", "cat-google-ads", true, now))
	mock.ExpectQuery("select id, agency_platform_id, item_type").
		WithArgs("ap-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "agency_platform_id", "item_type", "access_pattern", "pattern_label", "label", "role",
			"identity_purpose", "human_identity_strategy", "agency_group_email", "integration_identity_id",
			"naming_template", "agency_data", "pam_config", "created_at", "updated_at",
		}))

	ap, err := s.AddAgencyPlatform(context.Background(), "cat-google-ads")
	if !errors.Is(err, access.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if ap.ID != "ap-1" {
		t.Fatalf("conflict must return the existing record, got %+v", ap)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestValidateRequestItemCompletesRequest(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	itemRows := sqlmock.NewRows([]string{
		"id", "access_request_id", "platform_id", "source_item_id", "item_type", "label", "role",
		"resolved_identity", "pam_config", "pam_username", "pam_secret_ref", "client_provided_target",
		"status", "validated_at", "validated_by", "validation_mode", "verification_mode", "client_instructions", "created_at",
	}).AddRow("item-1", "req-1", "cat-ga4", nil, "NAMED_INVITE", "Invite", "Editor",
		nil, nil, nil, nil, nil, "validated", now, "client", "attestation", nil, nil, now)

	mock.ExpectBegin()
	mock.ExpectExec("update access_request_items").
		WithArgs("req-1", "item-1", sqlmock.AnyArg(), "attestation").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("select id, access_request_id, platform_id").
		WithArgs("req-1", "item-1").
		WillReturnRows(itemRows)
	mock.ExpectExec("update access_requests").
		WithArgs("req-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	item, completed, err := s.ValidateRequestItem(context.Background(), "req-1", "item-1", access.ModeAttestation, "client")
	if err != nil {
		t.Fatalf("ValidateRequestItem: %v", err)
	}
	if !completed {
		t.Fatal("last item should complete the request")
	}
	if item.Status != access.StatusValidated || item.ValidatedAt == nil {
		t.Fatalf("item not validated: %+v", item)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestValidateRequestItemNoOpWhenAlreadyValidated(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	itemRows := sqlmock.NewRows([]string{
		"id", "access_request_id", "platform_id", "source_item_id", "item_type", "label", "role",
		"resolved_identity", "pam_config", "pam_username", "pam_secret_ref", "client_provided_target",
		"status", "validated_at", "validated_by", "validation_mode", "verification_mode", "client_instructions", "created_at",
	}).AddRow("item-1", "req-1", "cat-ga4", nil, "NAMED_INVITE", "Invite", "Editor",
		nil, nil, nil, nil, nil, "validated", now, "admin", "manual", nil, nil, now)

	mock.ExpectBegin()
	mock.ExpectExec("update access_request_items").
		WithArgs("req-1", "item-1", sqlmock.AnyArg(), "manual").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select id, access_request_id, platform_id").
		WithArgs("req-1", "item-1").
		WillReturnRows(itemRows)
	mock.ExpectCommit()

	_, completed, err := s.ValidateRequestItem(context.Background(), "req-1", "item-1", access.ModeManual, "admin")
	if err != nil {
		t.Fatalf("ValidateRequestItem: %v", err)
	}
	if completed {
		t.Fatal("re-validation must not complete the request again")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
