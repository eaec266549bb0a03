package access

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedRequest(t *testing.T, s *InMemory, itemCount int) AccessRequest {
	t.Helper()
	ctx := context.Background()
	client, err := s.CreateClient(ctx, Client{Name: "Acme", Email: "a@acme.com"})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	req := AccessRequest{ClientID: client.ID, Token: "tok-" + client.ID}
	for i := 0; i < itemCount; i++ {
		req.Items = append(req.Items, AccessRequestItem{
			PlatformID: "cat-google-ads",
			ItemType:   NamedInvite,
			Label:      "Invite",
			Role:       "Editor",
		})
	}
	created, err := s.CreateAccessRequest(ctx, req)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	return created
}

func TestAddAgencyPlatformIdempotent(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	first, err := s.AddAgencyPlatform(ctx, "cat-google-ads")
	if err != nil {
		t.Fatalf("add platform: %v", err)
	}
	if !first.IsEnabled || len(first.AccessItems) != 0 {
		t.Fatalf("unexpected fresh platform: %+v", first)
	}

	again, err := s.AddAgencyPlatform(ctx, "cat-google-ads")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("conflict must return the existing record, got %s vs %s", again.ID, first.ID)
	}

	if _, err := s.AddAgencyPlatform(ctx, "cat-missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown catalog id, got %v", err)
	}
}

func TestDeleteAgencyPlatformCascades(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	ap, err := s.AddAgencyPlatform(ctx, "cat-ga4")
	if err != nil {
		t.Fatalf("add platform: %v", err)
	}
	item, err := s.CreateAccessItem(ctx, AccessItem{
		AgencyPlatformID: ap.ID,
		ItemType:         NamedInvite,
		Label:            "Analytics invite",
		Role:             "Editor",
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}

	if err := s.DeleteAgencyPlatform(ctx, ap.ID); err != nil {
		t.Fatalf("delete platform: %v", err)
	}
	if _, err := s.GetAccessItem(ctx, ap.ID, item.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected cascade delete of items, got %v", err)
	}
}

func TestValidateRequestItemSetsCompletedAtOnce(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	req := seedRequest(t, s, 2)

	_, completed, err := s.ValidateRequestItem(ctx, req.ID, req.Items[0].ID, ModeManual, "admin")
	if err != nil {
		t.Fatalf("validate first: %v", err)
	}
	if completed {
		t.Fatal("request must not complete while an item is pending")
	}

	item, completed, err := s.ValidateRequestItem(ctx, req.ID, req.Items[1].ID, ModeAttestation, "client")
	if err != nil {
		t.Fatalf("validate second: %v", err)
	}
	if !completed {
		t.Fatal("last validation should complete the request")
	}
	if item.Status != StatusValidated || item.ValidatedAt == nil {
		t.Fatalf("item not validated: %+v", item)
	}

	after, err := s.GetAccessRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if after.CompletedAt == nil {
		t.Fatal("CompletedAt not set")
	}
	stamp := *after.CompletedAt

	// Re-validating must not move CompletedAt.
	time.Sleep(5 * time.Millisecond)
	if _, completed, err := s.ValidateRequestItem(ctx, req.ID, req.Items[1].ID, ModeManual, "admin"); err != nil || completed {
		t.Fatalf("re-validation should be a no-op, completed=%v err=%v", completed, err)
	}
	again, _ := s.GetAccessRequest(ctx, req.ID)
	if !again.CompletedAt.Equal(stamp) {
		t.Fatalf("CompletedAt changed: %v vs %v", again.CompletedAt, stamp)
	}
}

func TestUpdateRequestItem(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	req := seedRequest(t, s, 1)

	target := "customer-id-123"
	username := "shared-user"
	secret := "c2VjcmV0"
	item, err := s.UpdateRequestItem(ctx, req.ID, req.Items[0].ID, RequestItemUpdate{
		ClientProvidedTarget: &target,
		PamUsername:          &username,
		PamSecretRef:         &secret,
	})
	if err != nil {
		t.Fatalf("update item: %v", err)
	}
	if item.ClientProvidedTarget != target || item.PamUsername != username || item.PamSecretRef != secret {
		t.Fatalf("update not applied: %+v", item)
	}

	if _, err := s.UpdateRequestItem(ctx, req.ID, "missing", RequestItemUpdate{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPamSessionLifecycle(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	sess, err := s.CreatePamSession(ctx, PamSession{
		RequestID: "req-1",
		ItemID:    "item-1",
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(30 * time.Minute),
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if sess.Status != PamSessionActive {
		t.Fatalf("fresh session should be active, got %s", sess.Status)
	}

	checked, err := s.CheckinPamSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("checkin: %v", err)
	}
	if checked.Status != PamSessionCheckedIn || checked.CheckedInAt == nil {
		t.Fatalf("session not checked in: %+v", checked)
	}
}

func TestRequestTokenLookup(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	req := seedRequest(t, s, 1)

	byToken, err := s.GetAccessRequestByToken(ctx, req.Token)
	if err != nil {
		t.Fatalf("lookup by token: %v", err)
	}
	if byToken.ID != req.ID {
		t.Fatalf("token lookup mismatch: %s vs %s", byToken.ID, req.ID)
	}
	if _, err := s.GetAccessRequestByToken(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
