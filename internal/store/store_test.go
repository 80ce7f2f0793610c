package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spigell/resume-agent/internal/apperr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), Config{Driver: DriverSQLite, DSN: ":memory:"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	return s
}

func TestUserLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := &User{Email: " Alice@Example.com ", HashedPassword: "hash", FullName: "Alice", IsActive: true}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID == "" || u.Plan != PlanFree || u.Email != "alice@example.com" {
		t.Fatalf("unexpected user after insert %#v", u)
	}

	byEmail, err := s.GetUserByEmail(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if byEmail.ID != u.ID || !byEmail.IsActive || byEmail.IsAdmin || byEmail.HashedPassword != "hash" {
		t.Fatalf("unexpected user %#v", byEmail)
	}

	byID, err := s.GetUserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if !byID.CreatedAt.Equal(u.CreatedAt) {
		t.Fatalf("created_at = %v, want %v", byID.CreatedAt, u.CreatedAt)
	}

	if _, err := s.GetUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateUserDuplicateEmailIsConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateUser(ctx, &User{Email: "bob@example.com", HashedPassword: "x"}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	err := s.CreateUser(ctx, &User{Email: "BOB@example.com", HashedPassword: "y"})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	n, err := s.CountUsers(ctx)
	if err != nil {
		t.Fatalf("CountUsers: %v", err)
	}
	if n != 1 {
		t.Fatalf("CountUsers = %d, want 1", n)
	}
}

func TestListUsersPaginates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, email := range []string{"a@x.io", "b@x.io", "c@x.io"} {
		if err := s.CreateUser(ctx, &User{Email: email, HashedPassword: "h"}); err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
	}

	page, err := s.ListUsers(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(page) != 2 || page[0].Email != "c@x.io" || page[1].Email != "b@x.io" {
		t.Fatalf("unexpected first page %#v", page)
	}

	rest, err := s.ListUsers(ctx, 2, 2)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(rest) != 1 || rest[0].Email != "a@x.io" {
		t.Fatalf("unexpected second page %#v", rest)
	}
}

func TestPlans(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateUser(ctx, &User{Email: "pay@x.io", HashedPassword: "h"}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := s.SetPlan(ctx, "pay@x.io", "pro", "cus_1", "sub_1"); err != nil {
		t.Fatalf("SetPlan: %v", err)
	}

	u, err := s.GetUserByEmail(ctx, "pay@x.io")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if u.Plan != "pro" || u.BillingCustomerID != "cus_1" || u.BillingSubscriptionID != "sub_1" {
		t.Fatalf("plan not stored: %#v", u)
	}

	if err := s.ResetPlan(ctx, "sub_1"); err != nil {
		t.Fatalf("ResetPlan: %v", err)
	}
	u, err = s.GetUserByEmail(ctx, "pay@x.io")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if u.Plan != PlanFree || u.BillingSubscriptionID != "" {
		t.Fatalf("plan not reset: %#v", u)
	}

	if err := s.SetPlan(ctx, "ghost@x.io", "pro", "", ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.ResetPlan(ctx, "sub_unknown"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResumesAreScopedToOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	owner := &User{Email: "owner@x.io", HashedPassword: "h"}
	other := &User{Email: "other@x.io", HashedPassword: "h"}
	for _, u := range []*User{owner, other} {
		if err := s.CreateUser(ctx, u); err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
	}

	r := &Resume{UserID: owner.ID, ObjectKey: "resumes/1.pdf", Filename: "cv.pdf", ContentType: "application/pdf", ExtractedText: "Go developer"}
	if err := s.CreateResume(ctx, r); err != nil {
		t.Fatalf("CreateResume: %v", err)
	}

	got, err := s.GetResume(ctx, r.ID, owner.ID)
	if err != nil {
		t.Fatalf("GetResume: %v", err)
	}
	if got.ObjectKey != "resumes/1.pdf" || got.ExtractedText != "Go developer" {
		t.Fatalf("unexpected resume %#v", got)
	}

	if _, err := s.GetResume(ctx, r.ID, other.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found for another user, got %v", err)
	}

	list, err := s.ListResumes(ctx, owner.ID)
	if err != nil {
		t.Fatalf("ListResumes: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("ListResumes returned %d items", len(list))
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: "oracle", DSN: "x"}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
