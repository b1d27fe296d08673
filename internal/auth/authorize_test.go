package auth

import (
	"context"
	"testing"
)

func TestPrincipalHasPermission(t *testing.T) {
	p := NewPrincipal(
		&User{ID: "u1", Status: UserStatusActive},
		nil,
		[]Permission{{Key: PermView}, {Key: PermBook}},
	)

	if !p.HasPermission(PermView) || !p.HasPermission(PermBook) {
		t.Fatal("expected granted permissions")
	}
	if p.HasPermission(PermManage) {
		t.Fatal("manage must not be granted")
	}
	if p.HasPermission("") {
		t.Fatal("empty key must not be granted")
	}
}

func TestPrincipalIsActive(t *testing.T) {
	active := NewPrincipal(&User{ID: "u1", Status: UserStatusActive}, nil, nil)
	if !active.IsActive() {
		t.Fatal("active account must report active")
	}
	for _, status := range []string{UserStatusInactive, UserStatusTerminated} {
		p := NewPrincipal(&User{ID: "u1", Status: status}, nil, nil)
		if p.IsActive() {
			t.Fatalf("status %q must not report active", status)
		}
	}
	var empty Principal
	if empty.IsActive() {
		t.Fatal("empty principal must not report active")
	}
	if empty.UserID() != "" {
		t.Fatal("empty principal must have empty user id")
	}
}

func TestPrincipalContextRoundTrip(t *testing.T) {
	p := NewPrincipal(&User{ID: "u1", Status: UserStatusActive}, nil, []Permission{{Key: PermView}})
	ctx := ContextWithPrincipal(context.Background(), p)

	got, ok := PrincipalFromContext(ctx)
	if !ok {
		t.Fatal("expected principal in context")
	}
	if got.UserID() != "u1" || !got.HasPermission(PermView) {
		t.Fatalf("unexpected principal %#v", got)
	}

	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Fatal("expected no principal in empty context")
	}
	if id, ok := UserIDFromContext(ctx); !ok || id != "u1" {
		t.Fatalf("unexpected user id %q", id)
	}
}
