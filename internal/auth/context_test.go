package auth

import (
	"context"
	"testing"
)

func TestWithUserAndFromContext(t *testing.T) {
	u := User{ID: "5f0c7a4e-2d55-4a8e-9a42-0d9c1c2b7e11", Email: "writer@example.com"}

	ctx := WithUser(context.Background(), u)
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected User in context")
	}
	if got != u {
		t.Errorf("user = %+v, want %+v", got, u)
	}
	if UserID(ctx) != u.ID {
		t.Errorf("UserID = %q, want %q", UserID(ctx), u.ID)
	}
}

func TestFromContextMissing(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Error("expected no User in empty context")
	}
	if id := UserID(context.Background()); id != "" {
		t.Errorf("UserID = %q, want empty", id)
	}
}
