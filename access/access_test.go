package access_test

import (
	"context"
	"testing"

	"github.com/recipeflow/recipeflow/access"
	"github.com/recipeflow/recipeflow/id"
)

func TestStaticChecker(t *testing.T) {
	t.Parallel()

	checker := access.NewStatic()
	resource := id.NewRecipeID()
	checker.Grant(resource, "alice", access.RoleEditor)

	ctx := context.Background()

	tests := []struct {
		name     string
		user     string
		required access.Role
		allowed  bool
	}{
		{"editor can view", "alice", access.RoleViewer, true},
		{"editor can edit", "alice", access.RoleEditor, true},
		{"editor cannot own", "alice", access.RoleOwner, false},
		{"unknown user denied", "mallory", access.RoleViewer, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := checker.CheckAccess(ctx, resource, tt.user, tt.required)
			if err != nil {
				t.Fatalf("CheckAccess: %v", err)
			}
			if d.Allowed != tt.allowed {
				t.Errorf("allowed = %v, want %v", d.Allowed, tt.allowed)
			}
		})
	}
}

func TestStaticRevoke(t *testing.T) {
	t.Parallel()

	checker := access.NewStatic()
	resource := id.NewRecipeID()
	checker.Grant(resource, "bob", access.RoleOwner)
	checker.Revoke(resource, "bob")

	d, err := checker.CheckAccess(context.Background(), resource, "bob", access.RoleViewer)
	if err != nil {
		t.Fatalf("CheckAccess: %v", err)
	}
	if d.Allowed {
		t.Error("revoked grant still allows access")
	}
}

func TestUnknownResourceDeniedNotErrored(t *testing.T) {
	t.Parallel()

	checker := access.NewStatic()

	d, err := checker.CheckAccess(context.Background(), id.NewRecipeID(), "alice", access.RoleViewer)
	if err != nil {
		t.Fatalf("CheckAccess returned error for unknown resource: %v", err)
	}
	if d.Allowed {
		t.Error("unknown resource allowed")
	}
}
