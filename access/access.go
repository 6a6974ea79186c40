// Package access defines the authorization contract the engine consumes.
// The engine never decides who may touch a resource; it asks a Checker
// and treats denial exactly like absence, so callers cannot probe for
// resources they are not allowed to see.
package access

import (
	"context"
	"sync"

	"github.com/recipeflow/recipeflow/id"
)

// Role is an ordered permission level on a resource.
type Role int

const (
	// RoleViewer may read a resource.
	RoleViewer Role = iota + 1
	// RoleEditor may read and mutate a resource.
	RoleEditor
	// RoleOwner may read, mutate, and delete a resource.
	RoleOwner
)

// String returns the wire name of the role.
func (r Role) String() string {
	switch r {
	case RoleViewer:
		return "viewer"
	case RoleEditor:
		return "editor"
	case RoleOwner:
		return "owner"
	default:
		return "unknown"
	}
}

// Decision is the outcome of an access check.
type Decision struct {
	// Allowed reports whether the user holds at least the required role.
	Allowed bool
	// Role is the role the user actually holds, if any.
	Role Role
}

// Checker answers whether a user holds a required role on a resource.
// Implementations must return Allowed=false (not an error) for both
// unknown resources and insufficient roles; errors are reserved for
// infrastructure failures.
type Checker interface {
	CheckAccess(ctx context.Context, resourceID id.ID, userID string, required Role) (Decision, error)
}

// AllowAll is a Checker that grants every request. Used for internal
// callers that are authorized before they reach the engine (e.g. the
// schedule sweeper) and in tests.
type AllowAll struct{}

// CheckAccess always allows with owner role.
func (AllowAll) CheckAccess(_ context.Context, _ id.ID, _ string, _ Role) (Decision, error) {
	return Decision{Allowed: true, Role: RoleOwner}, nil
}

// Static is an in-memory Checker backed by an explicit grant table.
// Safe for concurrent use.
type Static struct {
	mu     sync.RWMutex
	grants map[string]map[string]Role // resourceID -> userID -> role
}

// NewStatic creates an empty Static checker.
func NewStatic() *Static {
	return &Static{grants: make(map[string]map[string]Role)}
}

// Grant records that userID holds role on resourceID, replacing any
// previous grant.
func (s *Static) Grant(resourceID id.ID, userID string, role Role) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := resourceID.String()
	if s.grants[key] == nil {
		s.grants[key] = make(map[string]Role)
	}
	s.grants[key][userID] = role
}

// Revoke removes a user's grant on a resource.
func (s *Static) Revoke(resourceID id.ID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.grants[resourceID.String()], userID)
}

// CheckAccess implements Checker.
func (s *Static) CheckAccess(_ context.Context, resourceID id.ID, userID string, required Role) (Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, ok := s.grants[resourceID.String()][userID]
	if !ok {
		return Decision{}, nil
	}
	return Decision{Allowed: role >= required, Role: role}, nil
}
