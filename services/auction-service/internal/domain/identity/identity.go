package identity

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Role is the marketplace role carried by an authenticated user
type Role string

const (
	RoleCreator    Role = "CREATOR"
	RoleBidder     Role = "BIDDER"
	RoleAggregator Role = "AGGREGATOR"
	RoleAdmin      Role = "ADMIN"
)

// IsValid checks if the role is one of the known roles
func (r Role) IsValid() bool {
	switch r {
	case RoleCreator, RoleBidder, RoleAggregator, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole accepts a role name in any case
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// AccountStatus is the review state of a user account
type AccountStatus string

const (
	AccountPending  AccountStatus = "pending"
	AccountApproved AccountStatus = "approved"
	AccountRejected AccountStatus = "rejected"
)

// ParseAccountStatus accepts an account status in any case
func ParseAccountStatus(s string) (AccountStatus, error) {
	st := AccountStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case AccountPending, AccountApproved, AccountRejected:
		return st, nil
	default:
		return "", fmt.Errorf("unknown account status %q", s)
	}
}

// Actor is the identity acting on a request, as supplied by the identity provider.
// The zero value is an anonymous caller.
type Actor struct {
	ID            uuid.UUID
	Role          Role
	AccountStatus AccountStatus
}

// Anonymous returns the unauthenticated actor
func Anonymous() Actor {
	return Actor{}
}

func (a Actor) IsAnonymous() bool {
	return a.ID == uuid.Nil
}

func (a Actor) IsAdmin() bool {
	return !a.IsAnonymous() && a.Role == RoleAdmin
}

func (a Actor) IsApproved() bool {
	return !a.IsAnonymous() && a.AccountStatus == AccountApproved
}
