// Package policy decides whether an actor may perform an action on a resource.
// It is a pure decision table: it never touches storage and never reads the clock,
// so callers pass the item's effective status in the Resource.
package policy

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/floroz/lotmarket/services/auction-service/internal/domain/failure"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/identity"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/lifecycle"
)

// Action is an operation gated by the policy
type Action string

const (
	ActionCreateItem   Action = "item.create"
	ActionViewItem     Action = "item.view"
	ActionUpdateItem   Action = "item.update"
	ActionApproveItem  Action = "item.approve"
	ActionRejectItem   Action = "item.reject"
	ActionDeleteItem   Action = "item.delete"
	ActionCloseAuction Action = "item.close"
	ActionPlaceBid     Action = "bid.place"
	ActionViewUserBids Action = "bid.list_user"
)

// Resource is what the action targets.
// For item actions OwnerID is the seller; for ActionViewUserBids it is the bidder whose bids are read.
type Resource struct {
	OwnerID uuid.UUID
	Status  lifecycle.Status
}

// Allowed reports whether actor may perform action on res
func Allowed(actor identity.Actor, action Action, res Resource) bool {
	ok, _ := decide(actor, action, res)
	return ok
}

// Authorize is Allowed returning a Forbidden error carrying the reason of a denial
func Authorize(actor identity.Actor, action Action, res Resource) error {
	if ok, reason := decide(actor, action, res); !ok {
		return fmt.Errorf("%w: %s", failure.ErrForbidden, reason)
	}
	return nil
}

func decide(actor identity.Actor, action Action, res Resource) (bool, string) {
	owner := !actor.IsAnonymous() && actor.ID == res.OwnerID

	switch action {
	case ActionViewItem:
		if actor.IsAdmin() || owner || res.Status == lifecycle.StatusOpen {
			return true, ""
		}
		return false, "item is not visible"
	case ActionViewUserBids:
		if actor.IsAdmin() || owner {
			return true, ""
		}
		return false, "only the bidder or an admin can list a user's bids"
	}

	// Everything below mutates state.
	if actor.IsAnonymous() {
		return false, "authentication required"
	}
	if !actor.IsApproved() {
		return false, fmt.Sprintf("account is %s", displayAccount(actor.AccountStatus))
	}

	switch action {
	case ActionCreateItem:
		if actor.Role == identity.RoleCreator || actor.Role == identity.RoleAdmin {
			return true, ""
		}
		return false, fmt.Sprintf("role %s cannot create items", actor.Role)

	case ActionApproveItem, ActionRejectItem:
		if actor.IsAdmin() {
			return true, ""
		}
		return false, "only an admin can review items"

	case ActionUpdateItem:
		if actor.IsAdmin() {
			return true, ""
		}
		if !owner {
			return false, "only the owner can update this item"
		}
		if res.Status == lifecycle.StatusPendingApproval || res.Status == lifecycle.StatusOpen {
			return true, ""
		}
		return false, fmt.Sprintf("item cannot be updated in status %s", res.Status)

	case ActionDeleteItem:
		if actor.IsAdmin() {
			return true, ""
		}
		if !owner {
			return false, "only the owner can delete this item"
		}
		if res.Status == lifecycle.StatusPendingApproval || res.Status == lifecycle.StatusRejected {
			return true, ""
		}
		return false, fmt.Sprintf("item cannot be deleted in status %s", res.Status)

	case ActionCloseAuction:
		if actor.IsAdmin() || owner {
			return true, ""
		}
		return false, "only the owner or an admin can close this auction"

	case ActionPlaceBid:
		// The seller rule is enforced by the ledger, it needs the loaded item.
		return true, ""
	}

	return false, fmt.Sprintf("unknown action %q", action)
}

func displayAccount(s identity.AccountStatus) string {
	if s == "" {
		return "not approved"
	}
	return string(s)
}
