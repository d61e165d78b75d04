package policy

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/floroz/lotmarket/services/auction-service/internal/domain/failure"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/identity"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/lifecycle"
)

func actor(role identity.Role) identity.Actor {
	return identity.Actor{ID: uuid.New(), Role: role, AccountStatus: identity.AccountApproved}
}

func TestAllowed(t *testing.T) {
	owner := actor(identity.RoleCreator)
	otherCreator := actor(identity.RoleCreator)
	admin := actor(identity.RoleAdmin)
	bidder := actor(identity.RoleBidder)
	aggregator := actor(identity.RoleAggregator)
	anon := identity.Anonymous()
	pendingAccount := identity.Actor{ID: uuid.New(), Role: identity.RoleCreator, AccountStatus: identity.AccountPending}

	res := func(status lifecycle.Status) Resource {
		return Resource{OwnerID: owner.ID, Status: status}
	}

	tests := []struct {
		name   string
		actor  identity.Actor
		action Action
		res    Resource
		want   bool
	}{
		// create
		{"creator creates", owner, ActionCreateItem, Resource{}, true},
		{"admin creates", admin, ActionCreateItem, Resource{}, true},
		{"bidder cannot create", bidder, ActionCreateItem, Resource{}, false},
		{"aggregator cannot create", aggregator, ActionCreateItem, Resource{}, false},
		{"anonymous cannot create", anon, ActionCreateItem, Resource{}, false},
		{"pending account cannot create", pendingAccount, ActionCreateItem, Resource{}, false},

		// view
		{"anonymous sees open", anon, ActionViewItem, res(lifecycle.StatusOpen), true},
		{"anonymous cannot see pending", anon, ActionViewItem, res(lifecycle.StatusPendingApproval), false},
		{"bidder cannot see closed", bidder, ActionViewItem, res(lifecycle.StatusClosed), false},
		{"aggregator sees open", aggregator, ActionViewItem, res(lifecycle.StatusOpen), true},
		{"owner sees own rejected", owner, ActionViewItem, res(lifecycle.StatusRejected), true},
		{"other creator cannot see pending", otherCreator, ActionViewItem, res(lifecycle.StatusPendingApproval), false},
		{"admin sees sold", admin, ActionViewItem, res(lifecycle.StatusSold), true},

		// update
		{"owner updates pending", owner, ActionUpdateItem, res(lifecycle.StatusPendingApproval), true},
		{"owner updates open", owner, ActionUpdateItem, res(lifecycle.StatusOpen), true},
		{"owner cannot update closed", owner, ActionUpdateItem, res(lifecycle.StatusClosed), false},
		{"owner cannot update rejected", owner, ActionUpdateItem, res(lifecycle.StatusRejected), false},
		{"other creator cannot update", otherCreator, ActionUpdateItem, res(lifecycle.StatusOpen), false},
		{"admin updates sold", admin, ActionUpdateItem, res(lifecycle.StatusSold), true},

		// review
		{"admin approves", admin, ActionApproveItem, res(lifecycle.StatusPendingApproval), true},
		{"owner cannot approve", owner, ActionApproveItem, res(lifecycle.StatusPendingApproval), false},
		{"admin rejects", admin, ActionRejectItem, res(lifecycle.StatusPendingApproval), true},
		{"bidder cannot reject", bidder, ActionRejectItem, res(lifecycle.StatusPendingApproval), false},

		// delete
		{"owner deletes pending", owner, ActionDeleteItem, res(lifecycle.StatusPendingApproval), true},
		{"owner deletes rejected", owner, ActionDeleteItem, res(lifecycle.StatusRejected), true},
		{"owner cannot delete open", owner, ActionDeleteItem, res(lifecycle.StatusOpen), false},
		{"owner cannot delete sold", owner, ActionDeleteItem, res(lifecycle.StatusSold), false},
		{"other creator cannot delete", otherCreator, ActionDeleteItem, res(lifecycle.StatusPendingApproval), false},
		{"admin deletes open", admin, ActionDeleteItem, res(lifecycle.StatusOpen), true},

		// close
		{"owner closes", owner, ActionCloseAuction, res(lifecycle.StatusClosed), true},
		{"admin closes", admin, ActionCloseAuction, res(lifecycle.StatusClosed), true},
		{"bidder cannot close", bidder, ActionCloseAuction, res(lifecycle.StatusClosed), false},

		// bids
		{"bidder bids", bidder, ActionPlaceBid, res(lifecycle.StatusOpen), true},
		{"aggregator bids", aggregator, ActionPlaceBid, res(lifecycle.StatusOpen), true},
		{"admin bids", admin, ActionPlaceBid, res(lifecycle.StatusOpen), true},
		{"anonymous cannot bid", anon, ActionPlaceBid, res(lifecycle.StatusOpen), false},
		{"pending account cannot bid", pendingAccount, ActionPlaceBid, res(lifecycle.StatusOpen), false},
		{"bidder lists own bids", bidder, ActionViewUserBids, Resource{OwnerID: bidder.ID}, true},
		{"bidder cannot list other bids", bidder, ActionViewUserBids, Resource{OwnerID: aggregator.ID}, false},
		{"admin lists any bids", admin, ActionViewUserBids, Resource{OwnerID: bidder.ID}, true},
		{"anonymous cannot list bids", anon, ActionViewUserBids, Resource{OwnerID: uuid.Nil}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Allowed(tt.actor, tt.action, tt.res))
		})
	}
}

func TestAuthorize(t *testing.T) {
	owner := actor(identity.RoleCreator)

	err := Authorize(owner, ActionDeleteItem, Resource{OwnerID: owner.ID, Status: lifecycle.StatusOpen})
	assert.ErrorIs(t, err, failure.ErrForbidden)
	assert.Contains(t, err.Error(), "OPEN")

	err = Authorize(owner, ActionDeleteItem, Resource{OwnerID: owner.ID, Status: lifecycle.StatusPendingApproval})
	assert.NoError(t, err)

	err = Authorize(identity.Anonymous(), ActionPlaceBid, Resource{})
	assert.ErrorIs(t, err, failure.ErrForbidden)
	assert.Contains(t, err.Error(), "authentication required")
}

func TestAllowed_UnknownAction(t *testing.T) {
	assert.False(t, Allowed(actor(identity.RoleAdmin), Action("item.melt"), Resource{}))
}
