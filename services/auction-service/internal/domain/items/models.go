package items

import (
	"time"

	"github.com/google/uuid"

	"github.com/floroz/lotmarket/services/auction-service/internal/domain/lifecycle"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/policy"
)

// Item is a lot offered for auction. Prices are in cents.
type Item struct {
	ID            uuid.UUID        `db:"id"`
	Name          string           `db:"name"`
	Description   string           `db:"description"`
	StartingPrice int64            `db:"starting_price"`
	EndTime       time.Time        `db:"end_time"`
	SellerID      uuid.UUID        `db:"seller_id"`
	Status        lifecycle.Status `db:"status"`
	CreatedAt     time.Time        `db:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at"`
}

// IsOwnedBy checks if the item belongs to the given user
func (i *Item) IsOwnedBy(userID uuid.UUID) bool {
	return i.SellerID == userID
}

// EffectiveStatus is the stored status with an elapsed bidding window applied
func (i *Item) EffectiveStatus(now time.Time) lifecycle.Status {
	return lifecycle.Effective(i.Status, i.EndTime, now)
}

// Resource describes the item to the authorization policy
func (i *Item) Resource(now time.Time) policy.Resource {
	return policy.Resource{OwnerID: i.SellerID, Status: i.EffectiveStatus(now)}
}

// AsOf returns a copy of the item carrying its effective status
func (i *Item) AsOf(now time.Time) *Item {
	out := *i
	out.Status = i.EffectiveStatus(now)
	return &out
}
