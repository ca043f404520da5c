package model

import "time"

// TrustRecord is the auth-service's local belief about a user.
//
// OwnerServiceID references the canonical IdentityRecord.ID in the
// user-service. The two are not transactionally linked: a TrustRecord may be
// stale, or missing for an identity that was created remotely.
type TrustRecord struct {
	ID             string    `json:"id"` // xid, local to the auth-service
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	Active         bool      `json:"active"`
	FirstName      string    `json:"firstName,omitempty"`
	LastName       string    `json:"lastName,omitempty"`
	OwnerServiceID int64     `json:"ownerServiceId"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
