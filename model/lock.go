package model

import "time"

// LockRecord is the lease stored under sessioncoord:lock:<operation>. The
// nonce distinguishes two acquisitions by the same instance, so a release
// after a crash-and-restart cannot free a lease it no longer owns. Expiry is
// enforced by the backend TTL; AcquiredAt and ExpiresAt are diagnostic.
type LockRecord struct {
	Operation  string    `bson:"operation" json:"operation"`
	TabID      string    `bson:"tab_id" json:"tab_id"`
	Nonce      string    `bson:"nonce" json:"nonce"`
	AcquiredAt time.Time `bson:"acquired_at" json:"acquired_at"`
	ExpiresAt  time.Time `bson:"expires_at" json:"expires_at"`
}
