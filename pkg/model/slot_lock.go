package model

import "time"

// SlotLock is an advisory lock preventing two concurrent booking requests
// from racing through the availability check for the same employee and slot.
// The _id encodes the slot coordinates; a duplicate-key insert means another
// request holds the slot.
type SlotLock struct {
	ID        string    `bson:"_id" json:"id"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
