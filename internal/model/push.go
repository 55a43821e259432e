package model

import "time"

// Notification kinds recorded in the sent-log to keep reminders
// at-most-once per reference.
const (
	NotifTypeApprovalRequest = "approval_request"
	NotifTypeApprovalDecided = "approval_decided"
	NotifTypeStakeMaturity   = "stake_maturity"
	NotifTypeLockRelease     = "lock_release"
)

type PushSubscription struct {
	ID        int64     `json:"id"`
	UID       string    `json:"uid"`
	Endpoint  string    `json:"endpoint"`
	P256dhKey string    `json:"-"`
	AuthKey   string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
