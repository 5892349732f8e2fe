package types

import "time"

// SessionType distinguishes why a machine is booting a target.
type SessionType string

const (
	SessionTypeDisklessBoot SessionType = "DISKLESS_BOOT"
	SessionTypeMaintenance  SessionType = "MAINTENANCE"
	SessionTypeUpdate       SessionType = "UPDATE"
)

// SessionStatus is a state in the closed state machine of spec.md §4.5.
type SessionStatus string

const (
	SessionStatusRequested   SessionStatus = "REQUESTED"
	SessionStatusProvisioning SessionStatus = "PROVISIONING"
	SessionStatusActive      SessionStatus = "ACTIVE"
	SessionStatusStopping    SessionStatus = "STOPPING"
	SessionStatusStopped     SessionStatus = "STOPPED"
	SessionStatusFailed      SessionStatus = "FAILED"
	SessionStatusRejected    SessionStatus = "REJECTED"
)

// Terminal reports whether status has no further transitions.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionStatusStopped, SessionStatusFailed, SessionStatusRejected:
		return true
	default:
		return false
	}
}

// Session is the lifetime of a machine booted from a target.
type Session struct {
	ID           string `gorm:"primaryKey"`
	MachineID    string `gorm:"index"`
	TargetID     string `gorm:"index"`
	ImageID      string `gorm:"index"`
	SessionType  SessionType
	Status       SessionStatus
	FailureCode  string
	FailureError string
	Actor        string
	StartedAt    time.Time
	LastActivity time.Time
	EndedAt      *time.Time
	EndReason    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (Session) TableName() string { return "sessions" }
