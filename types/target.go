package types

import "time"

// TargetStatus is the iSCSI target lifecycle state (spec.md §3, §4.3).
type TargetStatus string

const (
	TargetStatusCreating TargetStatus = "CREATING"
	TargetStatusActive   TargetStatus = "ACTIVE"
	TargetStatusStopping TargetStatus = "STOPPING"
	TargetStatusStopped  TargetStatus = "STOPPED"
	TargetStatusError    TargetStatus = "ERROR"
)

// Target materialises one image as a bootable iSCSI target for one machine.
type Target struct {
	ID           string `gorm:"primaryKey"`
	IQN          string `gorm:"uniqueIndex"`
	MachineID    string `gorm:"index"`
	ImageID      string `gorm:"index"`
	ImagePath    string // snapshot of image.FilePath at creation time
	InitiatorIQN string
	LUNID        int
	PortalIP     string
	PortalPort   int
	CHAPSecret   string `gorm:"column:chap_secret"`
	Status       TargetStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (Target) TableName() string { return "targets" }
