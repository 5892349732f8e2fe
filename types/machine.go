package types

import "time"

// BootMode is the firmware boot policy of a machine.
type BootMode string

const (
	BootModeBIOS           BootMode = "BIOS"
	BootModeUEFI           BootMode = "UEFI"
	BootModeUEFISecureBoot BootMode = "UEFI_SECUREBOOT"
)

// FirmwareArch identifies the client's architecture class for DHCP option 93
// steering (spec.md §4.4.2).
type FirmwareArch string

const (
	FirmwareArchX86BIOS     FirmwareArch = "x86_BIOS"
	FirmwareArchX86UEFI     FirmwareArch = "x86_UEFI"
	FirmwareArchX64UEFI     FirmwareArch = "x64_UEFI"
	FirmwareArchX64UEFIHTTP FirmwareArch = "x64_UEFI_HTTP"
)

// MachineStatus is the administrative state of a machine.
type MachineStatus string

const (
	MachineStatusActive      MachineStatus = "ACTIVE"
	MachineStatusInactive    MachineStatus = "INACTIVE"
	MachineStatusMaintenance MachineStatus = "MAINTENANCE"
)

// Machine is a physical or virtual client that boots from the fleet.
type Machine struct {
	ID           string `gorm:"primaryKey"`
	MACAddress   string `gorm:"uniqueIndex"` // canonical lowercase colon form
	Hostname     string `gorm:"uniqueIndex"`
	IPAddress    string
	BootMode     BootMode
	FirmwareArch FirmwareArch
	Status       MachineStatus
	CPU          string
	RAMBytes     int64
	NIC          string
	LastSeen     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (Machine) TableName() string { return "machines" }
