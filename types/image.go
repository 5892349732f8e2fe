// Package types holds the five persisted entities of the ggnet control
// plane (Image, Machine, Target, Session, User) and their enums.
package types

import "time"

// ImageFormat is the on-disk format an image was uploaded as.
type ImageFormat string

const (
	ImageFormatRAW   ImageFormat = "RAW"
	ImageFormatVHD   ImageFormat = "VHD"
	ImageFormatVHDX  ImageFormat = "VHDX"
	ImageFormatQCOW2 ImageFormat = "QCOW2"
	ImageFormatVMDK  ImageFormat = "VMDK"
)

// ImageKind classifies what an image is used for.
type ImageKind string

const (
	ImageKindSystem ImageKind = "SYSTEM"
	ImageKindGame   ImageKind = "GAME"
	ImageKindData   ImageKind = "DATA"
)

// ImageStatus is the image lifecycle state (spec.md §3).
type ImageStatus string

const (
	ImageStatusUploading  ImageStatus = "UPLOADING"
	ImageStatusProcessing ImageStatus = "PROCESSING"
	ImageStatusReady      ImageStatus = "READY"
	ImageStatusError      ImageStatus = "ERROR"
	ImageStatusArchived   ImageStatus = "ARCHIVED"
)

// Image is a catalogued, potentially-bootable disk image.
type Image struct {
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex:idx_image_name_live,where:status <> 'ARCHIVED'"`
	Filename  string
	FilePath  string
	Format    ImageFormat
	SizeBytes int64
	Checksum  string
	Kind      ImageKind
	Status    ImageStatus
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName pins the table name so renaming the Go type never migrates data.
func (Image) TableName() string { return "images" }
