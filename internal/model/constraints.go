package model

// Limits and names shared by the handler, service and storage packages.
const (
	MaxImageBytes = int64(10 * 1024 * 1024) // 10 MiB

	CategoryCover     = "covers"
	CategoryCopyright = "copyrights"

	FieldDeviceSerial   = "deviceSerial"
	FieldPhoneNumber    = "phoneNumber"
	FieldISBN           = "isbn"
	FieldCoverImage     = "coverImage"
	FieldCopyrightImage = "copyrightImage"
)
