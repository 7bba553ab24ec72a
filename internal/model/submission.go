package model

import "time"

// Submission is one collected record: who submitted it, which book, and where its photos live.
// Rows are immutable once inserted.
type Submission struct {
	ID                int64     `json:"id"`
	DeviceSerial      string    `json:"deviceSerial"`
	PhoneNumber       string    `json:"phoneNumber"`
	ISBN              string    `json:"isbn"`
	CoverImageURL     string    `json:"coverImageUrl"`
	CopyrightImageURL *string   `json:"copyrightImageUrl"`
	CreatedAt         time.Time `json:"createdAt"`
}

// UploadedImage is a file received with a submission request.
// Filename is only used to derive an extension.
type UploadedImage struct {
	Data        []byte
	ContentType string
	Filename    string
}
