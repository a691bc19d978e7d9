package model

import "time"

// ExportFormat is the file type of a downloadable result export
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
	ExportXLSX ExportFormat = "xlsx"
)

// ExportRequest selects the flow and format of an export
type ExportRequest struct {
	Flow   Flow         `json:"flow" validate:"required,oneof=comparison review"`
	Format ExportFormat `json:"format" validate:"required,oneof=json csv xlsx"`
	Upload bool         `json:"upload"`
}

// ExportResponse points at an export uploaded to object storage
type ExportResponse struct {
	Key         string    `json:"key"`
	FileName    string    `json:"fileName"`
	URL         string    `json:"url"`
	DownloadURL string    `json:"downloadUrl,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt,omitempty"`
	Size        int       `json:"size"`
}
