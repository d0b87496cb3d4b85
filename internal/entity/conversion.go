package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/pdf2text/constants"
)

// Conversion is one ledger row describing a finished conversion attempt.
type Conversion struct {
	ID             uuid.UUID                  `json:"id"`
	Filename       string                     `json:"filename"`
	ContentHash    string                     `json:"content_hash,omitempty"`
	Language       string                     `json:"language"`
	MaxPages       int                        `json:"max_pages"`
	PagesProcessed int                        `json:"pages_processed"`
	TotalPages     int                        `json:"total_pages"`
	Truncated      bool                       `json:"truncated"`
	Status         constants.ConversionStatus `json:"status"`
	ErrorMessage   *string                    `json:"error_message,omitempty"`
	ArtifactPath   *string                    `json:"artifact_path,omitempty"`
	Engine         string                     `json:"engine,omitempty"`
	ElapsedMS      int64                      `json:"elapsed_ms"`
	CreatedAt      time.Time                  `json:"created_at"`
}
