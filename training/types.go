// Package training holds the operator-submitted training records and turns
// them into normalized documents ready for chunking.
package training

import (
	"time"

	"github.com/google/uuid"
)

// Record is a single training submission. At least one of Site, Content or
// Document is populated. Records are immutable once created and are consumed
// exactly once by the ingestion pipeline.
type Record struct {
	ID           uuid.UUID
	Site         string
	Content      string
	DocumentName string
	Document     []byte
	CreatedAt    time.Time
}

// Empty reports whether the record carries nothing to extract.
func (r *Record) Empty() bool {
	return r.Site == "" && r.Content == "" && len(r.Document) == 0
}

// Document is one normalized text extracted from a record, tagged with an
// origin identifier used later for source attribution.
type Document struct {
	Text   string
	Source string
}
