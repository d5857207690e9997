// Package types contains common types used across the application
package types

import (
	"time"

	"github.com/okian/swish/internal/domain/model"
)

// Shot is the JSON shape of a shot record on the HTTP API and the live feed.
type Shot struct {
	ID             int64      `json:"id"`
	TSRelease      int64      `json:"ts_release"`
	TSApex         int64      `json:"ts_apex"`
	Classification int        `json:"classification"`
	Label          string     `json:"label"`
	Scored         bool       `json:"scored"`
	GripPeak       int        `json:"grip_peak"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
}

// ShotList wraps GET /shots results.
type ShotList struct {
	Shots []Shot `json:"shots"`
}

// FromRecord builds the wire shape of a freshly persisted record.
func FromRecord(id int64, r model.ShotRecord) Shot {
	return Shot{
		ID:             id,
		TSRelease:      r.TSRelease,
		TSApex:         r.TSApex,
		Classification: int(r.Classification),
		Label:          r.Classification.String(),
		Scored:         r.Scored,
		GripPeak:       r.GripPeak,
	}
}

// FromStored builds the wire shape of a stored shot.
func FromStored(s model.StoredShot) Shot {
	out := FromRecord(s.ID, s.Record)
	if !s.CreatedAt.IsZero() {
		created := s.CreatedAt.UTC()
		out.CreatedAt = &created
	}
	return out
}
