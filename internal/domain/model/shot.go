package model

import (
	"fmt"
	"strings"
	"time"
)

// Classification labels the release timing relative to the jump apex.
// The numeric values are the stored and wire encoding.
type Classification int

// Classifications.
const (
	Early   Classification = 0
	Perfect Classification = 1
	Late    Classification = 2
)

// String returns EARLY, PERFECT or LATE.
func (c Classification) String() string {
	switch c {
	case Early:
		return "EARLY"
	case Perfect:
		return "PERFECT"
	case Late:
		return "LATE"
	default:
		return fmt.Sprintf("Classification(%d)", int(c))
	}
}

// Valid reports whether c is one of the three known labels.
func (c Classification) Valid() bool {
	return c == Early || c == Perfect || c == Late
}

// ParseClassification accepts a label in any case.
func ParseClassification(s string) (Classification, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "EARLY":
		return Early, nil
	case "PERFECT":
		return Perfect, nil
	case "LATE":
		return Late, nil
	}
	return 0, fmt.Errorf("unknown classification %q", s)
}

// ShotRecord is the finalized correlation of one release/apex pair.
// It is immutable once emitted.
type ShotRecord struct {
	TSRelease      int64
	TSApex         int64
	Classification Classification
	Scored         bool
	GripPeak       int
}

// Elapsed returns the release-to-apex interval in milliseconds.
func (r ShotRecord) Elapsed() int64 {
	return r.TSApex - r.TSRelease
}

// StoredShot is a ShotRecord after persistence assigned its identifier.
type StoredShot struct {
	ID        int64
	Record    ShotRecord
	CreatedAt time.Time
}
