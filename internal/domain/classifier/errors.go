package classifier

import "errors"

// ErrAnomaly is the parent of every dropped-event condition. Anomalies are
// reported and counted, never returned to callers.
var ErrAnomaly = errors.New("anomalous event")

// Anomaly kinds.
var (
	ErrDuplicateRelease = anomaly("duplicate_release")
	ErrOrphanApex       = anomaly("orphan_apex")
	ErrOrphanScore      = anomaly("orphan_score")
	ErrDuplicateApex    = anomaly("duplicate_apex")
	ErrScoreBeforeApex  = anomaly("score_before_apex")
	ErrApexOutOfWindow  = anomaly("apex_out_of_window")
	ErrScoreOutOfWindow = anomaly("score_out_of_window")
)

// AnomalyError names one anomaly kind; errors.Is matches it and ErrAnomaly.
type AnomalyError struct {
	Type string
}

func anomaly(t string) *AnomalyError { return &AnomalyError{Type: t} }

func (e *AnomalyError) Error() string { return "anomalous event: " + e.Type }

// Is lets every AnomalyError match ErrAnomaly.
func (e *AnomalyError) Is(target error) bool { return target == ErrAnomaly }
