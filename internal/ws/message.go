package ws

import (
	"time"

	"sylph/internal/session"
	"sylph/internal/vision"
)

// SnapshotMessage carries one published tick to subscribers.
type SnapshotMessage struct {
	Type      string          `json:"type"` // "snapshot"
	SessionID string          `json:"session_id"`
	Seq       uint64          `json:"seq"`
	Snapshot  vision.Snapshot `json:"snapshot"`
}

// NewSnapshotMessage wraps a tick for the wire.
func NewSnapshotMessage(sessionID string, snap vision.Snapshot) *SnapshotMessage {
	return &SnapshotMessage{
		Type:      "snapshot",
		SessionID: sessionID,
		Seq:       snap.Seq,
		Snapshot:  snap,
	}
}

// SummaryMessage carries the final session aggregate, sent once when the
// session ends.
type SummaryMessage struct {
	Type      string           `json:"type"` // "summary"
	SessionID string           `json:"session_id"`
	Timestamp time.Time        `json:"timestamp"`
	Summary   *session.Summary `json:"summary"`
}

// NewSummaryMessage wraps a final aggregate for the wire.
func NewSummaryMessage(sessionID string, sum *session.Summary) *SummaryMessage {
	return &SummaryMessage{
		Type:      "summary",
		SessionID: sessionID,
		Timestamp: time.Now(),
		Summary:   sum,
	}
}
