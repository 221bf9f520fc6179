package model

import "time"

type ModeID string

const (
	ModeStandard ModeID = "v1"
	ModeSafe     ModeID = "v2"
)

type SessionStatus string

const (
	Running   SessionStatus = "running"
	Completed SessionStatus = "completed"
	Stopped   SessionStatus = "stopped"
	Failed    SessionStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s SessionStatus) Terminal() bool {
	return s == Completed || s == Stopped || s == Failed
}

type MessageOutcome struct {
	Phone           string    `json:"phone"`
	Success         bool      `json:"success"`
	Error           string    `json:"error,omitempty"`
	RemoteMessageID string    `json:"remoteMessageId,omitempty"`
	At              time.Time `json:"at"`
}

// BlastSession is the in-memory view of a running campaign. ID is the
// ledger record id; Key is the registry key derived from owner and start time.
type BlastSession struct {
	ID            int64
	Key           string
	OwnerID       string
	Name          string
	Mode          ModeID
	Status        SessionStatus
	ContactsCount int
	SentCount     int
	FailedCount   int
	StartedAt     time.Time
	CompletedAt   *time.Time
	Results       []MessageOutcome
}

// Clone returns a deep copy safe to hand out to readers.
func (s BlastSession) Clone() BlastSession {
	out := s
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	out.Results = append([]MessageOutcome(nil), s.Results...)
	return out
}

func (s BlastSession) Processed() int {
	return s.SentCount + s.FailedCount
}

type SessionSnapshot struct {
	SessionID     int64         `json:"sessionId"`
	Name          string        `json:"name"`
	Mode          ModeID        `json:"mode"`
	Status        SessionStatus `json:"status"`
	SentCount     int           `json:"sentCount"`
	FailedCount   int           `json:"failedCount"`
	ContactsCount int           `json:"contactsCount"`
	ProgressPct   int           `json:"progressPct"`
}

type Summary struct {
	SentCount   int           `json:"sentCount"`
	FailedCount int           `json:"failedCount"`
	DurationMs  int64         `json:"durationMs"`
	Status      SessionStatus `json:"status"`
}

type Result struct {
	SessionID int64            `json:"sessionId"`
	Mode      ModeID           `json:"mode"`
	ModeName  string           `json:"modeName"`
	Summary   Summary          `json:"summary"`
	Results   []MessageOutcome `json:"results"`
}

// SessionRecord is a persisted ledger row.
type SessionRecord struct {
	ID            int64         `json:"id"`
	OwnerID       string        `json:"ownerId"`
	Name          string        `json:"name"`
	Mode          ModeID        `json:"mode"`
	Status        SessionStatus `json:"status"`
	ContactsCount int           `json:"contactsCount"`
	SentCount     int           `json:"sentCount"`
	FailedCount   int           `json:"failedCount"`
	StartedAt     time.Time     `json:"startedAt"`
	CompletedAt   *time.Time    `json:"completedAt,omitempty"`
}

type ModeStats struct {
	Sessions int `json:"sessions"`
	Sent     int `json:"sent"`
	Failed   int `json:"failed"`
}
