package models

import "time"

// DefaultFiberIDTag is the label used for the primary sample identifier when the
// signature does not carry one.
const DefaultFiberIDTag = "Fiber ID"

// SessionHeader identifies one measurement session. It is unique on
// (FiberIDString, DateCreated) and is shared by every Result of the session.
type SessionHeader struct {
	ID            int64
	FiberIDString string
	FiberIDTag    string
	DateCreated   time.Time
	EnteredLength *float64
	OperatorID    string
	Labels        []Label
}

// Label is an auxiliary (Tag, Value) pair recorded at the start of a session.
type Label struct {
	Tag   string
	Value string
}

// Instrument is keyed by serial number.
type Instrument struct {
	SerialNumber string
	ModelNumber  string
}

// SessionSummary is a read model over a stored session, used for history listings.
type SessionSummary struct {
	HeaderID       int64
	FiberIDString  string
	DateCreated    time.Time
	Instrument     string
	ReportedLength *float64
	ResultCounts   map[ResultKind]int
}
