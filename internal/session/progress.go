package session

import "time"

// Progress is the byte accounting of a running transfer.
type Progress struct {
	Bytes     int64
	Size      int64
	StartedAt time.Time
}

// Fraction is min(1, Bytes/Size). A started zero-byte transfer is done.
func (p Progress) Fraction() float64 {
	if p.Size <= 0 {
		if p.StartedAt.IsZero() {
			return 0
		}
		return 1
	}
	f := float64(p.Bytes) / float64(p.Size)
	if f > 1 {
		return 1
	}
	return f
}

// Rate is the average throughput in bytes per second since the start.
func (p Progress) Rate(now time.Time) float64 {
	if p.StartedAt.IsZero() {
		return 0
	}
	elapsed := now.Sub(p.StartedAt).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(p.Bytes) / elapsed
}

// Remaining estimates the time left at the current rate. The second result
// is false while the rate is unknown.
func (p Progress) Remaining(now time.Time) (time.Duration, bool) {
	rate := p.Rate(now)
	if rate == 0 {
		return 0, false
	}
	left := p.Size - p.Bytes
	if left < 0 {
		left = 0
	}
	return time.Duration(float64(left) / rate * float64(time.Second)), true
}

// Snapshot is a consistent copy of session state for observers.
type Snapshot struct {
	State State
	Role  Role
	Code  string

	File    Descriptor
	HasFile bool

	Bytes          int64
	Fraction       float64
	Rate           float64
	Remaining      time.Duration
	RemainingKnown bool
	StartedAt      time.Time

	// SavedAs is where a completed responder wrote the file.
	SavedAs string

	// PeerConfirmed is set on the initiator once the responder has reported
	// the whole file received.
	PeerConfirmed bool

	// Err is the failure reason in Failed and Cancelled, or the last
	// rejected join while Idle.
	Err error
}
