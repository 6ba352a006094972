package ca

import "time"

// epicsEpochOffset is the offset of the EPICS epoch (1990-01-01T00:00:00Z)
// from the Unix epoch, in seconds.
const epicsEpochOffset int64 = 631152000

// Time is an EPICS timestamp: seconds and nanoseconds since the EPICS epoch.
type Time struct {
	Sec  uint32
	Nsec uint32
}

// TimeOf converts a time.Time to an EPICS timestamp. Times before the
// EPICS epoch map to the zero Time.
func TimeOf(t time.Time) Time {
	sec := t.Unix() - epicsEpochOffset
	if sec < 0 {
		return Time{}
	}
	return Time{Sec: uint32(sec), Nsec: uint32(t.Nanosecond())}
}

// Now returns the current time as an EPICS timestamp.
func Now() Time {
	return TimeOf(time.Now())
}

// Time converts an EPICS timestamp back to a time.Time in UTC.
func (t Time) Time() time.Time {
	return time.Unix(int64(t.Sec)+epicsEpochOffset, int64(t.Nsec)).UTC()
}

// IsZero reports whether the timestamp is unset.
func (t Time) IsZero() bool {
	return t.Sec == 0 && t.Nsec == 0
}

// Before reports whether t is earlier than u.
func (t Time) Before(u Time) bool {
	return t.Sec < u.Sec || (t.Sec == u.Sec && t.Nsec < u.Nsec)
}
