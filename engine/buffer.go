package engine

import "github.com/wippyai/cas-bridge/ca"

// TypedBuffer is the typed value container exchanged with the engine. The
// engine treats it as opaque payload; only the codec collaborator fills and
// reads it.
//
// Value holds a scalar (string, int64, float64) or an array ([]string,
// []int64, []float64) matching Type and Count.
type TypedBuffer struct {
	Type  ca.DataType
	Count int
	Value any

	Time     ca.Time
	Status   ca.Status
	Severity ca.Severity

	Unit        string
	Precision   int
	EnumStrings []string

	DisplayLimits ca.Limits
	ControlLimits ca.Limits
	WarningLimits ca.Limits
	AlarmLimits   ca.Limits
}

// Reset clears the buffer for reuse.
func (b *TypedBuffer) Reset() {
	*b = TypedBuffer{}
}
