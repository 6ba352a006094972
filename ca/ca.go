package ca

// DataType identifies the external type of a PV value.
type DataType int

const (
	TypeInvalid DataType = iota
	TypeString
	TypeEnum
	TypeChar
	TypeShort
	TypeLong
	TypeFloat
	TypeDouble
)

var typeNames = map[DataType]string{
	TypeInvalid: "invalid",
	TypeString:  "string",
	TypeEnum:    "enum",
	TypeChar:    "char",
	TypeShort:   "short",
	TypeLong:    "long",
	TypeFloat:   "float",
	TypeDouble:  "double",
}

func (t DataType) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return "unknown"
}

// IsNumeric reports whether values of this type carry numeric metadata
// (unit, precision, limits).
func (t DataType) IsNumeric() bool {
	switch t {
	case TypeChar, TypeShort, TypeLong, TypeFloat, TypeDouble:
		return true
	}
	return false
}

// IsFloating reports whether values of this type compare with tolerances.
func (t DataType) IsFloating() bool {
	return t == TypeFloat || t == TypeDouble
}

// Status is the alarm status of a PV value.
type Status int

const (
	StatusNoAlarm Status = iota
	StatusRead
	StatusWrite
	StatusHiHi
	StatusHigh
	StatusLoLo
	StatusLow
	StatusState
	StatusCOS
	StatusComm
	StatusTimeout
	StatusHwLimit
	StatusCalc
	StatusScan
	StatusLink
	StatusSoft
	StatusBadSub
	StatusUDF
	StatusDisable
	StatusSimm
	StatusReadAccess
	StatusWriteAccess
)

// Severity is the alarm severity of a PV value.
type Severity int

const (
	SeverityNoAlarm Severity = iota
	SeverityMinor
	SeverityMajor
	SeverityInvalid
)

// EventMask describes which subscription events a change triggers.
type EventMask uint8

const (
	EventValue    EventMask = 1 << iota // value changed beyond the value deadband
	EventLog                            // value changed beyond the archive deadband
	EventAlarm                          // status or severity changed
	EventProperty                       // metadata changed
)

// EventNone is the empty event mask.
const EventNone EventMask = 0

// Has reports whether all events in m2 are set in m.
func (m EventMask) Has(m2 EventMask) bool {
	return m&m2 == m2
}

// Limits is a (low, high) pair. A pair is active only when Low < High;
// the zero value means "not configured".
type Limits struct {
	Low  float64
	High float64
}

// Active reports whether the pair constrains anything.
func (l Limits) Active() bool {
	return l.Low < l.High
}

// Clamp constrains v to [Low, High] when the pair is active.
func (l Limits) Clamp(v float64) float64 {
	if !l.Active() {
		return v
	}
	if v < l.Low {
		return l.Low
	}
	if v > l.High {
		return l.High
	}
	return v
}

// Field selects attributes for partial updates.
type Field uint16

const (
	FieldValue Field = 1 << iota
	FieldStatus
	FieldSeverity
	FieldTimestamp
	FieldUnit
	FieldPrecision
	FieldEnumStrings
	FieldDisplayLimits
	FieldControlLimits
	FieldWarningLimits
	FieldAlarmLimits
)

// FieldMeta selects all metadata attributes.
const FieldMeta = FieldUnit | FieldPrecision | FieldEnumStrings |
	FieldDisplayLimits | FieldControlLimits | FieldWarningLimits | FieldAlarmLimits

// Attributes is a snapshot of every attribute a PV exposes. Scalar values
// are string, int64 or float64 depending on the PV type; array values are
// []int64, []float64 or []string.
type Attributes struct {
	Value     any
	Status    Status
	Severity  Severity
	Timestamp Time

	Unit          string
	Precision     int
	EnumStrings   []string
	DisplayLimits Limits
	ControlLimits Limits
	WarningLimits Limits
	AlarmLimits   Limits
}

// DefaultAttributes returns the initial attribute set for a new PV of the
// given type and element count: undefined status, invalid severity and a
// zero value of the right shape.
func DefaultAttributes(t DataType, count int) Attributes {
	attrs := Attributes{
		Status:    StatusUDF,
		Severity:  SeverityInvalid,
		Timestamp: Now(),
	}

	switch {
	case t == TypeString:
		if count == 1 {
			attrs.Value = ""
		} else {
			attrs.Value = make([]string, count)
		}
	case t.IsFloating():
		if count == 1 {
			attrs.Value = float64(0)
		} else {
			attrs.Value = make([]float64, count)
		}
	default:
		if count == 1 {
			attrs.Value = int64(0)
		} else {
			attrs.Value = make([]int64, count)
		}
	}

	if t == TypeEnum {
		attrs.EnumStrings = []string{""}
	}
	return attrs
}
