package codec

import (
	"math"

	"github.com/wippyai/cas-bridge/ca"
	"github.com/wippyai/cas-bridge/engine"
	"github.com/wippyai/cas-bridge/errors"
)

// Std is the standard codec. The zero value is ready to use.
type Std struct{}

// Encode builds a typed buffer of type t from an attribute snapshot. The
// value is canonicalized and copied; failures leave no partial buffer
// behind.
func (Std) Encode(attrs ca.Attributes, t ca.DataType) (*engine.TypedBuffer, error) {
	if t == ca.TypeInvalid {
		return nil, errors.InvalidEnum(errors.PhaseEncode, t, "DataType")
	}
	if attrs.Value == nil {
		return nil, errors.InvalidData(errors.PhaseEncode, "attributes carry no value")
	}

	value, count, err := canonicalize(errors.PhaseEncode, t, attrs.Value)
	if err != nil {
		return nil, err
	}

	buf := &engine.TypedBuffer{
		Type:  t,
		Count: count,
		Value: value,

		Time:     attrs.Timestamp,
		Status:   attrs.Status,
		Severity: attrs.Severity,

		Unit:      attrs.Unit,
		Precision: attrs.Precision,

		DisplayLimits: attrs.DisplayLimits,
		ControlLimits: attrs.ControlLimits,
		WarningLimits: attrs.WarningLimits,
		AlarmLimits:   attrs.AlarmLimits,
	}
	if len(attrs.EnumStrings) > 0 {
		buf.EnumStrings = append([]string(nil), attrs.EnumStrings...)
	}
	return buf, nil
}

// Decode extracts the canonical value and timestamp carried by buf.
func (Std) Decode(buf *engine.TypedBuffer) (any, ca.Time, error) {
	if buf == nil {
		return nil, ca.Time{}, errors.InvalidData(errors.PhaseDecode, "buffer must not be nil")
	}
	if buf.Type == ca.TypeInvalid {
		return nil, ca.Time{}, errors.InvalidEnum(errors.PhaseDecode, buf.Type, "DataType")
	}
	if buf.Value == nil {
		return nil, ca.Time{}, errors.InvalidData(errors.PhaseDecode, "buffer carries no value")
	}

	value, count, err := canonicalize(errors.PhaseDecode, buf.Type, buf.Value)
	if err != nil {
		return nil, ca.Time{}, err
	}
	if buf.Count != count {
		return nil, ca.Time{}, errors.InvalidData(errors.PhaseDecode, "element count does not match value shape")
	}
	return value, buf.Time, nil
}

// canonicalize normalizes v to the canonical representation for t and
// returns it with its element count. Scalars count as 1; arrays keep their
// length, including zero.
func canonicalize(phase errors.Phase, t ca.DataType, v any) (any, int, error) {
	switch {
	case t == ca.TypeString:
		return canonicalizeString(phase, v)
	case t.IsFloating():
		return canonicalizeFloat(phase, v)
	default:
		return canonicalizeInt(phase, t, v)
	}
}

func canonicalizeString(phase errors.Phase, v any) (any, int, error) {
	switch s := v.(type) {
	case string:
		return s, 1, nil
	case []string:
		out := make([]string, len(s))
		copy(out, s)
		return out, len(out), nil
	case []any:
		out := make([]string, len(s))
		for i, e := range s {
			str, ok := e.(string)
			if !ok {
				return nil, 0, errors.TypeMismatch(phase, "string array element", e)
			}
			out[i] = str
		}
		return out, len(out), nil
	default:
		return nil, 0, errors.TypeMismatch(phase, "value for string type", v)
	}
}

func canonicalizeFloat(phase errors.Phase, v any) (any, int, error) {
	if f, ok := toFloat(v); ok {
		return f, 1, nil
	}

	switch s := v.(type) {
	case []float64:
		out := make([]float64, len(s))
		copy(out, s)
		return out, len(out), nil
	case []float32:
		out := make([]float64, len(s))
		for i, e := range s {
			out[i] = float64(e)
		}
		return out, len(out), nil
	case []int64:
		out := make([]float64, len(s))
		for i, e := range s {
			out[i] = float64(e)
		}
		return out, len(out), nil
	case []int:
		out := make([]float64, len(s))
		for i, e := range s {
			out[i] = float64(e)
		}
		return out, len(out), nil
	case []any:
		out := make([]float64, len(s))
		for i, e := range s {
			f, ok := toFloat(e)
			if !ok {
				return nil, 0, errors.TypeMismatch(phase, "float array element", e)
			}
			out[i] = f
		}
		return out, len(out), nil
	default:
		return nil, 0, errors.TypeMismatch(phase, "value for floating type", v)
	}
}

func canonicalizeInt(phase errors.Phase, t ca.DataType, v any) (any, int, error) {
	if i, ok := toInt(v); ok {
		if err := checkIntRange(phase, t, i); err != nil {
			return nil, 0, err
		}
		return i, 1, nil
	}

	var out []int64
	switch s := v.(type) {
	case []int64:
		out = make([]int64, len(s))
		copy(out, s)
	case []int:
		out = make([]int64, len(s))
		for i, e := range s {
			out[i] = int64(e)
		}
	case []any:
		out = make([]int64, len(s))
		for i, e := range s {
			n, ok := toInt(e)
			if !ok {
				return nil, 0, errors.TypeMismatch(phase, "integer array element", e)
			}
			out[i] = n
		}
	default:
		return nil, 0, errors.TypeMismatch(phase, "value for integer type", v)
	}

	for _, e := range out {
		if err := checkIntRange(phase, t, e); err != nil {
			return nil, 0, err
		}
	}
	return out, len(out), nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int16:
		return int64(n), true
	case int8:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	default:
		return 0, false
	}
}

// intRanges gives the representable range per integer type on the wire.
var intRanges = map[ca.DataType][2]int64{
	ca.TypeChar:  {math.MinInt8, math.MaxInt8},
	ca.TypeShort: {math.MinInt16, math.MaxInt16},
	ca.TypeLong:  {math.MinInt32, math.MaxInt32},
	ca.TypeEnum:  {0, math.MaxUint16},
}

func checkIntRange(phase errors.Phase, t ca.DataType, v int64) error {
	r, ok := intRanges[t]
	if !ok {
		return errors.InvalidEnum(phase, t, "DataType")
	}
	if v < r[0] || v > r[1] {
		return errors.New(phase, errors.KindInvalidData).
			Detail("value %d out of range for %s", v, t).
			Value(v).
			Build()
	}
	return nil
}
