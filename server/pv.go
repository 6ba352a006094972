package server

import (
	"context"
	"math"
	"sync"

	"github.com/wippyai/cas-bridge/bridge"
	"github.com/wippyai/cas-bridge/ca"
	"github.com/wippyai/cas-bridge/errors"
)

// Default tolerances for floating point change detection.
const (
	defaultRelTolerance = 1e-05
	defaultAbsTolerance = 1e-08
)

// Replace is a WriteHandler result that applies a substitute value and
// timestamp instead of the client's.
type Replace struct {
	Value any
	Time  ca.Time
}

// WriteHandler intercepts client writes. Recognized results are a bool
// (true applies the value, false rejects), a Replace (applies the
// substitute), or an *AsyncWrite built from actx (defers the decision).
// Anything else, and any error, rejects the write.
type WriteHandler func(ctx context.Context, pv *PV, value any, ts ca.Time, actx *bridge.AsyncContext) (any, error)

// PVOption configures a PV at construction.
type PVOption func(*pvConfig)

type pvConfig struct {
	count           int
	initial         *ca.Attributes
	initialFields   ca.Field
	valueDeadband   float64
	archiveDeadband float64
	writeHandler    WriteHandler
}

// WithCount sets the element count. Counts above 1 make the PV an array.
func WithCount(n int) PVOption {
	return func(c *pvConfig) { c.count = n }
}

// WithInitial overrides the default attributes. fields selects which
// members of attrs apply.
func WithInitial(attrs ca.Attributes, fields ca.Field) PVOption {
	return func(c *pvConfig) {
		c.initial = &attrs
		c.initialFields = fields
	}
}

// WithValueDeadband suppresses value events for changes smaller than d.
func WithValueDeadband(d float64) PVOption {
	return func(c *pvConfig) { c.valueDeadband = d }
}

// WithArchiveDeadband suppresses archive events for changes smaller than d.
func WithArchiveDeadband(d float64) PVOption {
	return func(c *pvConfig) { c.archiveDeadband = d }
}

// WithWriteHandler installs a write interceptor.
func WithWriteHandler(h WriteHandler) PVOption {
	return func(c *pvConfig) { c.writeHandler = h }
}

// PV is a channel access process variable with a thread-safe attribute
// store. Create PVs through Server.CreatePV so clients can find them.
type PV struct {
	typ             ca.DataType
	count           int
	valueDeadband   float64
	archiveDeadband float64
	relTol          float64
	absTol          float64
	writeHandler    WriteHandler

	bpv *bridge.PV

	mu          sync.Mutex
	attrs       ca.Attributes
	outstanding ca.EventMask
	publish     bool
}

// NewPV creates a standalone PV. The zero shape of the value and the
// metadata defaults follow the type and count.
func NewPV(name string, typ ca.DataType, opts ...PVOption) (*PV, error) {
	if typ == ca.TypeInvalid {
		return nil, errors.InvalidEnum(errors.PhaseAttach, typ, "DataType")
	}

	cfg := pvConfig{count: 1}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.count < 1 {
		return nil, errors.InvalidData(errors.PhaseAttach, "element count must be at least 1")
	}

	p := &PV{
		typ:             typ,
		count:           cfg.count,
		valueDeadband:   cfg.valueDeadband,
		archiveDeadband: cfg.archiveDeadband,
		relTol:          defaultRelTolerance,
		absTol:          defaultAbsTolerance,
		writeHandler:    cfg.writeHandler,
		attrs:           ca.DefaultAttributes(typ, cfg.count),
	}

	bpv, err := bridge.NewPV(name, &hostedPV{pv: p})
	if err != nil {
		return nil, err
	}
	p.bpv = bpv

	if cfg.initial != nil {
		p.mu.Lock()
		err := p.updateAttributesLocked(*cfg.initial, cfg.initialFields)
		p.outstanding = ca.EventNone
		p.mu.Unlock()
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Name returns the PV name.
func (p *PV) Name() string { return p.bpv.Name() }

// Type returns the PV data type.
func (p *PV) Type() ca.DataType { return p.typ }

// Count returns the number of elements.
func (p *PV) Count() int { return p.count }

// Bridge returns the underlying hosted PV object.
func (p *PV) Bridge() *bridge.PV { return p.bpv }

// Attributes returns a snapshot of the current attributes.
func (p *PV) Attributes() ca.Attributes {
	p.mu.Lock()
	defer p.mu.Unlock()
	return copyAttributes(p.attrs)
}

// Value returns the current value.
func (p *PV) Value() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return copyValue(p.attrs.Value)
}

// ValueTimestamp returns the current value and its timestamp together.
func (p *PV) ValueTimestamp() (any, ca.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return copyValue(p.attrs.Value), p.attrs.Timestamp
}

// Timestamp returns the time of the last value change.
func (p *PV) Timestamp() ca.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attrs.Timestamp
}

// StatusSeverity returns the current alarm status and severity.
func (p *PV) StatusSeverity() (ca.Status, ca.Severity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attrs.Status, p.attrs.Severity
}

// SetValue updates the value with the current time as timestamp. The value
// is constrained to the control limits and alarm status and severity are
// derived from the warning and alarm limits.
func (p *PV) SetValue(ctx context.Context, value any) error {
	return p.applyWrite(ctx, value, ca.Now())
}

// SetValueTimestamp updates the value with an explicit timestamp.
func (p *PV) SetValueTimestamp(ctx context.Context, value any, ts ca.Time) error {
	return p.applyWrite(ctx, value, ts)
}

// SetStatusSeverity updates the alarm status and severity.
func (p *PV) SetStatusSeverity(ctx context.Context, st ca.Status, sev ca.Severity) error {
	p.mu.Lock()
	p.updateStatusSeverityLocked(st, sev)
	mask, attrs, post := p.takeEventsLocked()
	p.mu.Unlock()
	return p.postEvents(ctx, mask, attrs, post)
}

// SetUnit updates the physical unit string.
func (p *PV) SetUnit(ctx context.Context, unit string) error {
	return p.setMeta(ctx, func() error {
		if unit != p.attrs.Unit {
			p.attrs.Unit = unit
			p.outstanding |= ca.EventProperty
		}
		return nil
	})
}

// SetPrecision updates the number of relevant decimal places.
func (p *PV) SetPrecision(ctx context.Context, prec int) error {
	return p.setMeta(ctx, func() error {
		if prec != p.attrs.Precision {
			p.attrs.Precision = prec
			p.outstanding |= ca.EventProperty
		}
		return nil
	})
}

// SetEnumStrings updates the enumeration value names. At least Count
// entries are required.
func (p *PV) SetEnumStrings(ctx context.Context, names []string) error {
	if len(names) < p.count {
		return errors.OutOfBounds(errors.PhaseDispatch, len(names), p.count)
	}
	return p.setMeta(ctx, func() error {
		if !equalStrings(names, p.attrs.EnumStrings) {
			p.attrs.EnumStrings = append([]string(nil), names...)
			p.outstanding |= ca.EventProperty
		}
		return nil
	})
}

// SetDisplayLimits updates the display range.
func (p *PV) SetDisplayLimits(ctx context.Context, l ca.Limits) error {
	return p.setLimits(ctx, &p.attrs.DisplayLimits, l)
}

// SetControlLimits updates the range accepted for writes. The current value
// is re-constrained to the new range.
func (p *PV) SetControlLimits(ctx context.Context, l ca.Limits) error {
	return p.setLimits(ctx, &p.attrs.ControlLimits, l)
}

// SetWarningLimits updates the minor alarm range. The current value's alarm
// state is recomputed.
func (p *PV) SetWarningLimits(ctx context.Context, l ca.Limits) error {
	return p.setLimits(ctx, &p.attrs.WarningLimits, l)
}

// SetAlarmLimits updates the major alarm range. The current value's alarm
// state is recomputed.
func (p *PV) SetAlarmLimits(ctx context.Context, l ca.Limits) error {
	return p.setLimits(ctx, &p.attrs.AlarmLimits, l)
}

// Apply updates several attributes at once. fields selects which members of
// attrs take effect; events for all resulting changes are posted together.
// On error the fields applied before the failure keep their new values and
// their events are still posted.
func (p *PV) Apply(ctx context.Context, attrs ca.Attributes, fields ca.Field) error {
	p.mu.Lock()
	err := p.updateAttributesLocked(attrs, fields)
	mask, snapshot, post := p.takeEventsLocked()
	p.mu.Unlock()
	if perr := p.postEvents(ctx, mask, snapshot, post); err == nil {
		err = perr
	}
	return err
}

// DeferWrite turns a write dispatch into an asynchronous one. Call it from
// a WriteHandler with the handler's context argument and return the result.
func (p *PV) DeferWrite(actx *bridge.AsyncContext) (*AsyncWrite, error) {
	aw, err := bridge.NewAsyncWrite(p.bpv, actx)
	if err != nil {
		return nil, err
	}
	return &AsyncWrite{pv: p, aw: aw}, nil
}

// AsyncWrite is a deferred client write. Exactly one of Complete or Fail
// finishes it.
type AsyncWrite struct {
	pv *PV
	aw *bridge.AsyncWrite
}

// Complete applies the value and reports success to the waiting client.
func (w *AsyncWrite) Complete(ctx context.Context, value any, ts ca.Time) error {
	if err := w.pv.applyWrite(ctx, value, ts); err != nil {
		return err
	}
	return w.aw.Complete(ctx)
}

// Fail reports failure to the waiting client without touching the value.
func (w *AsyncWrite) Fail(ctx context.Context) error {
	return w.aw.Fail(ctx)
}

func (p *PV) setMeta(ctx context.Context, update func() error) error {
	p.mu.Lock()
	err := update()
	mask, attrs, post := p.takeEventsLocked()
	p.mu.Unlock()
	if err != nil {
		return err
	}
	return p.postEvents(ctx, mask, attrs, post)
}

func (p *PV) setLimits(ctx context.Context, dst *ca.Limits, l ca.Limits) error {
	p.mu.Lock()
	if l != *dst {
		*dst = l
		p.outstanding |= ca.EventProperty
		// Limit changes can move the value back into range or into alarm.
		if err := p.updateValueLocked(p.attrs.Value); err != nil {
			p.mu.Unlock()
			return err
		}
	}
	mask, attrs, post := p.takeEventsLocked()
	p.mu.Unlock()
	return p.postEvents(ctx, mask, attrs, post)
}

func (p *PV) applyWrite(ctx context.Context, value any, ts ca.Time) error {
	if ts.IsZero() {
		ts = ca.Now()
	}
	p.mu.Lock()
	if err := p.updateValueLocked(value); err != nil {
		p.mu.Unlock()
		return err
	}
	if ts != p.attrs.Timestamp {
		p.attrs.Timestamp = ts
		p.outstanding |= ca.EventProperty
	}
	mask, attrs, post := p.takeEventsLocked()
	p.mu.Unlock()
	return p.postEvents(ctx, mask, attrs, post)
}

func (p *PV) setPublish(on bool) {
	p.mu.Lock()
	p.publish = on
	p.mu.Unlock()
}

// takeEventsLocked drains the outstanding event set. Events accumulated
// while no client registered interest are discarded.
func (p *PV) takeEventsLocked() (ca.EventMask, ca.Attributes, bool) {
	mask := p.outstanding
	p.outstanding = ca.EventNone
	if !p.publish || mask == ca.EventNone {
		return ca.EventNone, ca.Attributes{}, false
	}
	return mask, copyAttributes(p.attrs), true
}

// postEvents runs with the attribute lock released so a server dispatch
// re-entering the PV cannot deadlock.
func (p *PV) postEvents(ctx context.Context, mask ca.EventMask, attrs ca.Attributes, post bool) error {
	if !post {
		return nil
	}
	return p.bpv.PostEvent(ctx, mask, attrs)
}

func (p *PV) updateStatusSeverityLocked(st ca.Status, sev ca.Severity) {
	changed := false
	if st != p.attrs.Status {
		p.attrs.Status = st
		changed = true
	}
	if sev != p.attrs.Severity {
		p.attrs.Severity = sev
		changed = true
	}
	if changed {
		p.outstanding |= ca.EventAlarm
	}
}

func (p *PV) updateAttributesLocked(attrs ca.Attributes, fields ca.Field) error {
	limitsChanged := false
	setLimit := func(f ca.Field, dst *ca.Limits, src ca.Limits) {
		if fields&f != 0 && src != *dst {
			*dst = src
			p.outstanding |= ca.EventProperty
			limitsChanged = true
		}
	}

	if fields&ca.FieldUnit != 0 && attrs.Unit != p.attrs.Unit {
		p.attrs.Unit = attrs.Unit
		p.outstanding |= ca.EventProperty
	}
	if fields&ca.FieldPrecision != 0 && attrs.Precision != p.attrs.Precision {
		p.attrs.Precision = attrs.Precision
		p.outstanding |= ca.EventProperty
	}
	if fields&ca.FieldEnumStrings != 0 && !equalStrings(attrs.EnumStrings, p.attrs.EnumStrings) {
		p.attrs.EnumStrings = append([]string(nil), attrs.EnumStrings...)
		p.outstanding |= ca.EventProperty
	}
	setLimit(ca.FieldDisplayLimits, &p.attrs.DisplayLimits, attrs.DisplayLimits)
	setLimit(ca.FieldControlLimits, &p.attrs.ControlLimits, attrs.ControlLimits)
	setLimit(ca.FieldWarningLimits, &p.attrs.WarningLimits, attrs.WarningLimits)
	setLimit(ca.FieldAlarmLimits, &p.attrs.AlarmLimits, attrs.AlarmLimits)

	// Explicit status and severity apply before the value so a value change
	// can override them with the limit-derived alarm state.
	if fields&(ca.FieldStatus|ca.FieldSeverity) != 0 {
		st := p.attrs.Status
		sev := p.attrs.Severity
		if fields&ca.FieldStatus != 0 {
			st = attrs.Status
		}
		if fields&ca.FieldSeverity != 0 {
			sev = attrs.Severity
		}
		p.updateStatusSeverityLocked(st, sev)
	}

	if fields&ca.FieldTimestamp != 0 && attrs.Timestamp != p.attrs.Timestamp {
		p.attrs.Timestamp = attrs.Timestamp
		p.outstanding |= ca.EventProperty
	}

	if fields&ca.FieldValue != 0 {
		return p.updateValueLocked(attrs.Value)
	}
	if limitsChanged {
		return p.updateValueLocked(p.attrs.Value)
	}
	return nil
}

func (p *PV) updateValueLocked(value any) error {
	value, err := coerceValue(p.typ, p.count, value)
	if err != nil {
		return err
	}
	value = p.constrainLocked(value)
	st, sev := p.alarmStateLocked(value)

	old := p.attrs.Value
	changed := p.valueChanged(value, old)
	if changed {
		p.attrs.Value = value
		if p.typ.IsNumeric() && p.typ != ca.TypeEnum {
			diff := maxAbsDiff(value, old)
			if diff >= p.valueDeadband {
				p.outstanding |= ca.EventValue
			}
			if diff >= p.archiveDeadband {
				p.outstanding |= ca.EventLog
			}
		} else {
			p.outstanding |= ca.EventValue | ca.EventLog
		}
	}
	p.updateStatusSeverityLocked(st, sev)
	return nil
}

// constrainLocked clamps every element to the control limits.
func (p *PV) constrainLocked(value any) any {
	if p.typ == ca.TypeString {
		return value
	}
	limits := p.attrs.ControlLimits
	if !limits.Active() {
		return value
	}
	switch v := value.(type) {
	case float64:
		return limits.Clamp(v)
	case []float64:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = limits.Clamp(x)
		}
		return out
	case int64:
		return clampInt(v, limits)
	case []int64:
		out := make([]int64, len(v))
		for i, x := range v {
			out[i] = clampInt(x, limits)
		}
		return out
	}
	return value
}

// alarmStateLocked derives status and severity from the warning and alarm
// limits. For arrays the extreme elements decide; when both limits of a
// pair are violated the larger violation wins.
func (p *PV) alarmStateLocked(value any) (ca.Status, ca.Severity) {
	st := ca.StatusNoAlarm
	sev := ca.SeverityNoAlarm
	if p.typ == ca.TypeString {
		return st, sev
	}
	lo, hi, ok := extremes(value)
	if !ok {
		return st, sev
	}

	check := func(l ca.Limits, lowSt, highSt ca.Status, s ca.Severity) {
		if !l.Active() {
			return
		}
		switch {
		case lo < l.Low && hi > l.High:
			if math.Abs(lo-l.Low) > math.Abs(hi-l.High) {
				st, sev = lowSt, s
			} else {
				st, sev = highSt, s
			}
		case lo < l.Low:
			st, sev = lowSt, s
		case hi > l.High:
			st, sev = highSt, s
		}
	}
	check(p.attrs.WarningLimits, ca.StatusLow, ca.StatusHigh, ca.SeverityMinor)
	check(p.attrs.AlarmLimits, ca.StatusLoLo, ca.StatusHiHi, ca.SeverityMajor)
	return st, sev
}

func (p *PV) valueChanged(value, old any) bool {
	if p.typ.IsFloating() {
		switch v := value.(type) {
		case float64:
			o, ok := old.(float64)
			return !ok || !isClose(v, o, p.relTol, p.absTol)
		case []float64:
			o, ok := old.([]float64)
			if !ok || len(o) != len(v) {
				return true
			}
			for i := range v {
				if !isClose(v[i], o[i], p.relTol, p.absTol) {
					return true
				}
			}
			return false
		}
	}
	switch v := value.(type) {
	case []int64:
		o, ok := old.([]int64)
		if !ok || len(o) != len(v) {
			return true
		}
		for i := range v {
			if v[i] != o[i] {
				return true
			}
		}
		return false
	case []string:
		o, ok := old.([]string)
		return !ok || !equalStrings(v, o)
	default:
		return value != old
	}
}

// hostedPV adapts a PV to the bridge handler interface.
type hostedPV struct {
	bridge.BaseHandler
	pv *PV
}

func (h *hostedPV) Type(context.Context) (ca.DataType, error) {
	return h.pv.typ, nil
}

func (h *hostedPV) Count(context.Context) (int, error) {
	return h.pv.count, nil
}

func (h *hostedPV) Read(context.Context) (*ca.Attributes, error) {
	attrs := h.pv.Attributes()
	return &attrs, nil
}

func (h *hostedPV) Write(ctx context.Context, value any, ts ca.Time, actx *bridge.AsyncContext) (any, error) {
	p := h.pv
	if p.writeHandler != nil {
		res, err := p.writeHandler(ctx, p, value, ts, actx)
		if err != nil {
			return nil, err
		}
		switch v := res.(type) {
		case bool:
			if !v {
				return false, nil
			}
		case Replace:
			value, ts = v.Value, v.Time
		case *AsyncWrite:
			if v == nil {
				return false, nil
			}
			return v.aw, nil
		case *bridge.AsyncWrite:
			return v, nil
		default:
			return false, nil
		}
	}
	if err := p.applyWrite(ctx, value, ts); err != nil {
		return false, nil
	}
	return true, nil
}

func (h *hostedPV) InterestRegister(context.Context) (bool, error) {
	h.pv.setPublish(true)
	return true, nil
}

func (h *hostedPV) InterestDelete(context.Context) error {
	h.pv.setPublish(false)
	return nil
}

func copyAttributes(a ca.Attributes) ca.Attributes {
	out := a
	out.Value = copyValue(a.Value)
	if a.EnumStrings != nil {
		out.EnumStrings = append([]string(nil), a.EnumStrings...)
	}
	return out
}

func copyValue(v any) any {
	switch s := v.(type) {
	case []int64:
		return append([]int64(nil), s...)
	case []float64:
		return append([]float64(nil), s...)
	case []string:
		return append([]string(nil), s...)
	}
	return v
}

func clampInt(v int64, l ca.Limits) int64 {
	if float64(v) < l.Low {
		return int64(l.Low)
	}
	if float64(v) > l.High {
		return int64(l.High)
	}
	return v
}

// extremes returns the smallest and largest element as floats. ok is false
// for non-numeric values.
func extremes(value any) (lo, hi float64, ok bool) {
	switch v := value.(type) {
	case float64:
		return v, v, true
	case int64:
		f := float64(v)
		return f, f, true
	case []float64:
		if len(v) == 0 {
			return 0, 0, false
		}
		lo, hi = v[0], v[0]
		for _, x := range v[1:] {
			lo = math.Min(lo, x)
			hi = math.Max(hi, x)
		}
		return lo, hi, true
	case []int64:
		if len(v) == 0 {
			return 0, 0, false
		}
		lo, hi = float64(v[0]), float64(v[0])
		for _, x := range v[1:] {
			lo = math.Min(lo, float64(x))
			hi = math.Max(hi, float64(x))
		}
		return lo, hi, true
	}
	return 0, 0, false
}

// maxAbsDiff returns the largest elementwise difference between two values
// of the same shape.
func maxAbsDiff(value, old any) float64 {
	switch v := value.(type) {
	case float64:
		if o, ok := old.(float64); ok {
			return math.Abs(v - o)
		}
	case int64:
		if o, ok := old.(int64); ok {
			return math.Abs(float64(v - o))
		}
	case []float64:
		o, ok := old.([]float64)
		if !ok || len(o) != len(v) {
			return math.Inf(1)
		}
		var max float64
		for i := range v {
			max = math.Max(max, math.Abs(v[i]-o[i]))
		}
		return max
	case []int64:
		o, ok := old.([]int64)
		if !ok || len(o) != len(v) {
			return math.Inf(1)
		}
		var max float64
		for i := range v {
			max = math.Max(max, math.Abs(float64(v[i]-o[i])))
		}
		return max
	}
	return math.Inf(1)
}

func isClose(a, b, rel, abs float64) bool {
	if a == b {
		return true
	}
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return false
	}
	diff := math.Abs(a - b)
	return diff <= math.Abs(rel*b) || diff <= math.Abs(rel*a) || diff < abs
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// coerceValue converts an incoming value to the canonical representation
// for the PV type: string, int64 or float64 scalars and the matching slice
// types for arrays.
func coerceValue(t ca.DataType, count int, value any) (any, error) {
	if value == nil {
		return nil, errors.InvalidData(errors.PhaseDispatch, "value must not be nil")
	}
	if count == 1 {
		return coerceScalar(t, value)
	}

	var n int
	var out any
	switch t {
	case ca.TypeString:
		vs, err := toStringSlice(value)
		if err != nil {
			return nil, err
		}
		n, out = len(vs), vs
	case ca.TypeFloat, ca.TypeDouble:
		vs, err := toFloatSlice(value)
		if err != nil {
			return nil, err
		}
		n, out = len(vs), vs
	default:
		vs, err := toIntSlice(value)
		if err != nil {
			return nil, err
		}
		n, out = len(vs), vs
	}
	if n != count {
		return nil, errors.OutOfBounds(errors.PhaseDispatch, n, count)
	}
	return out, nil
}

func coerceScalar(t ca.DataType, value any) (any, error) {
	switch t {
	case ca.TypeString:
		if s, ok := value.(string); ok {
			return s, nil
		}
	case ca.TypeFloat, ca.TypeDouble:
		if f, ok := toFloat(value); ok {
			return f, nil
		}
	default:
		if i, ok := toInt(value); ok {
			return i, nil
		}
	}
	return nil, errors.TypeMismatch(errors.PhaseDispatch, "value does not match pv type "+t.String(), value)
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

func toInt(value any) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int16:
		return int64(v), true
	case int8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint8:
		return int64(v), true
	}
	return 0, false
}

func toFloatSlice(value any) ([]float64, error) {
	switch v := value.(type) {
	case []float64:
		return append([]float64(nil), v...), nil
	case []float32:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, nil
	case []int64:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, nil
	case []any:
		out := make([]float64, len(v))
		for i, x := range v {
			f, ok := toFloat(x)
			if !ok {
				return nil, errors.TypeMismatch(errors.PhaseDispatch, "array element is not numeric", x)
			}
			out[i] = f
		}
		return out, nil
	}
	return nil, errors.TypeMismatch(errors.PhaseDispatch, "value is not a numeric array", value)
}

func toIntSlice(value any) ([]int64, error) {
	switch v := value.(type) {
	case []int64:
		return append([]int64(nil), v...), nil
	case []int:
		out := make([]int64, len(v))
		for i, x := range v {
			out[i] = int64(x)
		}
		return out, nil
	case []any:
		out := make([]int64, len(v))
		for i, x := range v {
			n, ok := toInt(x)
			if !ok {
				return nil, errors.TypeMismatch(errors.PhaseDispatch, "array element is not an integer", x)
			}
			out[i] = n
		}
		return out, nil
	}
	return nil, errors.TypeMismatch(errors.PhaseDispatch, "value is not an integer array", value)
}

func toStringSlice(value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, len(v))
		for i, x := range v {
			s, ok := x.(string)
			if !ok {
				return nil, errors.TypeMismatch(errors.PhaseDispatch, "array element is not a string", x)
			}
			out[i] = s
		}
		return out, nil
	}
	return nil, errors.TypeMismatch(errors.PhaseDispatch, "value is not a string array", value)
}
