package bridge

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/cas-bridge/ca"
	"github.com/wippyai/cas-bridge/codec"
	"github.com/wippyai/cas-bridge/engine"
	"github.com/wippyai/cas-bridge/errors"
)

// fakeEngine records everything the bridge hands to it.
type fakeEngine struct {
	server      engine.Server
	events      []fakeEvent
	completions []fakeCompletion
	registered  ca.EventMask
	postErr     error
	done        map[engine.Token]bool
	process     func(ctx context.Context) error
}

type fakeEvent struct {
	pv   string
	mask ca.EventMask
	buf  engine.TypedBuffer
}

type fakeCompletion struct {
	tok    engine.Token
	status engine.Status
	result engine.PostResult
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		registered: ca.EventValue | ca.EventLog | ca.EventAlarm | ca.EventProperty,
		done:       make(map[engine.Token]bool),
	}
}

func (e *fakeEngine) Attach(s engine.Server) error {
	e.server = s
	return nil
}

func (e *fakeEngine) Process(ctx context.Context, _ time.Duration) error {
	if e.process != nil {
		return e.process(ctx)
	}
	return nil
}

func (e *fakeEngine) PostEvent(pv string, mask ca.EventMask, buf *engine.TypedBuffer) error {
	if e.postErr != nil {
		return e.postErr
	}
	e.events = append(e.events, fakeEvent{pv: pv, mask: mask, buf: *buf})
	return nil
}

func (e *fakeEngine) PostCompletion(tok engine.Token, st engine.Status) (engine.PostResult, error) {
	if e.postErr != nil {
		return engine.PostRedundant, e.postErr
	}
	res := engine.PostDelivered
	if e.done[tok] {
		res = engine.PostRedundant
	}
	e.done[tok] = true
	e.completions = append(e.completions, fakeCompletion{tok: tok, status: st, result: res})
	return res, nil
}

func (e *fakeEngine) RegisteredEvents() ca.EventMask { return e.registered }

// testHandler overrides individual capabilities through func fields.
type testHandler struct {
	BaseHandler
	typ      func(ctx context.Context) (ca.DataType, error)
	count    func(ctx context.Context) (int, error)
	read     func(ctx context.Context) (*ca.Attributes, error)
	write    func(ctx context.Context, value any, ts ca.Time, actx *AsyncContext) (any, error)
	interest func(ctx context.Context) (bool, error)
	destroy  func(ctx context.Context) error
}

func (h *testHandler) Type(ctx context.Context) (ca.DataType, error) {
	if h.typ != nil {
		return h.typ(ctx)
	}
	return h.BaseHandler.Type(ctx)
}

func (h *testHandler) Count(ctx context.Context) (int, error) {
	if h.count != nil {
		return h.count(ctx)
	}
	return h.BaseHandler.Count(ctx)
}

func (h *testHandler) Read(ctx context.Context) (*ca.Attributes, error) {
	if h.read != nil {
		return h.read(ctx)
	}
	return h.BaseHandler.Read(ctx)
}

func (h *testHandler) Write(ctx context.Context, value any, ts ca.Time, actx *AsyncContext) (any, error) {
	if h.write != nil {
		return h.write(ctx, value, ts, actx)
	}
	return h.BaseHandler.Write(ctx, value, ts, actx)
}

func (h *testHandler) InterestRegister(ctx context.Context) (bool, error) {
	if h.interest != nil {
		return h.interest(ctx)
	}
	return h.BaseHandler.InterestRegister(ctx)
}

func (h *testHandler) Destroy(ctx context.Context) error {
	if h.destroy != nil {
		return h.destroy(ctx)
	}
	return h.BaseHandler.Destroy(ctx)
}

// testServerHandler serves a fixed PV set.
type testServerHandler struct {
	BaseServerHandler
	exist  func(ctx context.Context, client engine.Addr, name string) (engine.ExistsResponse, error)
	attach func(ctx context.Context, name string) (any, error)
}

func (h *testServerHandler) PVExistTest(ctx context.Context, client engine.Addr, name string) (engine.ExistsResponse, error) {
	if h.exist != nil {
		return h.exist(ctx, client, name)
	}
	return h.BaseServerHandler.PVExistTest(ctx, client, name)
}

func (h *testServerHandler) PVAttach(ctx context.Context, name string) (any, error) {
	if h.attach != nil {
		return h.attach(ctx, name)
	}
	return h.BaseServerHandler.PVAttach(ctx, name)
}

// attachPV wires a PV through a fresh server adapter and fake engine.
func attachPV(t *testing.T, pv *PV) (*fakeEngine, *ServerAdapter) {
	t.Helper()
	eng := newFakeEngine()
	sh := &testServerHandler{
		attach: func(_ context.Context, name string) (any, error) {
			if name == pv.Name() {
				return pv, nil
			}
			return nil, nil
		},
	}
	sa, err := NewServerAdapter(sh, eng, codec.Std{})
	if err != nil {
		t.Fatalf("server adapter: %v", err)
	}
	apv, _ := sa.PVAttach(context.Background(), pv.Name())
	if apv == nil {
		t.Fatal("attach did not produce an adapter")
	}
	return eng, sa
}

func TestBestTypeFailSafe(t *testing.T) {
	tests := []struct {
		name string
		typ  func(ctx context.Context) (ca.DataType, error)
		want ca.DataType
	}{
		{"default", nil, ca.TypeString},
		{"explicit", func(context.Context) (ca.DataType, error) { return ca.TypeDouble, nil }, ca.TypeDouble},
		{"error", func(context.Context) (ca.DataType, error) { return 0, fmt.Errorf("boom") }, ca.TypeString},
		{"invalid", func(context.Context) (ca.DataType, error) { return ca.TypeInvalid, nil }, ca.TypeString},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pv, err := NewPV("T:TYPE", &testHandler{typ: tt.typ})
			if err != nil {
				t.Fatal(err)
			}
			if got := pv.Adapter().BestType(context.Background()); got != tt.want {
				t.Fatalf("BestType = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestElementCountFailSafe(t *testing.T) {
	tests := []struct {
		name  string
		count func(ctx context.Context) (int, error)
		want  int
	}{
		{"default", nil, 1},
		{"array", func(context.Context) (int, error) { return 8, nil }, 8},
		{"error", func(context.Context) (int, error) { return 0, fmt.Errorf("boom") }, 1},
		{"zero", func(context.Context) (int, error) { return 0, nil }, 1},
		{"negative", func(context.Context) (int, error) { return -3, nil }, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pv, err := NewPV("T:COUNT", &testHandler{count: tt.count})
			if err != nil {
				t.Fatal(err)
			}
			a := pv.Adapter()
			if got := a.ElementCount(context.Background()); got != tt.want {
				t.Fatalf("ElementCount = %d, want %d", got, tt.want)
			}
			wantDim := 0
			if tt.want > 1 {
				wantDim = 1
			}
			if got := a.MaxDimension(context.Background()); got != wantDim {
				t.Fatalf("MaxDimension = %d, want %d", got, wantDim)
			}
		})
	}
}

func TestReadTemperature(t *testing.T) {
	h := &testHandler{
		typ: func(context.Context) (ca.DataType, error) { return ca.TypeDouble, nil },
		read: func(context.Context) (*ca.Attributes, error) {
			return &ca.Attributes{
				Value:    23.5,
				Status:   ca.StatusNoAlarm,
				Severity: ca.SeverityNoAlarm,
				Unit:     "degC",
			}, nil
		},
	}
	pv, err := NewPV("TEMP1", h)
	if err != nil {
		t.Fatal(err)
	}
	attachPV(t, pv)

	var buf engine.TypedBuffer
	if st := pv.Adapter().Read(context.Background(), &buf); st != engine.StatusSuccess {
		t.Fatalf("read status = %v, want success", st)
	}
	if buf.Type != ca.TypeDouble || buf.Count != 1 {
		t.Fatalf("buffer shape = %v/%d, want double/1", buf.Type, buf.Count)
	}
	if buf.Value != 23.5 {
		t.Fatalf("value = %v, want 23.5", buf.Value)
	}
	if buf.Unit != "degC" {
		t.Fatalf("unit = %q, want degC", buf.Unit)
	}
}

func TestReadFailSafe(t *testing.T) {
	tests := []struct {
		name string
		read func(ctx context.Context) (*ca.Attributes, error)
	}{
		{"nil attributes", func(context.Context) (*ca.Attributes, error) { return nil, nil }},
		{"handler error", func(context.Context) (*ca.Attributes, error) { return nil, fmt.Errorf("boom") }},
		{"unencodable value", func(context.Context) (*ca.Attributes, error) {
			return &ca.Attributes{Value: struct{}{}}, nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pv, err := NewPV("T:READ", &testHandler{
				typ:  func(context.Context) (ca.DataType, error) { return ca.TypeDouble, nil },
				read: tt.read,
			})
			if err != nil {
				t.Fatal(err)
			}
			attachPV(t, pv)

			buf := engine.TypedBuffer{Type: ca.TypeLong, Count: 99}
			if st := pv.Adapter().Read(context.Background(), &buf); st != engine.StatusNoSupport {
				t.Fatalf("status = %v, want no_support", st)
			}
			if buf.Type != ca.TypeLong || buf.Count != 99 {
				t.Fatal("failed read must leave the buffer untouched")
			}
		})
	}
}

func TestReadUnattached(t *testing.T) {
	pv, err := NewPV("T:LONE", &testHandler{})
	if err != nil {
		t.Fatal(err)
	}
	var buf engine.TypedBuffer
	if st := pv.Adapter().Read(context.Background(), &buf); st != engine.StatusNoSupport {
		t.Fatalf("status = %v, want no_support", st)
	}
}

func writeBuffer(value float64) *engine.TypedBuffer {
	return &engine.TypedBuffer{
		Type:  ca.TypeDouble,
		Count: 1,
		Value: value,
		Time:  ca.Time{Sec: 100},
	}
}

func TestWriteOutcomes(t *testing.T) {
	tests := []struct {
		name  string
		write func(ctx context.Context, value any, ts ca.Time, actx *AsyncContext) (any, error)
		want  engine.Status
	}{
		{"default reject", nil, engine.StatusNoSupport},
		{"accept", func(context.Context, any, ca.Time, *AsyncContext) (any, error) {
			return true, nil
		}, engine.StatusSuccess},
		{"reject", func(context.Context, any, ca.Time, *AsyncContext) (any, error) {
			return false, nil
		}, engine.StatusNoSupport},
		{"error", func(context.Context, any, ca.Time, *AsyncContext) (any, error) {
			return nil, fmt.Errorf("boom")
		}, engine.StatusNoSupport},
		{"nil result", func(context.Context, any, ca.Time, *AsyncContext) (any, error) {
			return nil, nil
		}, engine.StatusNoSupport},
		{"unrecognized result", func(context.Context, any, ca.Time, *AsyncContext) (any, error) {
			return "maybe", nil
		}, engine.StatusNoSupport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pv, err := NewPV("T:WRITE", &testHandler{write: tt.write})
			if err != nil {
				t.Fatal(err)
			}
			attachPV(t, pv)

			if st := pv.Adapter().Write(context.Background(), writeBuffer(1), "tok"); st != tt.want {
				t.Fatalf("status = %v, want %v", st, tt.want)
			}
		})
	}
}

func TestWriteReceivesDecodedValue(t *testing.T) {
	var gotValue any
	var gotTS ca.Time
	pv, err := NewPV("T:VAL", &testHandler{
		write: func(_ context.Context, value any, ts ca.Time, _ *AsyncContext) (any, error) {
			gotValue, gotTS = value, ts
			return true, nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	attachPV(t, pv)

	pv.Adapter().Write(context.Background(), writeBuffer(42.5), "tok")
	if gotValue != 42.5 {
		t.Fatalf("decoded value = %v, want 42.5", gotValue)
	}
	if gotTS != (ca.Time{Sec: 100}) {
		t.Fatalf("timestamp = %v, want sec 100", gotTS)
	}
}

func TestAsyncWriteNilPV(t *testing.T) {
	pv, err := NewPV("T:NILPV", &testHandler{
		write: func(_ context.Context, _ any, _ ca.Time, actx *AsyncContext) (any, error) {
			if _, err := NewAsyncWrite(nil, actx); err == nil {
				t.Error("NewAsyncWrite must reject a nil pv")
			}
			return false, nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	attachPV(t, pv)
	pv.Adapter().Write(context.Background(), writeBuffer(1), "tok-0")
}

func TestAsyncWriteDeferred(t *testing.T) {
	var aw *AsyncWrite
	h := &testHandler{}
	pv, err := NewPV("T:DEFER", h)
	if err != nil {
		t.Fatal(err)
	}
	h.write = func(_ context.Context, _ any, _ ca.Time, actx *AsyncContext) (any, error) {
		w, err := NewAsyncWrite(pv, actx)
		if err != nil {
			return nil, err
		}
		aw = w
		return w, nil
	}
	eng, _ := attachPV(t, pv)

	baseCount := pv.Ref().Count()
	if st := pv.Adapter().Write(context.Background(), writeBuffer(1), "tok-1"); st != engine.StatusAsyncCompletion {
		t.Fatalf("status = %v, want async_completion", st)
	}
	if aw == nil {
		t.Fatal("handler did not build the async write")
	}
	if !aw.HeldByServer() {
		t.Fatal("engine must hold the deferred write")
	}
	if got := aw.Ref().Count(); got != 2 {
		t.Fatalf("async write ref count = %d, want 2", got)
	}
	if pv.Ref().Count() != baseCount {
		t.Fatal("deferring a write must not retain the pv")
	}

	if err := aw.Complete(context.Background()); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if aw.HeldByServer() {
		t.Fatal("completed write must no longer be engine-held")
	}
	if len(eng.completions) != 1 {
		t.Fatalf("completions = %d, want 1", len(eng.completions))
	}
	c := eng.completions[0]
	if c.tok != "tok-1" || c.status != engine.StatusSuccess {
		t.Fatalf("completion = %+v, want tok-1/success", c)
	}

	// Posting again is redundant, not an error, and cannot double-release.
	if err := aw.Complete(context.Background()); err != nil {
		t.Fatalf("redundant complete failed: %v", err)
	}
	if got := aw.Ref().Count(); got != 1 {
		t.Fatalf("ref count after redundant post = %d, want 1", got)
	}
}

func TestAsyncWriteFail(t *testing.T) {
	var aw *AsyncWrite
	h := &testHandler{}
	pv, err := NewPV("T:FAIL", h)
	if err != nil {
		t.Fatal(err)
	}
	h.write = func(_ context.Context, _ any, _ ca.Time, actx *AsyncContext) (any, error) {
		aw, err = NewAsyncWrite(pv, actx)
		return aw, err
	}
	eng, _ := attachPV(t, pv)

	pv.Adapter().Write(context.Background(), writeBuffer(1), "tok-2")
	if err := aw.Fail(context.Background()); err != nil {
		t.Fatalf("fail returned error: %v", err)
	}
	if got := eng.completions[0].status; got != engine.StatusCanceled {
		t.Fatalf("completion status = %v, want canceled", got)
	}
}

func TestAsyncWriteEngineFailureKeepsOwnership(t *testing.T) {
	var aw *AsyncWrite
	h := &testHandler{}
	pv, err := NewPV("T:ENGFAIL", h)
	if err != nil {
		t.Fatal(err)
	}
	h.write = func(_ context.Context, _ any, _ ca.Time, actx *AsyncContext) (any, error) {
		aw, err = NewAsyncWrite(pv, actx)
		return aw, err
	}
	eng, _ := attachPV(t, pv)

	pv.Adapter().Write(context.Background(), writeBuffer(1), "tok-3")
	eng.postErr = fmt.Errorf("engine down")
	if err := aw.Complete(context.Background()); err == nil {
		t.Fatal("expected engine failure")
	}
	if !aw.HeldByServer() {
		t.Fatal("failed post must not release ownership")
	}

	eng.postErr = nil
	if err := aw.Complete(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if aw.HeldByServer() {
		t.Fatal("successful retry must release ownership")
	}
}

func TestConsumedContext(t *testing.T) {
	var stashed *AsyncContext
	h := &testHandler{
		write: func(_ context.Context, _ any, _ ca.Time, actx *AsyncContext) (any, error) {
			stashed = actx
			return true, nil
		},
	}
	pv, err := NewPV("T:CTX", h)
	if err != nil {
		t.Fatal(err)
	}
	attachPV(t, pv)

	pv.Adapter().Write(context.Background(), writeBuffer(1), "tok-4")

	_, err = NewAsyncWrite(pv, stashed)
	if err == nil {
		t.Fatal("capturing a consumed context must fail")
	}
	var e *errors.Error
	if !errors.As(err, &e) || e.Kind != errors.KindConsumedContext {
		t.Fatalf("error = %v, want consumed_context", err)
	}
}

func TestAsyncContextDoubleCapture(t *testing.T) {
	var second error
	h := &testHandler{}
	pv, err := NewPV("T:DBL", h)
	if err != nil {
		t.Fatal(err)
	}
	h.write = func(_ context.Context, _ any, _ ca.Time, actx *AsyncContext) (any, error) {
		w, err := NewAsyncWrite(pv, actx)
		if err != nil {
			return nil, err
		}
		_, second = NewAsyncWrite(pv, actx)
		return w, nil
	}
	attachPV(t, pv)

	pv.Adapter().Write(context.Background(), writeBuffer(1), "tok-5")
	if second == nil {
		t.Fatal("second capture of one context must fail")
	}
	var e *errors.Error
	if !errors.As(second, &e) || e.Kind != errors.KindProtocol {
		t.Fatalf("error = %v, want protocol", second)
	}
}

func TestAsyncWriteForeignPV(t *testing.T) {
	other, err := NewPV("T:OTHER", &testHandler{})
	if err != nil {
		t.Fatal(err)
	}
	h := &testHandler{
		write: func(_ context.Context, _ any, _ ca.Time, actx *AsyncContext) (any, error) {
			return NewAsyncWrite(other, actx)
		},
	}
	pv, err := NewPV("T:MINE", h)
	if err != nil {
		t.Fatal(err)
	}
	attachPV(t, pv)

	// A deferred write bound to a different PV must not be adopted.
	if st := pv.Adapter().Write(context.Background(), writeBuffer(1), "tok-6"); st != engine.StatusNoSupport {
		t.Fatalf("status = %v, want no_support", st)
	}
}

func TestOwnershipTransferExactlyOnce(t *testing.T) {
	drops := 0
	pv, err := NewPV("T:OWN", &testHandler{}, WithDrop(func() { drops++ }))
	if err != nil {
		t.Fatal(err)
	}
	if pv.HeldByServer() {
		t.Fatal("fresh pv must not be engine-held")
	}
	if got := pv.Ref().Count(); got != 1 {
		t.Fatalf("initial count = %d, want 1", got)
	}

	eng := newFakeEngine()
	sh := &testServerHandler{
		attach: func(context.Context, string) (any, error) { return pv, nil },
	}
	sa, err := NewServerAdapter(sh, eng, codec.Std{})
	if err != nil {
		t.Fatal(err)
	}

	// Repeated attaches transfer exactly once.
	for i := 0; i < 3; i++ {
		apv, _ := sa.PVAttach(context.Background(), "T:OWN")
		if apv != pv.Adapter() {
			t.Fatal("attach must return the pv's adapter")
		}
	}
	if !pv.HeldByServer() {
		t.Fatal("attached pv must be engine-held")
	}
	if got := pv.Ref().Count(); got != 2 {
		t.Fatalf("count after attaches = %d, want 2", got)
	}

	// Repeated destroys release exactly once.
	for i := 0; i < 3; i++ {
		pv.Adapter().Destroy(context.Background())
	}
	if pv.HeldByServer() {
		t.Fatal("destroyed pv must not be engine-held")
	}
	if got := pv.Ref().Count(); got != 1 {
		t.Fatalf("count after destroys = %d, want 1", got)
	}
	if drops != 0 {
		t.Fatal("drop must wait for the creator's reference")
	}

	pv.Release()
	if drops != 1 {
		t.Fatalf("drop ran %d times, want 1", drops)
	}
}

func TestDestroyDispatchesOnce(t *testing.T) {
	destroys := 0
	pv, err := NewPV("T:DTOR", &testHandler{
		destroy: func(context.Context) error {
			destroys++
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	attachPV(t, pv)

	pv.Adapter().Destroy(context.Background())
	pv.Adapter().Destroy(context.Background())
	if destroys != 1 {
		t.Fatalf("destroy dispatched %d times, want 1", destroys)
	}

	// A destroyed adapter answers fail-safe without dispatching.
	if st := pv.Adapter().Read(context.Background(), &engine.TypedBuffer{}); st != engine.StatusNoSupport {
		t.Fatalf("read after destroy = %v, want no_support", st)
	}
}

func TestDestroyTearsDownPendingWrites(t *testing.T) {
	var aw *AsyncWrite
	h := &testHandler{}
	pv, err := NewPV("T:TEAR", h)
	if err != nil {
		t.Fatal(err)
	}
	var nerr error
	h.write = func(_ context.Context, _ any, _ ca.Time, actx *AsyncContext) (any, error) {
		aw, nerr = NewAsyncWrite(pv, actx)
		return aw, nerr
	}
	attachPV(t, pv)

	pv.Adapter().Write(context.Background(), writeBuffer(1), "tok-7")
	if aw == nil || nerr != nil {
		t.Fatalf("async write not built: %v", nerr)
	}

	pv.Adapter().Destroy(context.Background())
	if aw.HeldByServer() {
		t.Fatal("teardown must release the pending write")
	}
	if got := aw.Ref().Count(); got != 1 {
		t.Fatalf("ref count = %d, want 1", got)
	}
	if err := aw.Complete(context.Background()); err == nil {
		t.Fatal("completing a torn-down write must fail")
	}
}

func TestExistTestFailSafe(t *testing.T) {
	tests := []struct {
		name  string
		exist func(ctx context.Context, client engine.Addr, name string) (engine.ExistsResponse, error)
		want  engine.ExistsResponse
	}{
		{"default", nil, engine.NotExistsHere},
		{"exists", func(context.Context, engine.Addr, string) (engine.ExistsResponse, error) {
			return engine.ExistsHere, nil
		}, engine.ExistsHere},
		{"error", func(context.Context, engine.Addr, string) (engine.ExistsResponse, error) {
			return engine.ExistsHere, fmt.Errorf("boom")
		}, engine.NotExistsHere},
		{"out of range", func(context.Context, engine.Addr, string) (engine.ExistsResponse, error) {
			return engine.ExistsResponse(42), nil
		}, engine.NotExistsHere},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newFakeEngine()
			sa, err := NewServerAdapter(&testServerHandler{exist: tt.exist}, eng, codec.Std{})
			if err != nil {
				t.Fatal(err)
			}
			client := engine.Addr{Host: 0x7f000001, Port: 5064}
			if got := sa.PVExistTest(context.Background(), client, "ANY"); got != tt.want {
				t.Fatalf("exist = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAttachFailSafe(t *testing.T) {
	tests := []struct {
		name   string
		attach func(ctx context.Context, name string) (any, error)
		want   engine.AttachResponse
	}{
		{"default", nil, engine.AttachNotFound},
		{"error", func(context.Context, string) (any, error) {
			return nil, fmt.Errorf("boom")
		}, engine.AttachNotFound},
		{"no memory passthrough", func(context.Context, string) (any, error) {
			return engine.AttachNoMemory, nil
		}, engine.AttachNoMemory},
		{"unrecognized result", func(context.Context, string) (any, error) {
			return 12, nil
		}, engine.AttachNotFound},
		{"typed nil pv", func(context.Context, string) (any, error) {
			var pv *PV
			return pv, nil
		}, engine.AttachNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newFakeEngine()
			sa, err := NewServerAdapter(&testServerHandler{attach: tt.attach}, eng, codec.Std{})
			if err != nil {
				t.Fatal(err)
			}
			apv, resp := sa.PVAttach(context.Background(), "ANY")
			if apv != nil {
				t.Fatal("failed attach must not produce an adapter")
			}
			if resp != tt.want {
				t.Fatalf("response = %v, want %v", resp, tt.want)
			}
		})
	}
}

func TestAttachDestroyedPV(t *testing.T) {
	pv, err := NewPV("T:DEAD", &testHandler{})
	if err != nil {
		t.Fatal(err)
	}
	attachPV(t, pv)
	pv.Adapter().Destroy(context.Background())

	eng := newFakeEngine()
	sa, err := NewServerAdapter(&testServerHandler{
		attach: func(context.Context, string) (any, error) { return pv, nil },
	}, eng, codec.Std{})
	if err != nil {
		t.Fatal(err)
	}
	apv, resp := sa.PVAttach(context.Background(), "T:DEAD")
	if apv != nil || resp != engine.AttachNotFound {
		t.Fatalf("attach of destroyed pv = %v/%v, want nil/not_found", apv, resp)
	}
}

func TestAttachRejectsForeignServer(t *testing.T) {
	pv, err := NewPV("T:TWO", &testHandler{})
	if err != nil {
		t.Fatal(err)
	}
	attachPV(t, pv)

	eng := newFakeEngine()
	sa2, err := NewServerAdapter(&testServerHandler{
		attach: func(context.Context, string) (any, error) { return pv, nil },
	}, eng, codec.Std{})
	if err != nil {
		t.Fatal(err)
	}
	apv, resp := sa2.PVAttach(context.Background(), "T:TWO")
	if apv != nil || resp != engine.AttachNotFound {
		t.Fatal("pv bound to one server must not attach to another")
	}
}

func TestProcessYieldsHostedLock(t *testing.T) {
	eng := newFakeEngine()
	sa, err := NewServerAdapter(&testServerHandler{}, eng, codec.Std{})
	if err != nil {
		t.Fatal(err)
	}

	var sawHeld bool
	acquired := make(chan struct{})
	eng.process = func(ctx context.Context) error {
		sawHeld = HostedHeld(ctx)
		// Another goroutine must be able to take the region while the
		// engine runs.
		go func() {
			_, release := EnterHosted(context.Background())
			release()
			close(acquired)
		}()
		select {
		case <-acquired:
		case <-time.After(2 * time.Second):
			t.Error("hosted lock not released during process")
		}
		return nil
	}

	ctx, release := EnterHosted(context.Background())
	defer release()
	if err := sa.Process(ctx, time.Millisecond); err != nil {
		t.Fatalf("process: %v", err)
	}
	if sawHeld {
		t.Fatal("engine must run outside the hosted region")
	}
	if !HostedHeld(ctx) {
		t.Fatal("region must be re-held after process returns")
	}

	wantErr := fmt.Errorf("io broke")
	eng.process = func(context.Context) error { return wantErr }
	if err := sa.Process(ctx, time.Millisecond); err != wantErr {
		t.Fatalf("process error = %v, want %v", err, wantErr)
	}
}

func TestPostEvent(t *testing.T) {
	h := &testHandler{
		typ: func(context.Context) (ca.DataType, error) { return ca.TypeDouble, nil },
	}
	pv, err := NewPV("T:EVT", h)
	if err != nil {
		t.Fatal(err)
	}

	attrs := ca.Attributes{Value: 5.0, Status: ca.StatusNoAlarm}
	if err := pv.PostEvent(context.Background(), ca.EventValue, attrs); err == nil {
		t.Fatal("posting from an unattached pv must fail")
	}

	eng, _ := attachPV(t, pv)
	if err := pv.PostEvent(context.Background(), ca.EventValue|ca.EventLog, attrs); err != nil {
		t.Fatalf("post failed: %v", err)
	}
	if len(eng.events) != 1 {
		t.Fatalf("events = %d, want 1", len(eng.events))
	}
	ev := eng.events[0]
	if ev.pv != "T:EVT" || ev.mask != ca.EventValue|ca.EventLog {
		t.Fatalf("event = %+v", ev)
	}
	if ev.buf.Value != 5.0 {
		t.Fatalf("event value = %v, want 5.0", ev.buf.Value)
	}

	if err := pv.PostEvent(context.Background(), ca.EventNone, attrs); err == nil {
		t.Fatal("empty mask must fail")
	}

	eng.registered = ca.EventValue
	if err := pv.PostEvent(context.Background(), ca.EventAlarm, attrs); err == nil {
		t.Fatal("mask outside the registered set must fail")
	}
}

func TestPostEventInsideDispatch(t *testing.T) {
	// A handler posting an event during its own write dispatch re-enters
	// the hosted lock through the context and must not deadlock.
	h := &testHandler{
		typ: func(context.Context) (ca.DataType, error) { return ca.TypeDouble, nil },
	}
	pv, err := NewPV("T:REENTER", h)
	if err != nil {
		t.Fatal(err)
	}
	h.write = func(ctx context.Context, value any, _ ca.Time, _ *AsyncContext) (any, error) {
		err := pv.PostEvent(ctx, ca.EventValue, ca.Attributes{Value: value})
		return err == nil, err
	}
	eng, _ := attachPV(t, pv)

	done := make(chan engine.Status, 1)
	go func() {
		done <- pv.Adapter().Write(context.Background(), writeBuffer(9), "tok-8")
	}()
	select {
	case st := <-done:
		if st != engine.StatusSuccess {
			t.Fatalf("status = %v, want success", st)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("write deadlocked while posting an event")
	}
	if len(eng.events) != 1 {
		t.Fatalf("events = %d, want 1", len(eng.events))
	}
}

func TestDispatchErrorsAreLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	pv, err := NewPV("T:LOG", &testHandler{
		typ: func(context.Context) (ca.DataType, error) { return 0, fmt.Errorf("broken handler") },
	})
	if err != nil {
		t.Fatal(err)
	}
	pv.Adapter().BestType(context.Background())

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["pv"] != "T:LOG" || fields["method"] != "type" {
		t.Fatalf("log fields = %v", fields)
	}
}
