package monitoring

import (
	"errors"
	"testing"
	"time"
)

type recordMonitor struct {
	err     error
	tags    map[string]string
	panics  int
	flushes int
}

func (r *recordMonitor) CaptureException(err error, tags map[string]string) {
	r.err = err
	r.tags = tags
}
func (r *recordMonitor) CapturePanic(any)    { r.panics++ }
func (r *recordMonitor) Flush(time.Duration) { r.flushes++ }

func TestCaptureException(t *testing.T) {
	mon := &recordMonitor{}
	Init(mon)
	defer Init(NopMonitor{})

	CaptureException(nil, nil)
	if mon.err != nil {
		t.Fatalf("nil error must not be captured")
	}
	CaptureException(errors.New("boom"), map[string]string{"atm_id": "A"})
	if mon.err == nil || mon.tags["atm_id"] != "A" {
		t.Fatalf("error not captured with tags")
	}
}

func TestRecover(t *testing.T) {
	mon := &recordMonitor{}
	Init(mon)
	defer Init(NopMonitor{})

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatalf("panic must be re-raised")
			}
		}()
		func() {
			defer Recover()
			panic("refresh failed")
		}()
	}()
	if mon.panics != 1 || mon.flushes != 1 {
		t.Fatalf("panic not reported: %+v", mon)
	}
}
