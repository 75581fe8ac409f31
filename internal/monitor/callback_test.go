package monitor_test

import (
	"errors"
	"testing"

	"github.com/torosent/lagmeter/internal/monitor"
)

type recordingMonitor struct {
	ingested  int
	successes int
	failures  []error
	ignored   int
}

func (r *recordingMonitor) OnMessageIngested(monitor.Message) monitor.Callback {
	r.ingested++
	return &recordingCallback{parent: r}
}

type recordingCallback struct {
	parent *recordingMonitor
}

func (c *recordingCallback) ReportSuccess() { c.parent.successes++ }
func (c *recordingCallback) ReportFailure(cause error) {
	c.parent.failures = append(c.parent.failures, cause)
}
func (c *recordingCallback) ReportIgnored() { c.parent.ignored++ }

func TestMultiForwardsToEveryMonitor(t *testing.T) {
	a := &recordingMonitor{}
	b := &recordingMonitor{}
	latency := monitor.NewLatencyMonitor()
	m := monitor.Multi(a, nil, b, latency)

	m.OnMessageIngested(msgAt(10)).ReportSuccess()
	cause := errors.New("failed")
	m.OnMessageIngested(msgAt(20)).ReportFailure(cause)
	m.OnMessageIngested(msgAt(30)).ReportIgnored()

	for name, r := range map[string]*recordingMonitor{"a": a, "b": b} {
		if r.ingested != 3 {
			t.Errorf("%s: expected 3 ingestions, got %d", name, r.ingested)
		}
		if r.successes != 1 || r.ignored != 1 || len(r.failures) != 1 {
			t.Errorf("%s: expected one of each outcome, got success=%d failure=%d ignored=%d",
				name, r.successes, len(r.failures), r.ignored)
		}
		if len(r.failures) == 1 && !errors.Is(r.failures[0], cause) {
			t.Errorf("%s: expected failure cause to be forwarded, got %v", name, r.failures[0])
		}
	}
	if latency.Latency() != 0 || latency.LastCompleted() != 30 {
		t.Errorf("expected latency monitor caught up at 30, got latency=%d completed=%d",
			latency.Latency(), latency.LastCompleted())
	}
}

func TestMultiSingleMonitorIsReturnedAsIs(t *testing.T) {
	latency := monitor.NewLatencyMonitor()
	if got := monitor.Multi(nil, latency); got != monitor.MessageMonitor(latency) {
		t.Fatalf("expected the single monitor to be returned unchanged, got %T", got)
	}
}

func TestMultiEmptyReturnsNoOp(t *testing.T) {
	cb := monitor.Multi().OnMessageIngested(msgAt(1))
	if cb != monitor.NoOpCallback {
		t.Fatalf("expected NoOpCallback, got %T", cb)
	}
}

func TestGaugeFuncEvaluatesOnEveryRead(t *testing.T) {
	var n int64
	g := monitor.GaugeFunc(func() int64 {
		n++
		return n
	})
	if g.Value() != 1 || g.Value() != 2 {
		t.Fatal("expected GaugeFunc to be evaluated on each read")
	}
}

func TestIsAbsent(t *testing.T) {
	var nilPtr *testMessage
	tests := []struct {
		name string
		msg  monitor.Message
		want bool
	}{
		{"nil interface", nil, true},
		{"typed nil pointer", nilPtr, true},
		{"present", msgAt(1000), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := monitor.IsAbsent(tt.msg); got != tt.want {
				t.Errorf("IsAbsent() = %v, expected %v", got, tt.want)
			}
		})
	}
}
