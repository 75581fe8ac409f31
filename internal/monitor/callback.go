package monitor

import (
	"reflect"
	"time"
)

// Message is a unit of work whose own timestamp identifies it to a monitor.
type Message interface {
	Timestamp() time.Time
}

// Callback receives the single terminal outcome of a monitored message.
// Exactly one of its methods should be called once processing ends.
type Callback interface {
	ReportSuccess()
	ReportFailure(cause error)
	ReportIgnored()
}

// MessageMonitor is notified when a message enters a pipeline.
type MessageMonitor interface {
	OnMessageIngested(msg Message) Callback
}

// NoOpCallback ignores every outcome. It is handed out for absent messages.
var NoOpCallback Callback = noOpCallback{}

type noOpCallback struct{}

func (noOpCallback) ReportSuccess()      {}
func (noOpCallback) ReportFailure(error) {}
func (noOpCallback) ReportIgnored()      {}

// IsAbsent reports whether msg is nil or an interface wrapping a nil pointer.
// Monitors hand out NoOpCallback for absent messages.
func IsAbsent(msg Message) bool {
	if msg == nil {
		return true
	}
	v := reflect.ValueOf(msg)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return v.IsNil()
	}
	return false
}

// Multi fans each ingestion out to every monitor. The returned callback forwards
// the outcome to each child callback in order.
func Multi(monitors ...MessageMonitor) MessageMonitor {
	filtered := make([]MessageMonitor, 0, len(monitors))
	for _, m := range monitors {
		if m != nil {
			filtered = append(filtered, m)
		}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return multiMonitor(filtered)
}

type multiMonitor []MessageMonitor

func (m multiMonitor) OnMessageIngested(msg Message) Callback {
	if len(m) == 0 {
		return NoOpCallback
	}
	callbacks := make(multiCallback, len(m))
	for i, child := range m {
		callbacks[i] = child.OnMessageIngested(msg)
	}
	return callbacks
}

type multiCallback []Callback

func (c multiCallback) ReportSuccess() {
	for _, cb := range c {
		cb.ReportSuccess()
	}
}

func (c multiCallback) ReportFailure(cause error) {
	for _, cb := range c {
		cb.ReportFailure(cause)
	}
}

func (c multiCallback) ReportIgnored() {
	for _, cb := range c {
		cb.ReportIgnored()
	}
}
