// Package clock provides time abstraction so time dependent logic can be tested with a controlled time
package clock

import (
	"sync"
	"time"
)

// Clock provides the current time
type Clock interface {
	Now() time.Time
	NowUnixMilli() int64
}

// RealClock implements Clock using system time
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

func (RealClock) NowUnixMilli() int64 {
	return time.Now().UnixMilli()
}

// OffsetClock shifts another Clock by a fixed duration, used for simulated or replayed time
type OffsetClock struct {
	Base   Clock
	Offset time.Duration
}

func (o OffsetClock) Now() time.Time {
	return o.Base.Now().Add(o.Offset)
}

func (o OffsetClock) NowUnixMilli() int64 {
	return o.Now().UnixMilli()
}

// MockClock implements Clock with a thread safe settable time
type MockClock struct {
	currentTime time.Time
	mu          sync.Mutex
}

// NewMockClock creates a new MockClock set to t
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{currentTime: t}
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTime
}

func (m *MockClock) NowUnixMilli() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTime.UnixMilli()
}

// Set changes the mock clock's current time
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = t
}

// Advance moves the mock clock by d, negative durations move it backward
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = m.currentTime.Add(d)
}
