package testutils

import (
	"testing"
	"time"

	"github.com/coder/quartz"

	"github.com/jzx17/gometer/pkg/types"
)

// Epoch is the start time of clocks built by NewClock
var Epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// NewMockClock creates a quartz mock clock
func NewMockClock(t testing.TB) *quartz.Mock {
	return quartz.NewMock(t)
}

// ClockWrapper adapts a quartz mock to types.Clock. Tests move time with
// Advance or Set on the embedded mock.
type ClockWrapper struct {
	*quartz.Mock
}

var _ types.Clock = (*ClockWrapper)(nil)

// NewClockWrapper wraps mock
func NewClockWrapper(mock *quartz.Mock) *ClockWrapper {
	return &ClockWrapper{Mock: mock}
}

// NewClock returns a mock clock set to Epoch
func NewClock(t testing.TB) *ClockWrapper {
	mock := NewMockClock(t)
	mock.Set(Epoch)
	return NewClockWrapper(mock)
}

func (c *ClockWrapper) Now() time.Time {
	return c.Mock.Now()
}

func (c *ClockWrapper) Since(t time.Time) time.Duration {
	return c.Mock.Since(t)
}
