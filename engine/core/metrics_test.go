package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsAverage(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(0.010)
	}
	assert.InDelta(t, 10.0, m.FrameTime(), 1e-9)
}

func TestMetricsAverageRolls(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(0.010)
	}
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(0.020)
	}
	assert.InDelta(t, 20.0, m.FrameTime(), 1e-9)
}

func TestMetricsFPS(t *testing.T) {
	m := NewMetrics()
	assert.Equal(t, 0.0, m.FPS())

	// 101 frames of 10ms crosses the one second mark on the last frame.
	for i := 0; i < 101; i++ {
		m.Update(0.010)
	}
	fps, _ := m.Frame()
	assert.Equal(t, 101.0, fps)
}

func TestClockElapsed(t *testing.T) {
	c := NewClock()
	c.Update()
	assert.Equal(t, 0.0, c.Elapsed())

	c.Start()
	c.Update()
	assert.GreaterOrEqual(t, c.Elapsed(), 0.0)

	c.Stop()
	before := c.Elapsed()
	c.Update()
	assert.Equal(t, before, c.Elapsed())
}

func TestClockTick(t *testing.T) {
	c := NewClock()
	assert.Equal(t, 0.0, c.Tick(), "a stopped clock does not advance")

	c.Start()
	first := c.Tick()
	second := c.Tick()
	assert.GreaterOrEqual(t, first, 0.0)
	assert.GreaterOrEqual(t, second, 0.0)
	assert.InDelta(t, c.Elapsed(), first+second, 1e-9)
}
