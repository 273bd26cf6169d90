package core

import "time"

// Clock measures elapsed wall time in seconds since Start.
type Clock struct {
	startTime time.Time
	running   bool
	elapsed   float64
	lastTick  float64
}

func NewClock() *Clock {
	return &Clock{}
}

// Updates the provided clock. Should be called just before checking elapsed time.
// Has no effect on non-started clocks.
func (c *Clock) Update() {
	if c.running {
		c.elapsed = time.Since(c.startTime).Seconds()
	}
}

// Starts the provided clock. Resets elapsed time.
func (c *Clock) Start() {
	c.startTime = time.Now()
	c.running = true
	c.elapsed = 0
	c.lastTick = 0
}

// Stops the provided clock. Does not reset elapsed time.
func (c *Clock) Stop() {
	c.running = false
}

func (c *Clock) Elapsed() float64 {
	return c.elapsed
}

// Tick updates the clock and returns the seconds elapsed since the previous Tick or Start.
func (c *Clock) Tick() float64 {
	c.Update()
	delta := c.elapsed - c.lastTick
	c.lastTick = c.elapsed
	return delta
}
