package playback

func onLoop[T any](l *Loop, fn func() T) T {
	ch := make(chan T, 1)
	l.Post(func() { ch <- fn() })
	return <-ch
}

// Ticking reports whether the position ticker is running.
func (c *Coordinator) Ticking() bool {
	return onLoop(c.loop, func() bool { return c.stopTick != nil })
}

// Refs returns the outstanding Acquire count.
func (c *Coordinator) Refs() int {
	return onLoop(c.loop, func() int { return c.refs })
}
