package playback

import (
	"fmt"
	"math"
	"sync"
)

// Narration speed presets, cycled in order.
var (
	SpeedSteps   = []float64{0.75, 1.0, 1.25, 1.5, 1.75, 2.0}
	DefaultSpeed = 1.0
)

// SpeedController steps through the narration speed presets.
type SpeedController struct {
	mu           sync.RWMutex
	steps        []float64
	currentIndex int
}

// NewSpeedController creates a speed controller positioned on the preset
// nearest to initial.
func NewSpeedController(initial float64) *SpeedController {
	sc := &SpeedController{steps: SpeedSteps}
	sc.currentIndex = nearestStep(sc.steps, initial)
	return sc
}

// Speed returns the current multiplier.
func (sc *SpeedController) Speed() float64 {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.steps[sc.currentIndex]
}

// Cycle advances to the next preset, wrapping from the fastest back to
// the slowest, and returns the new multiplier.
func (sc *SpeedController) Cycle() float64 {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.currentIndex = (sc.currentIndex + 1) % len(sc.steps)
	return sc.steps[sc.currentIndex]
}

// Label returns the compact display form, e.g. "1.25x".
func (sc *SpeedController) Label() string {
	return SpeedLabel(sc.Speed())
}

// Reset returns to the default speed.
func (sc *SpeedController) Reset() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.currentIndex = nearestStep(sc.steps, DefaultSpeed)
}

// IsValidSpeed checks if a speed value is one of the presets.
func IsValidSpeed(speed float64) bool {
	for _, s := range SpeedSteps {
		if math.Abs(s-speed) < 0.001 {
			return true
		}
	}
	return false
}

// SpeedLabel formats a multiplier for display.
func SpeedLabel(speed float64) string {
	return fmt.Sprintf("%gx", speed)
}

// PiperLengthScale converts a multiplier to piper's --length_scale, which
// is inverse to speed.
func PiperLengthScale(speed float64) float64 {
	if speed <= 0 {
		return 1.0
	}
	return 1.0 / speed
}

func nearestStep(steps []float64, speed float64) int {
	nearest := 0
	minDiff := math.MaxFloat64
	for i, s := range steps {
		if diff := math.Abs(s - speed); diff < minDiff {
			minDiff = diff
			nearest = i
		}
	}
	return nearest
}
