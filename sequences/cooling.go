package sequences

import "math"

// CoolingSchedule gives the annealing temperature for each iteration.
type CoolingSchedule interface {
	NumIterations() int
	Temperature(iteration int) float64
}

type linearSchedule struct {
	initial float64
	n       int
}

// LinearSchedule cools from initial towards 0 in n equal steps.
func LinearSchedule(initial float64, n int) CoolingSchedule {
	return linearSchedule{initial: initial, n: n}
}

func (s linearSchedule) NumIterations() int { return s.n }

func (s linearSchedule) Temperature(i int) float64 {
	return s.initial - float64(i)*(s.initial/float64(s.n))
}

type exponentialSchedule struct {
	initial, rate float64
	n             int
}

// ExponentialSchedule multiplies the temperature by rate each iteration.
func ExponentialSchedule(initial, rate float64, n int) CoolingSchedule {
	return exponentialSchedule{initial: initial, rate: rate, n: n}
}

func (s exponentialSchedule) NumIterations() int { return s.n }

func (s exponentialSchedule) Temperature(i int) float64 {
	return s.initial * math.Pow(s.rate, float64(i))
}

type constantSchedule struct {
	temperature float64
	n           int
}

// ConstantSchedule keeps the same temperature for n iterations. A zero
// temperature turns annealing into iterated greedy updates.
func ConstantSchedule(temperature float64, n int) CoolingSchedule {
	return constantSchedule{temperature: temperature, n: n}
}

func (s constantSchedule) NumIterations() int      { return s.n }
func (s constantSchedule) Temperature(int) float64 { return s.temperature }
