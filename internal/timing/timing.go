package timing

import (
	"fmt"
	"io"
	"time"
)

// Phase names used across the benchmark.
const (
	PhaseEnvironment = "Initializing the environment"
	PhaseLoad        = "Loading the model"
	PhaseImageLoad   = "Loading the image"
	PhaseExecution   = "Running the inference"
	PhaseExtraction  = "Extracting the result"
)

// Lap is the duration of one phase.
type Lap struct {
	Phase string
	Took  time.Duration
}

// Laps is an ordered timing record.
type Laps []Lap

// Get returns the duration recorded for phase.
func (l Laps) Get(phase string) (time.Duration, bool) {
	for _, lap := range l {
		if lap.Phase == phase {
			return lap.Took, true
		}
	}
	return 0, false
}

// Total returns the sum of all laps.
func (l Laps) Total() time.Duration {
	var total time.Duration
	for _, lap := range l {
		total += lap.Took
	}
	return total
}

// Print writes one "<phase> took <duration>" line per lap.
func (l Laps) Print(w io.Writer, prefix string) {
	for _, lap := range l {
		fmt.Fprintf(w, "%s%s took %v\n", prefix, lap.Phase, lap.Took)
	}
}

// Stopwatch records phase durations by subtracting the cumulative elapsed time
// at each phase boundary.
type Stopwatch struct {
	start  time.Time
	marked time.Duration
	laps   Laps
	now    func() time.Time
}

// Start returns a running stopwatch.
func Start() *Stopwatch {
	return startWith(time.Now)
}

func startWith(now func() time.Time) *Stopwatch {
	return &Stopwatch{start: now(), now: now}
}

// Lap closes the current phase and returns its duration.
func (s *Stopwatch) Lap(phase string) time.Duration {
	elapsed := s.now().Sub(s.start)
	took := elapsed - s.marked
	s.marked = elapsed
	s.laps = append(s.laps, Lap{Phase: phase, Took: took})
	return took
}

// Elapsed returns the time since Start.
func (s *Stopwatch) Elapsed() time.Duration {
	return s.now().Sub(s.start)
}

// Laps returns the phases recorded so far.
func (s *Stopwatch) Laps() Laps {
	out := make(Laps, len(s.laps))
	copy(out, s.laps)
	return out
}
