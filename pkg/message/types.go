package message

import (
	"fmt"
	"strings"
)

const (
	// DataReadyQueue is the destination the reduction worker consumes from.
	DataReadyQueue = "/queue/DataReady"

	// DataReadyPriority is the priority of manually submitted runs.
	DataReadyPriority = 1

	// FacilityISIS is the only facility served by this pipeline.
	FacilityISIS = "ISIS"

	// StartedByAutoreduction marks a run submitted by tooling rather than a user.
	StartedByAutoreduction = -1
)

// Message is a request to reduce one or more runs of an instrument.
// RBNumbers, Locations and RunNumbers are parallel slices with one element per run.
type Message struct {
	RBNumbers          []string
	Instrument         string
	Locations          []string
	RunNumbers         []int
	RunTitle           string
	Facility           string
	StartedBy          int
	ReductionArguments map[string]any
	Description        string
}

// Validate checks that the message is complete enough for the worker to act on.
func (m *Message) Validate() error {
	if strings.TrimSpace(m.Instrument) == "" {
		return fmt.Errorf("instrument is required")
	}
	if m.Facility == "" {
		return fmt.Errorf("facility is required")
	}

	if len(m.RunNumbers) == 0 {
		return fmt.Errorf("at least one run number is required")
	}
	if len(m.Locations) != len(m.RunNumbers) {
		return fmt.Errorf("got %d data locations for %d runs", len(m.Locations), len(m.RunNumbers))
	}
	if len(m.RBNumbers) != len(m.RunNumbers) {
		return fmt.Errorf("got %d RB numbers for %d runs", len(m.RBNumbers), len(m.RunNumbers))
	}

	for i, run := range m.RunNumbers {
		if run <= 0 {
			return fmt.Errorf("run number must be positive, got %d", run)
		}
		if strings.TrimSpace(m.Locations[i]) == "" {
			return fmt.Errorf("run %d: data location is required", run)
		}
		if strings.TrimSpace(m.RBNumbers[i]) == "" {
			return fmt.Errorf("run %d: RB number is required", run)
		}
	}

	return nil
}

// IsBatch reports whether the message reduces several runs together.
func (m *Message) IsBatch() bool {
	return len(m.RunNumbers) > 1
}
