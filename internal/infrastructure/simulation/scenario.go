package simulation

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v2"
)

// Phase holds one stretch of constant network conditions.
type Phase struct {
	Duration     time.Duration `yaml:"duration"`
	RTTMs        float64       `yaml:"rtt_ms"`
	LossPct      float64       `yaml:"loss_pct"`
	JitterMs     float64       `yaml:"jitter_ms"`
	BandwidthBps float64       `yaml:"bandwidth_bps"`
	// Disconnected makes the source report a disconnected peer connection
	// for the length of the phase.
	Disconnected bool `yaml:"disconnected"`
}

// Scenario is a scripted sequence of network phases.
type Scenario struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Loop        bool    `yaml:"loop"`
	Phases      []Phase `yaml:"phases"`
}

func (s Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if len(s.Phases) == 0 {
		return fmt.Errorf("scenario %q has no phases", s.Name)
	}
	for i, p := range s.Phases {
		if p.Duration <= 0 {
			return fmt.Errorf("scenario %q phase %d: duration must be positive", s.Name, i)
		}
		if p.RTTMs < 0 || p.JitterMs < 0 || p.BandwidthBps < 0 {
			return fmt.Errorf("scenario %q phase %d: values must not be negative", s.Name, i)
		}
		if p.LossPct < 0 || p.LossPct > 100 {
			return fmt.Errorf("scenario %q phase %d: loss_pct must be within [0,100]", s.Name, i)
		}
	}
	return nil
}

// Duration is the length of one pass through all phases.
func (s Scenario) Duration() time.Duration {
	var total time.Duration
	for _, p := range s.Phases {
		total += p.Duration
	}
	return total
}

// PhaseAt returns the phase active after elapsed. Past the end a looping
// scenario wraps around and a finite one holds its last phase.
func (s Scenario) PhaseAt(elapsed time.Duration) Phase {
	if len(s.Phases) == 0 {
		return Phase{}
	}
	total := s.Duration()
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= total {
		if !s.Loop || total <= 0 {
			return s.Phases[len(s.Phases)-1]
		}
		elapsed %= total
	}
	for _, p := range s.Phases {
		if elapsed < p.Duration {
			return p
		}
		elapsed -= p.Duration
	}
	return s.Phases[len(s.Phases)-1]
}

var builtins = map[string]Scenario{
	"stable": {
		Name:        "stable",
		Description: "clean broadband link",
		Phases: []Phase{
			{Duration: time.Minute, RTTMs: 35, LossPct: 0, JitterMs: 3, BandwidthBps: 5_000_000},
		},
	},
	"degrading": {
		Name:        "degrading",
		Description: "link that worsens step by step and then recovers",
		Phases: []Phase{
			{Duration: 15 * time.Second, RTTMs: 40, LossPct: 0, JitterMs: 4, BandwidthBps: 5_000_000},
			{Duration: 15 * time.Second, RTTMs: 180, LossPct: 1, JitterMs: 15, BandwidthBps: 2_500_000},
			{Duration: 15 * time.Second, RTTMs: 280, LossPct: 3, JitterMs: 30, BandwidthBps: 800_000},
			{Duration: 15 * time.Second, RTTMs: 450, LossPct: 12, JitterMs: 70, BandwidthBps: 150_000},
			{Duration: 30 * time.Second, RTTMs: 40, LossPct: 0, JitterMs: 4, BandwidthBps: 5_000_000},
		},
	},
	"congested": {
		Name:        "congested",
		Description: "bandwidth-starved link with moderate latency",
		Phases: []Phase{
			{Duration: time.Minute, RTTMs: 120, LossPct: 0.8, JitterMs: 25, BandwidthBps: 600_000},
		},
	},
	"flapping": {
		Name:        "flapping",
		Description: "link alternating between good and poor, with short outages",
		Loop:        true,
		Phases: []Phase{
			{Duration: 8 * time.Second, RTTMs: 40, JitterMs: 5, BandwidthBps: 4_000_000},
			{Duration: 6 * time.Second, RTTMs: 320, LossPct: 4, JitterMs: 45, BandwidthBps: 400_000},
			{Duration: 2 * time.Second, Disconnected: true},
		},
	},
}

// Builtin returns a copy of a built-in scenario.
func Builtin(name string) (Scenario, error) {
	s, ok := builtins[name]
	if !ok {
		return Scenario{}, fmt.Errorf("unknown scenario %q", name)
	}
	s.Phases = append([]Phase(nil), s.Phases...)
	return s, nil
}

// BuiltinNames lists the built-in scenarios in name order.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type scenarioFile struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// ParseScenarios decodes a YAML document with a top-level scenarios list.
func ParseScenarios(data []byte) ([]Scenario, error) {
	var file scenarioFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse scenarios: %w", err)
	}
	for _, s := range file.Scenarios {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	return file.Scenarios, nil
}

// LoadScenarios reads scenarios from a YAML file.
func LoadScenarios(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenarios(data)
}

// Resolve finds a scenario by name, first in the loaded list and then among
// the built-ins.
func Resolve(name string, loaded []Scenario) (Scenario, error) {
	for _, s := range loaded {
		if s.Name == name {
			return s, nil
		}
	}
	return Builtin(name)
}
