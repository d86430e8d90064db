package simulation

import (
	"context"
	"fmt"
	"time"

	"telemed/internal/core/domain"
	"telemed/internal/core/ports"
	"telemed/internal/core/services"
	rtcstats "telemed/internal/infrastructure/webrtc"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Options configures a simulated session.
type Options struct {
	SessionID       domain.SessionID
	Interval        time.Duration
	Engine          services.EngineConfig
	BandwidthFactor float64
	Clock           clock.Clock
	Logger          *zap.SugaredLogger
	Observers       []ports.QualityObserver
}

// Pipeline is a full monitor wired to a scripted source.
type Pipeline struct {
	Source    *Source
	Applier   *Applier
	Collector *rtcstats.StatsCollector
	Engine    *services.AdaptiveBitrateService
	Monitor   *services.QualityMonitor
}

// NewPipeline wires source, collector, scorer, engine and monitor for one
// scenario. Nothing polls until the monitor is started.
func NewPipeline(scenario Scenario, opts Options) (*Pipeline, error) {
	if err := scenario.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Interval <= 0 {
		opts.Interval = rtcstats.DefaultAdaptiveInterval
	}
	if opts.BandwidthFactor <= 0 {
		opts.BandwidthFactor = services.DefaultBandwidthFactor
	}
	if opts.Engine.Presets == nil {
		opts.Engine.Presets = domain.DefaultQualityPresets()
	}
	if opts.SessionID == "" {
		opts.SessionID = domain.SessionID("sim-" + scenario.Name)
	}

	logger := opts.Logger.With("scenario", scenario.Name)
	applier := NewApplier(opts.Engine.Presets[domain.LevelMax])
	source := NewSource(scenario, opts.Clock, applier)
	collector := rtcstats.NewStatsCollector(source, opts.Clock, opts.Interval, logger)

	engine, err := services.NewAdaptiveBitrateService(opts.SessionID, opts.Engine, applier, opts.Clock, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create adaptation engine: %w", err)
	}
	monitor := services.NewQualityMonitor(opts.SessionID, collector, services.NewQualityService(opts.BandwidthFactor),
		engine, logger, opts.Observers...)

	return &Pipeline{
		Source:    source,
		Applier:   applier,
		Collector: collector,
		Engine:    engine,
		Monitor:   monitor,
	}, nil
}

// Step is one poll of a simulation run.
type Step struct {
	Elapsed    time.Duration            `json:"elapsed"`
	Phase      Phase                    `json:"phase"`
	Connected  bool                     `json:"connected"`
	Assessment domain.QualityAssessment `json:"assessment"`
	Level      domain.AdaptationLevel   `json:"level"`
	Adapted    bool                     `json:"adapted"`
}

// Result summarizes a simulation run.
type Result struct {
	Scenario string                   `json:"scenario"`
	Steps    []Step                   `json:"steps"`
	History  []domain.AdaptationEntry `json:"history"`
	Final    domain.AdaptationState   `json:"final"`
	Changes  int                      `json:"changes"`
}

// Run plays a scenario on a mock clock, polling once per interval, and
// returns every step. A zero duration plays the scenario once.
func Run(ctx context.Context, scenario Scenario, opts Options, duration time.Duration) (*Result, error) {
	clk := clock.NewMock()
	opts.Clock = clk

	p, err := NewPipeline(scenario, opts)
	if err != nil {
		return nil, err
	}
	if duration <= 0 {
		duration = scenario.Duration()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = rtcstats.DefaultAdaptiveInterval
	}

	result := &Result{Scenario: scenario.Name}
	for elapsed := interval; elapsed <= duration; elapsed += interval {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		clk.Add(interval)

		step := Step{
			Elapsed: elapsed,
			Phase:   p.Source.Phase(),
		}
		snapshot, ok := p.Collector.Collect(ctx)
		step.Connected = ok
		if ok {
			before := p.Applier.Changes()
			p.Monitor.Process(ctx, snapshot)
			step.Adapted = p.Applier.Changes() != before
			step.Assessment, _ = p.Monitor.Quality()
		}
		step.Level = p.Engine.Level()
		result.Steps = append(result.Steps, step)
	}

	result.History = p.Engine.History()
	result.Final = p.Engine.State()
	result.Changes = p.Applier.Changes()
	return result, nil
}
