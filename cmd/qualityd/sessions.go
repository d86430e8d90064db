package main

import (
	"context"
	"fmt"

	"telemed/internal/core/domain"
	"telemed/internal/core/ports"
	"telemed/internal/core/services"
	"telemed/internal/infrastructure/simulation"
	rtcstats "telemed/internal/infrastructure/webrtc"
	"telemed/pkg/config"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// engineConfig builds the adaptation settings from the quality section.
// Presets named in the file override the defaults tier by tier.
func engineConfig(cfg *config.Config) (services.EngineConfig, error) {
	presets := domain.DefaultQualityPresets()
	for name, p := range cfg.Quality.Presets {
		level, err := domain.ParseAdaptationLevel(name)
		if err != nil || !level.IsVideo() {
			return services.EngineConfig{}, fmt.Errorf("invalid preset %q", name)
		}
		presets[level] = domain.VideoConstraints{Width: p.Width, Height: p.Height, FrameRate: p.FrameRate}
	}
	if err := presets.Validate(); err != nil {
		return services.EngineConfig{}, err
	}

	return services.EngineConfig{
		CooldownPeriod:         cfg.Quality.CooldownPeriod,
		AudioFallbackThreshold: cfg.Quality.AudioFallbackThreshold,
		AudioFallbackEnabled:   cfg.Quality.AudioFallbackEnabled,
		Presets:                presets,
	}, nil
}

func loadScenarios(path string) ([]simulation.Scenario, error) {
	if path == "" {
		return nil, nil
	}
	return simulation.LoadScenarios(path)
}

// startSimulatedSessions registers and starts one monitor per configured
// simulated session. Adaptive sessions get the full pipeline, the rest are
// diagnostic only.
func startSimulatedSessions(
	ctx context.Context,
	cfg *config.Config,
	engine services.EngineConfig,
	registry *services.SessionRegistry,
	observers []ports.QualityObserver,
	logger *zap.SugaredLogger,
) error {
	loaded, err := loadScenarios(cfg.Simulation.ScenarioFile)
	if err != nil {
		return err
	}

	clk := clock.New()
	for _, s := range cfg.Simulation.Sessions {
		scenario, err := simulation.Resolve(s.Scenario, loaded)
		if err != nil {
			return fmt.Errorf("session %s: %w", s.ID, err)
		}
		id := domain.SessionID(s.ID)

		var monitor *services.QualityMonitor
		if s.Adaptive {
			p, err := simulation.NewPipeline(scenario, simulation.Options{
				SessionID:       id,
				Interval:        cfg.Quality.AdaptiveInterval,
				Engine:          engine,
				BandwidthFactor: cfg.Quality.BandwidthFactor,
				Clock:           clk,
				Logger:          logger,
				Observers:       observers,
			})
			if err != nil {
				return fmt.Errorf("session %s: %w", s.ID, err)
			}
			monitor = p.Monitor
		} else {
			source := simulation.NewSource(scenario, clk, nil)
			collector := rtcstats.NewStatsCollector(source, clk, cfg.Quality.DiagnosticInterval,
				logger.With("scenario", scenario.Name))
			monitor = services.NewDiagnosticMonitor(id, collector,
				services.NewQualityService(cfg.Quality.BandwidthFactor), logger, observers...)
		}

		if err := registry.Register(monitor); err != nil {
			return err
		}
		monitor.StartMonitoring(ctx)
	}
	return nil
}
