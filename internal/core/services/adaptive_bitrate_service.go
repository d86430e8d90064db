package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"telemed/internal/core/domain"
	"telemed/internal/core/ports"
	"telemed/pkg/tracing"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

const maxAdaptationHistory = 10

// EngineConfig tunes the adaptation state machine.
type EngineConfig struct {
	CooldownPeriod         time.Duration
	AudioFallbackThreshold int
	AudioFallbackEnabled   bool
	Presets                domain.QualityPresets
}

// DefaultEngineConfig returns a 10s cooldown, audio fallback below 25 and the
// default presets.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		CooldownPeriod:         10 * time.Second,
		AudioFallbackThreshold: 25,
		AudioFallbackEnabled:   true,
		Presets:                domain.DefaultQualityPresets(),
	}
}

// ApplierFuncs adapts plain functions to ports.ConstraintApplier. A nil
// function is treated as an immediate success.
type ApplierFuncs struct {
	Constraints func(ctx context.Context, constraints domain.VideoConstraints) error
	AudioOnly   func(ctx context.Context, enable bool) error
}

func (f ApplierFuncs) ApplyConstraints(ctx context.Context, constraints domain.VideoConstraints) error {
	if f.Constraints == nil {
		return nil
	}
	return f.Constraints(ctx, constraints)
}

func (f ApplierFuncs) SetAudioOnly(ctx context.Context, enable bool) error {
	if f.AudioOnly == nil {
		return nil
	}
	return f.AudioOnly(ctx, enable)
}

// AdaptiveBitrateService decides the video constraint tier for one session
// and drives the injected applier, with a cooldown between automatic changes
// and at most one change in flight.
type AdaptiveBitrateService struct {
	sessionID domain.SessionID
	cfg       EngineConfig
	applier   ports.ConstraintApplier
	clock     clock.Clock
	logger    *zap.SugaredLogger

	mu             sync.Mutex
	level          domain.AdaptationLevel
	constraints    *domain.VideoConstraints
	adapting       bool
	lastAdaptation *time.Time
	reason         string
	lastScore      int
	history        []domain.AdaptationEntry
	onAdapted      func(domain.AdaptationEntry, domain.AdaptationState)
}

// NewAdaptiveBitrateService creates an engine starting at the max tier.
func NewAdaptiveBitrateService(
	sessionID domain.SessionID,
	cfg EngineConfig,
	applier ports.ConstraintApplier,
	clk clock.Clock,
	logger *zap.SugaredLogger,
) (*AdaptiveBitrateService, error) {
	if applier == nil {
		return nil, fmt.Errorf("constraint applier is required")
	}
	if cfg.Presets == nil {
		cfg.Presets = domain.DefaultQualityPresets()
	}
	if err := cfg.Presets.Validate(); err != nil {
		return nil, fmt.Errorf("invalid quality presets: %w", err)
	}
	if cfg.CooldownPeriod < 0 {
		return nil, fmt.Errorf("cooldown period must not be negative")
	}
	if clk == nil {
		clk = clock.New()
	}

	initial := cfg.Presets[domain.LevelMax]
	return &AdaptiveBitrateService{
		sessionID:   sessionID,
		cfg:         cfg,
		applier:     applier,
		clock:       clk,
		logger:      logger,
		level:       domain.LevelMax,
		constraints: &initial,
		history:     make([]domain.AdaptationEntry, 0, maxAdaptationHistory),
	}, nil
}

// OnAdapted registers a hook called after every applied change, outside the
// engine lock.
func (a *AdaptiveBitrateService) OnAdapted(fn func(domain.AdaptationEntry, domain.AdaptationState)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onAdapted = fn
}

// TargetLevel computes the tier an assessment calls for. The RTT and loss
// override never lifts a session out of audio-only.
func (a *AdaptiveBitrateService) TargetLevel(assessment domain.QualityAssessment) domain.AdaptationLevel {
	score := assessment.Score
	loss := assessment.PacketLoss
	rtt := assessment.RTT

	var target domain.AdaptationLevel
	switch {
	case a.cfg.AudioFallbackEnabled && score < a.cfg.AudioFallbackThreshold:
		return domain.LevelAudioOnly
	case score >= 85 && loss < 0.5 && rtt < 100:
		target = domain.LevelMax
	case score >= 70 && loss < 2 && rtt < 200:
		target = domain.LevelHigh
	case score >= 50 && loss < 5:
		target = domain.LevelMedium
	case score >= 30:
		target = domain.LevelLow
	case a.cfg.AudioFallbackEnabled:
		return domain.LevelAudioOnly
	default:
		target = domain.LevelLow
	}

	if rtt > 300 || loss > 8 {
		target = domain.LevelLow
	}
	return target
}

// Consider evaluates an assessment and adapts when the target tier differs
// from the current one, nothing is in flight and the cooldown has elapsed.
// It reports whether a change was applied.
func (a *AdaptiveBitrateService) Consider(ctx context.Context, assessment domain.QualityAssessment) bool {
	target := a.TargetLevel(assessment)

	a.mu.Lock()
	a.lastScore = assessment.Score
	if target == a.level || a.adapting {
		a.mu.Unlock()
		return false
	}
	if a.lastAdaptation != nil && a.clock.Since(*a.lastAdaptation) < a.cfg.CooldownPeriod {
		a.mu.Unlock()
		a.logger.Debugw("adaptation suppressed by cooldown",
			"session_id", a.sessionID,
			"current", a.level,
			"target", target,
			"score", assessment.Score,
		)
		return false
	}
	from := a.level
	a.adapting = true
	a.mu.Unlock()

	reason := fmt.Sprintf("quality %s (score %d, rtt %.0fms, loss %.1f%%)",
		assessment.Level, assessment.Score, assessment.RTT, assessment.PacketLoss)

	if err := a.transition(ctx, from, target, reason, assessment.Score); err != nil {
		return false
	}
	return true
}

// ForceLevel switches to the given tier immediately, bypassing cooldown and
// score gating. It still fails with domain.ErrAdaptationInProgress while
// another change is in flight.
func (a *AdaptiveBitrateService) ForceLevel(ctx context.Context, level domain.AdaptationLevel) error {
	if _, err := domain.ParseAdaptationLevel(string(level)); err != nil {
		return err
	}

	a.mu.Lock()
	if a.adapting {
		a.mu.Unlock()
		return domain.ErrAdaptationInProgress
	}
	if level == a.level {
		a.mu.Unlock()
		return nil
	}
	from := a.level
	score := a.lastScore
	a.adapting = true
	a.mu.Unlock()

	return a.transition(ctx, from, level, "manual override", score)
}

// ResetToMax forces the max tier.
func (a *AdaptiveBitrateService) ResetToMax(ctx context.Context) error {
	return a.ForceLevel(ctx, domain.LevelMax)
}

// transition runs the applier outside the lock. The caller must have set
// the in-flight flag.
func (a *AdaptiveBitrateService) transition(ctx context.Context, from, to domain.AdaptationLevel, reason string, score int) error {
	ctx, span := tracing.TraceAdaptation(ctx, string(a.sessionID), string(from), string(to))
	defer span.End()
	tracing.AddSpanAttributes(ctx, tracing.ScoreKey.Int(score))

	var constraints *domain.VideoConstraints
	err := a.apply(ctx, from, to)
	if err == nil && to.IsVideo() {
		preset := a.cfg.Presets[to]
		constraints = &preset
	}

	a.mu.Lock()
	a.adapting = false

	if err != nil {
		a.mu.Unlock()
		tracing.RecordError(ctx, err)
		a.logger.Warnw("failed to apply adaptation",
			"session_id", a.sessionID,
			"from", from,
			"to", to,
			"score", score,
			"error", err,
		)
		return fmt.Errorf("%w: %s -> %s: %v", domain.ErrApplyFailed, from, to, err)
	}

	now := a.clock.Now()
	entry := domain.AdaptationEntry{
		Timestamp: now,
		From:      from,
		To:        to,
		Reason:    reason,
		Score:     score,
	}
	a.level = to
	a.constraints = constraints
	a.lastAdaptation = &now
	a.reason = reason
	a.history = append(a.history, entry)
	if len(a.history) > maxAdaptationHistory {
		a.history = append(a.history[:0:0], a.history[len(a.history)-maxAdaptationHistory:]...)
	}
	state := a.stateLocked()
	hook := a.onAdapted
	a.mu.Unlock()

	a.logger.Infow("quality adapted",
		"session_id", a.sessionID,
		"from", from,
		"to", to,
		"score", score,
		"reason", reason,
	)
	if hook != nil {
		hook(entry, state)
	}
	return nil
}

func (a *AdaptiveBitrateService) apply(ctx context.Context, from, to domain.AdaptationLevel) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("applier panicked: %v", r)
		}
	}()

	if to == domain.LevelAudioOnly {
		return a.applier.SetAudioOnly(ctx, true)
	}

	if from == domain.LevelAudioOnly {
		if err := a.applier.SetAudioOnly(ctx, false); err != nil {
			return fmt.Errorf("leave audio-only: %w", err)
		}
	}

	if err := a.applier.ApplyConstraints(ctx, a.cfg.Presets[to]); err != nil {
		if from == domain.LevelAudioOnly {
			// State stays audio-only, so put the media back there too.
			if restoreErr := a.applier.SetAudioOnly(ctx, true); restoreErr != nil {
				a.logger.Warnw("failed to restore audio-only mode",
					"session_id", a.sessionID,
					"error", restoreErr,
				)
			}
		}
		return err
	}
	return nil
}

// Level returns the current tier.
func (a *AdaptiveBitrateService) Level() domain.AdaptationLevel {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.level
}

// State returns a copy of the engine state.
func (a *AdaptiveBitrateService) State() domain.AdaptationState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stateLocked()
}

func (a *AdaptiveBitrateService) stateLocked() domain.AdaptationState {
	state := domain.AdaptationState{
		Level:       a.level,
		IsAdapting:  a.adapting,
		Reason:      a.reason,
		IsAudioOnly: a.level == domain.LevelAudioOnly,
		History:     a.copyHistory(),
	}
	if a.constraints != nil {
		c := *a.constraints
		state.CurrentConstraints = &c
	}
	if a.lastAdaptation != nil {
		t := *a.lastAdaptation
		state.LastAdaptationAt = &t
	}
	return state
}

// History returns the most recent adaptations, oldest first.
func (a *AdaptiveBitrateService) History() []domain.AdaptationEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.copyHistory()
}

func (a *AdaptiveBitrateService) copyHistory() []domain.AdaptationEntry {
	out := make([]domain.AdaptationEntry, len(a.history))
	copy(out, a.history)
	return out
}
