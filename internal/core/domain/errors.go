package domain

import "errors"

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionExists        = errors.New("session already registered")
	ErrReportNotFound       = errors.New("quality report not found")
	ErrUnknownLevel         = errors.New("unknown adaptation level")
	ErrAdaptationInProgress = errors.New("adaptation already in progress")
	ErrApplyFailed          = errors.New("constraint change was not applied")
	ErrAdaptationDisabled   = errors.New("adaptation is not enabled for this session")
	ErrMonitorStopped       = errors.New("monitor stopped")
)
