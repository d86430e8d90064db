package validation

import (
	"strings"
	"testing"
)

func TestValidateSessionID(t *testing.T) {
	tests := []struct {
		name      string
		sessionID string
		wantErr   bool
	}{
		{"valid", "exam-room_1", false},
		{"uuid", "3f2b8c1e-7f0a-4c55-9a43-2d1e0b7c9f10", false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 101), true},
		{"spaces", "exam room", true},
		{"path traversal", "../etc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSessionID(tt.sessionID)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSessionID() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateAdaptationLevel(t *testing.T) {
	tests := []struct {
		level   string
		wantErr bool
	}{
		{"max", false},
		{"high", false},
		{"medium", false},
		{"low", false},
		{"audio-only", false},
		{"", true},
		{"ultra", true},
		{"LOW", true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			err := ValidateAdaptationLevel(tt.level)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAdaptationLevel(%q) error = %v, wantErr %v", tt.level, err, tt.wantErr)
			}
		})
	}
}

func TestValidateScenarioName(t *testing.T) {
	if err := ValidateScenarioName("degrading"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateScenarioName("  "); err == nil {
		t.Error("expected error for blank name")
	}
	if err := ValidateScenarioName(strings.Repeat("x", 65)); err == nil {
		t.Error("expected error for long name")
	}
}

func TestValidateStringLength(t *testing.T) {
	if err := ValidateStringLength("héllo", 1, 5, "field"); err != nil {
		t.Errorf("runes should be counted, got: %v", err)
	}
	if err := ValidateStringLength("", 1, 5, "field"); err == nil {
		t.Error("expected error for short string")
	}
}
