package virtual

import (
	"testing"
	"time"
)

// =============================================================================
// Construction Tests
// =============================================================================

func TestNewProfileSortsBreakpoints(t *testing.T) {
	prof, err := NewProfile([]ProfilePoint{
		{At: 60 * time.Second, Setpoint: 100},
		{At: 30 * time.Second, Setpoint: 50},
		{At: 0, Setpoint: 0},
	})
	if err != nil {
		t.Fatalf("NewProfile() error = %v", err)
	}

	if sp := prof.Setpoint(30 * time.Second); !closeTo(sp, 50) {
		t.Errorf("Setpoint(30s) = %v, want 50", sp)
	}
	if sp := prof.Setpoint(45 * time.Second); !closeTo(sp, 75) {
		t.Errorf("Setpoint(45s) = %v, want 75", sp)
	}
}

func TestNewProfileImplicitOrigin(t *testing.T) {
	prof, err := NewProfile([]ProfilePoint{
		{At: 10 * time.Second, Setpoint: 100},
	})
	if err != nil {
		t.Fatalf("NewProfile() error = %v", err)
	}

	if sp := prof.Setpoint(0); sp != 0 {
		t.Errorf("Setpoint(0) = %v, want implicit origin 0", sp)
	}
	if sp := prof.Setpoint(5 * time.Second); !closeTo(sp, 50) {
		t.Errorf("Setpoint(5s) = %v, want 50", sp)
	}
}

func TestNewProfileRejectsBadInput(t *testing.T) {
	if _, err := NewProfile(nil); err == nil {
		t.Error("NewProfile(nil) error = nil, want error")
	}
	if _, err := NewProfile([]ProfilePoint{{At: -time.Second, Setpoint: 5}}); err == nil {
		t.Error("NewProfile() with negative time error = nil, want error")
	}
}

// =============================================================================
// Evaluation Tests
// =============================================================================

func TestProfileSetpoint(t *testing.T) {
	prof, err := NewProfile([]ProfilePoint{
		{At: 0, Setpoint: 0},
		{At: 10 * time.Second, Setpoint: 100},
		{At: 20 * time.Second, Setpoint: 100},
		{At: 30 * time.Second, Setpoint: 0},
	})
	if err != nil {
		t.Fatalf("NewProfile() error = %v", err)
	}

	tests := []struct {
		name    string
		elapsed time.Duration
		want    float64
	}{
		{"origin", 0, 0},
		{"mid ramp", 5 * time.Second, 50},
		{"first plateau point", 10 * time.Second, 100},
		{"on plateau", 15 * time.Second, 100},
		{"mid descent", 25 * time.Second, 50},
		{"final point", 30 * time.Second, 0},
		{"held past end", 2 * time.Minute, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if sp := prof.Setpoint(tt.elapsed); !closeTo(sp, tt.want) {
				t.Errorf("Setpoint(%v) = %v, want %v", tt.elapsed, sp, tt.want)
			}
		})
	}

	if d := prof.Duration(); d != 30*time.Second {
		t.Errorf("Duration() = %v, want 30s", d)
	}
}

// =============================================================================
// Wire Form Tests
// =============================================================================

func TestParseProfile(t *testing.T) {
	prof, err := ParseProfile("5:50;10:100")
	if err != nil {
		t.Fatalf("ParseProfile() error = %v", err)
	}

	if d := prof.Duration(); d != 10*time.Second {
		t.Errorf("Duration() = %v, want 10s", d)
	}
	if sp := prof.Setpoint(5 * time.Second); !closeTo(sp, 50) {
		t.Errorf("Setpoint(5s) = %v, want 50", sp)
	}
	if sp := prof.Setpoint(7500 * time.Millisecond); !closeTo(sp, 75) {
		t.Errorf("Setpoint(7.5s) = %v, want 75", sp)
	}
}

func TestParseProfileErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"no colon", "5"},
		{"bad time", "x:1"},
		{"bad setpoint", "1:y"},
		{"empty", ""},
		{"negative time", "-1:5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseProfile(tt.in); err == nil {
				t.Errorf("ParseProfile(%q) error = nil, want error", tt.in)
			}
		})
	}
}
