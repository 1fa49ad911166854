package services

import (
	"errors"
	"testing"
	"time"
)

func TestParseInterval(t *testing.T) {
	tests := []struct {
		expr    string
		want    time.Duration
		wantErr bool
	}{
		{"5m", 5 * time.Minute, false},
		{"2h", 2 * time.Hour, false},
		{"1d", 24 * time.Hour, false},
		{"90m", 90 * time.Minute, false},
		{"", 0, true},
		{"m5", 0, true},
		{"5s", 0, true},
		{"0m", 0, true},
		{"-1h", 0, true},
		{"1.5h", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseInterval(tt.expr)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseInterval(%q) expected error", tt.expr)
			} else if !errors.Is(err, ErrTriggerConfig) {
				t.Errorf("ParseInterval(%q) error = %v, want ErrTriggerConfig", tt.expr, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseInterval(%q): %v", tt.expr, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseInterval(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestScheduler_ArmInterval(t *testing.T) {
	s := NewScheduler(quietLogger())
	defer s.Stop()

	fired := make(chan struct{}, 16)
	s.ArmInterval("r1/t1", 10*time.Millisecond, func() { fired <- struct{}{} })
	if got := s.ArmedCount(); got != 1 {
		t.Fatalf("armed = %d, want 1", got)
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("interval timer never fired")
	}

	s.Disarm("r1/t1")
	if got := s.ArmedCount(); got != 0 {
		t.Fatalf("armed after disarm = %d, want 0", got)
	}
}

func TestScheduler_ArmIntervalReplaces(t *testing.T) {
	s := NewScheduler(quietLogger())
	defer s.Stop()

	s.ArmInterval("r1/t1", time.Hour, func() {})
	s.ArmInterval("r1/t1", time.Hour, func() {})
	if got := s.ArmedCount(); got != 1 {
		t.Fatalf("armed = %d, want 1 (same key replaces)", got)
	}
}

func TestScheduler_ArmCron(t *testing.T) {
	s := NewScheduler(quietLogger())
	defer s.Stop()

	if err := s.ArmCron("r1/t1", "0 9 * * 1", "America/New_York", func() {}); err != nil {
		t.Fatalf("arm cron: %v", err)
	}
	if got := s.ArmedCount(); got != 1 {
		t.Fatalf("armed = %d, want 1", got)
	}

	err := s.ArmCron("r1/t2", "not a cron line", "", func() {})
	if !errors.Is(err, ErrTriggerConfig) {
		t.Fatalf("bad expression err = %v, want ErrTriggerConfig", err)
	}
	if got := s.ArmedCount(); got != 1 {
		t.Fatalf("armed = %d, want 1 after failed arm", got)
	}
}

func TestScheduler_DisarmPrefix(t *testing.T) {
	s := NewScheduler(quietLogger())
	defer s.Stop()

	s.ArmInterval("r1/t1", time.Hour, func() {})
	if err := s.ArmCron("r1/t2", "* * * * *", "", func() {}); err != nil {
		t.Fatalf("arm cron: %v", err)
	}
	s.ArmInterval("r2/t1", time.Hour, func() {})

	s.DisarmPrefix("r1/")
	if got := s.ArmedCount(); got != 1 {
		t.Fatalf("armed = %d, want only r2 left", got)
	}
}
