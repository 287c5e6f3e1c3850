package main

import (
	"testing"

	"github.com/p-n-ai/pai-sched/internal/fsrs"
	"github.com/p-n-ai/pai-sched/internal/platform/config"
)

func TestLoadWeights_Default(t *testing.T) {
	cfg := &config.Config{}

	got, err := loadWeights(cfg)
	if err != nil {
		t.Fatalf("loadWeights() error = %v", err)
	}
	if got != fsrs.DefaultWeights() {
		t.Errorf("loadWeights() = %+v, want defaults", got)
	}
}

func TestLoadWeights_Override(t *testing.T) {
	cfg := &config.Config{}
	cfg.Scheduler.Weights = "0.4,0.6,2.4,5.8,4.93,0.94,0.86,0.01,1.49,0.14,0.94,2.18,0.05,0.34,1.26,0.29,2.61"

	got, err := loadWeights(cfg)
	if err != nil {
		t.Fatalf("loadWeights() error = %v", err)
	}
	if got != fsrs.DefaultWeights() {
		t.Errorf("loadWeights() = %+v, want the default vector round-tripped", got)
	}
}

func TestLoadWeights_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		weights string
	}{
		{"wrong count", "0.4,0.6,2.4"},
		{"not a number", "a,b,c"},
		{"out of bounds", "0.4,0.6,2.4,5.8,4.93,0.94,0.86,9.99,1.49,0.14,0.94,2.18,0.05,0.34,1.26,0.29,2.61"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Scheduler.Weights = tt.weights
			if _, err := loadWeights(cfg); err == nil {
				t.Error("loadWeights() should return error")
			}
		})
	}
}
