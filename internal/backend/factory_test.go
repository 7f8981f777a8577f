package backend

import (
	"context"
	"testing"

	"github.com/ramparte/deployotron/internal/shadow"
)

func TestConfigFromEnv(t *testing.T) {
	testCases := []struct {
		name     string
		env      map[string]string
		expected Config
	}{
		{
			name:     "absent env means real backends",
			env:      map[string]string{},
			expected: Config{ShadowMode: false, FailureRate: 0, SimulateDelays: true},
		},
		{
			name:     "shadow mode on",
			env:      map[string]string{EnvShadowMode: "1"},
			expected: Config{ShadowMode: true, FailureRate: 0, SimulateDelays: true},
		},
		{
			name:     "shadow mode true",
			env:      map[string]string{EnvShadowMode: "true"},
			expected: Config{ShadowMode: true, FailureRate: 0, SimulateDelays: true},
		},
		{
			name:     "failure rate parsed",
			env:      map[string]string{EnvShadowMode: "yes", EnvFailureRate: "0.25"},
			expected: Config{ShadowMode: true, FailureRate: 0.25, SimulateDelays: true},
		},
		{
			name:     "failure rate clamped high",
			env:      map[string]string{EnvShadowMode: "1", EnvFailureRate: "7.5"},
			expected: Config{ShadowMode: true, FailureRate: 1, SimulateDelays: true},
		},
		{
			name:     "failure rate clamped low",
			env:      map[string]string{EnvShadowMode: "1", EnvFailureRate: "-3"},
			expected: Config{ShadowMode: true, FailureRate: 0, SimulateDelays: true},
		},
		{
			name:     "garbage failure rate ignored",
			env:      map[string]string{EnvShadowMode: "1", EnvFailureRate: "lots"},
			expected: Config{ShadowMode: true, FailureRate: 0, SimulateDelays: true},
		},
		{
			name:     "delays off",
			env:      map[string]string{EnvShadowMode: "1", EnvDelays: "0"},
			expected: Config{ShadowMode: true, FailureRate: 0, SimulateDelays: false},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for _, key := range []string{EnvShadowMode, EnvFailureRate, EnvDelays} {
				t.Setenv(key, "")
				// t.Setenv registers cleanup; clear so absence is tested.
			}
			for key, value := range tc.env {
				t.Setenv(key, value)
			}

			if got := ConfigFromEnv(); got != tc.expected {
				t.Errorf("ConfigFromEnv() = %+v, expected %+v", got, tc.expected)
			}
		})
	}
}

func TestNewShadowBackendsShareState(t *testing.T) {
	state := shadow.NewState()
	cfg := Config{ShadowMode: true}

	repo, deploy, err := New(context.Background(), cfg, state, nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if repo == nil || deploy == nil {
		t.Fatal("expected both backends")
	}

	if _, err := deploy.EnsureRegistry(context.Background(), "widget"); err != nil {
		t.Fatalf("EnsureRegistry error: %v", err)
	}
	if state.RegistryCount() != 1 {
		t.Errorf("RegistryCount = %d, expected the shared ledger to record the call", state.RegistryCount())
	}
}

func TestNewShadowCreatesStateWhenNil(t *testing.T) {
	repo, deploy, err := New(context.Background(), Config{ShadowMode: true}, nil, nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if repo == nil || deploy == nil {
		t.Fatal("expected both backends")
	}
}
