package types_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/prodline/prodline/pkg/types"
)

func TestOrder_String(t *testing.T) {
	o := types.Order{ID: 7, Priority: 2}
	if got := o.String(); got != "order 7 (priority 2)" {
		t.Errorf("unexpected string: %s", got)
	}
}

func TestEvent_HasOrder(t *testing.T) {
	tests := []struct {
		eventType types.EventType
		want      bool
	}{
		{types.EventOrderSubmitted, true},
		{types.EventOrderDequeued, true},
		{types.EventOrderProcessed, true},
		{types.EventOrderRequeued, true},
		{types.EventOrderAbandoned, true},
		{types.EventMachineDown, false},
		{types.EventLineStarted, false},
		{types.EventWorkerStopped, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			e := types.Event{Type: tt.eventType}
			if e.HasOrder() != tt.want {
				t.Errorf("HasOrder() = %v, want %v", e.HasOrder(), tt.want)
			}
		})
	}
}

func TestLineConfig_Durations(t *testing.T) {
	cfg := &types.LineConfig{ProcessingTime: 250, RunFor: 5000}

	if cfg.ProcessingDuration() != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %s", cfg.ProcessingDuration())
	}
	if cfg.RunDuration() != 5*time.Second {
		t.Errorf("expected 5s, got %s", cfg.RunDuration())
	}
}

func TestLineConfig_NotificationsEnabled(t *testing.T) {
	enabled := true
	disabled := false

	tests := []struct {
		name string
		cfg  types.LineConfig
		want bool
	}{
		{"no section", types.LineConfig{}, false},
		{"nil flag", types.LineConfig{Notifications: &types.NotificationConfig{}}, false},
		{"disabled", types.LineConfig{Notifications: &types.NotificationConfig{Enabled: &disabled}}, false},
		{"enabled", types.LineConfig{Notifications: &types.NotificationConfig{Enabled: &enabled}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.NotificationsEnabled(); got != tt.want {
				t.Errorf("NotificationsEnabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLineConfig_JSONFieldNames(t *testing.T) {
	data := `{
		"version": "1.0",
		"machines": 4,
		"processingTime": 1000,
		"brokenMachines": [2],
		"orders": [{"id": 1, "priority": 2}],
		"faults": [{"machine": 2, "at": 2000, "action": "break"}]
	}`

	var cfg types.LineConfig
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if cfg.Machines != 4 || cfg.ProcessingTime != 1000 {
		t.Errorf("unexpected machines/processingTime: %d/%d", cfg.Machines, cfg.ProcessingTime)
	}
	if len(cfg.Orders) != 1 || cfg.Orders[0] != (types.Order{ID: 1, Priority: 2}) {
		t.Errorf("unexpected orders: %v", cfg.Orders)
	}
	if len(cfg.Faults) != 1 || cfg.Faults[0].Action != types.FaultActionBreak {
		t.Errorf("unexpected faults: %v", cfg.Faults)
	}
}
