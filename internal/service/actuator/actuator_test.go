package actuator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"ignitiongate/internal/logger"
	"ignitiongate/internal/model"
)

type published struct {
	topic   string
	payload []byte
}

func decision(allowed bool, outcome model.Outcome) model.ControlDecision {
	return model.ControlDecision{
		IgnitionAllowed: allowed,
		Outcome:         outcome,
		Confidence:      0.85,
		Timestamp:       time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestMQTTActuator_PublishesTransitionsOnly(t *testing.T) {
	var sent []published
	a := newMQTTActuator("vehicle/ignition", func(topic string, payload []byte) error {
		sent = append(sent, published{topic, payload})
		return nil
	}, logger.Discard())

	ctx := context.Background()
	steps := []model.ControlDecision{
		decision(false, model.OutcomeBlockedNoDetection),
		decision(false, model.OutcomeBlockedLowConfidence),
		decision(true, model.OutcomeAllowed),
		decision(true, model.OutcomeAllowedOverride),
		decision(false, model.OutcomeBlockedNoDetection),
	}
	for _, d := range steps {
		if err := a.Apply(ctx, d); err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
	}

	if len(sent) != 3 {
		t.Fatalf("Expected 3 publishes, got %d", len(sent))
	}
	wantStates := []string{"OFF", "ON", "OFF"}
	for i, p := range sent {
		if p.topic != "vehicle/ignition" {
			t.Errorf("publish %d went to %q", i, p.topic)
		}
		var msg IgnitionMessage
		if err := json.Unmarshal(p.payload, &msg); err != nil {
			t.Fatalf("Invalid payload %q: %v", p.payload, err)
		}
		if msg.Ignition != wantStates[i] {
			t.Errorf("publish %d: ignition %s, want %s", i, msg.Ignition, wantStates[i])
		}
	}
}

func TestMQTTActuator_RetriesAfterFailure(t *testing.T) {
	fail := true
	calls := 0
	a := newMQTTActuator("t", func(string, []byte) error {
		calls++
		if fail {
			return errors.New("broker down")
		}
		return nil
	}, logger.Discard())

	ctx := context.Background()
	if err := a.Apply(ctx, decision(true, model.OutcomeAllowed)); err == nil {
		t.Fatal("Expected publish error")
	}
	fail = false
	if err := a.Apply(ctx, decision(true, model.OutcomeAllowed)); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected the unchanged state to be retried, got %d calls", calls)
	}
}

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"localhost:1883", "tcp://localhost:1883"},
		{"tcp://broker:1883", "tcp://broker:1883"},
		{"ssl://broker:8883", "ssl://broker:8883"},
	}
	for _, tt := range tests {
		if got := brokerURL(tt.in); got != tt.want {
			t.Errorf("brokerURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLogActuator_Apply(t *testing.T) {
	a := NewLogActuator(logger.Discard())
	for _, d := range []model.ControlDecision{
		decision(true, model.OutcomeAllowed),
		decision(false, model.OutcomeBlockedNoDetection),
	} {
		if err := a.Apply(context.Background(), d); err != nil {
			t.Errorf("Apply failed: %v", err)
		}
	}
}
