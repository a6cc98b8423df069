package pubsub

import (
	"strings"
	"testing"
	"time"
)

func TestTopicInvalidatedEvent_Validate(t *testing.T) {
	now := time.Now()
	valid := func() TopicInvalidatedEvent {
		return TopicInvalidatedEvent{
			Version:     EventVersion1,
			Service:     "feeds",
			Topic:       "Climate_change",
			Entries:     2,
			TriggeredAt: now,
			RequestID:   "req-123",
		}
	}

	tests := []struct {
		name    string
		mutate  func(e *TopicInvalidatedEvent)
		wantErr bool
	}{
		{name: "valid", mutate: func(e *TopicInvalidatedEvent) {}, wantErr: false},
		{name: "valid with zero entries", mutate: func(e *TopicInvalidatedEvent) { e.Entries = 0 }, wantErr: false},
		{name: "bad version", mutate: func(e *TopicInvalidatedEvent) { e.Version = 2 }, wantErr: true},
		{name: "missing service", mutate: func(e *TopicInvalidatedEvent) { e.Service = "" }, wantErr: true},
		{name: "missing topic", mutate: func(e *TopicInvalidatedEvent) { e.Topic = "" }, wantErr: true},
		{name: "negative entries", mutate: func(e *TopicInvalidatedEvent) { e.Entries = -1 }, wantErr: true},
		{name: "zero time", mutate: func(e *TopicInvalidatedEvent) { e.TriggeredAt = time.Time{} }, wantErr: true},
		{name: "missing request id", mutate: func(e *TopicInvalidatedEvent) { e.RequestID = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid()
			tt.mutate(&e)
			err := e.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTopicWarmedEvent_Validate(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		event   TopicWarmedEvent
		wantErr bool
	}{
		{
			name:    "valid success",
			event:   TopicWarmedEvent{Version: EventVersion1, JobID: "j1", Topic: "go", Status: WarmStatusSuccess, FinishedAt: now},
			wantErr: false,
		},
		{
			name:    "failure without error",
			event:   TopicWarmedEvent{Version: EventVersion1, JobID: "j1", Topic: "go", Status: WarmStatusFailure, FinishedAt: now},
			wantErr: true,
		},
		{
			name:    "unknown status",
			event:   TopicWarmedEvent{Version: EventVersion1, JobID: "j1", Topic: "go", Status: "maybe", FinishedAt: now},
			wantErr: true,
		},
		{
			name:    "missing job id",
			event:   TopicWarmedEvent{Version: EventVersion1, Topic: "go", Status: WarmStatusSkipped, FinishedAt: now},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTopicInvalidatedEvent_ToJSON(t *testing.T) {
	e := TopicInvalidatedEvent{Version: EventVersion1, Service: "feeds", Topic: "go", Rewarm: true}
	data, err := e.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}
	if !strings.Contains(string(data), `"rewarm":true`) {
		t.Errorf("Expected rewarm field in %s", data)
	}
}

func TestIsValidTopic(t *testing.T) {
	for _, topic := range AllTopics() {
		if !IsValidTopic(topic) {
			t.Errorf("Expected %q to be valid", topic)
		}
	}
	if IsValidTopic("cache-invalidate") {
		t.Error("Expected unknown topic to be invalid")
	}
}
