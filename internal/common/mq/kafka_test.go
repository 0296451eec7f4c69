package mq

import (
	"testing"
	"time"
)

func TestToKafkaMessage(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := NewMessage([]byte(`{"status":"ACCEPTED"}`))
	msg.ID = "sub-1"
	msg.Timestamp = ts
	msg.SetHeader("event", "submission.judged")

	km := toKafkaMessage("contest.verdicts", msg)
	if km.Topic != "contest.verdicts" {
		t.Errorf("Topic = %q", km.Topic)
	}
	if string(km.Key) != "sub-1" {
		t.Errorf("Key = %q", km.Key)
	}
	if !km.Time.Equal(ts) {
		t.Errorf("Time = %v", km.Time)
	}

	headers := map[string]string{}
	for _, h := range km.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["event"] != "submission.judged" {
		t.Errorf("event header = %q", headers["event"])
	}
	if headers[headerID] != "sub-1" {
		t.Errorf("id header = %q", headers[headerID])
	}
	if headers[headerTimestamp] != ts.Format(time.RFC3339Nano) {
		t.Errorf("timestamp header = %q", headers[headerTimestamp])
	}
}

func TestNewKafkaProducerRequiresBrokers(t *testing.T) {
	if _, err := NewKafkaProducer(KafkaConfig{}); err == nil {
		t.Fatal("expected error without brokers")
	}
	p, err := NewKafkaProducer(KafkaConfig{Brokers: []string{"127.0.0.1:9092"}})
	if err != nil {
		t.Fatalf("NewKafkaProducer: %v", err)
	}
	if p.config.BatchSize != 100 || p.config.WriteTimeout != 10*time.Second {
		t.Errorf("defaults not applied: %+v", p.config)
	}
	_ = p.Close()
}
