package queue

import (
	"context"
	"os"
	"testing"
	"time"
)

// Test helper: check if Kafka is available
func isKafkaAvailable() bool {
	return os.Getenv("KAFKA_TEST") == "1"
}

// Test helper: get Kafka brokers from env or default
func getKafkaBrokers() []string {
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		return []string{brokers}
	}
	return []string{"localhost:9092"}
}

func TestNewKafkaPublisher(t *testing.T) {
	p, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}})
	if err != nil {
		t.Fatalf("Failed to create Kafka publisher: %v", err)
	}
	defer func() { _ = p.Close() }()

	if p.config.BatchTimeout != 10*time.Millisecond {
		t.Errorf("expected default batch timeout, got %v", p.config.BatchTimeout)
	}
	if p.config.MaxAttempts != 3 {
		t.Errorf("expected 3 attempts, got %d", p.config.MaxAttempts)
	}
}

func TestNewKafkaPublisher_NoBrokers(t *testing.T) {
	for _, brokers := range [][]string{nil, {}} {
		if _, err := NewKafkaPublisher(KafkaConfig{Brokers: brokers}); err == nil {
			t.Fatal("Expected error when no brokers configured")
		}
	}
}

func TestKafkaPublisher_WriterPerTopic(t *testing.T) {
	p, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}})
	if err != nil {
		t.Fatalf("Failed to create Kafka publisher: %v", err)
	}
	defer func() { _ = p.Close() }()

	a := p.writer("parts")
	b := p.writer("parts")
	c := p.writer("other")
	if a != b {
		t.Error("expected the writer of a topic to be reused")
	}
	if a == c {
		t.Error("expected one writer per topic")
	}
	if a.Topic != "parts" {
		t.Errorf("expected topic parts, got %s", a.Topic)
	}
}

func TestKafkaPublisher_Publish(t *testing.T) {
	if !isKafkaAvailable() {
		t.Skip("Kafka not available, skipping test")
	}

	p, err := NewKafkaPublisher(KafkaConfig{Brokers: getKafkaBrokers()})
	if err != nil {
		t.Fatalf("Failed to create Kafka publisher: %v", err)
	}
	defer func() { _ = p.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.Publish(ctx, "widepart.test", []byte("all_1_1_0")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
}
