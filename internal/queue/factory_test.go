package queue

import (
	"context"
	"testing"
	"time"

	"github.com/soltixdb/widepart/internal/config"
)

func TestNewPublisher(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.AnnounceConfig
		wantNil bool
		wantErr bool
	}{
		{name: "empty type disables", cfg: config.AnnounceConfig{}, wantNil: true},
		{name: "none", cfg: config.AnnounceConfig{Type: "none"}, wantNil: true},
		{name: "memory", cfg: config.AnnounceConfig{Type: "memory"}},
		{name: "memory upper case", cfg: config.AnnounceConfig{Type: "MEMORY"}},
		{name: "kafka from url", cfg: config.AnnounceConfig{Type: "kafka", URL: "localhost:9092"}},
		{name: "kafka without brokers", cfg: config.AnnounceConfig{Type: "kafka"}, wantErr: true},
		{name: "unknown", cfg: config.AnnounceConfig{Type: "carrier-pigeon"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPublisher(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewPublisher() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if (p == nil) != tt.wantNil {
				t.Fatalf("NewPublisher() = %v, wantNil %v", p, tt.wantNil)
			}
			if p != nil {
				_ = p.Close()
			}
		})
	}
}

func TestNewPublisher_NATS(t *testing.T) {
	url := setupTestNATS(t)

	p, err := NewPublisher(config.AnnounceConfig{Type: "nats", URL: url})
	if err != nil {
		t.Fatalf("NewPublisher failed: %v", err)
	}
	defer func() { _ = p.Close() }()

	if _, ok := p.(*NATSPublisher); !ok {
		t.Errorf("expected *NATSPublisher, got %T", p)
	}
}

func TestNewAnnouncerFromConfig(t *testing.T) {
	a, err := NewAnnouncerFromConfig(config.AnnounceConfig{Type: "none"})
	if err != nil || a != nil {
		t.Fatalf("expected no announcer, got %v, %v", a, err)
	}

	a, err = NewAnnouncerFromConfig(config.AnnounceConfig{Type: "memory", Subject: "widepart.parts"})
	if err != nil {
		t.Fatalf("NewAnnouncerFromConfig failed: %v", err)
	}
	defer func() { _ = a.Close() }()

	if a.Subject() != "widepart.parts" {
		t.Errorf("expected subject widepart.parts, got %s", a.Subject())
	}
}

func TestAnnouncer_MemoryRoundTrip(t *testing.T) {
	q := NewMemoryQueue()
	a := NewAnnouncer(q, "widepart.parts")
	defer func() { _ = a.Close() }()

	received := make(chan *PartCommitted, 1)
	if err := q.Subscribe("widepart.parts", func(data []byte) error {
		msg, err := DecodePartCommitted(data)
		if err != nil {
			return err
		}
		received <- msg
		return nil
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	sent := &PartCommitted{
		Part:        "all_1_1_0",
		Path:        "/data/all_1_1_0",
		Rows:        15001,
		Marks:       2,
		Bytes:       120394,
		Files:       9,
		CommittedAt: at,
	}
	if err := a.Announce(context.Background(), sent); err != nil {
		t.Fatalf("Announce failed: %v", err)
	}

	select {
	case got := <-received:
		if !got.CommittedAt.Equal(sent.CommittedAt) {
			t.Errorf("expected commit time %v, got %v", sent.CommittedAt, got.CommittedAt)
		}
		got.CommittedAt = sent.CommittedAt
		if *got != *sent {
			t.Errorf("expected %+v, got %+v", sent, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("announcement not delivered")
	}
}

func TestDecodePartCommitted_Invalid(t *testing.T) {
	if _, err := DecodePartCommitted([]byte("{not json")); err == nil {
		t.Error("expected decode error")
	}
}
