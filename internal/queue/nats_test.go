package queue

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// setupTestNATS creates an embedded NATS server with JetStream for testing
func setupTestNATS(t *testing.T) string {
	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1, // Random port
		JetStream: true,
		StoreDir:  t.TempDir(),
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		t.Fatalf("Failed to create NATS server: %v", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns.ClientURL()
}

func TestNewNATSPublisher_InvalidURL(t *testing.T) {
	p, err := NewNATSPublisher(NATSConfig{URL: "nats://invalid-host:9999"})
	if err == nil {
		_ = p.Close()
		t.Fatal("Expected error with invalid URL")
	}
}

func TestNATSPublisher_PublishCreatesStream(t *testing.T) {
	url := setupTestNATS(t)

	p, err := NewNATSPublisher(NATSConfig{URL: url})
	if err != nil {
		t.Fatalf("Failed to create NATS publisher: %v", err)
	}
	defer func() { _ = p.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < 2; i++ {
		if err := p.Publish(ctx, "widepart.parts", []byte("all_1_1_0")); err != nil {
			t.Fatalf("Publish %d failed: %v", i, err)
		}
	}

	info, err := p.js.StreamInfo(StreamName("widepart.parts"))
	if err != nil {
		t.Fatalf("stream not created: %v", err)
	}
	if info.State.Msgs != 2 {
		t.Errorf("expected 2 stored messages, got %d", info.State.Msgs)
	}
}

func TestNATSPublisher_AnnounceIsReceived(t *testing.T) {
	url := setupTestNATS(t)

	conn, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer conn.Close()

	p, err := NewNATSPublisherWithConn(conn)
	if err != nil {
		t.Fatalf("Failed to create NATS publisher: %v", err)
	}

	received := make(chan *nats.Msg, 1)
	sub, err := conn.ChanSubscribe("widepart.parts", received)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	a := NewAnnouncer(p, "widepart.parts")
	if err := a.Announce(context.Background(), &PartCommitted{Part: "all_1_1_0", Rows: 15001, Marks: 2}); err != nil {
		t.Fatalf("Announce failed: %v", err)
	}

	select {
	case msg := <-received:
		decoded, err := DecodePartCommitted(msg.Data)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if decoded.Part != "all_1_1_0" || decoded.Rows != 15001 || decoded.Marks != 2 {
			t.Errorf("unexpected announcement %+v", decoded)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("announcement not received")
	}
}

func TestStreamName(t *testing.T) {
	tests := map[string]string{
		"parts":          "widepart-parts",
		"widepart.parts": "widepart-widepart_parts",
		"a.*.>":          "widepart-a____",
	}
	for subject, want := range tests {
		if got := StreamName(subject); got != want {
			t.Errorf("StreamName(%q) = %q, want %q", subject, got, want)
		}
	}
}
