package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// PartCommitted is published once a part directory was renamed to its final name
type PartCommitted struct {
	Part        string    `json:"part"`
	Path        string    `json:"path"`
	Rows        uint64    `json:"rows"`
	Marks       int       `json:"marks"`
	Bytes       uint64    `json:"bytes"`
	Files       int       `json:"files"`
	CommittedAt time.Time `json:"committed_at"`
}

// Announcer publishes PartCommitted messages on one subject
type Announcer struct {
	publisher Publisher
	subject   string
}

func NewAnnouncer(publisher Publisher, subject string) *Announcer {
	return &Announcer{publisher: publisher, subject: subject}
}

func (a *Announcer) Subject() string {
	return a.subject
}

// Announce encodes msg as JSON and publishes it
func (a *Announcer) Announce(ctx context.Context, msg *PartCommitted) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode announcement of %s: %w", msg.Part, err)
	}
	return a.publisher.Publish(ctx, a.subject, data)
}

// Close closes the underlying publisher
func (a *Announcer) Close() error {
	return a.publisher.Close()
}

// DecodePartCommitted decodes a message published by Announce
func DecodePartCommitted(data []byte) (*PartCommitted, error) {
	var msg PartCommitted
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode part announcement: %w", err)
	}
	return &msg, nil
}
