package queue

import (
	"fmt"
	"strings"

	"github.com/soltixdb/widepart/internal/config"
)

const (
	TypeNone   = "none"
	TypeMemory = "memory"
	TypeNATS   = "nats"
	TypeRedis  = "redis"
	TypeKafka  = "kafka"
)

// NewPublisher creates the publisher selected by the announce configuration.
// It returns nil when announcements are disabled.
func NewPublisher(cfg config.AnnounceConfig) (Publisher, error) {
	switch strings.ToLower(cfg.Type) {
	case "", TypeNone:
		return nil, nil

	case TypeNATS:
		return newNATSPublisher(NATSConfig{
			URL:      cfg.URL,
			Username: cfg.Username,
			Password: cfg.Password,
		})

	case TypeRedis:
		return newRedisPublisher(RedisConfig{
			URL:      cfg.URL,
			Password: cfg.Password,
			DB:       cfg.RedisDB,
			Stream:   cfg.RedisStream,
		})

	case TypeKafka:
		brokers := cfg.KafkaBrokers
		if len(brokers) == 0 && cfg.URL != "" {
			brokers = strings.Split(cfg.URL, ",")
		}
		return newKafkaPublisher(KafkaConfig{Brokers: brokers})

	case TypeMemory:
		return newMemoryQueue(), nil

	default:
		return nil, fmt.Errorf("unsupported announce type: %s (supported: none, memory, nats, redis, kafka)", cfg.Type)
	}
}

// NewAnnouncerFromConfig wraps the configured publisher. It returns nil when
// announcements are disabled.
func NewAnnouncerFromConfig(cfg config.AnnounceConfig) (*Announcer, error) {
	publisher, err := NewPublisher(cfg)
	if err != nil || publisher == nil {
		return nil, err
	}
	return NewAnnouncer(publisher, cfg.Subject), nil
}
