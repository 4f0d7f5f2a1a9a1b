package queue

import "github.com/nats-io/nats.go"

// Test-only helpers exposing the unexported constructors.

func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	return newNATSPublisher(cfg)
}

func NewNATSPublisherWithConn(conn *nats.Conn) (*NATSPublisher, error) {
	return newNATSPublisherWithConn(conn)
}

func NewRedisPublisher(cfg RedisConfig) (*RedisPublisher, error) {
	return newRedisPublisher(cfg)
}

func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	return newKafkaPublisher(cfg)
}
