// Package queue defines the message broker publisher interface.
package queue

import (
	"context"
)

// Type represents the type of message broker.
type Type string

const (
	// TypeRabbitMQ represents a RabbitMQ broker.
	TypeRabbitMQ Type = "rabbitmq"
)

// Publisher publishes JSON payloads to a named queue.
type Publisher interface {
	// Publish marshals payload to JSON and publishes it with routing key queue.
	Publish(ctx context.Context, queue string, payload interface{}) error

	// Close closes the broker connection.
	Close() error
}
