package db

import (
	"fmt"

	"backend-triptracker/internal/config"

	amqp "github.com/rabbitmq/amqp091-go"
)

func ConnectRabbitMQ(cfg config.Config) (*amqp.Connection, error) {
	if cfg.RabbitMQURL == "" {
		return nil, nil
	}
	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq connect: %w", err)
	}
	return conn, nil
}
