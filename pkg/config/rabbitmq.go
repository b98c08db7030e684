package config

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
)

// JobsQueue carries collection and settlement jobs to the worker.
const JobsQueue = "reward_jobs"

// InitRabbitMQ dials the broker, retrying while it comes up.
func InitRabbitMQ(s *Settings) (*amqp.Connection, error) {
	url := s.RabbitMQURL()

	var conn *amqp.Connection
	var err error
	for i := 0; i < 10; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		log.WithError(err).Warnf("failed to connect to RabbitMQ (attempt %d/10)", i+1)
		time.Sleep(3 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ after retries: %w", err)
	}

	log.WithField("host", s.RabbitMQHost).Info("connected to RabbitMQ")
	return conn, nil
}

// PurgeQueue drops every pending message in a queue.
func PurgeQueue(conn *amqp.Connection, queueName string) (int, error) {
	ch, err := conn.Channel()
	if err != nil {
		return 0, fmt.Errorf("failed to open a channel: %w", err)
	}
	defer ch.Close()

	n, err := ch.QueuePurge(queueName, false)
	if err != nil {
		return 0, fmt.Errorf("failed to purge queue %s: %w", queueName, err)
	}
	log.WithFields(log.Fields{"queue": queueName, "messages": n}).Info("queue purged")
	return n, nil
}

func declareQueue(ch *amqp.Channel, queueName string) (amqp.Queue, error) {
	return ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
}
