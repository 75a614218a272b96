package kafka_relay

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/meetd/meetd/relay"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

const (
	kafkaMinBytes    = 10
	kafkaMaxBytes    = 10e6
	kafkaMaxAttempts = 16

	readDeadline = 10 * time.Second
)

// KafkaRelay exchanges envelopes over one broker topic. The consumer
// group keeps each agent's read position server-side, so GetMessages
// ignores the offset argument.
type KafkaRelay struct {
	reader                               *kafka.Reader
	writer                               *kafka.Writer
	tlsConfig                            *tls.Config
	producerCreds, consumerCreds         *plain.Mechanism
	brokerEndpoint, consumerGroup, topic string
	timeout                              time.Duration
}

func NewKafkaRelay(
	brokerEndpoint,
	topic,
	consumerGroup string,
	tlsConfig *tls.Config,
	producerCreds,
	consumerCreds *plain.Mechanism,
	timeout time.Duration,
) (*KafkaRelay, error) {
	kr := &KafkaRelay{
		brokerEndpoint: brokerEndpoint,
		topic:          topic,
		consumerGroup:  consumerGroup,
		tlsConfig:      tlsConfig,
		producerCreds:  producerCreds,
		consumerCreds:  consumerCreds,
		timeout:        timeout,
	}
	if err := kr.reset(); err != nil {
		return nil, fmt.Errorf("failed to create a NewKafkaRelay: %w", err)
	}

	return kr, nil
}

func (kr *KafkaRelay) Close() error {
	if kr.reader != nil {
		if err := kr.reader.Close(); err != nil {
			return fmt.Errorf("failed to Close reader: %w", err)
		}
	}

	if kr.writer != nil {
		if err := kr.writer.Close(); err != nil {
			return fmt.Errorf("failed to Close writer: %w", err)
		}
	}

	return nil
}

func (kr *KafkaRelay) Send(m relay.Message) (relay.Message, error) {
	m.ID = uuid.New().String()

	data, err := json.Marshal(m)
	if err != nil {
		return m, fmt.Errorf("failed to marshal a message %v: %v", m, err)
	}

	if err := kr.writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(m.ID),
		Value: data,
	}); err != nil {
		return m, fmt.Errorf("failed to WriteMessages: %w", err)
	}

	return m, nil
}

func (kr *KafkaRelay) GetMessages(_ uint64) ([]relay.Message, error) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(readDeadline))
	defer cancel()

	var messages []relay.Message
	for {
		kafkaMessage, err := kr.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return nil, fmt.Errorf("failed to ReadMessage: %w", err)
		}

		var message relay.Message
		if err = json.Unmarshal(kafkaMessage.Value, &message); err != nil {
			return nil, fmt.Errorf("failed to unmarshal a message %s: %v",
				string(kafkaMessage.Value), err)
		}

		message.Offset = uint64(kafkaMessage.Offset)
		messages = append(messages, message)
	}

	return messages, nil
}

func (kr *KafkaRelay) reset() error {
	if err := kr.Close(); err != nil {
		return fmt.Errorf("failed to Close connections: %w", err)
	}

	kr.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{kr.brokerEndpoint},
		GroupID:     kr.consumerGroup,
		Topic:       kr.topic,
		MinBytes:    kafkaMinBytes,
		MaxBytes:    kafkaMaxBytes,
		MaxAttempts: kafkaMaxAttempts,
		Dialer: &kafka.Dialer{
			Timeout:       kr.timeout,
			DualStack:     true,
			TLS:           kr.tlsConfig,
			SASLMechanism: kr.consumerCreds,
		},
	})

	kafka.DefaultTransport = &kafka.Transport{
		Dial: (&net.Dialer{
			Timeout: kr.timeout,
		}).DialContext,
		TLS:  kr.tlsConfig,
		SASL: kr.producerCreds,
	}
	kr.writer = &kafka.Writer{
		Addr:         kafka.TCP(kr.brokerEndpoint),
		Topic:        kr.topic,
		Balancer:     &kafka.LeastBytes{},
		MaxAttempts:  kafkaMaxAttempts,
		BatchTimeout: kr.timeout,
		ReadTimeout:  kr.timeout,
		WriteTimeout: kr.timeout,
	}

	return nil
}
