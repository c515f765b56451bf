package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Shopify/sarama"
	uuid "github.com/hashicorp/go-uuid"

	"github.com/chainforge/rtxp/internal/logx"
)

var kafkaLogger = logx.RootEventBus

// kafkaEnvelope is the JSON shape written to the topic; Kind lets a
// consumer dispatch without a schema registry.
type kafkaEnvelope struct {
	Kind string      `json:"kind"`
	At   time.Time   `json:"at"`
	Data interface{} `json:"data"`
}

// KafkaSink publishes published/confirmed events to a Kafka topic for
// external audit, matching spec.md §6's "external auditors/metrics
// consume [events]". Grounded on the teacher's own chaindatafetcher
// Kafka producer.
type KafkaSink struct {
	producer sarama.AsyncProducer
	topic    string
	clientID string
}

// KafkaSinkConfig configures the underlying sarama producer.
type KafkaSinkConfig struct {
	Brokers []string
	Topic   string
}

// NewKafkaSink dials brokers and starts an async producer. Producer
// errors are logged, not returned to the caller, since a dropped audit
// event must never block a publish attempt (spec.md: EventSink errors
// are non-fatal to RTxP/MTM).
func NewKafkaSink(cfg KafkaSinkConfig) (*KafkaSink, error) {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return nil, err
	}

	conf := sarama.NewConfig()
	conf.Producer.RequiredAcks = sarama.WaitForLocal
	conf.Producer.Compression = sarama.CompressionSnappy
	conf.Producer.Flush.Frequency = 500 * time.Millisecond
	conf.Producer.Return.Successes = false
	conf.Producer.Return.Errors = true
	conf.ClientID = fmt.Sprintf("rtxp-eventbus-%s", id)

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, conf)
	if err != nil {
		return nil, err
	}

	sink := &KafkaSink{producer: producer, topic: cfg.Topic, clientID: conf.ClientID}
	go sink.drainErrors()
	return sink, nil
}

func (k *KafkaSink) drainErrors() {
	for err := range k.producer.Errors() {
		kafkaLogger.Warn("kafka producer delivery failed", "err", err)
	}
}

func (k *KafkaSink) publish(kind string, data interface{}) error {
	env := kafkaEnvelope{Kind: kind, At: time.Now(), Data: data}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}

	k.producer.Input() <- &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(kind),
		Value: sarama.ByteEncoder(payload),
	}
	return nil
}

func (k *KafkaSink) TransactionPublished(_ context.Context, e TransactionPublishedEvent) error {
	return k.publish("transaction_published", e)
}

func (k *KafkaSink) TransactionConfirmed(_ context.Context, e TransactionConfirmedEvent) error {
	return k.publish("transaction_confirmed", e)
}

// Close flushes and closes the underlying producer.
func (k *KafkaSink) Close() error {
	return k.producer.Close()
}
