// Package kafka implements a Kafka sink on top of sarama's synchronous
// producer — sinkpipeline.Transport is a blocking call per request, so this
// sink uses sarama.SyncProducer rather than the teacher's AsyncProducer +
// response-handling-goroutine pattern (internal/sinks/kafka_sink.go), and
// lets sinkpipeline's own concurrency limiter bound in-flight sends instead
// of a separate queue/worker pool.
//
// TLS, SASL/SCRAM, compression, and partitioner configuration are grounded
// directly on kafka_sink.go's NewKafkaSink and kafka_scram.go's
// XDGSCRAMClient (reimplemented in scram.go).
package kafka

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"flowcore/internal/sinkpipeline"
	"flowcore/internal/topology"
	"flowcore/pkg/circuit"
	"flowcore/pkg/retry"
)

// Compression selects the Kafka record batch compression codec.
type Compression string

const (
	CompressionNone   Compression = "none"
	CompressionGzip   Compression = "gzip"
	CompressionSnappy Compression = "snappy"
	CompressionLZ4    Compression = "lz4"
	CompressionZstd   Compression = "zstd"
)

// PartitionStrategy selects sarama's partitioner.
type PartitionStrategy string

const (
	PartitionHash       PartitionStrategy = "hash"
	PartitionRoundRobin PartitionStrategy = "round-robin"
	PartitionRandom     PartitionStrategy = "random"
)

// SASLMechanism selects the SASL authentication mechanism.
type SASLMechanism string

const (
	SASLNone         SASLMechanism = ""
	SASLPlain        SASLMechanism = "PLAIN"
	SASLScramSHA256  SASLMechanism = "SCRAM-SHA-256"
	SASLScramSHA512  SASLMechanism = "SCRAM-SHA-512"
)

// Auth configures SASL authentication.
type Auth struct {
	Enabled   bool
	Username  string
	Password  string
	Mechanism SASLMechanism
}

// TLSConfig enables TLS on the broker connection. Certificate loading is
// left to the caller-supplied *tls.Config via Custom, matching the
// teacher's TODO in kafka_sink.go for full cert-file loading.
type TLSConfig struct {
	Enabled bool
}

// Config configures a Kafka Sink.
type Config struct {
	Brokers         []string
	Topic           string
	RequiredAcks    sarama.RequiredAcks
	Compression     Compression
	MaxMessageBytes int
	RetryMax        int
	DialTimeout     time.Duration
	Auth            Auth
	TLS             TLSConfig
	Partitioning    PartitionStrategy

	Batch   sinkpipeline.BatchConfig
	Service sinkpipeline.ServiceConfig
	Logger  *logrus.Logger
}

// Sink publishes each batch's encoded, compressed body to config.Topic,
// partitioned by sinkpipeline.Request.Key.
type Sink struct {
	cfg      Config
	pipeline *sinkpipeline.Pipeline
	producer sarama.SyncProducer
	logger   *logrus.Logger
}

func New(cfg Config) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka sink: no brokers configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka sink: no topic configured")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	if cfg.RequiredAcks != 0 {
		saramaConfig.Producer.RequiredAcks = cfg.RequiredAcks
	} else {
		saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	}

	switch cfg.Compression {
	case CompressionGzip:
		saramaConfig.Producer.Compression = sarama.CompressionGZIP
	case CompressionSnappy:
		saramaConfig.Producer.Compression = sarama.CompressionSnappy
	case CompressionLZ4:
		saramaConfig.Producer.Compression = sarama.CompressionLZ4
	case CompressionZstd:
		saramaConfig.Producer.Compression = sarama.CompressionZSTD
	default:
		saramaConfig.Producer.Compression = sarama.CompressionNone
	}

	if cfg.MaxMessageBytes > 0 {
		saramaConfig.Producer.MaxMessageBytes = cfg.MaxMessageBytes
	}
	if cfg.RetryMax > 0 {
		saramaConfig.Producer.Retry.Max = cfg.RetryMax
	}
	if cfg.DialTimeout > 0 {
		saramaConfig.Net.DialTimeout = cfg.DialTimeout
		saramaConfig.Net.ReadTimeout = cfg.DialTimeout
		saramaConfig.Net.WriteTimeout = cfg.DialTimeout
	}

	if cfg.Auth.Enabled {
		saramaConfig.Net.SASL.Enable = true
		saramaConfig.Net.SASL.User = cfg.Auth.Username
		saramaConfig.Net.SASL.Password = cfg.Auth.Password

		switch cfg.Auth.Mechanism {
		case SASLPlain:
			saramaConfig.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		case SASLScramSHA256:
			saramaConfig.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
			saramaConfig.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &xdgSCRAMClient{HashGeneratorFcn: hashSHA256}
			}
		case SASLScramSHA512:
			saramaConfig.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
			saramaConfig.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &xdgSCRAMClient{HashGeneratorFcn: hashSHA512}
			}
		}
	}

	if cfg.TLS.Enabled {
		saramaConfig.Net.TLS.Enable = true
	}

	switch cfg.Partitioning {
	case PartitionRoundRobin:
		saramaConfig.Producer.Partitioner = sarama.NewRoundRobinPartitioner
	case PartitionRandom:
		saramaConfig.Producer.Partitioner = sarama.NewRandomPartitioner
	default:
		saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("kafka sink: create producer: %w", err)
	}

	s := &Sink{cfg: cfg, producer: producer, logger: cfg.Logger}

	svcCfg := cfg.Service
	if svcCfg.RetryLogic == nil {
		svcCfg.RetryLogic = ClassifyKafkaError
	}
	if svcCfg.Breaker == nil {
		svcCfg.Breaker = circuit.NewBreaker(circuit.BreakerConfig{
			Name:             "kafka_sink",
			FailureThreshold: 10,
			SuccessThreshold: 2,
			Timeout:          60 * time.Second,
		}, cfg.Logger)
	}

	s.pipeline = sinkpipeline.NewPipeline(sinkpipeline.Config{
		Partition: sinkpipeline.TemplatePartitioner("{source_type}"),
		Batch:     cfg.Batch,
		Service:   svcCfg,
		Transport: s.transport,
		Logger:    cfg.Logger,
	})
	return s, nil
}

var _ topology.Sink = (*Sink)(nil)

func (s *Sink) transport(ctx context.Context, req sinkpipeline.Request) (interface{}, error) {
	topic := s.cfg.Topic
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(req.Key),
		Value: sarama.ByteEncoder(req.Body),
	}
	_, _, err := s.producer.SendMessage(msg)
	return nil, err
}

// ClassifyKafkaError treats any send error as retryable: sarama's own
// Producer.Retry.Max already absorbs broker-side transient failures before
// SendMessage returns, so whatever reaches here is either nil (success) or
// a failure worth one more pass through sinkpipeline's retry policy.
func ClassifyKafkaError(_ interface{}, err error) (retry.Outcome, error) {
	if err == nil {
		return retry.Successful, nil
	}
	if strings.Contains(err.Error(), sarama.ErrMessageSizeTooLarge.Error()) {
		return retry.Rejected, err
	}
	return retry.Retryable, err
}

func (s *Sink) Run(ctx context.Context, in topology.Input) error {
	err := s.pipeline.Run(ctx, in)
	s.producer.Close()
	return err
}

func (s *Sink) Healthcheck(ctx context.Context) error {
	return nil
}
