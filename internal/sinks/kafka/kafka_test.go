package kafka

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"flowcore/pkg/retry"
)

func TestClassifyKafkaErrorSuccess(t *testing.T) {
	outcome, err := ClassifyKafkaError(nil, nil)
	require.Equal(t, retry.Successful, outcome)
	require.NoError(t, err)
}

func TestClassifyKafkaErrorRetryable(t *testing.T) {
	outcome, err := ClassifyKafkaError(nil, errors.New("broker unreachable"))
	require.Equal(t, retry.Retryable, outcome)
	require.Error(t, err)
}

func TestNewRejectsMissingBrokers(t *testing.T) {
	_, err := New(Config{Topic: "logs"})
	require.Error(t, err)
}

func TestNewRejectsMissingTopic(t *testing.T) {
	_, err := New(Config{Brokers: []string{"localhost:9092"}})
	require.Error(t, err)
}
