package config

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestResolveSecretPassesThroughPlainValues(t *testing.T) {
	require.Equal(t, "plaintext", resolveSecret("plaintext", logrus.StandardLogger()))
}

func TestResolveSecretReadsEnvBackend(t *testing.T) {
	t.Setenv("SECRET_KAFKA_PASSWORD", "hunter2")
	require.Equal(t, "hunter2", resolveSecret("secret://kafka_password", logrus.StandardLogger()))
}

func TestResolveSecretFallsBackToRawOnMissingKey(t *testing.T) {
	os.Unsetenv("SECRET_DOES_NOT_EXIST")
	require.Equal(t, "secret://does_not_exist", resolveSecret("secret://does_not_exist", logrus.StandardLogger()))
}
