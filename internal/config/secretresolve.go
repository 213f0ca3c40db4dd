package config

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"flowcore/pkg/secrets"
)

// secretManagerOnce lazily builds one process-wide secrets.MultiSecretsManager
// on first use, so documents that never reference a secret:// value never
// pay for it.
var (
	secretManagerOnce sync.Once
	secretManager     *secrets.MultiSecretsManager
)

func getSecretManager(logger *logrus.Logger) *secrets.MultiSecretsManager {
	secretManagerOnce.Do(func() {
		mgr, err := secrets.NewMultiSecretsManager(secrets.Config{
			DefaultBackend: "env",
			Backends: map[string]secrets.BackendConfig{
				"env": {Type: "env", Enabled: true},
			},
		}, logger)
		if err != nil {
			logger.WithError(err).Warn("config: secrets manager did not start, secret:// values will resolve to themselves")
			return
		}
		secretManager = mgr
	})
	return secretManager
}

// resolveSecret resolves values written as "secret://<key>" through
// pkg/secrets against the configured backend (env by default, looking up
// SECRET_<KEY> per pkg/secrets.EnvBackend), so credentials like sink auth
// passwords and SASL secrets don't have to sit in plaintext YAML. Any value
// without the prefix is returned unchanged.
func resolveSecret(raw string, logger *logrus.Logger) string {
	const prefix = "secret://"
	if len(raw) <= len(prefix) || raw[:len(prefix)] != prefix {
		return raw
	}
	key := raw[len(prefix):]
	mgr := getSecretManager(logger)
	if mgr == nil {
		return raw
	}
	value, err := mgr.GetSecret(context.Background(), key)
	if err != nil {
		logger.WithError(err).WithField("key", key).Warn("config: could not resolve secret:// value")
		return raw
	}
	return value
}
