package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapSecretManager map[string]string

func (m mapSecretManager) GetSecret(key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func TestEnvSecretManager_GetSecret(t *testing.T) {
	manager := &EnvSecretManager{}
	t.Setenv("TRIAGE_REDIS_PASSWORD", "s3cret")

	value, err := manager.GetSecret(SecretRedisPassword)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", value)

	_, err = manager.GetSecret("missing_key")
	assert.ErrorContains(t, err, "TRIAGE_MISSING_KEY")
}

func TestNewSecretManager(t *testing.T) {
	c := newTestConfig()

	c.Secrets.Provider = ""
	m, err := NewSecretManager(&c)
	require.NoError(t, err)
	assert.IsType(t, &EnvSecretManager{}, m)

	c.Secrets.Provider = "vault"
	c.Secrets.Vault.Address = "http://127.0.0.1:8200"
	m, err = NewSecretManager(&c)
	require.NoError(t, err)
	assert.Equal(t, "secret/triage", m.(*VaultSecretManager).path)

	c.Secrets.Provider = "gcp"
	_, err = NewSecretManager(&c)
	assert.ErrorContains(t, err, "unsupported secret provider")
}

func TestLoadSecrets(t *testing.T) {
	c := newTestConfig()
	c.Redis.Enabled = true
	c.ClickHouse.Enabled = true
	c.ClickHouse.Password = "from-file"

	LoadSecrets(&c, mapSecretManager{
		SecretRedisPassword:      "redis-pw",
		SecretClickHousePassword: "ignored",
	})

	assert.Equal(t, "redis-pw", c.Redis.Password)
	assert.Equal(t, "from-file", c.ClickHouse.Password)
	assert.Equal(t, "mongodb://localhost:27017", c.MongoDB.URI, "disabled stores are left alone")
}
