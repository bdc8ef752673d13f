package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/hashicorp/vault/api"
)

// Secret keys resolved by LoadSecrets
const (
	SecretRedisPassword      = "redis_password"
	SecretClickHousePassword = "clickhouse_password"
	SecretMongoDBURI         = "mongodb_uri"
)

// SecretManager retrieves store credentials by key
type SecretManager interface {
	GetSecret(key string) (string, error)
}

// EnvSecretManager uses environment variables (default)
type EnvSecretManager struct{}

// GetSecret reads TRIAGE_<KEY>
func (e *EnvSecretManager) GetSecret(key string) (string, error) {
	envKey := "TRIAGE_" + strings.ToUpper(key)
	value := os.Getenv(envKey)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", envKey)
	}
	return value, nil
}

// VaultSecretManager retrieves secrets from HashiCorp Vault
type VaultSecretManager struct {
	path   string
	client *api.Client
}

func NewVaultSecretManager(config *Config) (*VaultSecretManager, error) {
	client, err := api.NewClient(&api.Config{
		Address: config.Secrets.Vault.Address,
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if config.Secrets.Vault.Token != "" {
		client.SetToken(config.Secrets.Vault.Token)
	} else if token := os.Getenv("VAULT_TOKEN"); token != "" {
		client.SetToken(token)
	}

	path := config.Secrets.Vault.Path
	if path == "" {
		path = "secret/triage"
	}
	return &VaultSecretManager{path: path, client: client}, nil
}

func (v *VaultSecretManager) GetSecret(key string) (string, error) {
	secret, err := v.client.Logical().Read(v.path)
	if err != nil {
		return "", fmt.Errorf("failed to read from Vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("secret not found at path %s", v.path)
	}

	value, ok := secret.Data[key]
	if !ok {
		return "", fmt.Errorf("key %s not found in Vault secret", key)
	}
	strValue, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("secret value for key %s is not a string", key)
	}
	return strValue, nil
}

// AWSSecretManager retrieves secrets from AWS Secrets Manager
type AWSSecretManager struct {
	secretID string
	client   *secretsmanager.SecretsManager
}

func NewAWSSecretManager(config *Config) (*AWSSecretManager, error) {
	awsConfig := &aws.Config{Region: aws.String(config.Secrets.AWS.Region)}
	if config.Secrets.AWS.AccessKey != "" && config.Secrets.AWS.SecretKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			config.Secrets.AWS.AccessKey,
			config.Secrets.AWS.SecretKey,
			"",
		)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	secretID := config.Secrets.AWS.SecretID
	if secretID == "" {
		secretID = "triage/secrets"
	}
	return &AWSSecretManager{
		secretID: secretID,
		client:   secretsmanager.New(sess),
	}, nil
}

func (a *AWSSecretManager) GetSecret(key string) (string, error) {
	result, err := a.client.GetSecretValue(&secretsmanager.GetSecretValueInput{
		SecretId: aws.String(a.secretID),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret from AWS: %w", err)
	}
	if result.SecretString == nil {
		return "", fmt.Errorf("AWS secret %s has no string value", a.secretID)
	}

	var secrets map[string]string
	if err := json.Unmarshal([]byte(*result.SecretString), &secrets); err != nil {
		return "", fmt.Errorf("failed to parse AWS secret JSON: %w", err)
	}
	value, ok := secrets[key]
	if !ok {
		return "", fmt.Errorf("key %s not found in AWS secret", key)
	}
	return value, nil
}

// NewSecretManager creates the appropriate secret manager based on configuration
func NewSecretManager(config *Config) (SecretManager, error) {
	provider := config.Secrets.Provider
	if provider == "" {
		provider = "env"
	}

	switch provider {
	case "env":
		return &EnvSecretManager{}, nil
	case "vault":
		return NewVaultSecretManager(config)
	case "aws":
		return NewAWSSecretManager(config)
	default:
		return nil, fmt.Errorf("unsupported secret provider: %s", provider)
	}
}

// LoadSecrets fills the store credentials left empty in config from manager.
// Credentials already set in the config file take precedence; a secret missing from
// the provider is not an error since most stores run without authentication.
func LoadSecrets(config *Config, manager SecretManager) {
	if config.Redis.Enabled && config.Redis.Password == "" {
		if v, err := manager.GetSecret(SecretRedisPassword); err == nil {
			config.Redis.Password = v
		}
	}
	if config.ClickHouse.Enabled && config.ClickHouse.Password == "" {
		if v, err := manager.GetSecret(SecretClickHousePassword); err == nil {
			config.ClickHouse.Password = v
		}
	}
	if config.MongoDB.Enabled {
		if v, err := manager.GetSecret(SecretMongoDBURI); err == nil {
			config.MongoDB.URI = v
		}
	}
}
