package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"triage/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// ClickHouse test container configuration
const (
	clickhouseImage       = "clickhouse/clickhouse-server:latest"
	clickhouseNativePort  = "9000/tcp"
	clickhouseHTTPPort    = "8123/tcp"
	testDatabaseName      = "triage_integration_test"
	containerStartTimeout = 120 * time.Second
)

// setupClickHouseTestContainer starts a ClickHouse container and returns a
// connection to it. The container is terminated when the test ends.
func setupClickHouseTestContainer(t *testing.T) *ClickHouse {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        clickhouseImage,
		ExposedPorts: []string{clickhouseNativePort, clickhouseHTTPPort},
		Env: map[string]string{
			"CLICKHOUSE_USER":                      "default",
			"CLICKHOUSE_PASSWORD":                  "testpassword",
			"CLICKHOUSE_DEFAULT_ACCESS_MANAGEMENT": "1",
		},
		// ClickHouse answers "Ok." on / once it accepts queries
		WaitingFor: wait.ForHTTP("/").
			WithPort(clickhouseHTTPPort).
			WithStartupTimeout(containerStartTimeout).
			WithResponseMatcher(func(body io.Reader) bool {
				buf, _ := io.ReadAll(body)
				return len(buf) > 0
			}),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "Failed to start ClickHouse container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate ClickHouse container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mappedPort, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	ch, err := NewClickHouse(config.ClickHouseConfig{
		Enabled:     true,
		Addr:        fmt.Sprintf("%s:%s", host, mappedPort.Port()),
		Database:    testDatabaseName,
		Username:    "default",
		Password:    "testpassword",
		MaxPoolSize: 4,
		TTLDays:     30,
	}, zap.NewNop().Sugar())
	require.NoError(t, err, "Failed to connect to ClickHouse")
	t.Cleanup(func() { _ = ch.Close() })
	return ch
}

func TestClickHouseIntegration_HealthAndVersion(t *testing.T) {
	ch := setupClickHouseTestContainer(t)
	ctx := context.Background()

	assert.NoError(t, ch.HealthCheck(ctx))
	version, err := ch.GetVersion(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, version)
}

func TestClickHouseIntegration_EnsureDatabase(t *testing.T) {
	ch := setupClickHouseTestContainer(t)
	ctx := context.Background()

	require.NoError(t, ensureDatabase(ctx, ch.Conn, "test_ensure_db", zap.NewNop().Sugar()))
	require.NoError(t, ensureDatabase(ctx, ch.Conn, "test_ensure_db", zap.NewNop().Sugar()), "idempotent")

	var count uint64
	require.NoError(t, ch.Conn.QueryRow(ctx,
		"SELECT count() FROM system.databases WHERE name = ?", "test_ensure_db").Scan(&count))
	assert.Equal(t, uint64(1), count)
}

func TestClickHouseIntegration_AuditSink(t *testing.T) {
	ch := setupClickHouseTestContainer(t)
	ctx := context.Background()

	sink, err := NewClickHouseAuditSink(ctx, ch, zap.NewNop().Sugar())
	require.NoError(t, err)

	entry := pendingEntry(t, "enrich", 0)
	require.NoError(t, sink.Append(ctx, "case-1", entry))
	// recorded_at has millisecond resolution
	time.Sleep(5 * time.Millisecond)
	entry.SetError(true, "", map[string]interface{}{"api_key": "secret", "status": "503"}, errors.New("upstream 503"))
	require.NoError(t, sink.Append(ctx, "case-1", entry))
	require.NoError(t, sink.Append(ctx, "case-2", pendingEntry(t, "notify", 0)))

	records, err := sink.ListAudit(ctx, "case-1")
	require.NoError(t, err)
	require.Len(t, records, 2, "ClickHouse keeps the full history")
	assert.False(t, records[0].StageDone)
	assert.True(t, records[1].StageDone)
	assert.True(t, records[1].RequestRetry)
	assert.Equal(t, "upstream 503", records[1].Exception)

	errData, ok := records[1].ResultData["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "[REDACTED]", errData["api_key"])

	byPlaybook, total, err := sink.Query(ctx, AuditFilters{Playbook: "notify", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, byPlaybook, 1)
	assert.Equal(t, "case-2", byPlaybook[0].CaseID)
}
