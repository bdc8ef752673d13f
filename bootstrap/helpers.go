package bootstrap

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"triage/config"

	"go.uber.org/zap"
)

// EnsureDataDirectories creates the data directory and the parents of the SQLite
// database and audit file, and checks they are writable.
func EnsureDataDirectories(cfg *config.Config, sugar *zap.SugaredLogger) error {
	dirs := []string{cfg.DataDir}
	if cfg.SQLite.Enabled {
		dirs = append(dirs, filepath.Dir(cfg.SQLite.Path))
	}
	if cfg.HasAuditSink(config.AuditSinkFile) {
		dirs = append(dirs, filepath.Dir(cfg.Audit.File))
	}

	seen := make(map[string]struct{}, len(dirs))
	for _, dir := range dirs {
		absPath, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("failed to resolve absolute path for %s: %w", dir, err)
		}
		if _, ok := seen[absPath]; ok {
			continue
		}
		seen[absPath] = struct{}{}

		if err := os.MkdirAll(absPath, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w\n"+
				"  Remediation: Ensure the parent directory exists and is writable\n"+
				"  For Docker: Check volume mount permissions", dir, err)
		}

		testFile := filepath.Join(absPath, ".triage_write_test")
		if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
			return fmt.Errorf("directory %s is not writable: %w\n"+
				"  Remediation: Check file system permissions\n"+
				"  For bare metal: Run 'chmod -R u+w %s'", dir, err, absPath)
		}
		os.Remove(testFile)

		sugar.Debugw("Data directory ready", "path", absPath)
	}
	return nil
}

// ClassifyConnectionError turns a store connection failure into an operator-facing
// message with remediation hints.
func ClassifyConnectionError(err error, store, addr string) string {
	if err == nil {
		return ""
	}
	errStr := err.Error()

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Sprintf("Connection to %s at %s timed out.\n"+
			"  Possible causes:\n"+
			"  - %s is starting up (wait and retry)\n"+
			"  - Network latency or firewall blocking the connection\n"+
			"  Remediation:\n"+
			"  - Verify network connectivity: nc -zv %s", store, addr, store, addr)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		if errors.Is(opErr.Err, syscall.ECONNREFUSED) ||
			(opErr.Err != nil && containsIgnoreCase(opErr.Err.Error(), "connection refused")) {
			return fmt.Sprintf("Connection refused by %s at %s.\n"+
				"  This usually means %s is not running.\n"+
				"  Remediation:\n"+
				"  - Start it, or disable it in config.yaml\n"+
				"  - Set startup_mode: graceful to run without it", store, addr, store)
		}
	}

	if containsIgnoreCase(errStr, "no such host") || containsIgnoreCase(errStr, "lookup") {
		return fmt.Sprintf("Cannot resolve hostname in %s address %s.\n"+
			"  Remediation:\n"+
			"  - Verify the hostname is correct\n"+
			"  - Check DNS configuration", store, addr)
	}

	if containsIgnoreCase(errStr, "authentication") || containsIgnoreCase(errStr, "password") ||
		containsIgnoreCase(errStr, "denied") || containsIgnoreCase(errStr, "NOAUTH") {
		return fmt.Sprintf("Authentication failed for %s at %s.\n"+
			"  Remediation:\n"+
			"  - Verify the credentials in config.yaml\n"+
			"  - Check the secrets provider (secrets.provider) resolves the password", store, addr)
	}

	return fmt.Sprintf("Failed to connect to %s at %s: %v\n"+
		"  Remediation:\n"+
		"  - Ensure %s is running and accessible\n"+
		"  - Verify network connectivity", store, addr, err, store)
}

// ClassifySQLiteError turns a SQLite open failure into an operator-facing message
func ClassifySQLiteError(err error, dbPath string) string {
	if err == nil {
		return ""
	}
	errStr := err.Error()
	absPath, _ := filepath.Abs(dbPath)
	parentDir := filepath.Dir(absPath)

	switch {
	case containsIgnoreCase(errStr, "permission denied") || containsIgnoreCase(errStr, "access denied"):
		return fmt.Sprintf("Permission denied accessing SQLite database at %s.\n"+
			"  Remediation:\n"+
			"  - Check file permissions: ls -la %s\n"+
			"  - Check directory permissions: ls -la %s", absPath, absPath, parentDir)
	case containsIgnoreCase(errStr, "database is locked") || containsIgnoreCase(errStr, "SQLITE_BUSY"):
		return fmt.Sprintf("SQLite database at %s is locked by another process.\n"+
			"  Remediation:\n"+
			"  - Check for running triage processes: ps aux | grep triage\n"+
			"  - Check for lock files: ls -la %s*", absPath, absPath)
	case containsIgnoreCase(errStr, "disk full") || containsIgnoreCase(errStr, "no space") || containsIgnoreCase(errStr, "SQLITE_FULL"):
		return fmt.Sprintf("Disk full - cannot write to SQLite database at %s.\n"+
			"  Remediation:\n"+
			"  - Check available disk space: df -h %s\n"+
			"  - Set audit.retention_days to purge completed playbook history", absPath, parentDir)
	case containsIgnoreCase(errStr, "corrupt") || containsIgnoreCase(errStr, "malformed"):
		return fmt.Sprintf("SQLite database at %s appears to be corrupted.\n"+
			"  Remediation:\n"+
			"  - Check integrity: sqlite3 %s \"PRAGMA integrity_check;\"\n"+
			"  - Restore from backup", absPath, absPath)
	case containsIgnoreCase(errStr, "migrat"):
		return fmt.Sprintf("Schema migration failed for SQLite database at %s: %v\n"+
			"  Remediation:\n"+
			"  - Inspect applied migrations: sqlite3 %s \"SELECT * FROM schema_migrations;\"", absPath, err, absPath)
	}

	return fmt.Sprintf("Failed to initialize SQLite database at %s: %v\n"+
		"  Remediation:\n"+
		"  - Ensure the directory %s exists and is writable", absPath, err, parentDir)
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
