package conventions

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DefaultDataDir is the default bosync data directory name (relative to home).
	DefaultDataDir = ".bosync"
	// DBFile is the SQLite database filename inside the data directory.
	DBFile = "bosync.db"
	// LocksDir is the subdirectory for file locks.
	LocksDir = "locks"
	// ReportsDir is the subdirectory for error report files.
	ReportsDir = "reports"
	// InstallationIDFile stores the per installation identity.
	InstallationIDFile = "installation-id"

	// LockFilePrefix is the prefix of every lock file.
	LockFilePrefix = "bosync-"
	// LockFileExt is the extension of every lock file.
	LockFileExt = ".lock"
	// ReportFileExt is the extension of every error report file.
	ReportFileExt = ".txt"

	// ChildEnvVar is set on every isolated task subprocess.
	ChildEnvVar = "BOSYNC_CHILD"
	// IntegrationEnvVar enables the integration tests.
	IntegrationEnvVar = "BOSYNC_INTEGRATION"

	// BatchScope is the lock scope of the batch orchestrator.
	BatchScope = "batch-process"

	// KVKeyLastSuccess is the KV key with the last successful task run time.
	KVKeyLastSuccess = "batch.last_success"
	// KVKeyHadFailure is the KV key flagging a batch run with failures.
	KVKeyHadFailure = "batch.had_failure"
)

// DBPath returns the database path inside a data dir.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, DBFile)
}

// LockDir returns the lock directory inside a data dir.
func LockDir(dataDir string) string {
	return filepath.Join(dataDir, LocksDir)
}

// ReportPath returns the path of one error report of a task, a task that
// fails more than once gets a report per reportID.
func ReportPath(dataDir, taskName, reportID string) string {
	return filepath.Join(dataDir, ReportsDir, SanitizeFileName(taskName)+"."+SanitizeFileName(reportID)+ReportFileExt)
}

// LockFileName returns the lock file name for an already sanitized scope key.
func LockFileName(scope string) string {
	return LockFilePrefix + scope + LockFileExt
}

// SanitizeFileName replaces anything that is not safe in a file name.
func SanitizeFileName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}

// HolderID returns the identity of the current process for lock ownership.
// Uses hostname:pid, when the hostname is unknown it falls back to the
// installation ID.
func HolderID(installationID string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = installationID
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}
