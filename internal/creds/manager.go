package creds

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

const (
	// FileName is the credential file name used at every candidate location.
	FileName = "google_credentials.json"

	// DefaultDeployPath is the fixed path checked first on deployed hosts.
	DefaultDeployPath = "/etc/credkeep/google_credentials.json"

	// ServiceAccountType is the required value of the "type" field.
	ServiceAccountType = "service_account"
)

const (
	maxLockRetries = 50
	lockRetryDelay = 10 * time.Millisecond
)

// requiredKeys are checked in order; validation reports the first one missing.
var requiredKeys = []string{
	"type",
	"project_id",
	"private_key_id",
	"private_key",
	"client_email",
	"client_id",
	"auth_uri",
	"token_uri",
}

// Record is a service-account credential document. Beyond the required
// keys it is opaque: unknown fields are preserved across save and load.
type Record map[string]any

// Manager owns a single service-account credential file: one resolved
// path, chosen at construction and never recomputed, and the record most
// recently loaded from or saved to it. Public operations never return
// errors; failures are logged and reported as absent/false results. A
// Manager is safe for concurrent use from multiple goroutines; writers in
// other processes are coordinated with an advisory file lock.
type Manager struct {
	mu     sync.Mutex
	path   string
	record Record
	logger *log.Logger
}

// Option configures a Manager under construction.
type Option func(*settings)

type settings struct {
	path       string
	deployPath string
	logger     *log.Logger
}

// WithPath pins the credential file path, skipping resolution entirely.
func WithPath(path string) Option {
	return func(s *settings) { s.path = path }
}

// WithDeployPath overrides the deployment path candidate.
func WithDeployPath(path string) Option {
	return func(s *settings) { s.deployPath = path }
}

// WithLogger sets the logger; defaults to log.Default.
func WithLogger(logger *log.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// NewManager resolves the credential file path and attempts an initial
// load. A missing file is not an error; the manager simply starts with no
// credentials held.
func NewManager(opts ...Option) *Manager {
	s := settings{deployPath: DefaultDeployPath, logger: log.Default()}
	for _, opt := range opts {
		opt(&s)
	}
	if s.path == "" {
		s.path = resolvePath(s.deployPath)
	}
	m := &Manager{path: s.path, logger: s.logger}
	m.load()
	return m
}

// resolvePath picks the credential file location: the deployment path if
// it exists, else a credentials directory next to the running binary,
// else the system temp directory. The temp path is adopted even when the
// file does not exist yet so a later Save has somewhere to write.
func resolvePath(deployPath string) string {
	if fileExists(deployPath) {
		return deployPath
	}
	if exe, err := os.Executable(); err == nil {
		dev := filepath.Join(filepath.Dir(exe), "credentials", FileName)
		if fileExists(dev) {
			return dev
		}
	}
	return filepath.Join(os.TempDir(), FileName)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Load re-reads the credential file, replacing the held record. The
// returned record is nil (and the second result false) when the file is
// missing, unreadable, not valid JSON, or structurally invalid.
func (m *Manager) Load() (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load()
}

func (m *Manager) load() (Record, bool) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		m.record = nil
		if errors.Is(err, os.ErrNotExist) {
			m.logger.Info("no credentials file", "path", m.path)
		} else {
			m.logger.Error("failed to read credentials file", "path", m.path, "err", err)
		}
		return nil, false
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		m.record = nil
		m.logger.Error("credentials file is not valid JSON", "path", m.path, "err", err)
		return nil, false
	}
	if err := Validate(rec); err != nil {
		m.record = nil
		m.logger.Error("credentials file failed validation", "path", m.path, "err", err)
		return nil, false
	}

	m.record = rec
	m.logger.Info("credentials loaded", "path", m.path, "project_id", rec["project_id"])
	return maps.Clone(rec), true
}

// Save validates rec and, if it passes, writes it to the resolved path as
// pretty-printed JSON with owner-only permissions. The write is atomic: a
// temp file in the same directory is hardened to 0600 and renamed into
// place, so a failed save never leaves a torn file and the held record is
// only replaced after the rename succeeds. An invalid record is rejected
// without touching disk or memory.
func (m *Manager) Save(rec Record) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := Validate(rec); err != nil {
		m.logger.Error("rejecting credentials", "err", err)
		return false
	}

	unlock, ok := m.lockFile()
	if !ok {
		return false
	}
	defer unlock()

	if err := writeAtomic(m.path, rec); err != nil {
		m.logger.Error("failed to save credentials", "path", m.path, "err", err)
		return false
	}

	m.record = maps.Clone(rec)
	m.logger.Info("credentials saved", "path", m.path, "project_id", rec["project_id"])
	return true
}

func writeAtomic(path string, rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	tmp := fmt.Sprintf("%s.tmp.%s", path, uuid.NewString())
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	// WriteFile's mode is subject to umask; chmod makes 0600 definite.
	// Best-effort on filesystems without POSIX permission bits.
	if err := os.Chmod(tmp, 0600); err != nil && !errors.Is(err, errors.ErrUnsupported) {
		os.Remove(tmp)
		return fmt.Errorf("chmod %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// Clear removes the credential file and forgets the held record. The
// in-memory record is dropped even when the on-disk delete fails, so
// Has reports false after Clear regardless of the return value; only the
// delete outcome is reflected in it. A file that is already gone counts
// as success.
func (m *Manager) Clear() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record = nil

	unlock, ok := m.lockFile()
	if !ok {
		return false
	}
	defer unlock()

	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.logger.Error("failed to remove credentials file", "path", m.path, "err", err)
		return false
	}
	m.logger.Info("credentials cleared", "path", m.path)
	return true
}

// lockFile takes the advisory lock guarding the resolved path. The lock
// file lives at path + ".lock" so it survives the atomic rename.
func (m *Manager) lockFile() (func(), bool) {
	lock := flock.New(m.path + ".lock")
	for i := 0; i < maxLockRetries; i++ {
		locked, err := lock.TryLock()
		if err != nil {
			m.logger.Error("failed to acquire credentials lock", "path", m.path, "err", err)
			return nil, false
		}
		if locked {
			return func() { _ = lock.Unlock() }, true
		}
		time.Sleep(lockRetryDelay)
	}
	m.logger.Error("credentials file is locked by another process", "path", m.path)
	return nil, false
}

// Get returns a copy of the held record, or nil when none is held. The
// copy keeps the manager the sole holder of the mutable record.
func (m *Manager) Get() Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.record)
}

// Has reports whether a validated record is currently held.
func (m *Manager) Has() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record != nil
}

// FilePath returns the resolved path, but only while a validated record
// is held: callers never receive a path to a missing or invalid file.
func (m *Manager) FilePath() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.record == nil {
		return "", false
	}
	return m.path, true
}

// ProjectID returns the project_id field of the held record.
func (m *Manager) ProjectID() (string, bool) {
	return m.stringField("project_id")
}

// ClientEmail returns the client_email field of the held record.
func (m *Manager) ClientEmail() (string, bool) {
	return m.stringField("client_email")
}

func (m *Manager) stringField(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.record == nil {
		return "", false
	}
	v, ok := m.record[key].(string)
	return v, ok
}

// Validate checks that rec is a JSON object carrying every required
// service-account key and that its type field is "service_account". It
// stops at the first missing key. Field values beyond type are not
// inspected; private_key in particular is not checked for PEM shape.
func Validate(rec Record) error {
	if rec == nil {
		return errors.New("credentials are not a JSON object")
	}
	for _, key := range requiredKeys {
		if _, ok := rec[key]; !ok {
			return fmt.Errorf("missing required field %q", key)
		}
	}
	if v, _ := rec["type"].(string); v != ServiceAccountType {
		return fmt.Errorf("field \"type\" must be %q", ServiceAccountType)
	}
	return nil
}
