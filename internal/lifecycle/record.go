// Package lifecycle tracks the current credential's age and drives the
// periodic expiry checks. The service never tells clients when a
// session dies, so expiry is approximated with a fixed TTL counted
// from the moment a credential is committed.
package lifecycle

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"credkeeper/internal/logging"
)

const recordFileName = "expiry.json"

// ExpiryRecord describes one committed credential's assumed lifetime.
// Records are replaced wholesale on refresh, never edited in place.
type ExpiryRecord struct {
	Credential string    `json:"credential"`
	IssuedAt   time.Time `json:"-"`
	ExpiresAt  time.Time `json:"-"`

	// IsValid is a soft flag: the usage layer can force it false on a
	// server-side invalidation without deleting the record.
	IsValid bool `json:"isValid"`
}

type recordAlias ExpiryRecord

type recordJSON struct {
	recordAlias
	IssuedAt  int64 `json:"issuedAt"`
	ExpiresAt int64 `json:"expiresAt"`
}

func (r *ExpiryRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		recordAlias: recordAlias(*r),
		IssuedAt:    r.IssuedAt.UnixMilli(),
		ExpiresAt:   r.ExpiresAt.UnixMilli(),
	})
}

func (r *ExpiryRecord) UnmarshalJSON(data []byte) error {
	var aux recordJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = ExpiryRecord(aux.recordAlias)
	r.IssuedAt = time.UnixMilli(aux.IssuedAt)
	r.ExpiresAt = time.UnixMilli(aux.ExpiresAt)
	return nil
}

// NewExpiryRecord stamps a freshly committed credential. ExpiresAt is
// always exactly issuedAt + ttl.
func NewExpiryRecord(credential string, issuedAt time.Time, ttl time.Duration) *ExpiryRecord {
	return &ExpiryRecord{
		Credential: credential,
		IssuedAt:   issuedAt,
		ExpiresAt:  issuedAt.Add(ttl),
		IsValid:    true,
	}
}

// Phase classifies a credential's position in its lifetime.
type Phase string

const (
	// PhaseFirstRun means the monitor has never been initialized: no
	// record and no persisted state at all.
	PhaseFirstRun Phase = "first_run"

	// PhaseAbsent means the monitor ran before but holds no record,
	// typically after an explicit ignore or a logout.
	PhaseAbsent Phase = "absent"

	PhaseValid       Phase = "valid"
	PhaseNearExpiry  Phase = "near_expiry"
	PhaseExpired     Phase = "expired"
	PhaseInvalidated Phase = "invalidated"
)

// Classify maps a record (possibly nil) to its phase at the given
// instant. A record exactly at the warning boundary counts as
// NearExpiry; a record is Expired only strictly after ExpiresAt.
func Classify(rec *ExpiryRecord, initialized bool, now time.Time, warningWindow time.Duration) Phase {
	if rec == nil {
		if !initialized {
			return PhaseFirstRun
		}
		return PhaseAbsent
	}
	if !rec.IsValid {
		return PhaseInvalidated
	}
	if now.After(rec.ExpiresAt) {
		return PhaseExpired
	}
	if rec.ExpiresAt.Sub(now) <= warningWindow {
		return PhaseNearExpiry
	}
	return PhaseValid
}

// recordStorage is the persisted shape of expiry.json.
type recordStorage struct {
	Version     int           `json:"version"`
	Initialized bool          `json:"initialized"`
	Record      *ExpiryRecord `json:"record,omitempty"`
	LastUpdated int64         `json:"lastUpdated"`
}

// RecordStore persists the expiry record plus the "monitor has run
// before" flag. One file, whole-snapshot writes, same discipline as
// the account store.
type RecordStore struct {
	filePath string

	mu          sync.RWMutex
	initialized bool
	record      *ExpiryRecord
}

// NewRecordStore opens (or prepares) the record store under stateDir.
func NewRecordStore(stateDir string) (*RecordStore, error) {
	if stateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		stateDir = filepath.Join(home, ".credkeeper")
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	rs := &RecordStore{filePath: filepath.Join(stateDir, recordFileName)}
	if err := rs.load(); err != nil {
		return nil, err
	}
	return rs, nil
}

func (rs *RecordStore) load() error {
	data, err := os.ReadFile(rs.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read expiry record: %w", err)
	}

	var storage recordStorage
	if err := json.Unmarshal(data, &storage); err != nil {
		logging.LifecycleWarn("expiry record unreadable, starting fresh: %v", err)
		return nil
	}
	rs.initialized = storage.Initialized
	rs.record = storage.Record
	return nil
}

func (rs *RecordStore) saveLocked() error {
	storage := recordStorage{
		Version:     1,
		Initialized: rs.initialized,
		Record:      rs.record,
		LastUpdated: time.Now().UnixMilli(),
	}
	data, err := json.MarshalIndent(storage, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal expiry record: %w", err)
	}
	if err := os.WriteFile(rs.filePath, data, 0o600); err != nil {
		return fmt.Errorf("write expiry record: %w", err)
	}
	return nil
}

// Record returns a copy of the current record, or nil.
func (rs *RecordStore) Record() *ExpiryRecord {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	if rs.record == nil {
		return nil
	}
	cp := *rs.record
	return &cp
}

// Initialized reports whether the monitor has ever run on this state.
func (rs *RecordStore) Initialized() bool {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.initialized
}

// Replace swaps in a new record and marks the store initialized.
func (rs *RecordStore) Replace(rec *ExpiryRecord) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.record = rec
	rs.initialized = true
	logging.Lifecycle("expiry record replaced, expires %s", rec.ExpiresAt.Format(time.RFC3339))
	return rs.saveLocked()
}

// Clear drops the record entirely. The credential is treated as absent
// afterwards, not merely stale.
func (rs *RecordStore) Clear() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.record = nil
	rs.initialized = true
	logging.Lifecycle("expiry record cleared")
	return rs.saveLocked()
}

// MarkInitialized records that onboarding ran, without adding a record.
func (rs *RecordStore) MarkInitialized() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.initialized {
		return nil
	}
	rs.initialized = true
	return rs.saveLocked()
}

// Invalidate forces the soft validity flag false, keeping the record.
func (rs *RecordStore) Invalidate() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.record == nil {
		return nil
	}
	rs.record.IsValid = false
	logging.LifecycleWarn("credential marked invalid by consuming layer")
	return rs.saveLocked()
}
