// Package store persists the multi-account credential model: named accounts,
// each wrapping one opaque credential, with a single "current" pointer.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"credkeeper/internal/logging"
)

// UsageSnapshot holds last-known usage figures for an account. Advisory only,
// may be stale.
type UsageSnapshot struct {
	Requests  int       `json:"requests"`
	Limit     int       `json:"limit"`
	FetchedAt time.Time `json:"-"`
}

// Account wraps one credential plus metadata, enabling multiple identities
// to be stored and switched between.
type Account struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`

	// Credential is an opaque string granting authenticated access.
	// Never exported, never logged in full.
	Credential string `json:"credential"`

	CreatedAt  time.Time `json:"-"`
	LastUsedAt time.Time `json:"-"`

	IsCurrent bool `json:"isCurrent"`

	Usage *UsageSnapshot `json:"usage,omitempty"`
}

// accountAlias strips Account's methods so the aux struct does not
// inherit the custom (un)marshallers.
type accountAlias Account

// Wire format uses millisecond timestamps to stay compatible with the
// original store files.
type accountJSON struct {
	accountAlias
	CreatedAt  int64 `json:"createdAt"`
	LastUsedAt int64 `json:"lastUsedAt,omitempty"`
	UsageAt    int64 `json:"usageFetchedAt,omitempty"`
}

func (a *Account) MarshalJSON() ([]byte, error) {
	aux := accountJSON{
		accountAlias: accountAlias(*a),
		CreatedAt:    a.CreatedAt.UnixMilli(),
	}
	if !a.LastUsedAt.IsZero() {
		aux.LastUsedAt = a.LastUsedAt.UnixMilli()
	}
	if a.Usage != nil && !a.Usage.FetchedAt.IsZero() {
		aux.UsageAt = a.Usage.FetchedAt.UnixMilli()
	}
	return json.Marshal(aux)
}

func (a *Account) UnmarshalJSON(data []byte) error {
	var aux accountJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*a = Account(aux.accountAlias)
	if aux.CreatedAt > 0 {
		a.CreatedAt = time.UnixMilli(aux.CreatedAt)
	}
	if aux.LastUsedAt > 0 {
		a.LastUsedAt = time.UnixMilli(aux.LastUsedAt)
	}
	if a.Usage != nil && aux.UsageAt > 0 {
		a.Usage.FetchedAt = time.UnixMilli(aux.UsageAt)
	}
	return nil
}

// CredentialSink is the boundary to the consuming usage-tracking layer.
// The store pushes the current account's credential through it on every
// switch and clears it when the last account goes away.
type CredentialSink interface {
	SetCredential(credential string)
	ClearCredential()
	HasCredential() bool
}

// AccountStorageV1 represents the disk format.
type AccountStorageV1 struct {
	Version          int        `json:"version"`
	Accounts         []*Account `json:"accounts"`
	CurrentAccountID string     `json:"currentAccountId,omitempty"`
	LastUpdated      int64      `json:"lastUpdated"`
}

// AccountManager manages the persisted account set and the current pointer.
// Mutations are atomic read-modify-write sequences against one snapshot;
// concurrent mutation from multiple call sites must be serialized by the
// caller (the orchestrator).
type AccountManager struct {
	filePath    string
	accounts    []*Account
	currentID   string
	lastUpdated time.Time

	sink CredentialSink

	mu sync.RWMutex
}

// NewAccountManager creates an account manager persisting under stateDir.
func NewAccountManager(stateDir string) (*AccountManager, error) {
	if stateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		stateDir = filepath.Join(home, ".credkeeper")
	}

	am := &AccountManager{
		filePath: filepath.Join(stateDir, "accounts.json"),
		accounts: make([]*Account, 0),
	}

	if err := am.Load(); err != nil {
		// Ignore load error if file doesn't exist, just start empty
		if !os.IsNotExist(err) {
			logging.StoreWarn("failed to load accounts: %v", err)
		}
	}

	return am, nil
}

// SetSink attaches the external credential boundary. If an account is already
// current its credential is pushed immediately.
func (am *AccountManager) SetSink(sink CredentialSink) {
	am.mu.Lock()
	am.sink = sink
	current := am.currentLocked()
	am.mu.Unlock()

	if sink == nil {
		return
	}
	if current != nil {
		sink.SetCredential(current.Credential)
	} else {
		sink.ClearCredential()
	}
}

// FilePath returns the backing file location.
func (am *AccountManager) FilePath() string {
	return am.filePath
}

// Load loads accounts from disk.
func (am *AccountManager) Load() error {
	am.mu.Lock()
	defer am.mu.Unlock()
	return am.loadLocked()
}

func (am *AccountManager) loadLocked() error {
	data, err := os.ReadFile(am.filePath)
	if err != nil {
		return err
	}

	var storage AccountStorageV1
	if err := json.Unmarshal(data, &storage); err == nil && storage.Version == 1 {
		am.accounts = storage.Accounts
		am.currentID = storage.CurrentAccountID
		if storage.LastUpdated > 0 {
			am.lastUpdated = time.UnixMilli(storage.LastUpdated)
		}
		am.repairCurrentLocked()
		return nil
	}

	// Fallback: legacy format, a bare list of accounts
	var legacy []*Account
	if err := json.Unmarshal(data, &legacy); err == nil {
		am.accounts = legacy
		am.currentID = ""
		for _, acc := range legacy {
			if acc.IsCurrent {
				am.currentID = acc.ID
				break
			}
		}
		am.repairCurrentLocked()
		return nil
	}

	return fmt.Errorf("unknown account file format")
}

// repairCurrentLocked enforces the at-most-one-current invariant after a load.
func (am *AccountManager) repairCurrentLocked() {
	seen := false
	for _, acc := range am.accounts {
		if acc.ID == am.currentID && !seen {
			acc.IsCurrent = true
			seen = true
			continue
		}
		acc.IsCurrent = false
	}
	if !seen {
		am.currentID = ""
	}
}

// Save saves accounts to disk.
func (am *AccountManager) Save() error {
	am.mu.Lock()
	defer am.mu.Unlock()
	return am.saveLocked()
}

func (am *AccountManager) saveLocked() error {
	am.lastUpdated = time.Now()
	storage := AccountStorageV1{
		Version:          1,
		Accounts:         am.accounts,
		CurrentAccountID: am.currentID,
		LastUpdated:      am.lastUpdated.UnixMilli(),
	}

	data, err := json.MarshalIndent(storage, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(am.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(am.filePath, data, 0600)
}

// AddAccount adds a new account. The first account added becomes current.
// Rejects byte-for-byte duplicate credentials and duplicate emails without
// changing the store.
func (am *AccountManager) AddAccount(name, email, credential string) (*Account, error) {
	am.mu.Lock()
	defer am.mu.Unlock()

	for _, existing := range am.accounts {
		if existing.Credential == credential {
			return nil, ErrDuplicateCredential
		}
		if email != "" && existing.Email == email {
			return nil, ErrDuplicateEmail
		}
	}

	acc := &Account{
		ID:         uuid.NewString(),
		Name:       name,
		Email:      email,
		Credential: credential,
		CreatedAt:  time.Now(),
	}
	am.accounts = append(am.accounts, acc)

	if am.currentID == "" {
		am.setCurrentLocked(acc)
	}

	if err := am.saveLocked(); err != nil {
		return nil, err
	}

	logging.Store("account added: %s (%s)", acc.Name, logging.Redact(credential))
	return acc, nil
}

// SwitchTo makes the target account current, updates its lastUsedAt, and
// publishes its credential to the external boundary. Returns
// ErrAccountNotFound when the ID is unknown, or the persistence error when
// the new current pointer could not be written.
func (am *AccountManager) SwitchTo(accountID string) error {
	am.mu.Lock()
	defer am.mu.Unlock()

	target := am.getLocked(accountID)
	if target == nil {
		return ErrAccountNotFound
	}

	am.setCurrentLocked(target)
	if err := am.saveLocked(); err != nil {
		return err
	}

	logging.Store("switched to account %s", target.Name)
	return nil
}

// setCurrentLocked flips isCurrent exclusively onto acc and pushes the
// credential through the sink. lastUsedAt only moves forward.
func (am *AccountManager) setCurrentLocked(acc *Account) {
	for _, a := range am.accounts {
		a.IsCurrent = a.ID == acc.ID
	}
	am.currentID = acc.ID
	if now := time.Now(); now.After(acc.LastUsedAt) {
		acc.LastUsedAt = now
	}
	if am.sink != nil {
		am.sink.SetCredential(acc.Credential)
	}
}

// Remove deletes an account. If the removed account was current, the first
// remaining account becomes current; with none remaining, the current pointer
// and the boundary's credential are cleared. Returns ErrAccountNotFound for
// unknown IDs, or the persistence error when the removal could not be
// written.
func (am *AccountManager) Remove(accountID string) error {
	am.mu.Lock()
	defer am.mu.Unlock()

	idx := -1
	for i, acc := range am.accounts {
		if acc.ID == accountID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return ErrAccountNotFound
	}

	wasCurrent := am.accounts[idx].ID == am.currentID
	am.accounts = append(am.accounts[:idx], am.accounts[idx+1:]...)

	if wasCurrent {
		if len(am.accounts) > 0 {
			am.setCurrentLocked(am.accounts[0])
		} else {
			am.currentID = ""
			if am.sink != nil {
				am.sink.ClearCredential()
			}
		}
	}

	if err := am.saveLocked(); err != nil {
		return err
	}
	logging.Store("account removed, %d remaining", len(am.accounts))
	return nil
}

// Get retrieves an account by ID.
func (am *AccountManager) Get(accountID string) *Account {
	am.mu.RLock()
	defer am.mu.RUnlock()
	return am.getLocked(accountID)
}

func (am *AccountManager) getLocked(accountID string) *Account {
	for _, acc := range am.accounts {
		if acc.ID == accountID {
			return acc
		}
	}
	return nil
}

// FindByEmail retrieves an account by email address, or nil.
func (am *AccountManager) FindByEmail(email string) *Account {
	am.mu.RLock()
	defer am.mu.RUnlock()
	if email == "" {
		return nil
	}
	for _, acc := range am.accounts {
		if acc.Email == email {
			return acc
		}
	}
	return nil
}

// UpdateCredential replaces an account's credential, used when a refresh
// re-login yields a new session for an identity already on file. Rejects
// a credential already held by a different account. If the account is
// current the new credential is pushed through the sink.
func (am *AccountManager) UpdateCredential(accountID, credential string) error {
	am.mu.Lock()
	defer am.mu.Unlock()

	target := am.getLocked(accountID)
	if target == nil {
		return ErrAccountNotFound
	}
	for _, acc := range am.accounts {
		if acc.ID != accountID && acc.Credential == credential {
			return ErrDuplicateCredential
		}
	}

	target.Credential = credential
	if target.ID == am.currentID && am.sink != nil {
		am.sink.SetCredential(credential)
	}
	if err := am.saveLocked(); err != nil {
		return err
	}

	logging.Store("credential refreshed for account %s (%s)", target.Name, logging.Redact(credential))
	return nil
}

// Current returns the current account, or nil.
func (am *AccountManager) Current() *Account {
	am.mu.RLock()
	defer am.mu.RUnlock()
	return am.currentLocked()
}

func (am *AccountManager) currentLocked() *Account {
	if am.currentID == "" {
		return nil
	}
	return am.getLocked(am.currentID)
}

// List returns all accounts.
func (am *AccountManager) List() []*Account {
	am.mu.RLock()
	defer am.mu.RUnlock()
	result := make([]*Account, len(am.accounts))
	copy(result, am.accounts)
	return result
}

// Len returns the account count.
func (am *AccountManager) Len() int {
	am.mu.RLock()
	defer am.mu.RUnlock()
	return len(am.accounts)
}

// LastUpdated returns the stamp of the last mutating call.
func (am *AccountManager) LastUpdated() time.Time {
	am.mu.RLock()
	defer am.mu.RUnlock()
	return am.lastUpdated
}

// UpdateUsage records a usage snapshot on an account.
func (am *AccountManager) UpdateUsage(accountID string, snap UsageSnapshot) bool {
	am.mu.Lock()
	defer am.mu.Unlock()

	acc := am.getLocked(accountID)
	if acc == nil {
		return false
	}
	acc.Usage = &snap
	if err := am.saveLocked(); err != nil {
		logging.StoreWarn("usage snapshot not persisted: %v", err)
	}
	return true
}

// MigrateLegacySingleCredential wraps a pre-multi-account credential into a
// new current Account. Idempotent: if any account already holds this exact
// credential, nothing changes. Must run before other initialization reads
// the store.
func (am *AccountManager) MigrateLegacySingleCredential(rawCredential string) (*Account, error) {
	if rawCredential == "" {
		return nil, nil
	}

	am.mu.Lock()
	defer am.mu.Unlock()

	for _, existing := range am.accounts {
		if existing.Credential == rawCredential {
			return existing, nil
		}
	}

	acc := &Account{
		ID:         uuid.NewString(),
		Name:       "Migrated Account",
		Credential: rawCredential,
		CreatedAt:  time.Now(),
	}
	am.accounts = append(am.accounts, acc)
	am.setCurrentLocked(acc)

	if err := am.saveLocked(); err != nil {
		return nil, err
	}

	logging.Store("migrated legacy credential into account %s", acc.ID)
	return acc, nil
}
