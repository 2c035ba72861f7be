package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// ExportedAccount is the sanitized wire shape. There is deliberately no
// credential field here, the type cannot carry one.
type ExportedAccount struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Email     string         `json:"email"`
	CreatedAt int64          `json:"createdAt"`
	LastUsed  int64          `json:"lastUsedAt,omitempty"`
	IsActive  bool           `json:"isActive"`
	UsageData *UsageSnapshot `json:"usageData,omitempty"`
}

// ExportDocument is the export/import artifact consumed by the host.
type ExportDocument struct {
	Version       int               `json:"version"`
	ExportDate    string            `json:"exportDate"`
	TotalAccounts int               `json:"totalAccounts"`
	Accounts      []ExportedAccount `json:"accounts"`
}

// ExportSanitized produces a serializable snapshot with all credential
// material stripped.
func (am *AccountManager) ExportSanitized() *ExportDocument {
	am.mu.RLock()
	defer am.mu.RUnlock()

	doc := &ExportDocument{
		Version:       1,
		ExportDate:    time.Now().UTC().Format(time.RFC3339),
		TotalAccounts: len(am.accounts),
		Accounts:      make([]ExportedAccount, 0, len(am.accounts)),
	}

	for _, acc := range am.accounts {
		exp := ExportedAccount{
			ID:        acc.ID,
			Name:      acc.Name,
			Email:     acc.Email,
			CreatedAt: acc.CreatedAt.UnixMilli(),
			IsActive:  acc.IsCurrent,
			UsageData: acc.Usage,
		}
		if !acc.LastUsedAt.IsZero() {
			exp.LastUsed = acc.LastUsedAt.UnixMilli()
		}
		doc.Accounts = append(doc.Accounts, exp)
	}

	return doc
}

// ExportJSON renders the sanitized snapshot as indented JSON.
func (am *AccountManager) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(am.ExportSanitized(), "", "  ")
}

// ImportAccounts merges exported metadata back in. Credentials never travel
// in export artifacts, so imported accounts arrive credential-less and are
// skipped when an account with the same email already exists. Entries
// without an email are refused.
func (am *AccountManager) ImportAccounts(data []byte) (int, error) {
	var doc ExportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("invalid import document: %w", err)
	}

	am.mu.Lock()
	defer am.mu.Unlock()

	imported := 0
	for _, exp := range doc.Accounts {
		if exp.Email == "" {
			continue
		}
		exists := false
		for _, acc := range am.accounts {
			if acc.Email == exp.Email {
				exists = true
				break
			}
		}
		if exists {
			continue
		}

		acc := &Account{
			ID:        exp.ID,
			Name:      exp.Name,
			Email:     exp.Email,
			CreatedAt: time.UnixMilli(exp.CreatedAt),
			Usage:     exp.UsageData,
		}
		if exp.LastUsed > 0 {
			acc.LastUsedAt = time.UnixMilli(exp.LastUsed)
		}
		am.accounts = append(am.accounts, acc)
		imported++
	}

	if imported > 0 {
		if err := am.saveLocked(); err != nil {
			return imported, err
		}
	}
	return imported, nil
}
