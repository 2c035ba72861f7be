package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// assertNoCredentialKey walks arbitrarily nested parsed JSON and fails on any
// key named "credential".
func assertNoCredentialKey(t *testing.T, v interface{}) {
	t.Helper()
	switch val := v.(type) {
	case map[string]interface{}:
		for k, inner := range val {
			require.NotEqual(t, "credential", k, "export must never carry a credential key")
			assertNoCredentialKey(t, inner)
		}
	case []interface{}:
		for _, inner := range val {
			assertNoCredentialKey(t, inner)
		}
	}
}

func TestExportSanitized_NoCredentialAtAnyDepth(t *testing.T) {
	manager := newTestManager(t)

	_, err := manager.AddAccount("Work", "w@x.com", "sessionToken=verysecret")
	require.NoError(t, err)
	acc, err := manager.AddAccount("Home", "h@x.com", "sessionToken=alsosecret")
	require.NoError(t, err)
	manager.UpdateUsage(acc.ID, UsageSnapshot{Requests: 42, Limit: 500, FetchedAt: time.Now()})

	data, err := manager.ExportJSON()
	require.NoError(t, err)
	require.NotContains(t, string(data), "verysecret")
	require.NotContains(t, string(data), "alsosecret")

	var parsed interface{}
	require.NoError(t, json.Unmarshal(data, &parsed))
	assertNoCredentialKey(t, parsed)
}

func TestExportSanitized_Shape(t *testing.T) {
	manager := newTestManager(t)

	first, err := manager.AddAccount("Work", "w@x.com", "s=abc")
	require.NoError(t, err)

	doc := manager.ExportSanitized()
	require.Equal(t, 1, doc.Version)
	require.Equal(t, 1, doc.TotalAccounts)
	require.Len(t, doc.Accounts, 1)
	require.NotEmpty(t, doc.ExportDate)

	exp := doc.Accounts[0]
	require.Equal(t, first.ID, exp.ID)
	require.Equal(t, "Work", exp.Name)
	require.Equal(t, "w@x.com", exp.Email)
	require.True(t, exp.IsActive)
}

func TestImportAccounts_SkipsDuplicatesAndBlankEmails(t *testing.T) {
	manager := newTestManager(t)
	_, err := manager.AddAccount("Work", "w@x.com", "s=abc")
	require.NoError(t, err)

	doc := ExportDocument{
		Version:       1,
		TotalAccounts: 3,
		Accounts: []ExportedAccount{
			{ID: "id-1", Name: "Work", Email: "w@x.com", CreatedAt: time.Now().UnixMilli()},   // duplicate
			{ID: "id-2", Name: "Other", Email: "o@x.com", CreatedAt: time.Now().UnixMilli()},  // imported
			{ID: "id-3", Name: "NoMail", Email: "", CreatedAt: time.Now().UnixMilli()},        // refused
		},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	imported, err := manager.ImportAccounts(data)
	require.NoError(t, err)
	require.Equal(t, 1, imported)
	require.Equal(t, 2, manager.Len())

	// Imported accounts arrive credential-less.
	var found *Account
	for _, acc := range manager.List() {
		if acc.Email == "o@x.com" {
			found = acc
		}
	}
	require.NotNil(t, found)
	require.Empty(t, found.Credential)
	require.False(t, found.IsCurrent, "import must not steal the current pointer")
}
