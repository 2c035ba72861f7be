package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"credkeeper/internal/config"
	"credkeeper/internal/lifecycle"
	"credkeeper/internal/store"
	"credkeeper/internal/usage"
)

func TestRefreshAllUsagePollsEveryAccount(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		// One account's session is dead; the survey skips it.
		if r.Header.Get("Cookie") == "sessionToken=dead-account-0001" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"requests": 10, "limit": 100}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	accounts, err := store.NewAccountManager(dir)
	require.NoError(t, err)
	records, err := lifecycle.NewRecordStore(dir)
	require.NoError(t, err)
	boundary, err := usage.NewBoundary(dir, srv.URL)
	require.NoError(t, err)

	o := New(config.DefaultUserConfig(), accounts, records, boundary)

	a, err := accounts.AddAccount("A", "a@x.com", "sessionToken=live-account-0001")
	require.NoError(t, err)
	b, err := accounts.AddAccount("B", "b@x.com", "sessionToken=dead-account-0001")
	require.NoError(t, err)
	c, err := accounts.AddAccount("C", "c@x.com", "sessionToken=live-account-0002")
	require.NoError(t, err)

	refreshed, err := o.RefreshAllUsage(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, refreshed)
	require.Equal(t, int64(3), hits.Load())

	require.NotNil(t, accounts.Get(a.ID).Usage)
	require.Nil(t, accounts.Get(b.ID).Usage)
	require.NotNil(t, accounts.Get(c.ID).Usage)
	require.Equal(t, 10, accounts.Get(a.ID).Usage.Requests)

	// A non-current account's rejection must not flag the record.
	require.Nil(t, o.Records().Record())
}
