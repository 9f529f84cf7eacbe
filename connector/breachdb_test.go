package connector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"darkmon/core"
	"darkmon/credentials"
)

func newBreachDBServer(t *testing.T, breaches []breachDBBreach, accounts map[string][]breachDBBreach) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/subscription/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{}`)) //nolint:errcheck
	})
	mux.HandleFunc("/api/v3/breaches", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(breaches) //nolint:errcheck
	})
	mux.HandleFunc("/api/v3/breachedaccount/", func(w http.ResponseWriter, r *http.Request) {
		email := r.URL.Path[len("/api/v3/breachedaccount/"):]
		hits, ok := accounts[email]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(hits) //nolint:errcheck
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestBreachDB(t *testing.T, baseURL string) *BreachDB {
	t.Helper()
	vault := &stubVault{creds: &core.Credentials{APIKey: testAPIKey}}
	store := credentials.NewStore(vault, zap.NewNop().Sugar())
	t.Cleanup(store.Close)

	source := testSource(baseURL, fastRetry())
	source.ID = "breachdb-test"
	source.Provider = core.ProviderTypeBreachRepo

	conn, err := NewBreachDB(source, store, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.NoError(t, conn.Initialize(context.Background()))
	t.Cleanup(func() { conn.Close() }) //nolint:errcheck
	return conn
}

func breachRange() core.TimeRange {
	return core.TimeRange{
		Start: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Now(),
	}
}

func TestBreachDB_SearchBreachDatabases(t *testing.T) {
	server := newBreachDBServer(t, []breachDBBreach{
		{
			Name:        "MegaCorp",
			Title:       "MegaCorp Breach",
			Domain:      "megacorp.com",
			BreachDate:  "2023-05-01",
			AddedDate:   "2023-06-01",
			PwnCount:    25_000_000,
			DataClasses: []string{"Email addresses", "Passwords"},
			IsVerified:  true,
		},
		{
			Name:       "OldLeak",
			Domain:     "old.example",
			BreachDate: "2010-01-01", // outside the query range
			IsVerified: true,
		},
		{
			Name:       "Unverified",
			Domain:     "shady.example",
			BreachDate: "2023-01-01",
			IsVerified: false,
		},
	}, nil)
	conn := newTestBreachDB(t, server.URL)

	results, err := conn.SearchBreachDatabases(context.Background(), core.BreachQuery{
		Range:        breachRange(),
		VerifiedOnly: true,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	breach := results[0]
	assert.Equal(t, "MegaCorp", breach.BreachName)
	assert.Equal(t, []string{"megacorp.com"}, breach.AffectedDomains)
	assert.Equal(t, int64(25_000_000), breach.RecordCount)
	assert.True(t, breach.Verified)
	// verified + >10M records + password class
	assert.Equal(t, 80, breach.RiskScore)
}

func TestBreachDB_SearchCredentials_NotFoundMeansClean(t *testing.T) {
	server := newBreachDBServer(t, nil, map[string][]breachDBBreach{
		"pwned@example.com": {
			{Name: "MegaCorp", Domain: "megacorp.com", BreachDate: "2023-05-01", IsVerified: true},
		},
	})
	conn := newTestBreachDB(t, server.URL)

	results, err := conn.SearchCredentials(context.Background(), core.CredentialQuery{
		Emails: []string{"pwned@example.com", "clean@example.com"},
		Range:  breachRange(),
	})
	require.NoError(t, err, "a 404 for a clean account must not surface as an error")
	require.Len(t, results, 1)

	assert.Equal(t, "pwned@example.com", results[0].Email)
	assert.Equal(t, "MegaCorp", results[0].BreachName)
	assert.InDelta(t, 95.0, results[0].Confidence, 0.001)
}

func TestBreachDB_UnsupportedOperationsReturnEmpty(t *testing.T) {
	server := newBreachDBServer(t, nil, nil)
	conn := newTestBreachDB(t, server.URL)

	listings, err := conn.SearchMarketplaces(context.Background(), core.MarketplaceQuery{Range: breachRange()})
	require.NoError(t, err)
	assert.Empty(t, listings)

	aggregate, err := conn.MonitorKeywords(context.Background(), []string{"megacorp"})
	require.NoError(t, err)
	require.NotNil(t, aggregate)
	assert.Zero(t, aggregate.TotalHits)
}
