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

const testBearerToken = "bearer-token-abc"

func newDarkMarketServer(t *testing.T, listings []darkMarketListing, mentions []darkMarketMention) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testBearerToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{}`)) //nolint:errcheck
	})
	mux.HandleFunc("/api/listings/search", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(darkMarketSearchResponse{ //nolint:errcheck
			Total:    len(listings),
			Listings: listings,
		})
	})
	mux.HandleFunc("/api/mentions", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("keywords"))
		json.NewEncoder(w).Encode(darkMarketMentionsResponse{ //nolint:errcheck
			Total:    len(mentions),
			Mentions: mentions,
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestDarkMarket(t *testing.T, baseURL string) *DarkMarket {
	t.Helper()
	vault := &stubVault{creds: &core.Credentials{APIKey: testAPIKey, Token: testBearerToken}}
	store := credentials.NewStore(vault, zap.NewNop().Sugar())
	t.Cleanup(store.Close)

	source := testSource(baseURL, fastRetry())
	source.ID = "darkmarket-test"
	source.Provider = core.ProviderTypeMarketplace

	conn, err := NewDarkMarket(source, store, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.NoError(t, conn.Initialize(context.Background()))
	t.Cleanup(func() { conn.Close() }) //nolint:errcheck
	return conn
}

func TestDarkMarket_RequiresBearerToken(t *testing.T) {
	vault := &stubVault{creds: &core.Credentials{APIKey: testAPIKey}} // no token
	store := credentials.NewStore(vault, zap.NewNop().Sugar())
	defer store.Close()

	server := newDarkMarketServer(t, nil, nil)
	source := testSource(server.URL, fastRetry())
	source.ID = "darkmarket-test"
	source.Provider = core.ProviderTypeMarketplace

	conn, err := NewDarkMarket(source, store, zap.NewNop().Sugar())
	require.NoError(t, err)

	err = conn.Initialize(context.Background())
	assert.ErrorIs(t, err, credentials.ErrInvalidAfterRotation)
}

func TestDarkMarket_SearchMarketplaces(t *testing.T) {
	recent := time.Now().Add(-24 * time.Hour).UTC().Format(time.RFC3339)
	server := newDarkMarketServer(t, []darkMarketListing{
		{
			URL:         "https://market.onion/listing/1",
			Title:       "MegaCorp employee credentials",
			Marketplace: "alpha",
			Category:    "credentials",
			PriceUSD:    250,
			Confidence:  0.8,
			LastSeen:    recent,
			VendorName:  "seller9",
		},
		{
			URL:        "https://market.onion/listing/2",
			Title:      "maybe related",
			Category:   "misc",
			Confidence: 0.1,
		},
	}, nil)
	conn := newTestDarkMarket(t, server.URL)

	results, err := conn.SearchMarketplaces(context.Background(), core.MarketplaceQuery{
		Keywords:      []string{"megacorp"},
		Range:         breachRange(),
		MinConfidence: 50,
	})
	require.NoError(t, err)
	require.Len(t, results, 1, "low-confidence listings are filtered out")

	listing := results[0]
	assert.Equal(t, "https://market.onion/listing/1", listing.URL)
	assert.InDelta(t, 80.0, listing.Confidence, 0.001)
	// 35 + 0.8*25 + credentials category + fresh listing
	assert.Equal(t, 90, listing.RiskScore)
	assert.Equal(t, "seller9", listing.Metadata["darkmarket_vendor"])
}

func TestDarkMarket_MonitorKeywords(t *testing.T) {
	server := newDarkMarketServer(t, nil, []darkMarketMention{
		{Keyword: "megacorp", Context: "selling megacorp db", URL: "https://forum.onion/t/1", SeenAt: "2026-08-20T10:00:00Z"},
		{Keyword: "megacorp", Context: "megacorp creds fresh", URL: "https://forum.onion/t/2", SeenAt: "2026-08-21T10:00:00Z"},
	})
	conn := newTestDarkMarket(t, server.URL)

	result, err := conn.MonitorKeywords(context.Background(), []string{"megacorp"})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "darkmarket-test", result.SourceID)
	assert.Equal(t, 2, result.TotalHits)
	require.Len(t, result.Mentions, 2)
	assert.Equal(t, "megacorp", result.Mentions[0].Keyword)
	assert.Equal(t, 20, result.RiskScore)
}

func TestDarkMarket_MonitorKeywords_EmptySetSkipsProvider(t *testing.T) {
	server := newDarkMarketServer(t, nil, nil)
	conn := newTestDarkMarket(t, server.URL)

	result, err := conn.MonitorKeywords(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Zero(t, result.TotalHits)
}

func TestDarkMarket_UnsupportedOperationsReturnEmpty(t *testing.T) {
	server := newDarkMarketServer(t, nil, nil)
	conn := newTestDarkMarket(t, server.URL)

	creds, err := conn.SearchCredentials(context.Background(), core.CredentialQuery{Range: breachRange()})
	require.NoError(t, err)
	assert.Empty(t, creds)

	breaches, err := conn.SearchBreachDatabases(context.Background(), core.BreachQuery{Range: breachRange()})
	require.NoError(t, err)
	assert.Empty(t, breaches)
}
