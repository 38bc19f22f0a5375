package woo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(url string) Config {
	return Config{
		BaseURL:        url,
		ConsumerKey:    "ck_test",
		ConsumerSecret: "cs_test",
		HourlyQuota:    3600000,
		TimeoutSeconds: 5,
		MaxRetries:     3,
		PageSize:       100,
	}
}

func TestGetDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "ck_test", user)
		assert.Equal(t, "cs_test", pass)
		w.Write([]byte(`[{"id": 7, "name": "Chair", "regular_price": "19.99"}]`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), nil)

	var products []Product
	err := client.Get(context.Background(), "/products", nil, &products)

	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, int64(7), products[0].ID)
	assert.Equal(t, "19.99", products[0].RegularPrice)
}

func TestThrottleIsRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), nil)

	var products []Product
	err := client.Get(context.Background(), "/products", nil, &products)

	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	stats := client.TakeStats()
	assert.Equal(t, 1, stats.Retries)
}

func TestTransientIsRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), nil)

	var products []Product
	err := client.Get(context.Background(), "/products", nil, &products)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, client.TakeStats().Retries)
}

func TestTransientExhaustsBudget(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), nil)

	err := client.Get(context.Background(), "/products", nil, nil)

	require.Error(t, err)
	var tErr *TransientError
	assert.ErrorAs(t, err, &tErr)
	assert.Equal(t, 3, calls)
}

func TestFatalIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message": "invalid signature"}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), nil)

	err := client.Get(context.Background(), "/products", nil, nil)

	require.Error(t, err)
	var fErr *FatalError
	require.ErrorAs(t, err, &fErr)
	assert.Equal(t, http.StatusUnauthorized, fErr.Status)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, client.TakeStats().Retries)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxRetries = 1
	client := NewClient(cfg, nil)

	for i := 0; i < 6; i++ {
		require.Error(t, client.Get(context.Background(), "/products", nil, nil))
	}

	// The breaker is open now; the next call never reaches the server.
	before := calls
	err := client.Get(context.Background(), "/products", nil, nil)

	require.Error(t, err)
	var tErr *TransientError
	assert.ErrorAs(t, err, &tErr)
	assert.Equal(t, before, calls)
}

func TestUpdateProductTargetsVariation(t *testing.T) {
	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), nil)

	stock := 5
	variationID := int64(42)
	err := client.UpdateProduct(context.Background(), 7, &variationID, ProductUpdate{StockQuantity: &stock})

	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/products/7/variations/42", gotPath)
}
