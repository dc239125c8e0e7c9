package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbonlock/marketplace-portal/internal/contracts"
	"carbonlock/marketplace-portal/pkg/security"
)

const testSecret = "test-secret"

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	signer, err := security.NewSigner("2vxsx-fae", testSecret, time.Minute)
	require.NoError(t, err)
	return NewHTTPClient(srv.URL+"/", time.Second, zap.NewNop(), WithSigner(signer))
}

func TestHTTPClientListContracts(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/contracts", r.URL.Path)

		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		identity, err := security.VerifyToken(token, testSecret, time.Now())
		require.NoError(t, err)
		assert.Equal(t, "2vxsx-fae", identity.Principal)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"id": 3, "buyer": null, "seller": "aaaaa-aa", "amount_tonnes": 10,
			"price_usd": 12.5, "delivery_year": 2026, "status": {"Created": null},
			"created_at": 1, "updated_at": 2}]`)
	})

	list, err := client.ListContracts(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, uint64(3), list[0].ID)
	assert.Equal(t, contracts.StatusCreated, list[0].Status)
	assert.Nil(t, list[0].Buyer)
}

func TestHTTPClientListContractsMappingError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id": 3, "seller": "aaaaa-aa"}]`)
	})

	_, err := client.ListContracts(context.Background())
	var merr *contracts.MappingError
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, "amount_tonnes", merr.Field)
}

func TestHTTPClientCreateContract(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/contracts", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "aaaaa-aa", body["seller"])
		assert.Nil(t, body["buyer"])
		assert.Equal(t, float64(100), body["amount_tonnes"])
		assert.NotContains(t, body, "expiration")

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id": 42}`)
	})

	id, err := client.CreateContract(context.Background(), contracts.ContractDraft{
		Seller:       "aaaaa-aa",
		AmountTonnes: 100,
		PriceUSD:     50,
		DeliveryYear: 2026,
		Expiration:   time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)
}

func TestHTTPClientRemoteErrorIsVerbatim(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/contracts/9/buy", r.URL.Path)
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"error": "Contract is not available for purchase"}`)
	})

	err := client.BuyContract(context.Background(), 9)
	var rerr *RemoteError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "Contract is not available for purchase", err.Error())
	assert.Equal(t, http.StatusConflict, rerr.StatusCode)
	assert.Equal(t, "buy_contract", rerr.Operation)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestHTTPClientNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
	})

	err := client.DeleteContract(context.Background(), 5)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "Not Found", err.Error())
}

func TestHTTPClientUpdateContract(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/contracts/4", r.URL.Path)
		_, _ = io.WriteString(w, `{"id": 4, "buyer": "2vxsx-fae", "seller": "aaaaa-aa", "amount_tonnes": 7,
			"price_usd": 3, "delivery_year": 2027, "status": "Created", "created_at": 1, "updated_at": 9}`)
	})

	buyer := "2vxsx-fae"
	updated, err := client.UpdateContract(context.Background(), 4, contracts.ContractDraft{
		Buyer: &buyer, Seller: "aaaaa-aa", AmountTonnes: 7, PriceUSD: 3, DeliveryYear: 2027,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9), updated.UpdatedAt)
	assert.Equal(t, "2vxsx-fae", updated.BuyerOrEmpty())
}
