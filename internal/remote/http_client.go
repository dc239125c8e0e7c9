package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"carbonlock/marketplace-portal/internal/contracts"
	"carbonlock/marketplace-portal/pkg/security"
)

const (
	contractsPath = "contracts"
	creditsPath   = "credits"
	eventsPath    = "events"
)

// HTTPClient calls the remote contract service over JSON/HTTP.
type HTTPClient struct {
	endpoint string
	timeout  time.Duration
	signer   security.Signer
	client   *http.Client
	logger   *zap.Logger
	now      func() time.Time
}

// HTTPOption customizes an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) { h.client = c }
}

// WithSigner attaches a caller identity token to every request.
func WithSigner(s security.Signer) HTTPOption {
	return func(h *HTTPClient) { h.signer = s }
}

// WithClock overrides the clock used to sign identity tokens.
func WithClock(now func() time.Time) HTTPOption {
	return func(h *HTTPClient) { h.now = now }
}

// NewHTTPClient returns a client for the service rooted at endpoint.
func NewHTTPClient(endpoint string, timeout time.Duration, logger *zap.Logger, opts ...HTTPOption) *HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	c := &HTTPClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		timeout:  timeout,
		client:   &http.Client{},
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type createContractRequest struct {
	Buyer        *string `json:"buyer"`
	Seller       string  `json:"seller"`
	AmountTonnes float64 `json:"amount_tonnes"`
	PriceUSD     float64 `json:"price_usd"`
	DeliveryYear int     `json:"delivery_year"`
}

type createContractResponse struct {
	ID *uint64 `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ListContracts requests every contract known to the service.
func (c *HTTPClient) ListContracts(ctx context.Context) ([]contracts.Contract, error) {
	var raws []contracts.RawContract
	if err := c.do(ctx, "list_contracts", http.MethodGet, contractsPath, nil, &raws); err != nil {
		return nil, err
	}
	return contracts.MapContracts(raws)
}

// ListCredits requests every credit known to the service.
func (c *HTTPClient) ListCredits(ctx context.Context) ([]contracts.Credit, error) {
	var raws []contracts.RawCredit
	if err := c.do(ctx, "list_credits", http.MethodGet, creditsPath, nil, &raws); err != nil {
		return nil, err
	}
	return contracts.MapCredits(raws)
}

// ListEvents requests the service event log.
func (c *HTTPClient) ListEvents(ctx context.Context) ([]contracts.Event, error) {
	var raws []contracts.RawEvent
	if err := c.do(ctx, "list_events", http.MethodGet, eventsPath, nil, &raws); err != nil {
		return nil, err
	}
	return contracts.MapEvents(raws)
}

// CreateContract submits a new contract and returns its id.
func (c *HTTPClient) CreateContract(ctx context.Context, draft contracts.ContractDraft) (uint64, error) {
	var resp createContractResponse
	if err := c.do(ctx, "create_contract", http.MethodPost, contractsPath, toRequest(draft), &resp); err != nil {
		return 0, err
	}
	if resp.ID == nil {
		return 0, &contracts.MappingError{Record: "create_contract response", Field: "id", Reason: "is missing"}
	}
	return *resp.ID, nil
}

// UpdateContract replaces the editable fields of a contract.
func (c *HTTPClient) UpdateContract(ctx context.Context, id uint64, draft contracts.ContractDraft) (contracts.Contract, error) {
	var raw contracts.RawContract
	path := fmt.Sprintf("%s/%d", contractsPath, id)
	if err := c.do(ctx, "update_contract", http.MethodPut, path, toRequest(draft), &raw); err != nil {
		return contracts.Contract{}, err
	}
	return contracts.MapContract(0, raw)
}

// DeleteContract removes a contract.
func (c *HTTPClient) DeleteContract(ctx context.Context, id uint64) error {
	return c.do(ctx, "delete_contract", http.MethodDelete, fmt.Sprintf("%s/%d", contractsPath, id), nil, nil)
}

// BuyContract purchases a contract for the caller.
func (c *HTTPClient) BuyContract(ctx context.Context, id uint64) error {
	return c.do(ctx, "buy_contract", http.MethodPost, fmt.Sprintf("%s/%d/buy", contractsPath, id), nil, nil)
}

// ExpireContract marks a contract as expired.
func (c *HTTPClient) ExpireContract(ctx context.Context, id uint64) error {
	return c.do(ctx, "expire_contract", http.MethodPost, fmt.Sprintf("%s/%d/expire", contractsPath, id), nil, nil)
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func toRequest(draft contracts.ContractDraft) createContractRequest {
	return createContractRequest{
		Buyer:        draft.Buyer,
		Seller:       draft.Seller,
		AmountTonnes: draft.AmountTonnes,
		PriceUSD:     draft.PriceUSD,
		DeliveryYear: draft.DeliveryYear,
	}
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, body, result interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	url := fmt.Sprintf("%s/%s", c.endpoint, path)
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.signer != nil {
		token, err := c.signer.Sign(c.now())
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rerr := &RemoteError{Operation: op, StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var er errorResponse
		if json.Unmarshal(data, &er) == nil && er.Error != "" {
			rerr.Message = er.Error
		}
		c.logger.Warn("Remote call rejected",
			zap.String("operation", op),
			zap.Int("status", resp.StatusCode),
			zap.String("message", rerr.Message))
		return rerr
	}

	if result == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}
