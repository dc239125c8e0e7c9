package remote

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"carbonlock/marketplace-portal/internal/contracts"
)

const (
	// EventLogSize bounds the event log; the oldest entry is dropped first.
	EventLogSize = 100
	// RiskHistoryLen bounds the per-credit risk score history.
	RiskHistoryLen = 10
	// SeedRiskScore is the first risk score of seeded credits.
	SeedRiskScore = 50
)

// MemoryService is an in-process stand-in for the remote contract service,
// used in dev mode and tests.
type MemoryService struct {
	mu           sync.RWMutex
	caller       string
	now          func() time.Time
	contracts    map[uint64]contracts.Contract
	credits      map[uint64]contracts.Credit
	events       []contracts.Event
	nextContract uint64
	nextCredit   uint64
}

// NewMemoryService returns an empty stand-in acting on behalf of caller.
func NewMemoryService(caller string, now func() time.Time) *MemoryService {
	if now == nil {
		now = time.Now
	}
	return &MemoryService{
		caller:       caller,
		now:          now,
		contracts:    make(map[uint64]contracts.Contract),
		credits:      make(map[uint64]contracts.Credit),
		events:       make([]contracts.Event, 0, EventLogSize),
		nextContract: 1,
		nextCredit:   1,
	}
}

func (m *MemoryService) ListContracts(ctx context.Context) ([]contracts.Contract, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]contracts.Contract, 0, len(m.contracts))
	for _, c := range m.contracts {
		out = append(out, cloneContract(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryService) ListCredits(ctx context.Context) ([]contracts.Credit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]contracts.Credit, 0, len(m.credits))
	for _, c := range m.credits {
		c.RiskScoreHistory = append([]int{}, c.RiskScoreHistory...)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryService) ListEvents(ctx context.Context) ([]contracts.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]contracts.Event{}, m.events...), nil
}

func (m *MemoryService) CreateContract(ctx context.Context, draft contracts.ContractDraft) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextContract
	m.nextContract++
	ts := m.now().Unix()
	m.contracts[id] = contracts.Contract{
		ID:           id,
		Buyer:        copyString(draft.Buyer),
		Seller:       draft.Seller,
		AmountTonnes: draft.AmountTonnes,
		PriceUSD:     draft.PriceUSD,
		DeliveryYear: draft.DeliveryYear,
		Status:       contracts.StatusCreated,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	m.emit(contracts.EventCreated, id, ts, nil)
	return id, nil
}

func (m *MemoryService) UpdateContract(ctx context.Context, id uint64, draft contracts.ContractDraft) (contracts.Contract, error) {
	if err := ctx.Err(); err != nil {
		return contracts.Contract{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contracts[id]
	if !ok {
		return contracts.Contract{}, notFound("update_contract")
	}
	if c.Status != contracts.StatusCreated {
		return contracts.Contract{}, &RemoteError{
			Operation:  "update_contract",
			StatusCode: http.StatusConflict,
			Message:    "Only contracts in Created status can be edited",
		}
	}
	c.Buyer = copyString(draft.Buyer)
	c.Seller = draft.Seller
	c.AmountTonnes = draft.AmountTonnes
	c.PriceUSD = draft.PriceUSD
	c.DeliveryYear = draft.DeliveryYear
	c.UpdatedAt = m.now().Unix()
	m.contracts[id] = c
	return cloneContract(c), nil
}

func (m *MemoryService) DeleteContract(ctx context.Context, id uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.contracts[id]; !ok {
		return notFound("delete_contract")
	}
	delete(m.contracts, id)
	return nil
}

// BuyContract moves a Created contract to Purchased. Unsold contracts take
// the caller as buyer.
func (m *MemoryService) BuyContract(ctx context.Context, id uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contracts[id]
	if !ok {
		return notFound("buy_contract")
	}
	if c.Status != contracts.StatusCreated {
		return &RemoteError{
			Operation:  "buy_contract",
			StatusCode: http.StatusConflict,
			Message:    "Contract is not available for purchase",
		}
	}
	c.Status = contracts.StatusPurchased
	c.UpdatedAt = m.now().Unix()
	if c.Buyer == nil && m.caller != "" {
		buyer := m.caller
		c.Buyer = &buyer
	}
	m.contracts[id] = c
	m.emit(contracts.EventPurchased, id, c.UpdatedAt, nil)
	return nil
}

// ExpireContract marks any known contract as Expired.
func (m *MemoryService) ExpireContract(ctx context.Context, id uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contracts[id]
	if !ok {
		return notFound("expire_contract")
	}
	c.Status = contracts.StatusExpired
	c.UpdatedAt = m.now().Unix()
	m.contracts[id] = c
	m.emit(contracts.EventExpired, id, c.UpdatedAt, nil)
	return nil
}

// CreateCredit registers a credit owned by the caller.
func (m *MemoryService) CreateCredit(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextCredit
	m.nextCredit++
	m.credits[id] = contracts.Credit{ID: id, Owner: m.caller, RiskScoreHistory: []int{}}
	return id, nil
}

// UpdateRiskScore records a new risk score, keeping the last RiskHistoryLen.
func (m *MemoryService) UpdateRiskScore(ctx context.Context, creditID uint64, score uint8) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.credits[creditID]
	if !ok {
		return &RemoteError{Operation: "update_risk_score", StatusCode: http.StatusNotFound, Message: "Credit not found"}
	}
	s := score
	c.RiskScore = &s
	c.RiskScoreHistory = append(c.RiskScoreHistory, int(score))
	if len(c.RiskScoreHistory) > RiskHistoryLen {
		c.RiskScoreHistory = append([]int{}, c.RiskScoreHistory[len(c.RiskScoreHistory)-RiskHistoryLen:]...)
	}
	m.credits[creditID] = c
	return nil
}

// SeedCredits registers n caller-owned credits, each scored SeedRiskScore.
func (m *MemoryService) SeedCredits(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		id, err := m.CreateCredit(ctx)
		if err != nil {
			return err
		}
		if err := m.UpdateRiskScore(ctx, id, SeedRiskScore); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryService) Close() error {
	return nil
}

// emit appends to the event log; callers hold m.mu.
func (m *MemoryService) emit(t contracts.EventType, id uint64, ts int64, details *string) {
	if len(m.events) >= EventLogSize {
		m.events = append(m.events[:0:0], m.events[len(m.events)-EventLogSize+1:]...)
	}
	m.events = append(m.events, contracts.Event{ContractID: id, EventType: t, Timestamp: ts, Details: details})
}

func notFound(op string) error {
	return &RemoteError{Operation: op, StatusCode: http.StatusNotFound, Message: "Contract not found"}
}

func cloneContract(c contracts.Contract) contracts.Contract {
	c.Buyer = copyString(c.Buyer)
	return c
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
