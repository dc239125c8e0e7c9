// Package marketplace is the shell core of the contract portal: it keeps the
// lists fetched from the remote service, runs form submissions and raises
// toasts.
package marketplace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"carbonlock/marketplace-portal/internal/contracts"
	"carbonlock/marketplace-portal/internal/notifications"
	"carbonlock/marketplace-portal/internal/remote"
)

// User-facing messages.
const (
	MsgInitFailed      = "Failed to initialize application. Please refresh the page."
	MsgContractUpdated = "Contract updated!"
	MsgContractDeleted = "Contract deleted!"
	MsgPurchased       = "Purchase successful!"
	MsgNoEvents        = "No events found."
)

// CreatedMessage is the toast raised after a contract is created.
func CreatedMessage(id uint64) string {
	return fmt.Sprintf("Contract #%d created successfully!", id)
}

// ExpiredMessage is the toast raised after a contract is expired.
func ExpiredMessage(id uint64) string {
	return fmt.Sprintf("Contract #%d expired.", id)
}

var (
	ErrNotInitialized       = errors.New("application is not initialized")
	ErrSubmissionInProgress = errors.New("a submission for this form is already in progress")
	ErrNotFound             = errors.New("contract not found")
)

// InitError wraps the failure of the initial fetch.
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	return MsgInitFailed
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// Options configures a Service.
type Options struct {
	// CallerPrincipal is the seller used when the creation form leaves it empty.
	CallerPrincipal  string
	PageSize         int
	DefaultSort      string
	DefaultDirection string
	Clock            func() time.Time
}

// Status describes whether the shell holds usable lists.
type Status struct {
	Initialized bool      `json:"initialized"`
	Error       string    `json:"error,omitempty"`
	LastRefresh time.Time `json:"last_refresh"`
	Contracts   int       `json:"contracts"`
	Credits     int       `json:"credits"`
}

// Details is a contract with its event history.
type Details struct {
	Contract contracts.Row     `json:"contract"`
	Events   []contracts.Event `json:"events"`
	Message  string            `json:"message,omitempty"`
	Next     []string          `json:"next_statuses"`
}

// Dashboard summarizes the contracts a participant is involved in.
type Dashboard struct {
	Principal   string             `json:"principal"`
	Contracts   []contracts.Row    `json:"contracts"`
	ByStatus    map[string]int     `json:"by_status"`
	TotalTonnes float64            `json:"total_tonnes"`
	TotalUSD    float64            `json:"total_usd"`
	Credits     []contracts.Credit `json:"credits"`
}

// Service owns the in-memory contract and credit lists.
type Service struct {
	remote      remote.ContractService
	notifier    notifications.Notifier
	logger      *zap.Logger
	opts        Options
	now         func() time.Time
	submissions *Submissions

	mu          sync.RWMutex
	contracts   []contracts.Contract
	credits     []contracts.Credit
	initialized bool
	initErr     error
	lastRefresh time.Time
	// gen counts local mutations so overlapping fetches can be discarded.
	gen uint64
}

const maxLoadAttempts = 3

// NewService creates the shell core. Call Init before serving.
func NewService(svc remote.ContractService, notifier notifications.Notifier, logger *zap.Logger, opts Options) *Service {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	if opts.PageSize <= 0 {
		opts.PageSize = contracts.DefaultPageSize
	}
	return &Service{
		remote:      svc,
		notifier:    notifier,
		logger:      logger,
		opts:        opts,
		now:         now,
		submissions: NewSubmissions(now),
		contracts:   []contracts.Contract{},
		credits:     []contracts.Credit{},
	}
}

// Init performs the first fetch. A failure leaves the shell uninitialized and
// is reported as an *InitError.
func (s *Service) Init(ctx context.Context) error {
	if err := s.load(ctx); err != nil {
		s.mu.Lock()
		s.initErr = err
		s.mu.Unlock()
		s.logger.Error("Failed to initialize contract lists", zap.Error(err))
		return &InitError{Err: err}
	}
	st := s.Status()
	s.logger.Info("Contract lists loaded", zap.Int("contracts", st.Contracts), zap.Int("credits", st.Credits))
	return nil
}

// Reload retries initialization; it is the action behind the blocking
// initialization error.
func (s *Service) Reload(ctx context.Context) error {
	return s.Init(ctx)
}

// Refresh re-fetches both lists. On failure the previous lists stay in place.
func (s *Service) Refresh(ctx context.Context) error {
	return s.load(ctx)
}

// load fetches both lists and stores them. A fetch that overlapped a local
// edit or delete is discarded and fetched again so the mutation is not undone.
func (s *Service) load(ctx context.Context) error {
	for attempt := 1; attempt <= maxLoadAttempts; attempt++ {
		s.mu.RLock()
		gen := s.gen
		s.mu.RUnlock()

		list, credits, err := s.fetch(ctx)
		if err != nil {
			return err
		}

		s.mu.Lock()
		if s.gen == gen {
			s.store(list, credits)
			s.initialized = true
			s.initErr = nil
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()
		s.logger.Debug("Discarding contract lists fetched before a local change", zap.Int("attempt", attempt))
	}
	s.logger.Warn("Contract lists kept changing during refresh, keeping local lists")
	return nil
}

// Status reports initialization state and list sizes.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Initialized: s.initialized,
		LastRefresh: s.lastRefresh,
		Contracts:   len(s.contracts),
		Credits:     len(s.credits),
	}
	if s.initErr != nil && !s.initialized {
		st.Error = MsgInitFailed
	}
	return st
}

// Submissions exposes the submission tracker.
func (s *Service) Submissions() []Submission {
	return s.submissions.Snapshot()
}

// DefaultQuery returns the query used when a client sends none.
func (s *Service) DefaultQuery() contracts.ViewQuery {
	return contracts.ViewQuery{
		SortKey:   contracts.SortKey(s.opts.DefaultSort),
		Direction: contracts.SortDirection(s.opts.DefaultDirection),
		Page:      1,
		PageSize:  s.opts.PageSize,
	}
}

// View derives the requested page from the in-memory list.
func (s *Service) View(q contracts.ViewQuery) (contracts.View, error) {
	list, err := s.snapshot()
	if err != nil {
		return contracts.View{}, err
	}
	return contracts.Derive(list, s.withDefaults(q)), nil
}

// Filtered returns every contract matching q's filter in q's order, ignoring
// pagination.
func (s *Service) Filtered(q contracts.ViewQuery) ([]contracts.Contract, error) {
	list, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return contracts.DeriveAll(list, s.withDefaults(q)), nil
}

// Contract returns a contract from the in-memory list.
func (s *Service) Contract(id uint64) (contracts.Contract, error) {
	list, err := s.snapshot()
	if err != nil {
		return contracts.Contract{}, err
	}
	c, ok := contracts.FindContract(list, id)
	if !ok {
		return contracts.Contract{}, ErrNotFound
	}
	return c, nil
}

// CreateContract validates the creation form and submits it. The seller
// defaults to the caller principal.
func (s *Service) CreateContract(ctx context.Context, form contracts.ContractForm) (uint64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	if form.Seller == "" {
		form.Seller = contracts.Field(s.opts.CallerPrincipal)
	}
	draft, err := contracts.ValidateContractForm(form, s.now())
	if err != nil {
		return 0, err
	}

	var id uint64
	err = s.submit(ctx, FormCreate, func(ctx context.Context) error {
		var cerr error
		id, cerr = s.remote.CreateContract(ctx, draft)
		if cerr != nil {
			return cerr
		}
		s.refreshAfter(ctx, "create", id)
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("Contract created", zap.Uint64("contract_id", id))
	s.notify(notifications.ToastSuccess, CreatedMessage(id))
	return id, nil
}

// UpdateContract validates the edit form, submits it and replaces the
// contract locally with the remote result.
func (s *Service) UpdateContract(ctx context.Context, id uint64, form contracts.EditForm) (contracts.Contract, error) {
	if err := s.ready(); err != nil {
		return contracts.Contract{}, err
	}
	draft, err := contracts.ValidateEditForm(form, s.now())
	if err != nil {
		return contracts.Contract{}, err
	}

	var updated contracts.Contract
	err = s.submit(ctx, FormEdit, func(ctx context.Context) error {
		var uerr error
		updated, uerr = s.remote.UpdateContract(ctx, id, draft)
		return uerr
	})
	if err != nil {
		return contracts.Contract{}, err
	}

	s.mu.Lock()
	replaced := false
	for i := range s.contracts {
		if s.contracts[i].ID == updated.ID {
			s.contracts[i] = updated
			replaced = true
			break
		}
	}
	if !replaced {
		s.contracts = append(s.contracts, updated)
	}
	s.gen++
	s.mu.Unlock()

	s.logger.Info("Contract updated", zap.Uint64("contract_id", id))
	s.notify(notifications.ToastSuccess, MsgContractUpdated)
	return updated, nil
}

// DeleteContract deletes remotely and removes the contract from the local
// list without re-fetching.
func (s *Service) DeleteContract(ctx context.Context, id uint64) error {
	if err := s.ready(); err != nil {
		return err
	}
	err := s.submit(ctx, FormDelete, func(ctx context.Context) error {
		return s.remote.DeleteContract(ctx, id)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	kept := make([]contracts.Contract, 0, len(s.contracts))
	for _, c := range s.contracts {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	s.contracts = kept
	s.gen++
	s.mu.Unlock()

	s.logger.Info("Contract deleted", zap.Uint64("contract_id", id))
	s.notify(notifications.ToastSuccess, MsgContractDeleted)
	return nil
}

// BuyContract purchases a contract and re-fetches the lists.
func (s *Service) BuyContract(ctx context.Context, id uint64) error {
	if err := s.ready(); err != nil {
		return err
	}
	err := s.submit(ctx, FormBuy, func(ctx context.Context) error {
		if err := s.remote.BuyContract(ctx, id); err != nil {
			return err
		}
		s.refreshAfter(ctx, "buy", id)
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Contract purchased", zap.Uint64("contract_id", id))
	s.notify(notifications.ToastSuccess, MsgPurchased)
	return nil
}

// ExpireContract marks a contract expired and re-fetches the lists.
func (s *Service) ExpireContract(ctx context.Context, id uint64) error {
	if err := s.ready(); err != nil {
		return err
	}
	err := s.submit(ctx, FormExpire, func(ctx context.Context) error {
		if err := s.remote.ExpireContract(ctx, id); err != nil {
			return err
		}
		s.refreshAfter(ctx, "expire", id)
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Contract expired", zap.Uint64("contract_id", id))
	s.notify(notifications.ToastInfo, ExpiredMessage(id))
	return nil
}

// Details returns a contract with its events. A failed event fetch degrades
// to an empty history.
func (s *Service) Details(ctx context.Context, id uint64) (Details, error) {
	c, err := s.Contract(id)
	if err != nil {
		return Details{}, err
	}

	d := Details{Contract: contracts.NewRow(c), Events: []contracts.Event{}}
	for _, next := range contracts.NextStatuses(c.Status) {
		d.Next = append(d.Next, string(next))
	}
	if d.Next == nil {
		d.Next = []string{}
	}

	events, err := s.remote.ListEvents(ctx)
	if err != nil {
		s.logger.Warn("Failed to fetch contract events", zap.Uint64("contract_id", id), zap.Error(err))
	} else {
		d.Events = contracts.EventsFor(events, id)
	}
	if len(d.Events) == 0 {
		d.Message = MsgNoEvents
	}
	return d, nil
}

// Credits returns the in-memory credit list.
func (s *Service) Credits() ([]contracts.Credit, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]contracts.Credit{}, s.credits...), nil
}

// Dashboard lists the contracts where principal is buyer or seller. An empty
// principal means the caller.
func (s *Service) Dashboard(principal string) (Dashboard, error) {
	if principal == "" {
		principal = s.opts.CallerPrincipal
	}
	list, err := s.snapshot()
	if err != nil {
		return Dashboard{}, err
	}

	d := Dashboard{
		Principal: principal,
		Contracts: []contracts.Row{},
		ByStatus:  map[string]int{},
		Credits:   []contracts.Credit{},
	}
	for _, c := range contracts.Sort(list, contracts.SortByID, contracts.Descending) {
		if !c.Involves(principal) {
			continue
		}
		d.Contracts = append(d.Contracts, contracts.NewRow(c))
		d.ByStatus[string(c.Status)]++
		d.TotalTonnes += c.AmountTonnes
		d.TotalUSD += c.Total()
	}

	s.mu.RLock()
	for _, cr := range s.credits {
		if principal != "" && cr.Owner == principal {
			d.Credits = append(d.Credits, cr)
		}
	}
	s.mu.RUnlock()
	return d, nil
}

// submit runs fn as the single outstanding submission of form. Failures raise
// a danger toast carrying the error message verbatim; nothing is retried.
func (s *Service) submit(ctx context.Context, form Form, fn func(context.Context) error) error {
	if err := s.submissions.Begin(form); err != nil {
		return err
	}
	err := fn(ctx)
	s.submissions.Finish(form, err)
	if err != nil {
		s.logger.Error("Submission failed", zap.String("form", string(form)), zap.Error(err))
		s.notify(notifications.ToastDanger, err.Error())
	}
	return err
}

// refreshAfter re-fetches after a successful mutation. The mutation already
// happened remotely, so a failed re-fetch is only logged.
func (s *Service) refreshAfter(ctx context.Context, op string, id uint64) {
	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn("Failed to refresh contracts after "+op, zap.Uint64("contract_id", id), zap.Error(err))
	}
}

func (s *Service) fetch(ctx context.Context) ([]contracts.Contract, []contracts.Credit, error) {
	list, err := s.remote.ListContracts(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	credits, err := s.remote.ListCredits(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list credits: %w", err)
	}
	return list, credits, nil
}

// store replaces the lists; callers hold s.mu.
func (s *Service) store(list []contracts.Contract, credits []contracts.Credit) {
	if list == nil {
		list = []contracts.Contract{}
	}
	if credits == nil {
		credits = []contracts.Credit{}
	}
	s.contracts = list
	s.credits = credits
	s.lastRefresh = s.now().UTC()
}

func (s *Service) snapshot() ([]contracts.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return nil, ErrNotInitialized
	}
	return append([]contracts.Contract{}, s.contracts...), nil
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	return nil
}

func (s *Service) withDefaults(q contracts.ViewQuery) contracts.ViewQuery {
	if q.SortKey == "" {
		q.SortKey = contracts.SortKey(s.opts.DefaultSort)
	}
	if q.Direction == "" {
		q.Direction = contracts.SortDirection(s.opts.DefaultDirection)
	}
	if q.PageSize <= 0 {
		q.PageSize = s.opts.PageSize
	}
	return q
}

func (s *Service) notify(kind notifications.ToastType, message string) {
	if s.notifier != nil {
		s.notifier.Notify(kind, message)
	}
}
