package marketplace

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbonlock/marketplace-portal/internal/contracts"
	"carbonlock/marketplace-portal/internal/notifications"
	"carbonlock/marketplace-portal/internal/remote"
)

const (
	testSeller = "bkyz2-fmaaa-aaaaa-qaaaq-cai"
	testBuyer  = "rrkah-fqaaa-aaaaa-aaaaq-cai"
)

var fixedNow = time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// MockContractService is a mock implementation of remote.ContractService
type MockContractService struct {
	mock.Mock
}

func (m *MockContractService) ListContracts(ctx context.Context) ([]contracts.Contract, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]contracts.Contract), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockContractService) ListCredits(ctx context.Context) ([]contracts.Credit, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]contracts.Credit), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockContractService) ListEvents(ctx context.Context) ([]contracts.Event, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]contracts.Event), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockContractService) CreateContract(ctx context.Context, draft contracts.ContractDraft) (uint64, error) {
	args := m.Called(ctx, draft)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockContractService) UpdateContract(ctx context.Context, id uint64, draft contracts.ContractDraft) (contracts.Contract, error) {
	args := m.Called(ctx, id, draft)
	return args.Get(0).(contracts.Contract), args.Error(1)
}

func (m *MockContractService) DeleteContract(ctx context.Context, id uint64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockContractService) BuyContract(ctx context.Context, id uint64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockContractService) ExpireContract(ctx context.Context, id uint64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockContractService) Close() error {
	return m.Called().Error(0)
}

// recordingNotifier keeps every toast it receives.
type recordingNotifier struct {
	mu     sync.Mutex
	toasts []notifications.Toast
}

func (r *recordingNotifier) Notify(kind notifications.ToastType, message string) notifications.Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := notifications.Toast{Type: kind, Message: message, CreatedAt: fixedNow}
	r.toasts = append(r.toasts, t)
	return t
}

func (r *recordingNotifier) last() notifications.Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.toasts) == 0 {
		return notifications.Toast{}
	}
	return r.toasts[len(r.toasts)-1]
}

func seedContracts() []contracts.Contract {
	buyer := testBuyer
	return []contracts.Contract{
		{ID: 1, Seller: testSeller, AmountTonnes: 10, PriceUSD: 20, DeliveryYear: 2025, Status: contracts.StatusCreated},
		{ID: 2, Buyer: &buyer, Seller: testSeller, AmountTonnes: 5, PriceUSD: 30, DeliveryYear: 2026, Status: contracts.StatusPurchased},
		{ID: 3, Seller: testBuyer, AmountTonnes: 7, PriceUSD: 15, DeliveryYear: 2027, Status: contracts.StatusExpired},
	}
}

func newMockedService(t *testing.T, list []contracts.Contract) (*Service, *MockContractService, *recordingNotifier) {
	t.Helper()
	svc := new(MockContractService)
	svc.On("ListContracts", mock.Anything).Return(list, nil)
	svc.On("ListCredits", mock.Anything).Return([]contracts.Credit{{ID: 1, Owner: testSeller, RiskScoreHistory: []int{}}}, nil)

	notifier := &recordingNotifier{}
	s := NewService(svc, notifier, zap.NewNop(), Options{CallerPrincipal: testSeller, Clock: fixedClock})
	require.NoError(t, s.Init(context.Background()))
	return s, svc, notifier
}

func validForm() contracts.ContractForm {
	return contracts.ContractForm{
		AmountTonnes: "100",
		PriceUSD:     "50",
		DeliveryYear: contracts.Field(strconv.Itoa(fixedNow.Year())),
		Expiration:   contracts.Field(strconv.FormatInt(fixedNow.Unix()+3600, 10)),
	}
}

func TestInitFailureBlocksUntilReload(t *testing.T) {
	svc := new(MockContractService)
	svc.On("ListContracts", mock.Anything).Return(nil, errors.New("connection refused")).Once()

	s := NewService(svc, &recordingNotifier{}, zap.NewNop(), Options{Clock: fixedClock})
	err := s.Init(context.Background())

	var ierr *InitError
	require.True(t, errors.As(err, &ierr))
	assert.Equal(t, MsgInitFailed, err.Error())
	assert.False(t, s.Status().Initialized)
	assert.Equal(t, MsgInitFailed, s.Status().Error)

	_, err = s.View(contracts.ViewQuery{Page: 1})
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = s.CreateContract(context.Background(), validForm())
	assert.ErrorIs(t, err, ErrNotInitialized)

	svc.On("ListContracts", mock.Anything).Return(seedContracts(), nil)
	svc.On("ListCredits", mock.Anything).Return([]contracts.Credit{}, nil)
	require.NoError(t, s.Reload(context.Background()))

	st := s.Status()
	assert.True(t, st.Initialized)
	assert.Empty(t, st.Error)
	assert.Equal(t, 3, st.Contracts)
	assert.Equal(t, fixedNow, st.LastRefresh)
}

func TestCreateContractEndToEnd(t *testing.T) {
	stand := remote.NewMemoryService(testSeller, fixedClock)
	notifier := &recordingNotifier{}
	s := NewService(stand, notifier, zap.NewNop(), Options{CallerPrincipal: testSeller, Clock: fixedClock})
	require.NoError(t, s.Init(context.Background()))

	id, err := s.CreateContract(context.Background(), validForm())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	view, err := s.View(contracts.ViewQuery{Page: 1})
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	created := view.Items[0]
	assert.Equal(t, contracts.StatusCreated, created.Status)
	assert.Equal(t, testSeller, created.Seller)
	assert.Nil(t, created.Buyer)
	assert.Equal(t, 100.0, created.AmountTonnes)
	assert.Equal(t, 50.0, created.PriceUSD)

	assert.Equal(t, notifications.ToastSuccess, notifier.last().Type)
	assert.Equal(t, "Contract #1 created successfully!", notifier.last().Message)
	assert.Equal(t, StateIdle, s.submissions.State(FormCreate))
}

func TestCreateContractRejectsPreviousYearWithoutRemoteCall(t *testing.T) {
	s, svc, notifier := newMockedService(t, seedContracts())

	form := validForm()
	form.DeliveryYear = contracts.Field(strconv.Itoa(fixedNow.Year() - 1))

	_, err := s.CreateContract(context.Background(), form)
	var verr *contracts.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "Year must be >= 2024.", verr.Message)

	svc.AssertNotCalled(t, "CreateContract", mock.Anything, mock.Anything)
	assert.Empty(t, notifier.toasts)
}

func TestCreateContractSendsDefaultSeller(t *testing.T) {
	s, svc, _ := newMockedService(t, seedContracts())
	svc.On("CreateContract", mock.Anything, mock.MatchedBy(func(d contracts.ContractDraft) bool {
		return d.Seller == testSeller && d.Buyer == nil && d.AmountTonnes == 100
	})).Return(uint64(4), nil).Once()

	id, err := s.CreateContract(context.Background(), validForm())
	require.NoError(t, err)
	assert.Equal(t, uint64(4), id)

	// Init plus the re-fetch after creation.
	svc.AssertNumberOfCalls(t, "ListContracts", 2)
}

func TestCreateContractSurfacesRemoteMessage(t *testing.T) {
	s, svc, notifier := newMockedService(t, seedContracts())
	svc.On("CreateContract", mock.Anything, mock.Anything).
		Return(uint64(0), &remote.RemoteError{Operation: "create_contract", StatusCode: 400, Message: "Seller is not registered"}).Once()

	_, err := s.CreateContract(context.Background(), validForm())
	require.Error(t, err)
	assert.Equal(t, "Seller is not registered", err.Error())
	assert.Equal(t, notifications.ToastDanger, notifier.last().Type)
	assert.Equal(t, "Seller is not registered", notifier.last().Message)

	assert.Equal(t, StateIdle, s.submissions.State(FormCreate))
	for _, sub := range s.Submissions() {
		if sub.Form == FormCreate {
			require.NotNil(t, sub.Last)
			assert.Equal(t, StateFailed, sub.Last.State)
		}
	}
	svc.AssertNumberOfCalls(t, "CreateContract", 1)
	svc.AssertNumberOfCalls(t, "ListContracts", 1)
}

func TestDeleteRemovesLocallyWithoutRefetch(t *testing.T) {
	s, svc, notifier := newMockedService(t, seedContracts())
	svc.On("DeleteContract", mock.Anything, uint64(2)).Return(nil).Once()

	require.NoError(t, s.DeleteContract(context.Background(), 2))

	view, err := s.View(contracts.ViewQuery{Page: 1, SortKey: contracts.SortByID, Direction: contracts.Ascending})
	require.NoError(t, err)
	ids := []uint64{}
	for _, c := range view.Items {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []uint64{1, 3}, ids)
	assert.Equal(t, MsgContractDeleted, notifier.last().Message)
	svc.AssertNumberOfCalls(t, "ListContracts", 1)
}

func TestBuyContractRefetches(t *testing.T) {
	s, svc, notifier := newMockedService(t, seedContracts())
	svc.On("BuyContract", mock.Anything, uint64(1)).Return(nil).Once()

	require.NoError(t, s.BuyContract(context.Background(), 1))
	assert.Equal(t, MsgPurchased, notifier.last().Message)
	svc.AssertNumberOfCalls(t, "ListContracts", 2)
}

func TestExpireContract(t *testing.T) {
	s, svc, notifier := newMockedService(t, seedContracts())
	svc.On("ExpireContract", mock.Anything, uint64(1)).Return(nil).Once()

	require.NoError(t, s.ExpireContract(context.Background(), 1))
	assert.Equal(t, "Contract #1 expired.", notifier.last().Message)
	assert.Equal(t, notifications.ToastInfo, notifier.last().Type)
}

func TestUpdateContractReplacesLocally(t *testing.T) {
	s, svc, notifier := newMockedService(t, seedContracts())
	buyer := testBuyer
	updated := contracts.Contract{ID: 1, Buyer: &buyer, Seller: testSeller, AmountTonnes: 11, PriceUSD: 21,
		DeliveryYear: 2025, Status: contracts.StatusCreated, UpdatedAt: 99}
	svc.On("UpdateContract", mock.Anything, uint64(1), mock.Anything).Return(updated, nil).Once()

	got, err := s.UpdateContract(context.Background(), 1, contracts.EditForm{
		Buyer: testBuyer, Seller: testSeller, AmountTonnes: "11", PriceUSD: "21", DeliveryYear: "2025",
	})
	require.NoError(t, err)
	assert.Equal(t, updated, got)

	c, err := s.Contract(1)
	require.NoError(t, err)
	assert.Equal(t, 11.0, c.AmountTonnes)
	assert.Equal(t, MsgContractUpdated, notifier.last().Message)
	svc.AssertNumberOfCalls(t, "ListContracts", 1)
}

func TestUpdateContractValidatesParticipants(t *testing.T) {
	s, svc, _ := newMockedService(t, seedContracts())

	_, err := s.UpdateContract(context.Background(), 1, contracts.EditForm{
		Buyer: "not-a-principal", Seller: testSeller, AmountTonnes: "1", PriceUSD: "1", DeliveryYear: "2025",
	})
	var verr *contracts.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, contracts.ParticipantMessage("buyer"), verr.Message)
	svc.AssertNotCalled(t, "UpdateContract", mock.Anything, mock.Anything, mock.Anything)
}

func TestSecondSubmissionIsRejectedWhileOutstanding(t *testing.T) {
	s, svc, _ := newMockedService(t, seedContracts())

	started := make(chan struct{})
	release := make(chan struct{})
	svc.On("CreateContract", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(uint64(9), nil).Once()

	done := make(chan error, 1)
	go func() {
		_, err := s.CreateContract(context.Background(), validForm())
		done <- err
	}()
	<-started

	assert.Equal(t, StateSubmitting, s.submissions.State(FormCreate))
	_, err := s.CreateContract(context.Background(), validForm())
	assert.ErrorIs(t, err, ErrSubmissionInProgress)

	// Reads and other forms are not blocked by the outstanding submission.
	_, err = s.View(contracts.ViewQuery{Page: 1})
	assert.NoError(t, err)
	svc.On("BuyContract", mock.Anything, uint64(1)).Return(nil).Once()
	assert.NoError(t, s.BuyContract(context.Background(), 1))

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateIdle, s.submissions.State(FormCreate))
	svc.AssertNumberOfCalls(t, "CreateContract", 1)
}

func TestDetailsDegradesToEmptyHistory(t *testing.T) {
	s, svc, _ := newMockedService(t, seedContracts())
	svc.On("ListEvents", mock.Anything).Return(nil, errors.New("timeout")).Once()

	d, err := s.Details(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, d.Events)
	assert.Equal(t, MsgNoEvents, d.Message)
	assert.Equal(t, []string{"Purchased", "Expired"}, d.Next)

	svc.On("ListEvents", mock.Anything).Return([]contracts.Event{
		{ContractID: 1, EventType: contracts.EventCreated, Timestamp: 1},
		{ContractID: 2, EventType: contracts.EventCreated, Timestamp: 2},
		{ContractID: 1, EventType: contracts.EventPurchased, Timestamp: 3},
	}, nil).Once()

	d, err = s.Details(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, d.Events, 2)
	assert.Equal(t, contracts.EventPurchased, d.Events[1].EventType)
	assert.Empty(t, d.Message)

	_, err = s.Details(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDashboardAndCredits(t *testing.T) {
	s, _, _ := newMockedService(t, seedContracts())

	d, err := s.Dashboard("")
	require.NoError(t, err)
	assert.Equal(t, testSeller, d.Principal)
	require.Len(t, d.Contracts, 2)
	assert.Equal(t, uint64(2), d.Contracts[0].ID)
	assert.Equal(t, map[string]int{"Created": 1, "Purchased": 1}, d.ByStatus)
	assert.Equal(t, 15.0, d.TotalTonnes)
	assert.Equal(t, 350.0, d.TotalUSD)
	assert.Len(t, d.Credits, 1)

	d, err = s.Dashboard(testBuyer)
	require.NoError(t, err)
	assert.Len(t, d.Contracts, 2)
	assert.Empty(t, d.Credits)

	credits, err := s.Credits()
	require.NoError(t, err)
	assert.Len(t, credits, 1)
}

func TestRefreshKeepsListsOnFailure(t *testing.T) {
	svc := new(MockContractService)
	svc.On("ListContracts", mock.Anything).Return(seedContracts(), nil).Once()
	svc.On("ListCredits", mock.Anything).Return([]contracts.Credit{}, nil).Once()
	s := NewService(svc, nil, zap.NewNop(), Options{Clock: fixedClock})
	require.NoError(t, s.Init(context.Background()))

	svc.On("ListContracts", mock.Anything).Return(nil, errors.New("unavailable")).Once()
	assert.Error(t, s.Refresh(context.Background()))

	view, err := s.View(contracts.ViewQuery{Page: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, view.TotalCount)
}

func TestRefreshOverlappingDeleteDoesNotRestoreContract(t *testing.T) {
	svc := new(MockContractService)
	svc.On("ListContracts", mock.Anything).Return(seedContracts(), nil).Once()
	svc.On("ListCredits", mock.Anything).Return([]contracts.Credit{}, nil)
	s := NewService(svc, nil, zap.NewNop(), Options{Clock: fixedClock})
	require.NoError(t, s.Init(context.Background()))

	// The in-flight refresh sees the list as it was before the delete.
	fetching := make(chan struct{})
	release := make(chan struct{})
	svc.On("ListContracts", mock.Anything).Run(func(args mock.Arguments) {
		close(fetching)
		<-release
	}).Return(seedContracts(), nil).Once()
	svc.On("ListContracts", mock.Anything).Return(seedContracts()[1:], nil).Once()
	svc.On("DeleteContract", mock.Anything, uint64(1)).Return(nil).Once()

	done := make(chan error, 1)
	go func() { done <- s.Refresh(context.Background()) }()
	<-fetching

	require.NoError(t, s.DeleteContract(context.Background(), 1))
	close(release)
	require.NoError(t, <-done)

	_, err := s.Contract(1)
	assert.ErrorIs(t, err, ErrNotFound)
	view, err := s.View(contracts.ViewQuery{Page: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, view.TotalCount)
	svc.AssertNumberOfCalls(t, "ListContracts", 3)
}

func TestRefreshOverlappingEditKeepsEdit(t *testing.T) {
	svc := new(MockContractService)
	svc.On("ListContracts", mock.Anything).Return(seedContracts(), nil).Once()
	svc.On("ListCredits", mock.Anything).Return([]contracts.Credit{}, nil)
	s := NewService(svc, nil, zap.NewNop(), Options{Clock: fixedClock})
	require.NoError(t, s.Init(context.Background()))

	updated := seedContracts()[0]
	updated.AmountTonnes = 11
	fresh := seedContracts()
	fresh[0] = updated

	fetching := make(chan struct{})
	release := make(chan struct{})
	svc.On("ListContracts", mock.Anything).Run(func(args mock.Arguments) {
		close(fetching)
		<-release
	}).Return(seedContracts(), nil).Once()
	svc.On("ListContracts", mock.Anything).Return(fresh, nil).Once()
	svc.On("UpdateContract", mock.Anything, uint64(1), mock.Anything).Return(updated, nil).Once()

	done := make(chan error, 1)
	go func() { done <- s.Refresh(context.Background()) }()
	<-fetching

	_, err := s.UpdateContract(context.Background(), 1, contracts.EditForm{
		Buyer: testBuyer, Seller: testSeller, AmountTonnes: "11", PriceUSD: "20", DeliveryYear: "2025",
	})
	require.NoError(t, err)
	close(release)
	require.NoError(t, <-done)

	c, err := s.Contract(1)
	require.NoError(t, err)
	assert.Equal(t, 11.0, c.AmountTonnes)
}

func TestViewUsesConfiguredDefaults(t *testing.T) {
	svc := new(MockContractService)
	svc.On("ListContracts", mock.Anything).Return(seedContracts(), nil)
	svc.On("ListCredits", mock.Anything).Return([]contracts.Credit{}, nil)
	s := NewService(svc, nil, zap.NewNop(), Options{PageSize: 2, DefaultSort: "price_usd", DefaultDirection: "asc", Clock: fixedClock})
	require.NoError(t, s.Init(context.Background()))

	view, err := s.View(contracts.ViewQuery{Page: 1})
	require.NoError(t, err)
	require.Len(t, view.Items, 2)
	assert.Equal(t, uint64(3), view.Items[0].ID)
	assert.Equal(t, uint64(1), view.Items[1].ID)
	assert.Equal(t, 2, view.TotalPages)
	assert.True(t, view.HasNext)

	all, err := s.Filtered(contracts.ViewQuery{StatusFilter: "ED"})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
