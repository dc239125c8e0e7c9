package marketplace

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbonlock/marketplace-portal/internal/contracts"
	"carbonlock/marketplace-portal/internal/notifications"
)

type MockBroadcaster struct {
	mock.Mock
}

func (m *MockBroadcaster) Broadcast(message notifications.WebSocketMessage) error {
	return m.Called(message).Error(0)
}

func TestNewRefresherRejectsInvalidSchedule(t *testing.T) {
	s, _, _ := newMockedService(t, seedContracts())

	_, err := NewRefresher(s, "every minute", time.Second, nil, zap.NewNop())
	assert.Error(t, err)

	// Five-field expressions need the seconds column.
	_, err = NewRefresher(s, "*/5 * * * *", time.Second, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestRefresherRunOnceAnnouncesRefresh(t *testing.T) {
	s, svc, _ := newMockedService(t, seedContracts())
	broadcaster := new(MockBroadcaster)
	broadcaster.On("Broadcast", mock.MatchedBy(func(msg notifications.WebSocketMessage) bool {
		return msg.Type == notifications.WSMessageTypeRefresh && msg.Data["contracts"] == 3 && msg.Data["credits"] == 1
	})).Return(nil).Once()

	r, err := NewRefresher(s, "0 */1 * * * *", time.Second, broadcaster, zap.NewNop())
	require.NoError(t, err)

	r.RunOnce()
	broadcaster.AssertExpectations(t)
	svc.AssertNumberOfCalls(t, "ListContracts", 2)
}

func TestRefresherRunOnceKeepsListsOnFailure(t *testing.T) {
	svc := new(MockContractService)
	svc.On("ListContracts", mock.Anything).Return(seedContracts(), nil).Once()
	svc.On("ListCredits", mock.Anything).Return([]contracts.Credit{}, nil).Once()
	svc.On("ListContracts", mock.Anything).Return(nil, errors.New("unavailable"))
	s := NewService(svc, nil, zap.NewNop(), Options{Clock: fixedClock})
	require.NoError(t, s.Init(testContext(t)))

	broadcaster := new(MockBroadcaster)
	r, err := NewRefresher(s, "0 */1 * * * *", time.Second, broadcaster, zap.NewNop())
	require.NoError(t, err)

	r.RunOnce()
	broadcaster.AssertNotCalled(t, "Broadcast", mock.Anything)
	assert.Equal(t, 3, s.Status().Contracts)
}

func TestRefresherStartStop(t *testing.T) {
	s, _, _ := newMockedService(t, seedContracts())
	r, err := NewRefresher(s, "0 0 0 1 1 *", 0, nil, zap.NewNop())
	require.NoError(t, err)

	r.Start()
	r.Start()
	r.Stop()
	r.Stop()
}

// testContext returns a context canceled when the test finishes
// (equivalent of testing.T.Context, added in Go 1.24).
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
