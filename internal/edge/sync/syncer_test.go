package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/tagsentry/tagsentry/internal/domain"
)

// MockPendingSource is a mock implementation of PendingSource
type MockPendingSource struct {
	mock.Mock
}

func (m *MockPendingSource) NextBatch(ctx context.Context, n int) ([]domain.PendingRecord, error) {
	args := m.Called(ctx, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.PendingRecord), args.Error(1)
}

func (m *MockPendingSource) MarkSent(ctx context.Context, ids []int64) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

func (m *MockPendingSource) UnsentCount(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MockDeliverer is a mock implementation of Deliverer
type MockDeliverer struct {
	mock.Mock
}

func (m *MockDeliverer) Deliver(ctx context.Context, batch []domain.PendingRecord) error {
	args := m.Called(ctx, batch)
	return args.Error(0)
}

func pendingBatch(ids ...int64) []domain.PendingRecord {
	batch := make([]domain.PendingRecord, len(ids))
	for i, id := range ids {
		batch[i] = domain.PendingRecord{ID: id, Tag: "CAFE", TS: time.Now().UTC()}
	}
	return batch
}

func newTestSyncer(source PendingSource, client Deliverer) *Syncer {
	return NewSyncer(source, client, SyncerConfig{
		BatchSize:      2,
		Interval:       time.Hour, // tests drive flush directly
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  5 * time.Millisecond,
	}, zap.NewNop())
}

func TestSyncer_FlushMarksSentOnAck(t *testing.T) {
	source := new(MockPendingSource)
	client := new(MockDeliverer)
	s := newTestSyncer(source, client)

	batch := pendingBatch(1, 2)
	source.On("NextBatch", mock.Anything, 2).Return(batch, nil).Once()
	client.On("Deliver", mock.Anything, batch).Return(nil).Once()
	source.On("MarkSent", mock.Anything, []int64{1, 2}).Return(nil).Once()
	// Full batch means there may be more; the next read ends the flush.
	source.On("NextBatch", mock.Anything, 2).Return([]domain.PendingRecord{}, nil).Once()

	s.flush(context.Background())

	source.AssertExpectations(t)
	client.AssertExpectations(t)
}

func TestSyncer_TransportFailureRetriesSameBatch(t *testing.T) {
	source := new(MockPendingSource)
	client := new(MockDeliverer)
	s := newTestSyncer(source, client)

	batch := pendingBatch(1)
	source.On("NextBatch", mock.Anything, 2).Return(batch, nil).Once()
	client.On("Deliver", mock.Anything, batch).
		Return(&domain.TransportError{Op: "post", Err: errors.New("refused")}).Twice()
	client.On("Deliver", mock.Anything, batch).Return(nil).Once()
	source.On("MarkSent", mock.Anything, []int64{1}).Return(nil).Once()

	s.flush(context.Background())

	// The same batch was delivered three times; the cursor advanced once.
	client.AssertNumberOfCalls(t, "Deliver", 3)
	source.AssertNumberOfCalls(t, "MarkSent", 1)
}

func TestSyncer_ValidationRejectionDropsBatchOnce(t *testing.T) {
	source := new(MockPendingSource)
	client := new(MockDeliverer)
	s := newTestSyncer(source, client)

	batch := pendingBatch(1, 2)
	source.On("NextBatch", mock.Anything, 2).Return(batch, nil).Once()
	client.On("Deliver", mock.Anything, batch).
		Return(&domain.ValidationError{Op: "deliver", Err: errors.New("bad shape")}).Once()
	// The rejected batch is advanced past exactly once, never retried.
	source.On("MarkSent", mock.Anything, []int64{1, 2}).Return(nil).Once()

	s.flush(context.Background())

	client.AssertNumberOfCalls(t, "Deliver", 1)
	source.AssertExpectations(t)
}

func TestSyncer_EmptyQueueDoesNothing(t *testing.T) {
	source := new(MockPendingSource)
	client := new(MockDeliverer)
	s := newTestSyncer(source, client)

	source.On("NextBatch", mock.Anything, 2).Return([]domain.PendingRecord{}, nil).Once()

	s.flush(context.Background())

	client.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything)
}

func TestSyncer_ContextCancelStopsRetry(t *testing.T) {
	source := new(MockPendingSource)
	client := new(MockDeliverer)
	s := newTestSyncer(source, client)

	ctx, cancel := context.WithCancel(context.Background())

	batch := pendingBatch(1)
	source.On("NextBatch", mock.Anything, 2).Return(batch, nil).Once()
	client.On("Deliver", mock.Anything, batch).
		Return(&domain.TransportError{Op: "post", Err: errors.New("refused")}).
		Run(func(mock.Arguments) { cancel() })

	s.flush(ctx)

	source.AssertNotCalled(t, "MarkSent", mock.Anything, mock.Anything)
}

func TestSyncer_NotifyFlushesAtThreshold(t *testing.T) {
	source := new(MockPendingSource)
	client := new(MockDeliverer)
	s := newTestSyncer(source, client)

	batch := pendingBatch(1, 2)
	source.On("UnsentCount", mock.Anything).Return(int64(2), nil)
	source.On("NextBatch", mock.Anything, 2).Return(batch, nil).Once()
	client.On("Deliver", mock.Anything, batch).Return(nil).Once()
	source.On("MarkSent", mock.Anything, []int64{1, 2}).Return(nil).Once()
	source.On("NextBatch", mock.Anything, 2).Return([]domain.PendingRecord{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	s.Notify()
	assert.Eventually(t, func() bool {
		return len(client.Calls) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
	client.AssertExpectations(t)
}

func TestSyncer_NextDelayIsCappedExponential(t *testing.T) {
	s := newTestSyncer(new(MockPendingSource), new(MockDeliverer))

	assert.Equal(t, time.Millisecond, s.nextDelay())
	assert.Equal(t, 2*time.Millisecond, s.nextDelay())
	assert.Equal(t, 4*time.Millisecond, s.nextDelay())
	// Capped from here on.
	assert.Equal(t, 5*time.Millisecond, s.nextDelay())
	assert.Equal(t, 5*time.Millisecond, s.nextDelay())
}
