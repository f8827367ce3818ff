package execution

import (
	"context"
	"sync"
	"time"

	"github.com/rustyeddy/equitytrader/broker"
	"github.com/rustyeddy/equitytrader/journal"
	"github.com/stretchr/testify/mock"
)

type mockExchange struct {
	mock.Mock
}

var _ broker.Exchange = (*mockExchange)(nil)

func (m *mockExchange) GetAccount(ctx context.Context) (map[string]any, error) {
	args := m.Called(ctx)
	v, _ := args.Get(0).(map[string]any)
	return v, args.Error(1)
}

func (m *mockExchange) GetPositions(ctx context.Context) ([]map[string]any, error) {
	args := m.Called(ctx)
	v, _ := args.Get(0).([]map[string]any)
	return v, args.Error(1)
}

func (m *mockExchange) GetQuote(ctx context.Context, symbol string) (broker.Quote, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(broker.Quote), args.Error(1)
}

func (m *mockExchange) IsMarketOpen(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *mockExchange) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(broker.OrderResponse), args.Error(1)
}

func (m *mockExchange) GetOrder(ctx context.Context, id string) (broker.OrderResponse, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(broker.OrderResponse), args.Error(1)
}

func (m *mockExchange) ListOpenOrders(ctx context.Context) ([]broker.OrderResponse, error) {
	args := m.Called(ctx)
	v, _ := args.Get(0).([]broker.OrderResponse)
	return v, args.Error(1)
}

func (m *mockExchange) CancelOrder(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type sleepRecorder struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (s *sleepRecorder) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, d)
	return nil
}

func (s *sleepRecorder) Calls() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.calls...)
}

type memJournal struct {
	mu      sync.Mutex
	records []journal.AuditRecord
}

func (j *memJournal) Record(r journal.AuditRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, r)
	return nil
}

func (j *memJournal) Close() error { return nil }

func (j *memJournal) Records() []journal.AuditRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]journal.AuditRecord(nil), j.records...)
}
