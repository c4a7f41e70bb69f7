package session

import (
	"context"
	"errors"
	"io"
	"math/big"
	"sync"
	"testing"
	"time"

	"txlens/internal/classifier"
	lenserrors "txlens/internal/errors"
	"txlens/internal/output"
	"txlens/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tokenX = common.HexToAddress("0x000000000000000000000000000000000000000A")
	tokenY = common.HexToAddress("0x000000000000000000000000000000000000000B")
	router = common.HexToAddress("0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD")
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeFetcher struct {
	mu       sync.Mutex
	receipts map[string]*models.Receipt
	err      error
	calls    int
}

func (f *fakeFetcher) Fetch(ctx context.Context, hash string) (*models.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.receipts[hash]
	if !ok {
		return nil, lenserrors.NewNotFoundError(hash)
	}
	return r, nil
}

// transferDecoder 把每条日志都解码为Transfer
type transferDecoder struct{}

func (transferDecoder) Decode(logs []models.RawLog) []models.DecodedLog {
	out := make([]models.DecodedLog, 0, len(logs))
	for _, l := range logs {
		out = append(out, models.DecodedLog{
			RawLog: l,
			Event:  &models.DecodedEvent{Name: models.TransferEventName},
		})
	}
	return out
}

// gatedAggregator 每个代币地址的价格在对应的gate关闭后才返回
type gatedAggregator struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	calls int
}

func (g *gatedAggregator) gate(addr common.Address) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gates == nil {
		g.gates = make(map[string]chan struct{})
	}
	ch, ok := g.gates[addr.Hex()]
	if !ok {
		ch = make(chan struct{})
		g.gates[addr.Hex()] = ch
	}
	return ch
}

func (g *gatedAggregator) AggregatePrices(ctx context.Context, logs []models.DecodedLog) models.TokenPriceMap {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()

	prices := models.TokenPriceMap{}
	for _, l := range logs {
		<-g.gate(l.Address)
		prices[l.Address.Hex()] = "price-" + l.Address.Hex()
	}
	return prices
}

func (g *gatedAggregator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type recordingOutput struct {
	mu      sync.Mutex
	records []models.LookupRecord
	err     error
}

func (o *recordingOutput) WriteLookup(record *models.LookupRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, *record)
	return o.err
}

func (o *recordingOutput) Close() error { return nil }

func (o *recordingOutput) Kinds() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	kinds := make([]string, 0, len(o.records))
	for _, r := range o.records {
		kinds = append(kinds, r.Kind)
	}
	return kinds
}

func receiptWithToken(token common.Address) *models.Receipt {
	return &models.Receipt{
		To:      &router,
		GasUsed: big.NewInt(21000),
		Logs:    []models.RawLog{{Address: token}},
	}
}

func TestLookup_GenerationGuard(t *testing.T) {
	fetcher := &fakeFetcher{receipts: map[string]*models.Receipt{
		"0xa": receiptWithToken(tokenX),
		"0xb": receiptWithToken(tokenY),
	}}
	agg := &gatedAggregator{}
	out := &recordingOutput{}
	s := New(fetcher, transferDecoder{}, agg, quietLogger(), WithOutput(out))

	resA, err := s.Lookup(context.Background(), "0xa")
	require.NoError(t, err)
	resB, err := s.Lookup(context.Background(), "0xb")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), resA.Generation)
	assert.Equal(t, uint64(2), resB.Generation)

	// B先完成
	close(agg.gate(tokenY))
	assert.Eventually(t, func() bool {
		return len(s.Snapshot().Prices) == 1
	}, time.Second, 5*time.Millisecond)

	// A随后完成，其结果必须被丢弃
	close(agg.gate(tokenX))
	s.Wait()

	view := s.Snapshot()
	assert.Equal(t, models.TokenPriceMap{tokenY.Hex(): "price-" + tokenY.Hex()}, view.Prices)
	assert.Equal(t, uint64(2), view.Generation)
	assert.Equal(t, "0xb", view.CurrentHash)
	assert.Len(t, view.History, 2)
	assert.Equal(t, 2, agg.Calls())

	assert.Equal(t, []string{output.KindLookup, output.KindLookup, output.KindPrices}, out.Kinds())
	assert.Equal(t, uint64(2), out.records[2].Generation)
}

func TestLookup_StalePricesClearedOnNewLookup(t *testing.T) {
	fetcher := &fakeFetcher{receipts: map[string]*models.Receipt{
		"0xa": receiptWithToken(tokenX),
		"0xb": receiptWithToken(tokenY),
	}}
	agg := &gatedAggregator{}
	close(agg.gate(tokenX))
	s := New(fetcher, transferDecoder{}, agg, quietLogger())

	_, err := s.Lookup(context.Background(), "0xa")
	require.NoError(t, err)
	s.Wait()
	assert.Contains(t, s.Snapshot().Prices, tokenX.Hex())

	_, err = s.Lookup(context.Background(), "0xb")
	require.NoError(t, err)
	// 新的日志集合尚未有价格，旧价格不再保留
	assert.Empty(t, s.Snapshot().Prices)

	close(agg.gate(tokenY))
	s.Wait()
	assert.Equal(t, []string{tokenY.Hex()}, keys(s.Snapshot().Prices))
}

func keys(m models.TokenPriceMap) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestLookup_NotFound(t *testing.T) {
	fetcher := &fakeFetcher{receipts: map[string]*models.Receipt{"0xa": receiptWithToken(tokenX)}}
	agg := &gatedAggregator{}
	close(agg.gate(tokenX))
	out := &recordingOutput{}
	s := New(fetcher, transferDecoder{}, agg, quietLogger(), WithOutput(out))

	_, err := s.Lookup(context.Background(), "0xa")
	require.NoError(t, err)
	s.Wait()
	before := s.Snapshot()

	_, err = s.Lookup(context.Background(), "0xmissing")
	require.Error(t, err)
	assert.True(t, lenserrors.IsNotFound(err))
	s.Wait()

	after := s.Snapshot()
	assert.Equal(t, before, after)
	assert.Equal(t, 1, agg.Calls())
	assert.Len(t, out.records, 2)

	stats := s.Stats().Snapshot()
	assert.Equal(t, 1, stats["total_errors"])
}

func TestLookup_TransportError(t *testing.T) {
	fetcher := &fakeFetcher{err: lenserrors.NewTransportError("0xa", errors.New("connection refused"))}
	agg := &gatedAggregator{}
	s := New(fetcher, transferDecoder{}, agg, quietLogger())

	_, err := s.Lookup(context.Background(), "0xa")
	assert.True(t, lenserrors.IsTransport(err))
	s.Wait()
	assert.Empty(t, s.Snapshot().History)
	assert.Equal(t, 0, agg.Calls())
}

func TestLookup_EmptyHash(t *testing.T) {
	fetcher := &fakeFetcher{}
	s := New(fetcher, transferDecoder{}, nil, quietLogger())

	_, err := s.Lookup(context.Background(), "   ")
	assert.True(t, lenserrors.IsValidation(err))
	assert.Equal(t, 0, fetcher.calls)
}

func TestLookup_WithoutAggregator(t *testing.T) {
	fetcher := &fakeFetcher{receipts: map[string]*models.Receipt{"0xa": receiptWithToken(tokenX)}}
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	s := New(fetcher, transferDecoder{}, nil, quietLogger(),
		WithClock(func() time.Time { return now }),
		WithRouterDetector(classifier.NewRouterDetector([]string{router.Hex()})))

	res, err := s.Lookup(context.Background(), " 0xa ")
	require.NoError(t, err)
	s.Wait()

	assert.True(t, res.ViaRouter)
	assert.Equal(t, models.ClassificationTransfer, res.Entry.Classification)
	assert.Equal(t, now, res.Entry.LookedUpAt)
	assert.Len(t, res.Logs, 1)
	assert.Empty(t, s.Snapshot().Prices)
	assert.Equal(t, "0xa", s.Snapshot().CurrentHash)
}

func TestLookup_OutputFailureIsRecorded(t *testing.T) {
	fetcher := &fakeFetcher{receipts: map[string]*models.Receipt{"0xa": receiptWithToken(tokenX)}}
	out := &recordingOutput{err: errors.New("broker down")}
	s := New(fetcher, transferDecoder{}, nil, quietLogger(), WithOutput(out))

	_, err := s.Lookup(context.Background(), "0xa")
	require.NoError(t, err)
	assert.Len(t, s.Snapshot().History, 1)

	stats := s.Stats().Snapshot()
	byType := stats["errors_by_type"].(map[string]int)
	assert.Equal(t, 1, byType["Output"])
}

func TestSnapshot_IsCopy(t *testing.T) {
	fetcher := &fakeFetcher{receipts: map[string]*models.Receipt{"0xa": receiptWithToken(tokenX)}}
	s := New(fetcher, transferDecoder{}, nil, quietLogger())

	_, err := s.Lookup(context.Background(), "0xa")
	require.NoError(t, err)

	view := s.Snapshot()
	view.History[0].Classification = models.ClassificationContractCreation
	view.Prices["0xdead"] = "1"

	fresh := s.Snapshot()
	assert.Equal(t, models.ClassificationTransfer, fresh.History[0].Classification)
	assert.Empty(t, fresh.Prices)
}

// instantAggregator 立即返回价格
type instantAggregator struct{}

func (instantAggregator) AggregatePrices(ctx context.Context, logs []models.DecodedLog) models.TokenPriceMap {
	prices := models.TokenPriceMap{}
	for _, l := range logs {
		prices[l.Address.Hex()] = "1"
	}
	return prices
}

func TestLookup_ConcurrentLookupAndWait(t *testing.T) {
	fetcher := &fakeFetcher{receipts: map[string]*models.Receipt{"0xa": receiptWithToken(tokenX)}}
	s := New(fetcher, transferDecoder{}, instantAggregator{}, quietLogger())

	const workers, rounds = 32, 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				_, err := s.Lookup(context.Background(), "0xa")
				assert.NoError(t, err)
				s.Wait()
			}
		}()
	}
	wg.Wait()
	s.Wait()

	assert.Len(t, s.Snapshot().History, workers*rounds)
}

func TestSession_ConcurrentLookupSnapshotWait(t *testing.T) {
	fetcher := &fakeFetcher{receipts: map[string]*models.Receipt{
		"0xa": receiptWithToken(tokenX),
		"0xb": receiptWithToken(tokenY),
	}}
	out := &recordingOutput{}
	s := New(fetcher, transferDecoder{}, instantAggregator{}, quietLogger(), WithOutput(out))

	const workers, rounds = 8, 25
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		hash := "0xa"
		if i%2 == 1 {
			hash = "0xb"
		}
		wg.Add(3)
		go func(hash string) {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				_, err := s.Lookup(context.Background(), hash)
				assert.NoError(t, err)
			}
		}(hash)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				view := s.Snapshot()
				assert.LessOrEqual(t, len(view.Prices), 1)
				assert.LessOrEqual(t, uint64(len(view.History)), view.Generation)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				s.Wait()
			}
		}()
	}
	wg.Wait()
	s.Wait()

	view := s.Snapshot()
	total := uint64(workers * rounds)
	assert.Len(t, view.History, int(total))
	assert.Equal(t, total, view.Generation)

	// 最后一代的价格一定被采用
	require.Len(t, view.Prices, 1)
	var adopted bool
	out.mu.Lock()
	for _, r := range out.records {
		if r.Kind == output.KindPrices && r.Generation == total {
			adopted = true
			assert.Equal(t, view.Prices, r.Prices)
		}
	}
	out.mu.Unlock()
	assert.True(t, adopted)
}
