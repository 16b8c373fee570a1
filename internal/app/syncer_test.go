package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"

	"github.com/jsamuelsen/quotebook/internal/adapters/persistence"
	"github.com/jsamuelsen/quotebook/internal/domain"
	"github.com/jsamuelsen/quotebook/internal/mocks"
	"github.com/jsamuelsen/quotebook/internal/platform/config"
	"github.com/jsamuelsen/quotebook/internal/platform/telemetry"
)

func TestNewSyncer_Panics(t *testing.T) {
	svc := NewQuoteService(QuoteServiceConfig{Storage: persistence.NewMemory()})

	assert.PanicsWithValue(t, "app.NewSyncer: Service is required", func() {
		NewSyncer(SyncerConfig{Source: mocks.NewMockQuoteSource(t)})
	})
	assert.PanicsWithValue(t, "app.NewSyncer: Source is required", func() {
		NewSyncer(SyncerConfig{Service: svc})
	})
}

func TestNewSyncer_DefaultInterval(t *testing.T) {
	s := NewSyncer(SyncerConfig{
		Service: NewQuoteService(QuoteServiceConfig{Storage: persistence.NewMemory()}),
		Source:  mocks.NewMockQuoteSource(t),
	})

	assert.Equal(t, 60*time.Second, s.Interval())
}

func TestSyncer_SyncOnce(t *testing.T) {
	tests := []struct {
		name       string
		local      []domain.Quote
		remote     []domain.Quote
		fetchErr   error
		wantReport domain.MergeReport
		wantList   []domain.Quote
		wantSaved  bool
	}{
		{
			name:  "remote category wins and new records append",
			local: []domain.Quote{{Text: "A", Category: "Old"}, {Text: "B", Category: "Keep"}},
			remote: []domain.Quote{
				{Text: "A", Category: "New"},
				{Text: " C ", Category: " Fresh "},
			},
			wantReport: domain.MergeReport{Updated: 1, Appended: 1},
			wantList: []domain.Quote{
				{Text: "A", Category: "New"},
				{Text: "B", Category: "Keep"},
				{Text: "C", Category: "Fresh"},
			},
			wantSaved: true,
		},
		{
			name:  "invalid remote records are dropped",
			local: []domain.Quote{{Text: "A", Category: "Old"}},
			remote: []domain.Quote{
				{Text: "", Category: "X"},
				{Text: "Y", Category: "   "},
			},
			wantList:  []domain.Quote{{Text: "A", Category: "Old"}},
			wantSaved: true,
		},
		{
			name:     "fetch failure is a no-op",
			local:    []domain.Quote{{Text: "A", Category: "Old"}},
			fetchErr: domain.NewUnavailableError("quote-source", "connection refused"),
			wantList: []domain.Quote{{Text: "A", Category: "Old"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := persistence.NewMemory()
			svc := newTestService(t, storage, tt.local...)

			source := mocks.NewMockQuoteSource(t)
			source.EXPECT().FetchCandidates(mock.Anything).Return(tt.remote, tt.fetchErr).Once()

			s := NewSyncer(SyncerConfig{Service: svc, Source: source})

			report, err := s.SyncOnce(context.Background())

			require.NoError(t, err)
			assert.Equal(t, tt.wantReport, report)
			assert.Equal(t, tt.wantList, svc.List(context.Background()))

			_, getErr := storage.Get(context.Background(), config.DefaultQuotesKey)
			if tt.wantSaved {
				require.NoError(t, getErr)
				assert.Equal(t, tt.wantList, savedQuotes(t, storage))
				assert.False(t, svc.LastSync().IsZero())
			} else {
				assert.ErrorIs(t, getErr, domain.ErrNotFound)
				assert.True(t, svc.LastSync().IsZero())
			}
		})
	}
}

func TestSyncer_SyncOnce_Idempotent(t *testing.T) {
	remote := []domain.Quote{{Text: "A", Category: "New"}, {Text: "C", Category: "Fresh"}}

	source := mocks.NewMockQuoteSource(t)
	source.EXPECT().FetchCandidates(mock.Anything).Return(remote, nil).Times(2)

	svc := newTestService(t, persistence.NewMemory(), domain.Quote{Text: "A", Category: "Old"})
	s := NewSyncer(SyncerConfig{Service: svc, Source: source})

	_, err := s.SyncOnce(context.Background())
	require.NoError(t, err)

	before := svc.List(context.Background())

	report, err := s.SyncOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.MergeReport{Updated: 2, Appended: 0}, report)
	assert.Equal(t, before, svc.List(context.Background()))
}

func TestSyncer_SyncOnce_PersistFailure(t *testing.T) {
	storage := mocks.NewMockKeyValueStore(t)
	storage.EXPECT().Set(mock.Anything, config.DefaultQuotesKey, mock.Anything).Return(errDiskFull)

	source := mocks.NewMockQuoteSource(t)
	source.EXPECT().FetchCandidates(mock.Anything).Return([]domain.Quote{{Text: "N", Category: "New"}}, nil)

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewQuoteMetrics("test", reg)

	svc := newTestService(t, storage)
	s := NewSyncer(SyncerConfig{Service: svc, Source: source, Metrics: metrics})

	report, err := s.SyncOnce(context.Background())

	require.Error(t, err)

	step, ok := SyncStepOf(err)
	assert.True(t, ok)
	assert.Equal(t, StepPersist, step)
	assert.True(t, domain.IsPersistence(err))
	assert.ErrorIs(t, err, errDiskFull)

	assert.Equal(t, domain.MergeReport{Appended: 1}, report)
	assert.Equal(t, 1, svc.Store().Len())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.SyncRuns.WithLabelValues(telemetry.SyncOutcomePersistFail)), 0)
}

func TestSyncer_SyncOnce_FetchFailureMetrics(t *testing.T) {
	source := mocks.NewMockQuoteSource(t)
	source.EXPECT().FetchCandidates(mock.Anything).Return(nil, errors.New("dial tcp: refused"))

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewQuoteMetrics("test", reg)

	s := NewSyncer(SyncerConfig{
		Service: newTestService(t, mocks.NewMockKeyValueStore(t)),
		Source:  source,
		Metrics: metrics,
	})

	report, err := s.SyncOnce(context.Background())

	require.NoError(t, err)
	assert.Zero(t, report)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.SyncRuns.WithLabelValues(telemetry.SyncOutcomeFetchFailed)), 0)
}

func TestSyncer_LocalAddDuringFetchSurvives(t *testing.T) {
	svc := newTestService(t, persistence.NewMemory(), domain.Quote{Text: "A", Category: "Old"})

	source := mocks.NewMockQuoteSource(t)
	source.EXPECT().FetchCandidates(mock.Anything).RunAndReturn(func(ctx context.Context) ([]domain.Quote, error) {
		_, err := svc.Add(ctx, "Local", "Mine")
		require.NoError(t, err)

		return []domain.Quote{{Text: "Local", Category: "Theirs"}, {Text: "R", Category: "Remote"}}, nil
	})

	s := NewSyncer(SyncerConfig{Service: svc, Source: source})

	report, err := s.SyncOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, domain.MergeReport{Updated: 1, Appended: 1}, report)
	assert.Equal(t, []domain.Quote{
		{Text: "A", Category: "Old"},
		{Text: "Local", Category: "Theirs"},
		{Text: "R", Category: "Remote"},
	}, svc.List(context.Background()))
}

func TestSyncer_Run(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := newTestService(t, persistence.NewMemory())

	calls := make(chan struct{}, 8)
	source := mocks.NewMockQuoteSource(t)
	source.EXPECT().FetchCandidates(mock.Anything).RunAndReturn(func(context.Context) ([]domain.Quote, error) {
		select {
		case calls <- struct{}{}:
		default:
		}

		return []domain.Quote{{Text: "R", Category: "Remote"}}, nil
	})

	s := NewSyncer(SyncerConfig{Service: svc, Source: source, Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- s.Run(ctx) }()

	for range 2 {
		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			t.Fatal("sync did not run")
		}
	}

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Equal(t, 1, svc.Store().Len())
}

func TestSyncer_Run_CancelledBeforeStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewSyncer(SyncerConfig{
		Service: newTestService(t, persistence.NewMemory()),
		Source:  mocks.NewMockQuoteSource(t),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, s.Run(ctx))
}

func TestSyncError(t *testing.T) {
	cause := errors.New("boom")
	err := &SyncError{Step: StepFetch, Cause: cause}

	assert.Equal(t, "sync fetch failed: boom", err.Error())
	assert.ErrorIs(t, err, cause)

	_, ok := SyncStepOf(cause)
	assert.False(t, ok)
}

func TestSyncer_SyncOnce_Spans(t *testing.T) {
	tests := []struct {
		name       string
		saveErr    error
		wantNames  []string
		wantStatus codes.Code
	}{
		{
			name:       "every stage traced",
			wantNames:  []string{"quotes.sync.fetch", "quotes.sync.verify", "quotes.sync.merge", "quotes.sync.persist", "quotes.sync"},
			wantStatus: codes.Unset,
		},
		{
			name:       "persist failure marks the run",
			saveErr:    errDiskFull,
			wantNames:  []string{"quotes.sync.fetch", "quotes.sync.verify", "quotes.sync.merge", "quotes.sync.persist", "quotes.sync"},
			wantStatus: codes.Error,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := tracetest.NewSpanRecorder()
			provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

			storage := mocks.NewMockKeyValueStore(t)
			storage.EXPECT().Set(mock.Anything, config.DefaultQuotesKey, mock.Anything).Return(tt.saveErr)

			source := mocks.NewMockQuoteSource(t)
			source.EXPECT().FetchCandidates(mock.Anything).Return([]domain.Quote{{Text: "N", Category: "New"}}, nil)

			s := NewSyncer(SyncerConfig{
				Service: newTestService(t, storage),
				Source:  source,
				Tracer:  provider.Tracer("test"),
			})

			_, _ = s.SyncOnce(context.Background())

			spans := recorder.Ended()
			names := make([]string, 0, len(spans))

			for _, sp := range spans {
				names = append(names, sp.Name())
			}

			assert.Equal(t, tt.wantNames, names)

			root := spans[len(spans)-1]
			assert.Equal(t, tt.wantStatus, root.Status().Code)

			for _, child := range spans[:len(spans)-1] {
				assert.Equal(t, root.SpanContext().SpanID(), child.Parent().SpanID())
			}
		})
	}
}
