package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/winemarket/backend/internal/domain"
)

// RecorderInstaller exposes the fetch client's single diagnostic slot
type RecorderInstaller interface {
	InstallRecorder(rec domain.FetchRecorder) (release func(), err error)
}

// DiagnosticServiceConfig holds configuration for diagnostic runs
type DiagnosticServiceConfig struct {
	CandidateCap int
	Caches       []CacheClearer // cleared first so the trace shows live exchanges
	Logger       *zap.Logger
}

// DiagnosticService replays a refresh for one (wine, source) pair and records
// every HTTP exchange and scoring decision. Nothing is persisted.
type DiagnosticService struct {
	wines        domain.WineRepository
	sources      domain.PriceSourceRepository
	adapters     AdapterResolver
	matcher      *MatchingService
	recorder     RecorderInstaller
	candidateCap int
	caches       []CacheClearer
	logger       *zap.Logger
}

// NewDiagnosticService creates a diagnostic runner
func NewDiagnosticService(
	wines domain.WineRepository,
	sources domain.PriceSourceRepository,
	adapters AdapterResolver,
	matcher *MatchingService,
	recorder RecorderInstaller,
	config DiagnosticServiceConfig,
) *DiagnosticService {
	candidateCap := config.CandidateCap
	if candidateCap <= 0 {
		candidateCap = defaultCandidateCap
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DiagnosticService{
		wines:        wines,
		sources:      sources,
		adapters:     adapters,
		matcher:      matcher,
		recorder:     recorder,
		candidateCap: candidateCap,
		caches:       config.Caches,
		logger:       logger.Named("diagnostic"),
	}
}

// fetchLog collects records emitted while the recorder is installed
type fetchLog struct {
	mu      sync.Mutex
	records []domain.FetchRecord
}

func (l *fetchLog) add(r domain.FetchRecord) {
	l.mu.Lock()
	l.records = append(l.records, r)
	l.mu.Unlock()
}

func (l *fetchLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

func (l *fetchLog) slice(from, to int) []domain.FetchRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.FetchRecord, to-from)
	copy(out, l.records[from:to])
	return out
}

// Diagnose traces search and scoring of every capped candidate. Unlike a
// refresh it does not stop at the first acceptance. Errors are reported in
// trace.Error; the recorder is released on every path.
func (s *DiagnosticService) Diagnose(ctx context.Context, wineID, sourceID string) (trace domain.DiagnosticTrace) {
	trace = domain.DiagnosticTrace{
		RunID:          uuid.NewString(),
		WineID:         wineID,
		SourceID:       sourceID,
		SearchRequests: []domain.FetchRecord{},
		Candidates:     []domain.CandidateTrace{},
	}
	start := time.Now()
	logger := s.logger.With(zap.String("run_id", trace.RunID))

	defer func() {
		if r := recover(); r != nil {
			trace.Error = fmt.Sprintf("panic: %v", r)
			logger.Error("diagnostic run panicked", zap.Any("panic", r))
		}
		logger.Info("diagnostic run finished",
			zap.String("wine_id", wineID),
			zap.String("source_id", sourceID),
			zap.Int("search_requests", len(trace.SearchRequests)),
			zap.Int("candidates", len(trace.Candidates)),
			zap.String("error", trace.Error),
			zap.Duration("took", time.Since(start)),
		)
	}()

	wine, err := s.wines.GetWineForMatch(ctx, wineID)
	if err != nil {
		trace.Error = err.Error()
		return trace
	}
	trace.Wine = wine

	source, err := s.sources.GetSource(ctx, sourceID)
	if err != nil {
		trace.Error = err.Error()
		return trace
	}
	trace.AdapterType = source.AdapterType

	adapter, err := s.adapters.Resolve(source.AdapterType)
	if err != nil {
		trace.Error = err.Error()
		return trace
	}

	opts := MatchOptions{Source: source}
	trace.Threshold = s.matcher.EffectiveThreshold(opts)

	log := &fetchLog{}
	release, err := s.recorder.InstallRecorder(log.add)
	if err != nil {
		trace.Error = err.Error()
		return trace
	}
	defer release()

	for _, c := range s.caches {
		c.ClearCache()
	}

	candidates, err := adapter.SearchCandidates(ctx, wine, source)
	searchCount := log.len()
	trace.SearchRequests = log.slice(0, searchCount)
	if err != nil {
		trace.Error = fmt.Sprintf("search: %v", err)
		return trace
	}
	if len(candidates) > s.candidateCap {
		candidates = candidates[:s.candidateCap]
	}

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			trace.Error = err.Error()
			return trace
		}
		trace.Candidates = append(trace.Candidates, s.traceCandidate(ctx, adapter, wine, source, candidate, opts, log))
	}
	return trace
}

// traceCandidate attributes the records emitted during the offer fetch to the
// candidate. The last one is the product page exchange; none means the offer
// came from a cache.
func (s *DiagnosticService) traceCandidate(
	ctx context.Context,
	adapter domain.SourceAdapter,
	wine *domain.WineForMatch,
	source *domain.PriceSource,
	candidate string,
	opts MatchOptions,
	log *fetchLog,
) domain.CandidateTrace {
	ct := domain.CandidateTrace{URL: candidate}

	before := log.len()
	offer, err := adapter.FetchOffer(ctx, candidate, source)
	emitted := log.slice(before, log.len())
	if len(emitted) == 0 {
		ct.FromCache = err == nil
	} else {
		last := emitted[len(emitted)-1]
		ct.Fetch = &last
	}

	if err != nil {
		ct.Error = err.Error()
		return ct
	}
	if offer == nil {
		ct.RejectReason = domain.RejectNoOffer
		return ct
	}

	match := s.matcher.EvaluateMatch(wine, offer, opts)
	ct.Offer = offer
	ct.Match = &match
	ct.Accepted = match.Accepted
	ct.RejectReason = match.RejectReason
	return ct
}
