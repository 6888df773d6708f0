package usecase

import (
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/winemarket/backend/internal/domain"
	"github.com/winemarket/backend/internal/textmatch"
)

// Default scoring parameters. Per-source config may override each of them.
const (
	defaultProducerWeight   = 0.35
	defaultNameWeight       = 0.45
	defaultMatchThreshold   = 0.35
	containmentBoostFactor  = 1.2
	configKeyProducerWeight = "producerWeight"
	configKeyNameWeight     = "nameWeight"
)

// MatchConfig holds configuration for the matching service.
// Zero values fall back to the package defaults.
type MatchConfig struct {
	DefaultThreshold   float64
	ProducerWeight     float64
	NameWeight         float64
	EnableDebugLogging bool
	Logger             *zap.Logger
}

// MatchOptions carries per-call overrides. Threshold wins over the source config when set.
type MatchOptions struct {
	Threshold *float64
	Source    *domain.PriceSource
}

// MatchingService scores candidate listings against catalog wines
type MatchingService struct {
	defaultThreshold   float64
	producerWeight     float64
	nameWeight         float64
	enableDebugLogging bool
	logger             *zap.Logger
}

// NewMatchingService creates a new matching service with the given configuration
func NewMatchingService(config MatchConfig) *MatchingService {
	threshold := config.DefaultThreshold
	if threshold <= 0 {
		threshold = defaultMatchThreshold
	}

	producerWeight := config.ProducerWeight
	if producerWeight <= 0 {
		producerWeight = defaultProducerWeight
	}

	nameWeight := config.NameWeight
	if nameWeight <= 0 {
		nameWeight = defaultNameWeight
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &MatchingService{
		defaultThreshold:   threshold,
		producerWeight:     producerWeight,
		nameWeight:         nameWeight,
		enableDebugLogging: config.EnableDebugLogging,
		logger:             logger.Named("match"),
	}
}

// EffectiveThreshold resolves explicit override, then source config, then the global default
func (s *MatchingService) EffectiveThreshold(opts MatchOptions) float64 {
	if opts.Threshold != nil {
		return *opts.Threshold
	}
	if t, ok := opts.Source.MatchThreshold(); ok {
		return t
	}
	return s.defaultThreshold
}

// EvaluateMatch scores an offer title against a wine and decides acceptance.
// Rejections are checked in order: size_mismatch, then below_threshold.
// Vintage is reported in the breakdown but never affects the score.
func (s *MatchingService) EvaluateMatch(
	wine *domain.WineForMatch,
	offer *domain.NormalizedOffer,
	opts MatchOptions,
) domain.MatchResult {
	if wine == nil || offer == nil {
		return domain.MatchResult{RejectReason: domain.RejectBelowThreshold}
	}

	title := textmatch.NormalizePDPTitle(offer.Title)
	producerW, nameW := s.weights(opts.Source)

	breakdown := domain.MatchBreakdown{
		WineVintage:  wine.Vintage,
		OfferVintage: textmatch.ExtractYear(offer.Title),
		WineSize:     textmatch.ExtractSize(wine.Name),
		OfferSize:    textmatch.ExtractSize(offer.Size),
	}
	if breakdown.WineVintage == "" {
		breakdown.WineVintage = textmatch.ExtractYear(wine.Name)
	}
	if breakdown.OfferSize == "" {
		breakdown.OfferSize = textmatch.ExtractSize(offer.Title)
	}

	var weighted, totalWeight float64

	if score, ok := producerScore(wine.Producer, title, offer.Vendor); ok {
		breakdown.ProducerScore = round2(score)
		weighted += score * producerW
		totalWeight += producerW
	}

	if score, ok := nameScore(wine.Name, title); ok {
		breakdown.NameScore = round2(score)
		weighted += score * nameW
		totalWeight += nameW
	}

	score := 0.0
	if totalWeight > 0 {
		score = clamp01(round2(weighted / totalWeight))
	}

	result := domain.MatchResult{Score: score, Breakdown: breakdown}
	threshold := s.EffectiveThreshold(opts)

	switch {
	case breakdown.WineSize != "" && breakdown.OfferSize != "" && breakdown.WineSize != breakdown.OfferSize:
		result.RejectReason = domain.RejectSizeMismatch
	case score < threshold:
		result.RejectReason = domain.RejectBelowThreshold
	default:
		result.Accepted = true
	}

	if s.enableDebugLogging {
		s.logger.Debug("evaluated offer",
			zap.String("wine", wine.Name),
			zap.String("title", offer.Title),
			zap.Float64("score", score),
			zap.Float64("threshold", threshold),
			zap.Bool("accepted", result.Accepted),
			zap.String("reason", result.RejectReason),
		)
	}

	return result
}

func (s *MatchingService) weights(source *domain.PriceSource) (float64, float64) {
	producerW, nameW := s.producerWeight, s.nameWeight
	if w, ok := source.ConfigFloat(configKeyProducerWeight); ok && w > 0 {
		producerW = w
	}
	if w, ok := source.ConfigFloat(configKeyNameWeight); ok && w > 0 {
		nameW = w
	}
	return producerW, nameW
}

// producerScore compares the producer with the title, and with the offer vendor when present.
// The second return is false when the wine has no producer.
func producerScore(producer, normalizedTitle, vendor string) (float64, bool) {
	p := textmatch.NormalizeForMatch(producer)
	if p == "" {
		return 0, false
	}

	score := math.Max(jaccard(p, normalizedTitle), containsPhrase(normalizedTitle, p))
	if v := textmatch.NormalizeForMatch(vendor); v != "" {
		score = math.Max(score, math.Max(jaccard(p, v), containsPhrase(v, p)))
	}
	return score, true
}

// nameScore is the max of name-token coverage and boosted containment.
// The second return is false when the name normalizes to nothing.
func nameScore(name, normalizedTitle string) (float64, bool) {
	n := textmatch.NormalizeWineName(textmatch.StripSize(name))
	if n == "" {
		return 0, false
	}

	if containsPhrase(normalizedTitle, n) == 1 {
		return 1, true
	}

	nameTokens := textmatch.Tokens(n)
	if len(nameTokens) == 0 {
		return 0, true
	}

	matched, _ := findIntersection(nameTokens, textmatch.Tokens(normalizedTitle))
	coverage := float64(matched) / float64(len(nameTokens))

	contained := 0
	for _, token := range nameTokens {
		if strings.Contains(normalizedTitle, token) {
			contained++
		}
	}
	containment := math.Min(1, float64(contained)/float64(len(nameTokens))*containmentBoostFactor)

	return math.Max(coverage, containment), true
}

// jaccard computes token Jaccard overlap of two normalized strings
func jaccard(a, b string) float64 {
	ta, tb := textmatch.Tokens(a), textmatch.Tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	matched, _ := findIntersection(ta, tb)
	return float64(matched) / float64(findUnion(ta, tb))
}

// containsPhrase returns 1 when needle appears in haystack on word boundaries
func containsPhrase(haystack, needle string) float64 {
	if needle == "" || haystack == "" {
		return 0
	}
	if strings.Contains(" "+haystack+" ", " "+needle+" ") {
		return 1
	}
	return 0
}

// findIntersection returns the count of common tokens and the list of matched tokens
func findIntersection(tokens1, tokens2 []string) (int, []string) {
	set := make(map[string]bool)
	for _, t := range tokens1 {
		set[t] = true
	}

	var matched []string
	seen := make(map[string]bool)
	for _, t := range tokens2 {
		if set[t] && !seen[t] {
			matched = append(matched, t)
			seen[t] = true
		}
	}

	return len(matched), matched
}

// findUnion returns the count of unique tokens across both sets
func findUnion(tokens1, tokens2 []string) int {
	set := make(map[string]bool)
	for _, t := range tokens1 {
		set[t] = true
	}
	for _, t := range tokens2 {
		set[t] = true
	}
	return len(set)
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
