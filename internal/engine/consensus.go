package engine

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/propflow/veritas/internal/model"
)

// ConsensusConfig tunes the tolerance-based voting rule.
type ConsensusConfig struct {
	// Reliability ranks providers for tie-breaking; lower is more
	// reliable. Providers absent from the map rank last.
	Reliability map[string]int
	// Epsilon is the absolute agreement tolerance for small magnitudes.
	Epsilon float64
	// RelativeTolerance applies above MagnitudeThreshold so floating
	// point noise does not dominate large values.
	RelativeTolerance float64
	// MagnitudeThreshold selects between absolute and relative tolerance.
	MagnitudeThreshold float64
}

// DefaultConsensusConfig returns the default voting tolerances.
func DefaultConsensusConfig() ConsensusConfig {
	return ConsensusConfig{
		Epsilon:            0.01,
		RelativeTolerance:  0.01,
		MagnitudeThreshold: 1000,
	}
}

// Verdict is the consensus outcome for one round.
type Verdict struct {
	Recommendation string
	Majority       []string
	MajorityValue  float64
	Score          float64
	Achieved       bool
}

// vote is one provider's numeric answer.
type vote struct {
	provider string
	value    float64
}

// Evaluator combines per-provider results into an agreement score and a
// pass/fail decision.
type Evaluator struct {
	cfg            ConsensusConfig
	totalProviders int
}

// NewEvaluator creates an evaluator for a fixed provider count.
func NewEvaluator(cfg ConsensusConfig, totalProviders int) *Evaluator {
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = 0.01
	}
	if cfg.RelativeTolerance <= 0 {
		cfg.RelativeTolerance = 0.01
	}
	if cfg.MagnitudeThreshold <= 0 {
		cfg.MagnitudeThreshold = 1000
	}
	return &Evaluator{cfg: cfg, totalProviders: totalProviders}
}

// Evaluate scores a round of provider results. Only numeric results vote;
// errored providers still count in the score denominator. Consensus is
// achieved when a strict majority of responding providers mutually agree,
// and an agreeing cluster needs at least two members. The score is the
// largest agreeing cluster's size over the configured provider count.
func (e *Evaluator) Evaluate(results map[string]model.ProviderResult) Verdict {
	responders := make([]vote, 0, len(results))
	for provider, r := range results {
		if r.Responded() {
			responders = append(responders, vote{provider: provider, value: *r.Value})
		}
	}
	// Provider name order keeps cluster construction deterministic.
	sort.Slice(responders, func(i, j int) bool {
		return responders[i].provider < responders[j].provider
	})

	if len(responders) == 0 {
		return Verdict{
			Recommendation: fmt.Sprintf("all %d providers failed or timed out; no numeric results to compare", e.totalProviders),
		}
	}

	// Each responder anchors a candidate cluster of every value within
	// tolerance of it. The winner is the largest cluster; ties fall to
	// the configured reliability ranking, then to the larger aggregate
	// magnitude, then to provider name order. Iteration order never
	// decides.
	var best []vote
	for _, anchor := range responders {
		var cluster []vote
		for _, r := range responders {
			if e.agrees(anchor.value, r.value) {
				cluster = append(cluster, r)
			}
		}
		if e.better(cluster, best) {
			best = cluster
		}
	}

	clusterSize := 0
	if len(best) >= 2 {
		clusterSize = len(best)
	}

	achieved := clusterSize > 0 && clusterSize*2 > len(responders)
	score := float64(clusterSize) / float64(e.totalProviders)

	verdict := Verdict{
		Score:    score,
		Achieved: achieved,
	}

	if clusterSize > 0 {
		verdict.MajorityValue = clusterMean(best)
		for _, r := range best {
			verdict.Majority = append(verdict.Majority, r.provider)
		}
	}

	if achieved {
		verdict.Recommendation = fmt.Sprintf("%d of %d providers agreed on %g", clusterSize, e.totalProviders, verdict.MajorityValue)
	} else {
		verdict.Recommendation = e.describeDisagreement(responders, best, clusterSize)
	}

	return verdict
}

// agrees reports whether two numeric results agree within tolerance.
func (e *Evaluator) agrees(a, b float64) bool {
	diff := math.Abs(a - b)
	scale := math.Max(math.Abs(a), math.Abs(b))
	if scale > e.cfg.MagnitudeThreshold {
		return diff <= e.cfg.RelativeTolerance*scale
	}
	return diff <= e.cfg.Epsilon
}

// better reports whether cluster a beats cluster b under the deterministic
// tie-break rules.
func (e *Evaluator) better(a, b []vote) bool {
	if len(b) == 0 {
		return len(a) > 0
	}
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	if ra, rb := e.bestReliability(a), e.bestReliability(b); ra != rb {
		return ra < rb
	}
	if ma, mb := aggregateMagnitude(a), aggregateMagnitude(b); ma != mb {
		return ma > mb
	}
	return clusterKey(a) < clusterKey(b)
}

// bestReliability is the best (lowest) configured rank among cluster members.
func (e *Evaluator) bestReliability(cluster []vote) int {
	best := math.MaxInt
	for _, r := range cluster {
		if rank, ok := e.cfg.Reliability[r.provider]; ok && rank < best {
			best = rank
		}
	}
	return best
}

func aggregateMagnitude(cluster []vote) float64 {
	var sum float64
	for _, r := range cluster {
		sum += math.Abs(r.value)
	}
	return sum
}

func clusterKey(cluster []vote) string {
	names := make([]string, 0, len(cluster))
	for _, r := range cluster {
		names = append(names, r.provider)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

func clusterMean(cluster []vote) float64 {
	var sum float64
	for _, r := range cluster {
		sum += r.value
	}
	return sum / float64(len(cluster))
}

// describeDisagreement builds the recommendation text that aids manual
// review when consensus fails.
func (e *Evaluator) describeDisagreement(responders, best []vote, clusterSize int) string {
	if clusterSize == 0 {
		parts := make([]string, 0, len(responders))
		for _, r := range responders {
			parts = append(parts, fmt.Sprintf("%s returned %g", r.provider, r.value))
		}
		return fmt.Sprintf("no two providers agreed: %s", strings.Join(parts, ", "))
	}

	majority := clusterMean(best)
	inCluster := make(map[string]struct{}, len(best))
	for _, r := range best {
		inCluster[r.provider] = struct{}{}
	}

	var outliers []string
	for _, r := range responders {
		if _, ok := inCluster[r.provider]; !ok {
			outliers = append(outliers, fmt.Sprintf("%s returned %g vs majority %g", r.provider, r.value, majority))
		}
	}
	return fmt.Sprintf("below majority agreement: %s", strings.Join(outliers, "; "))
}
