package champion

import (
	"context"
	"fmt"

	"github.com/openshelf/openshelf-server/internal/domain"
)

// Evaluator scores candidate summary texts against each other. The real
// implementation calls an external text-quality service trained on the
// corpus of candidates.
type Evaluator interface {
	Evaluate(ctx context.Context, texts []string) ([]float64, error)
}

// BestSummary picks the best descriptive summary from candidates. When a
// privileged source list is given (most preferred first), the selection
// short-circuits to the first privileged source with any summary; only if
// no privileged source contributed anything does unrestricted scoring run.
func BestSummary(ctx context.Context, candidates []*domain.Resource, eval Evaluator, privileged []domain.DataSource) (*domain.Resource, error) {
	var usable []*domain.Resource
	for _, c := range candidates {
		if c.Rel == domain.RelDescription && c.Content != "" {
			usable = append(usable, c)
		}
	}
	if len(usable) == 0 {
		return nil, nil
	}

	for _, source := range privileged {
		var fromSource []*domain.Resource
		for _, c := range usable {
			if c.Source == source {
				fromSource = append(fromSource, c)
			}
		}
		if len(fromSource) == 1 {
			return fromSource[0], nil
		}
		if len(fromSource) > 1 {
			return scoreSummaries(ctx, fromSource, eval)
		}
	}

	return scoreSummaries(ctx, usable, eval)
}

func scoreSummaries(ctx context.Context, candidates []*domain.Resource, eval Evaluator) (*domain.Resource, error) {
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Content
	}

	scores, err := eval.Evaluate(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("evaluate summaries: %w", err)
	}
	if len(scores) != len(candidates) {
		return nil, fmt.Errorf("evaluator returned %d scores for %d candidates", len(scores), len(candidates))
	}

	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return candidates[best], nil
}
