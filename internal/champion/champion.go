// Package champion implements best-of-set selection: given several
// candidate resources or editions, pick the one a patron should see.
// Each selector pairs a scoring policy with its own tie-break rule.
package champion

// Best accumulates a running champion over candidates under score, keeping
// the full tied set so callers can apply their own tie-break. A nil or
// empty candidate set yields a nil tied set.
func Best[T any](candidates []T, score func(T) float64) []T {
	var (
		tied []T
		top  float64
	)
	for _, c := range candidates {
		s := score(c)
		switch {
		case tied == nil || s > top:
			tied = []T{c}
			top = s
		case s == top:
			tied = append(tied, c)
		}
	}
	return tied
}
