package champion

import (
	"strconv"
	"strings"

	"github.com/openshelf/openshelf-server/internal/domain"
)

// OpenAccessPolicy configures open-access link selection. Injected at
// construction; never read from process-wide state.
type OpenAccessPolicy struct {
	// SupportedMediaTypes lists the content types a patron's reader can
	// actually consume. Candidates outside the list are rejected outright.
	SupportedMediaTypes map[string]bool

	// SourcePriority ranks sources, most preferred last.
	SourcePriority []domain.DataSource
}

// DefaultOpenAccessPolicy returns the standard link-selection policy.
func DefaultOpenAccessPolicy() OpenAccessPolicy {
	return OpenAccessPolicy{
		SupportedMediaTypes: map[string]bool{
			"application/epub+zip": true,
			"application/pdf":      true,
		},
		SourcePriority: []domain.DataSource{
			domain.SourceGutenberg,
			domain.SourceUnglueIt,
			domain.SourceFeedbooks,
			domain.SourcePlympton,
			domain.SourceStandardEbooks,
		},
	}
}

func (p OpenAccessPolicy) sourceRank(s domain.DataSource) int {
	for i, candidate := range p.SourcePriority {
		if candidate == s {
			return i + 1
		}
	}
	return 0
}

// BestOpenAccessLink picks the best download link from candidates. Ties
// within Gutenberg are broken by preferring files whose name does not
// indicate stripped images, then by the larger numeric file ID, which
// corresponds to the more recent upload.
func (p OpenAccessPolicy) BestOpenAccessLink(candidates []*domain.Resource) *domain.Resource {
	var usable []*domain.Resource
	for _, c := range candidates {
		if c.Rel != domain.RelOpenAccessDownload {
			continue
		}
		if !p.SupportedMediaTypes[c.MediaType] {
			continue
		}
		usable = append(usable, c)
	}

	tied := Best(usable, func(r *domain.Resource) float64 {
		return float64(p.sourceRank(r.Source))
	})
	if len(tied) == 0 {
		return nil
	}
	if len(tied) == 1 {
		return tied[0]
	}

	winner := tied[0]
	for _, challenger := range tied[1:] {
		if betterGutenbergFile(challenger, winner) {
			winner = challenger
		}
	}
	return winner
}

// betterGutenbergFile reports whether a beats b under the Gutenberg
// same-source tie-break rules. For non-Gutenberg ties the incumbent stands.
func betterGutenbergFile(a, b *domain.Resource) bool {
	if a.Source != domain.SourceGutenberg || b.Source != domain.SourceGutenberg {
		return false
	}

	aStripped := strings.Contains(a.URL, "noimages")
	bStripped := strings.Contains(b.URL, "noimages")
	if aStripped != bStripped {
		return bStripped
	}

	return fileNumber(a.URL) > fileNumber(b.URL)
}

// fileNumber extracts the trailing numeric ID from a Gutenberg file URL.
func fileNumber(url string) int {
	end := len(url)
	for end > 0 && !isDigit(url[end-1]) {
		end--
	}
	start := end
	for start > 0 && isDigit(url[start-1]) {
		start--
	}
	if start == end {
		return 0
	}
	n, err := strconv.Atoi(url[start:end])
	if err != nil {
		return 0
	}
	return n
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// BestOpenAccessPool picks the champion among a work's open-access pools:
// the pool patrons are actually handed when they borrow the work. Higher
// source priority wins; on a tie the incumbent (earlier candidate) stands,
// keeping champion churn low across recomputes.
func (p OpenAccessPolicy) BestOpenAccessPool(pools []*domain.LicensePool) *domain.LicensePool {
	var open []*domain.LicensePool
	for _, pool := range pools {
		if pool.OpenAccess && !pool.Suppressed {
			open = append(open, pool)
		}
	}

	tied := Best(open, func(pool *domain.LicensePool) float64 {
		return float64(p.sourceRank(pool.Source))
	})
	if len(tied) == 0 {
		return nil
	}
	return tied[0]
}
