package urlfilter

import (
	"fmt"

	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

// Admit canonicalizes a harvested link and applies the admission filter.
// When sourceURL is non-empty the link must also share the source's region.
func Admit(sourceURL, rawURL string) (string, error) {
	canonical, err := Canonicalize(rawURL)
	if err != nil {
		return "", err
	}
	if ShouldSkip(canonical) {
		return "", fmt.Errorf("%w: %s", scrape.ErrAdmissionRejected, canonical)
	}
	if sourceURL != "" && !SameRegion(sourceURL, canonical) {
		return "", fmt.Errorf("%w: %s outside region of %s", scrape.ErrAdmissionRejected, canonical, sourceURL)
	}
	return canonical, nil
}
