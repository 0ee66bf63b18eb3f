package sources

import (
	"net/url"
	"strings"

	"github.com/ppiankov/lemmata/internal/model"
)

var (
	defaultPrimary = []string{
		"arxiv.org", "doi.org", "ams.org", "zbmath.org", "mathscinet.ams.org",
		"jstor.org", "springer.com", "sciencedirect.com", "wiley.com",
		"projecteuclid.org", "cambridge.org", "academic.oup.com", "tandfonline.com",
		"annals.math.princeton.edu", "numdam.org", "hal.science", "oeis.org",
	}
	defaultSecondary = []string{
		"wikipedia.org", "mathworld.wolfram.com", "mathoverflow.net",
		"math.stackexchange.com", "proofwiki.org", "encyclopediaofmath.org",
		"planetmath.org", "ncatlab.org", "terrytao.wordpress.com",
	}
	academicSuffixes = []string{".edu", ".ac.uk", ".ac.jp", ".edu.au", ".gov"}
)

// Classifier assigns authority tiers to source URLs by host
type Classifier struct {
	overrides map[string]model.AuthorityTier
	primary   []string
	secondary []string
}

// NewClassifier creates a classifier. overrides maps exact hosts to
// "primary", "secondary" or "tertiary" and wins over the built-in lists.
func NewClassifier(overrides map[string]string) *Classifier {
	c := &Classifier{
		overrides: make(map[string]model.AuthorityTier, len(overrides)),
		primary:   defaultPrimary,
		secondary: defaultSecondary,
	}
	for host, tier := range overrides {
		c.overrides[strings.ToLower(host)] = parseTier(tier)
	}
	return c
}

// Classify returns the tier of rawURL; unparseable or unknown hosts are tertiary
func (c *Classifier) Classify(rawURL string) model.AuthorityTier {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return model.TierTertiary
	}
	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")

	if tier, ok := c.overrides[host]; ok {
		return tier
	}
	if matchesDomain(host, c.primary) {
		return model.TierPrimary
	}
	if matchesDomain(host, c.secondary) {
		return model.TierSecondary
	}
	for _, suffix := range academicSuffixes {
		if strings.HasSuffix(host, suffix) {
			return model.TierPrimary
		}
	}
	return model.TierTertiary
}

func matchesDomain(host string, domains []string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func parseTier(tier string) model.AuthorityTier {
	switch strings.ToLower(tier) {
	case "primary", "1":
		return model.TierPrimary
	case "secondary", "2":
		return model.TierSecondary
	default:
		return model.TierTertiary
	}
}
