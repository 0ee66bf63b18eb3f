package model

// AuthorityTier represents the classification of source authority
type AuthorityTier int

const (
	TierUnknown   AuthorityTier = 0 // Not yet classified
	TierPrimary   AuthorityTier = 1 // Papers, preprints, journals, university pages
	TierSecondary AuthorityTier = 2 // Encyclopedias, reference sites, Q&A with review
	TierTertiary  AuthorityTier = 3 // Blogs, forums, personal pages
)

func (t AuthorityTier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierSecondary:
		return "secondary"
	case TierTertiary:
		return "tertiary"
	default:
		return "unknown"
	}
}
