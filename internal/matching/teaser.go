package matching

// Default teaser settings. Deployments have used quota 5 or 8 and perfect
// limit 3 or 5, so both are configurable.
const (
	DefaultTeaserQuota        = 5
	DefaultTeaserPerfectLimit = 3
)

// TeaserSelector picks the free preview shown before the unlock.
type TeaserSelector struct {
	// PerfectLimit caps how many perfect matches are taken before good ones.
	PerfectLimit int
}

// Select returns at most quota matches: perfect ones up to PerfectLimit, then
// good ones. Perfect matches past the limit are only revealed when quota
// covers every match, in which case everything is returned. Each tier keeps
// the order of matches. The result for quota n is always a prefix of the
// result for n+1.
func (s TeaserSelector) Select(matches []Match, quota int) []Match {
	if quota <= 0 || len(matches) == 0 {
		return []Match{}
	}

	limit := max(s.PerfectLimit, 0)

	var perfect, good []Match
	for _, m := range matches {
		switch m.Strength {
		case Perfect:
			perfect = append(perfect, m)
		case Good:
			good = append(good, m)
		}
	}

	limit = min(limit, len(perfect))
	ranked := make([]Match, 0, len(perfect)+len(good))
	ranked = append(ranked, perfect[:limit]...)
	ranked = append(ranked, good...)
	if quota >= len(perfect)+len(good) {
		ranked = append(ranked, perfect[limit:]...)
	}

	return ranked[:min(quota, len(ranked))]
}
