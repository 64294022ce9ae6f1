package source

import "github.com/fairyhunter13/jobfeed/internal/adapter/source/refdata"

// NormalizeTags folds raw tags to their canonical form, dropping empties and
// duplicates while keeping first-seen order.
func NormalizeTags(resolver *refdata.Resolver, tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		canonical := resolver.CanonicalTag(tag)
		if canonical == "" {
			continue
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		out = append(out, canonical)
	}
	return out
}

func dedupeStrings(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
