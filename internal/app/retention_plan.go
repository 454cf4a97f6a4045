package app

import (
	"regexp"
	"sort"
	"strings"

	"registry-retain/internal/types"
)

var releaseTriple = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// BuildPagePlan classifies one listing page. Versions are ordered by
// creation ordinal, newest first. On the final page of the walk
// (page 1) the first keep+1 entries are retained by the count rule; on
// every other page all entries are candidates. A tag-protected version
// is never a deletion candidate, whichever way the count rule went,
// and is reported under Protected so its layers end up in the
// exclusion set.
func BuildPagePlan(versions []types.PackageVersion, policy types.RetentionPolicy, finalPage bool) types.RetentionPlan {
	keep := policy.Keep
	if keep < 0 {
		keep = 0
	}
	sorted := append([]types.PackageVersion(nil), versions...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID > sorted[j].ID
	})
	var plan types.RetentionPlan
	for i, version := range sorted {
		switch {
		case IsProtectedTags(version.Tags):
			plan.Protected = append(plan.Protected, version)
		case finalPage && i < keep+1:
			plan.Retained = append(plan.Retained, version)
		default:
			plan.Delete = append(plan.Delete, version)
		}
	}
	return plan
}

// IsProtectedTags applies the tag classification rule. Tags are
// scanned in their listed order and the first tag to match any rule
// decides the outcome:
//
//	"latest"                  -> protected
//	contains ".sha."          -> not protected
//	contains "SNAPSHOT"       -> not protected
//	strict N.N.N release form -> protected
//
// Versions with no tags are never protected.
func IsProtectedTags(tags []string) bool {
	if len(tags) == 0 {
		return false
	}
	for _, tag := range tags {
		if tag == "latest" {
			return true
		}
		if strings.Contains(tag, ".sha.") {
			return false
		}
		if strings.Contains(tag, "SNAPSHOT") {
			return false
		}
		if releaseTriple.MatchString(tag) {
			return true
		}
	}
	return false
}
