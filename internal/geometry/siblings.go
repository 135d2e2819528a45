package geometry

import (
	"regexp"
	"strconv"

	"github.com/roach88/mapsync/internal/feature"
)

var siblingSuffix = regexp.MustCompile(`^(.*):(\d+)$`)

// baseTitle strips a trailing ":N" sibling number.
func baseTitle(title string) string {
	title = feature.NormalizeTitle(title)
	if m := siblingSuffix.FindStringSubmatch(title); m != nil {
		return m[1]
	}
	return title
}

// siblingTitles returns n new titles "base:N" using the lowest positive
// numbers not already taken among existing titles.
func siblingTitles(base string, existing []string, n int) []string {
	base = feature.NormalizeTitle(base)
	used := map[int]bool{}
	for _, t := range existing {
		m := siblingSuffix.FindStringSubmatch(feature.NormalizeTitle(t))
		if m == nil || m[1] != base {
			continue
		}
		if k, err := strconv.Atoi(m[2]); err == nil {
			used[k] = true
		}
	}

	out := make([]string, 0, n)
	for k := 1; len(out) < n; k++ {
		if used[k] {
			continue
		}
		used[k] = true
		out = append(out, base+":"+strconv.Itoa(k))
	}
	return out
}
