package version

import (
	"strconv"
	"strings"
)

// Version is the build version, set with -ldflags "-X .../internal/version.Version=v1.2.3".
var Version = "v0.1.0"

// UserAgent identifies this build to the backend.
func UserAgent() string {
	return "receiptsync/" + strings.TrimPrefix(Version, "v")
}

// Compare orders two dotted versions such as "1.4" or "v2.0.1". Missing
// components count as zero and pre-release suffixes are ignored. ok is false
// when either side does not parse.
func Compare(a, b string) (cmp int, ok bool) {
	x, okA := parse(a)
	y, okB := parse(b)
	if !okA || !okB {
		return 0, false
	}
	for i := range x {
		switch {
		case x[i] < y[i]:
			return -1, true
		case x[i] > y[i]:
			return 1, true
		}
	}
	return 0, true
}

// IsOutdated reports whether current is older than minimum. Unparseable
// versions are never outdated.
func IsOutdated(current, minimum string) bool {
	c, ok := Compare(current, minimum)
	return ok && c < 0
}

func parse(v string) ([3]int, bool) {
	var out [3]int
	s := strings.TrimSpace(v)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "v"), "V")
	if i := strings.IndexAny(s, "-+"); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return out, false
	}
	for i, part := range strings.SplitN(s, ".", 4) {
		if i == 3 {
			break
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return out, false
		}
		out[i] = n
	}
	return out, true
}
