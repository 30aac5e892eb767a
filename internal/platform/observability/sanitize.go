package observability

import "unicode"

// scrub drops control characters and truncates the value so attacker-supplied
// strings cannot inject log lines or bloat entries.
func scrub(value string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	out := make([]rune, 0, len(value))
	for _, r := range value {
		if unicode.IsControl(r) {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return string(out)
}

func scrubRoute(route string) string {
	if route == "" {
		return "/"
	}
	return scrub(route, 180)
}

func scrubMethod(method string) string {
	return scrub(method, 10)
}

func scrubUserID(uid string) string {
	return scrub(uid, 64)
}
