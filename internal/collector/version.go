package collector

import (
	"fmt"
	"regexp"
)

// ExtractVersion pulls the pinned ref out of a workflow file for one action,
// matching lines like `uses: owner/action@v2` with or without quotes. The
// second return is false when no pinned ref is present; callers must treat
// that as an absent field, never as an error.
func ExtractVersion(content, action string) (string, bool) {
	if content == "" || action == "" {
		return "", false
	}
	pattern, err := regexp.Compile(fmt.Sprintf(`uses:\s*["']?%s@([^"'\s]+)`, regexp.QuoteMeta(action)))
	if err != nil {
		return "", false
	}
	match := pattern.FindStringSubmatch(content)
	if match == nil {
		return "", false
	}
	return match[1], true
}
