package bot

import (
	"regexp"
	"strings"
)

// Order tokens are either a bare 6+ digit order number or a short
// letter prefix followed by 6+ alphanumerics (e.g. ST999999,
// ORD-AB12CD), optionally preceded by an "auth" keyword. Anchored so
// ordinary chat text never matches.
var orderTokenRe = regexp.MustCompile(`(?i)^(?:auth(?:enticate)?\s+)?([A-Z]{2,4}-?[A-Z0-9]{6,}|\d{6,})$`)

// ExtractOrderToken returns the normalized order token in text, or ""
// when the text is not a redemption attempt. A token must carry at
// least one digit; a plain word that happens to fit the shape is chat.
func ExtractOrderToken(text string) string {
	m := orderTokenRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return ""
	}
	if !strings.ContainsAny(m[1], "0123456789") {
		return ""
	}
	return strings.ToUpper(m[1])
}
