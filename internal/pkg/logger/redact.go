package logger

import (
	"regexp"
	"strings"
)

var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// personKeys name the fields that carry a contact's identity.
var personKeys = []string{"email", "contact", "prospect", "name"}

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func RedactEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" || strings.Contains(domain, "@") {
		return "***@***"
	}
	if len(local) > 2 {
		return local[:2] + "***@" + domain
	}
	return "***@" + domain
}

// RedactName keeps the first letter of each word of a display name.
// "Ana Ruiz" → "A*** R***"
func RedactName(name string) string {
	words := strings.Fields(name)
	for i, w := range words {
		r := []rune(w)
		words[i] = string(r[0]) + "***"
	}
	return strings.Join(words, " ")
}

func redactPIIValue(key, val string) string {
	key = strings.ToLower(key)
	for _, k := range personKeys {
		if !strings.Contains(key, k) {
			continue
		}
		if strings.Contains(val, "@") {
			return RedactEmail(val)
		}
		return RedactName(val)
	}
	return emailRegex.ReplaceAllStringFunc(val, RedactEmail)
}
