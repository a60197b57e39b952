package config

import (
	"os"
	"strings"
)

// expandString replaces ${VAR} and ${VAR:-default} placeholders.
// ${VAR} resolves only to a non-empty environment value and is otherwise left
// untouched. ${VAR:-default} falls back to default when VAR is unset or empty.
func expandString(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}

	var b strings.Builder
	for {
		start := strings.Index(s, "${")
		if start < 0 {
			b.WriteString(s)
			break
		}
		end := strings.Index(s[start:], "}")
		if end < 0 {
			b.WriteString(s)
			break
		}
		end += start

		b.WriteString(s[:start])
		b.WriteString(resolvePlaceholder(s[start : end+1]))
		s = s[end+1:]
	}
	return b.String()
}

// resolvePlaceholder resolves a single "${...}" token.
func resolvePlaceholder(token string) string {
	inner := token[2 : len(token)-1]

	name, def, hasDefault := strings.Cut(inner, ":-")
	if v := os.Getenv(name); v != "" {
		return v
	}
	if hasDefault {
		return def
	}
	return token
}
