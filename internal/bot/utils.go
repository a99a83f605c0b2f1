package bot

import (
	"html"
	"strings"
	"time"
)

var moscow = time.FixedZone("MSK", 3*60*60)

func formatDate(t time.Time) string {
	return t.In(moscow).Format("02.01.2006")
}

func escape(s string) string {
	return html.EscapeString(s)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

func isSkipText(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	return strings.Contains(t, "пропуст") || t == "skip" || t == "-"
}

func displayName(username, firstName string) string {
	switch {
	case username != "":
		return "@" + username
	case firstName != "":
		return firstName
	default:
		return "без имени"
	}
}
