package imageprompt

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/aiakap/travel-planner-v1/internal/domain"
)

const (
	dateLayout    = "2 Jan 2006"
	maxSummaryLen = 600
	noTextClause  = "Do not render any text, lettering, watermarks or logos in the image."
)

var lightnessHints = map[string]string{
	"light":    "Bright, airy lighting with light tones.",
	"dark":     "Low-key, moody lighting with deep tones.",
	"balanced": "Natural, balanced lighting.",
}

// Compose joins the template with the entity's own details into the prompt
// sent to the image model. Absent details are omitted.
func Compose(tpl domain.ImagePromptTemplate, entity domain.Entity) string {
	d := entity.Describe()
	label := cases.Title(language.English).String(string(entity.Kind()))

	parts := []string{tpl.Prompt}
	if d.Title != "" {
		parts = append(parts, label+` "`+d.Title+`".`)
	}
	if d.Subtype != "" {
		parts = append(parts, "Type: "+d.Subtype+".")
	}
	if d.Summary != "" {
		parts = append(parts, "Details: "+sentence(truncate(d.Summary, maxSummaryLen)))
	}
	if len(d.Locations) > 0 {
		parts = append(parts, "Locations: "+strings.Join(d.Locations, ", ")+".")
	}
	if dates := dateRange(d.StartsAt, d.EndsAt); dates != "" {
		parts = append(parts, "Dates: "+dates+".")
	}
	if d.Parent != "" {
		parts = append(parts, "Part of: "+d.Parent+".")
	}
	if tpl.Style != "" {
		parts = append(parts, "Style: "+tpl.Style+".")
	}
	if hint, ok := lightnessHints[tpl.Lightness]; ok {
		parts = append(parts, hint)
	}
	parts = append(parts, noTextClause)

	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

func dateRange(start, end *time.Time) string {
	switch {
	case start != nil && end != nil && !sameDay(*start, *end):
		return start.Format(dateLayout) + " to " + end.Format(dateLayout)
	case start != nil:
		return start.Format(dateLayout)
	case end != nil:
		return end.Format(dateLayout)
	}
	return ""
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func sentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?") {
		return s
	}
	return s + "."
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "..."
}
