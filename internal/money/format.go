package money

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Format renders the amount rounded to whole units with the locale's digit
// grouping, e.g. "1.250.000" for vi and "1,250,000" for en.
func Format(m Money, locale string) string {
	tag := language.Vietnamese
	if strings.EqualFold(strings.TrimSpace(locale), "en") {
		tag = language.English
	}
	p := message.NewPrinter(tag)
	return p.Sprintf("%d", m.d.Round(0).IntPart())
}
