package pricing

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/noah-isme/backoffice-pricing/internal/money"
)

// Supported locales for AmountInWords.
const (
	LocaleVI = "vi"
	LocaleEN = "en"
)

var (
	viDigits = [10]string{"không", "một", "hai", "ba", "bốn", "năm", "sáu", "bảy", "tám", "chín"}
	viScales = [3]string{"", "nghìn", "triệu"}

	enOnes = [20]string{"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine", "ten",
		"eleven", "twelve", "thirteen", "fourteen", "fifteen", "sixteen", "seventeen", "eighteen", "nineteen"}
	enTens   = [10]string{"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety"}
	enScales = [7]string{"", "thousand", "million", "billion", "trillion", "quadrillion", "quintillion"}
)

// AmountInWords spells the amount rounded to whole units, followed by the
// currency name, for printing on invoices. Unknown locales fall back to vi.
func AmountInWords(m money.Money, locale string) string {
	v := m.Round(0).Decimal().IntPart()
	negative := v < 0
	n := uint64(v)
	if negative {
		n = uint64(-v)
	}
	var words, minus, currency string
	if strings.EqualFold(strings.TrimSpace(locale), LocaleEN) {
		words, minus, currency = spellEN(n), "minus", "dong"
	} else {
		words, minus, currency = spellVI(n), "âm", "đồng"
	}
	if negative {
		words = minus + " " + words
	}
	return capitalize(words + " " + currency)
}

func groupsOf(n uint64) []int {
	var groups []int
	for n > 0 {
		groups = append(groups, int(n%1000))
		n /= 1000
	}
	return groups
}

func spellVI(n uint64) string {
	if n == 0 {
		return viDigits[0]
	}
	groups := groupsOf(n)
	var parts []string
	for i := len(groups) - 1; i >= 0; i-- {
		g := groups[i]
		if g == 0 {
			continue
		}
		leading := i == len(groups)-1
		parts = append(parts, spellVIGroup(g, !leading))
		if scale := viScale(i); scale != "" {
			parts = append(parts, scale)
		}
	}
	return strings.Join(parts, " ")
}

func viScale(i int) string {
	parts := make([]string, 0, 1+i/3)
	if s := viScales[i%3]; s != "" {
		parts = append(parts, s)
	}
	for k := 0; k < i/3; k++ {
		parts = append(parts, "tỷ")
	}
	return strings.Join(parts, " ")
}

// spellVIGroup reads a 0-999 block. full forces the hundreds digit and the
// "linh" filler for blocks that follow a non-zero higher block.
func spellVIGroup(g int, full bool) string {
	h, t, u := g/100, (g/10)%10, g%10
	var parts []string
	if h > 0 || full {
		parts = append(parts, viDigits[h], "trăm")
	}
	switch {
	case t == 0:
		if u > 0 && (h > 0 || full) {
			parts = append(parts, "linh")
		}
	case t == 1:
		parts = append(parts, "mười")
	default:
		parts = append(parts, viDigits[t], "mươi")
	}
	switch {
	case u == 0:
	case u == 1 && t > 1:
		parts = append(parts, "mốt")
	case u == 4 && t > 1:
		parts = append(parts, "tư")
	case u == 5 && t > 0:
		parts = append(parts, "lăm")
	default:
		parts = append(parts, viDigits[u])
	}
	return strings.Join(parts, " ")
}

func spellEN(n uint64) string {
	if n == 0 {
		return enOnes[0]
	}
	groups := groupsOf(n)
	var parts []string
	for i := len(groups) - 1; i >= 0; i-- {
		if groups[i] == 0 {
			continue
		}
		parts = append(parts, spellENGroup(groups[i]))
		if enScales[i] != "" {
			parts = append(parts, enScales[i])
		}
	}
	return strings.Join(parts, " ")
}

func spellENGroup(g int) string {
	var parts []string
	if h := g / 100; h > 0 {
		parts = append(parts, enOnes[h], "hundred")
	}
	rest := g % 100
	switch {
	case rest == 0:
	case rest < 20:
		parts = append(parts, enOnes[rest])
	case rest%10 == 0:
		parts = append(parts, enTens[rest/10])
	default:
		parts = append(parts, enTens[rest/10]+"-"+enOnes[rest%10])
	}
	return strings.Join(parts, " ")
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
