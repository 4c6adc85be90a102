// Relay header composition.
package relay

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
)

// headerSep joins the header fields operators scan in the group.
const headerSep = " • "

// composeHeader renders the metadata line announcing an incoming private
// message: name, subscription expiry, lifetime paid total, country flag.
func composeHeader(name string, until time.Time, totalPaid decimal.Decimal, langCode string) string {
	fields := []string{name}
	if until.IsZero() {
		fields = append(fields, "no sub")
	} else {
		fields = append(fields, until.UTC().Format("2006-01-02"))
	}
	fields = append(fields, "$"+totalPaid.StringFixed(2))
	fields = append(fields, countryFlag(langCode))
	return strings.Join(fields, headerSep)
}

// countryFlag maps a Telegram language_code to a flag emoji via the BCP 47
// likely region. Unknown or regionless codes fall back to a globe.
func countryFlag(langCode string) string {
	if langCode == "" {
		return "🌐"
	}
	tag, err := language.Parse(langCode)
	if err != nil {
		return "🌐"
	}
	region, _ := tag.Region()
	code := region.String()
	if len(code) != 2 || code == "ZZ" {
		return "🌐"
	}
	// Regional indicator symbols: 'A' maps to U+1F1E6.
	a, b := rune(code[0]), rune(code[1])
	if a < 'A' || a > 'Z' || b < 'A' || b > 'Z' {
		return "🌐"
	}
	return fmt.Sprintf("%c%c", a-'A'+0x1F1E6, b-'A'+0x1F1E6)
}
