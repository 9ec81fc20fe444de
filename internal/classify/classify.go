// Package classify decides the content type of clipboard text and inspects
// payment card numbers.
package classify

import (
	"regexp"
	"strings"

	"github.com/hpungsan/whispr/internal/item"
)

// Network is one payment card network: its display name, number pattern,
// and the digit counts it issues.
type Network struct {
	Key         string
	DisplayName string
	Pattern     *regexp.Regexp
	Lengths     []int
}

func (n Network) matches(cleaned string) bool {
	if !n.Pattern.MatchString(cleaned) {
		return false
	}
	for _, l := range n.Lengths {
		if l == len(cleaned) {
			return true
		}
	}
	return false
}

// Networks is checked in order; the first match wins. Narrow prefixes come
// before the broad Maestro and Visa ranges.
var Networks = []Network{
	{"AMERICAN_EXPRESS", "American Express", regexp.MustCompile(`^3[47][0-9]{13}$`), []int{15}},
	{"DINERS_CLUB", "Diners Club", regexp.MustCompile(`^(30[0-5]|36|38)[0-9]{11}$`), []int{14}},
	{"JCB", "JCB", regexp.MustCompile(`^35[0-9]{14}$`), []int{16}},
	{"DISCOVER", "Discover", regexp.MustCompile(`^(6011|65|64[4-9])[0-9]{12,15}$`), []int{16, 19}},
	{"MASTERCARD", "Mastercard", regexp.MustCompile(`^(5[1-5][0-9]{14}|2[2-7][0-9]{14})$`), []int{16}},
	{"VISA", "Visa", regexp.MustCompile(`^4[0-9]{12}(?:[0-9]{3}|[0-9]{6})?$`), []int{13, 16, 19}},
	{"MAESTRO", "Maestro", regexp.MustCompile(`^(50|56|57|58|6)[0-9]{10,17}$`), []int{12, 13, 14, 15, 16, 17, 18, 19}},
	{"UNIONPAY", "UnionPay", regexp.MustCompile(`^62[0-9]{14,17}$`), []int{16, 17, 18, 19}},
	{"RUPAY", "RuPay", regexp.MustCompile(`^60[0-9]{14,17}$`), []int{16, 17, 18, 19}},
	{"MIR", "MIR", regexp.MustCompile(`^220[0-4][0-9]{12}$`), []int{16}},
	{"TROY", "TROY", regexp.MustCompile(`^9792[0-9]{12}$`), []int{16}},
}

// MaskPrefix replaces all but the last four digits of a masked card.
const MaskPrefix = "**** **** **** "

// Clean strips whitespace and hyphens.
func Clean(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '\v', '\f', '-':
			return -1
		}
		return r
	}, s)
}

// Classify returns the content type for clipboard text. Only creditCard and
// text are produced; link and code are reserved in the type set.
func Classify(text string) item.ContentType {
	if IsCreditCard(text) {
		return item.TypeCreditCard
	}
	return item.TypeText
}

// DetectNetwork returns the display name of the first network matching the
// number by both pattern and length.
func DetectNetwork(number string) (string, bool) {
	cleaned := Clean(number)
	for _, n := range Networks {
		if n.matches(cleaned) {
			return n.DisplayName, true
		}
	}
	return "", false
}

// IsCreditCard reports whether any network matches by pattern and length.
func IsCreditCard(text string) bool {
	_, ok := DetectNetwork(text)
	return ok
}

// MaskNumber hides all but the last four characters of a card number.
// Inputs with fewer than four characters after cleaning come back unchanged.
func MaskNumber(number string) string {
	cleaned := []rune(Clean(number))
	if len(cleaned) < 4 {
		return number
	}
	return MaskPrefix + string(cleaned[len(cleaned)-4:])
}

// Display returns text suitable for list views: masked for card items,
// unchanged otherwise.
func Display(it *item.Item) string {
	if it.Type == item.TypeCreditCard {
		return MaskNumber(it.Content)
	}
	return it.Content
}
