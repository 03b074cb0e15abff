package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Draft holds the fields recovered from one fund page. Every field is
// independently optional: a pattern that does not match leaves its field nil.
type Draft struct {
	Price          *decimal.Decimal
	PriceDate      *string
	ISIN           *string
	OngoingCharges *decimal.Decimal
	Performances   map[int]decimal.Decimal
}

// Performance years outside this window are discarded. The pages list a fixed
// recent-years block and anything else that happens to look like "NNNN: x%" is
// page furniture, not a return figure.
const (
	minPerformanceYear = 2020
	maxPerformanceYear = 2030
)

var (
	pricedDateRe = regexp.MustCompile(`€\s*(\d+(?:[.,]\d+)?)\s*\((\d{2})-(\d{2})-(\d{4})\)`)
	bareRe       = regexp.MustCompile(`€\s*(\d+(?:[.,]\d+)?)`)
	isinRe       = regexp.MustCompile(`\b[A-Z]{2}[A-Z0-9]{10}\b`)
	chargesRe    = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*%\s*per\s+(?:jaar|year)`)
	performRe    = regexp.MustCompile(`\b(\d{4})[:.]?\s*([+-]?\d+(?:[.,]\d+)?)\s*%`)
)

// FromText extracts a Draft from rendered page text. It never fails: fields
// whose patterns do not match stay nil, so callers always get a partial result.
func FromText(text string) Draft {
	draft := Draft{Performances: map[int]decimal.Decimal{}}

	if m := pricedDateRe.FindStringSubmatch(text); m != nil {
		if price, err := parseDecimal(m[1]); err == nil {
			draft.Price = &price
			date := fmt.Sprintf("%s-%s-%s", m[4], m[3], m[2])
			draft.PriceDate = &date
		}
	}
	if draft.Price == nil {
		if m := bareRe.FindStringSubmatch(text); m != nil {
			if price, err := parseDecimal(m[1]); err == nil {
				draft.Price = &price
			}
		}
	}

	if m := isinRe.FindString(text); m != "" {
		isin := m
		draft.ISIN = &isin
	}

	if m := chargesRe.FindStringSubmatch(text); m != nil {
		if charges, err := parseDecimal(m[1]); err == nil {
			draft.OngoingCharges = &charges
		}
	}

	for _, m := range performRe.FindAllStringSubmatch(text, -1) {
		year, err := strconv.Atoi(m[1])
		if err != nil || year < minPerformanceYear || year > maxPerformanceYear {
			continue
		}
		pct, err := parseDecimal(m[2])
		if err != nil {
			continue
		}
		// Last match wins for a repeated year.
		draft.Performances[year] = pct
	}

	return draft
}

func parseDecimal(raw string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.Replace(raw, ",", ".", 1))
}
