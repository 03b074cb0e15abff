package extract

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFromTextPriceWithDate(t *testing.T) {
	draft := FromText(`Koers € 96,6307 (09-01-2026) per participatie`)

	if draft.Price == nil {
		t.Fatal("expected a price")
	}
	if !draft.Price.Equal(decimal.RequireFromString("96.6307")) {
		t.Fatalf("unexpected price %s", draft.Price)
	}
	if draft.PriceDate == nil || *draft.PriceDate != "2026-01-09" {
		t.Fatalf("unexpected price date %v", draft.PriceDate)
	}
}

func TestFromTextBarePrice(t *testing.T) {
	draft := FromText(`Laatste koers: € 50,25`)

	if draft.Price == nil {
		t.Fatal("expected a price")
	}
	if !draft.Price.Equal(decimal.RequireFromString("50.25")) {
		t.Fatalf("unexpected price %s", draft.Price)
	}
	if draft.PriceDate != nil {
		t.Fatalf("expected no price date, got %s", *draft.PriceDate)
	}
}

func TestFromTextPeriodSeparator(t *testing.T) {
	draft := FromText(`€ 100.5000 (02-03-2025)`)

	if draft.Price == nil || !draft.Price.Equal(decimal.RequireFromString("100.5")) {
		t.Fatalf("unexpected price %v", draft.Price)
	}
	if draft.PriceDate == nil || *draft.PriceDate != "2025-03-02" {
		t.Fatalf("unexpected price date %v", draft.PriceDate)
	}
}

func TestFromTextISIN(t *testing.T) {
	draft := FromText(`ISIN: NL0013689110, beheerd fonds`)

	if draft.ISIN == nil || *draft.ISIN != "NL0013689110" {
		t.Fatalf("unexpected isin %v", draft.ISIN)
	}
}

func TestFromTextOngoingCharges(t *testing.T) {
	draft := FromText(`Lopende kosten 0,50% per jaar, geen transactiekosten`)

	if draft.OngoingCharges == nil {
		t.Fatal("expected ongoing charges")
	}
	if !draft.OngoingCharges.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("unexpected charges %s", draft.OngoingCharges)
	}
}

func TestFromTextPerformancesRange(t *testing.T) {
	draft := FromText(`Rendement 2023: 12,5% en 2031: 9% en 2019: 25%`)

	if got, ok := draft.Performances[2023]; !ok || !got.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("unexpected 2023 performance %v", draft.Performances)
	}
	if _, ok := draft.Performances[2031]; ok {
		t.Fatal("2031 should be outside the retained range")
	}
	if _, ok := draft.Performances[2019]; ok {
		t.Fatal("2019 should be outside the retained range")
	}
}

func TestFromTextPerformanceLastMatchWins(t *testing.T) {
	draft := FromText(`2022: 3% ... 2022. -4,2%`)

	got, ok := draft.Performances[2022]
	if !ok {
		t.Fatal("expected a 2022 entry")
	}
	if !got.Equal(decimal.RequireFromString("-4.2")) {
		t.Fatalf("expected last match to win, got %s", got)
	}
}

func TestFromTextNegativePerformance(t *testing.T) {
	draft := FromText(`2022: -13,7%`)

	got, ok := draft.Performances[2022]
	if !ok || !got.Equal(decimal.RequireFromString("-13.7")) {
		t.Fatalf("unexpected 2022 performance %v", draft.Performances)
	}
}

func TestFromTextEmptyInput(t *testing.T) {
	draft := FromText("")

	if draft.Price != nil || draft.PriceDate != nil || draft.ISIN != nil || draft.OngoingCharges != nil {
		t.Fatalf("empty input should yield an empty draft: %+v", draft)
	}
	if len(draft.Performances) != 0 {
		t.Fatalf("expected no performances, got %v", draft.Performances)
	}
}
