package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestComputeSellingPriceMarkup(t *testing.T) {
	markup := dec("20")
	got := computeSellingPrice(dec("50"), &markup, nil, decimal.Zero)
	if !got.Equal(dec("60")) {
		t.Fatalf("cost 50 markup 20%%: want 60, got %s", got)
	}
}

func TestComputeSellingPriceMarkupWinsOverCallerPrice(t *testing.T) {
	markup := dec("10")
	caller := dec("999")
	got := computeSellingPrice(dec("100"), &markup, &caller, decimal.Zero)
	if !got.Equal(dec("110")) {
		t.Fatalf("markup should win over caller price: want 110, got %s", got)
	}
}

func TestComputeSellingPriceFractionalMarkup(t *testing.T) {
	markup := dec("12.5")
	got := computeSellingPrice(dec("80"), &markup, nil, decimal.Zero)
	if !got.Equal(dec("90")) {
		t.Fatalf("cost 80 markup 12.5%%: want 90, got %s", got)
	}
}

func TestComputeSellingPriceCallerPrice(t *testing.T) {
	caller := dec("75")
	got := computeSellingPrice(dec("50"), nil, &caller, dec("55"))
	if !got.Equal(dec("75")) {
		t.Fatalf("caller price: want 75, got %s", got)
	}
}

func TestComputeSellingPriceFallback(t *testing.T) {
	got := computeSellingPrice(dec("50"), nil, nil, dec("65"))
	if !got.Equal(dec("65")) {
		t.Fatalf("fallback to central selling price: want 65, got %s", got)
	}
}

func TestComputeSellingPriceZeroMarkup(t *testing.T) {
	markup := decimal.Zero
	got := computeSellingPrice(dec("50"), &markup, nil, dec("65"))
	if !got.Equal(dec("50")) {
		t.Fatalf("zero markup keeps cost: want 50, got %s", got)
	}
}
