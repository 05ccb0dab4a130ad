// Package extract turns fetched product-page HTML into structured listing
// facts using per-site field-selector profiles. Extraction is best-effort:
// a field whose lookup fails is simply absent, and the caller decides
// whether the resulting facts are usable.
package extract

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/flipscout/flipscout/internal/domain/model"
)

// Page carries one fetched product page into the extraction engine.
type Page struct {
	SiteID string
	URL    string
	Body   io.Reader
}

// Extract parses the page and resolves each logical field through the
// profile's rules. It fails only when the HTML itself cannot be parsed;
// missing fields never raise.
func Extract(page Page, profile SiteProfile) (*model.ListingFacts, error) {
	doc, err := goquery.NewDocumentFromReader(page.Body)
	if err != nil {
		return nil, fmt.Errorf("parse page %s: %w", page.URL, err)
	}

	facts := &model.ListingFacts{
		SiteID:     page.SiteID,
		ListingURL: page.URL,
	}

	facts.Title = lookup(doc, profile.Title)
	facts.Color = lookup(doc, profile.Color)
	facts.Size = lookup(doc, profile.Size)
	facts.ImageURL = lookup(doc, profile.Image)

	if priceText := lookup(doc, profile.Price); priceText != nil {
		facts.Price = ParsePrice(*priceText)
	}

	stockText := ""
	if st := lookup(doc, profile.Stock); st != nil {
		stockText = *st
	}
	facts.InStock = ClassifyStock(stockText)

	return facts, nil
}

// lookup resolves one field rule against the document, returning nil when
// the selector is empty, matches nothing, or yields only whitespace.
func lookup(doc *goquery.Document, rule FieldRule) *string {
	if strings.TrimSpace(rule.Selector) == "" {
		return nil
	}

	sel := doc.Find(rule.Selector).First()
	if sel.Length() == 0 {
		return nil
	}

	var value string
	if rule.Attr != "" {
		attr, ok := sel.Attr(rule.Attr)
		if !ok {
			return nil
		}
		value = attr
	} else {
		value = sel.Text()
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
