// Package extract turns a rendered plate page into a VehicleRecord.
//
// Each data category (technical detail, FIPE valuation, IPVA history) is
// read by an ordered list of strategies. The first strategy that yields a
// non-empty result wins; results from different strategies are never
// merged. A category whose source table is absent or malformed comes back
// empty instead of failing the whole extraction.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/use-agent/placafipe/models"
	"golang.org/x/net/html"
)

// Layout names the page structures the extractor reads.
type Layout struct {
	// DetailSelectors locate the two-column technical-detail tables, in
	// fallback order. Rows of every table matching a selector are read.
	DetailSelectors []string

	// ValuationSelectors locate the FIPE table, in fallback order. The
	// alternates are narrower-viewport renderings of the same data.
	ValuationSelectors []string

	// HistoryMarker is header text that identifies the IPVA history table.
	HistoryMarker string

	// NotFoundText is the message the site shows for unknown plates.
	NotFoundText string
}

// DefaultLayout matches the current placafipe.com markup.
func DefaultLayout() Layout {
	return Layout{
		DetailSelectors:    []string{"table.fipeTablePriceDetail"},
		ValuationSelectors: []string{"table.fipe-desktop", "table.fipe-mobile"},
		HistoryMarker:      "Ano IPVA",
		NotFoundText:       "Placa não encontrada",
	}
}

// Extractor is immutable and safe for concurrent use.
type Extractor struct {
	layout    Layout
	detail    []strategy[map[string]string]
	valuation []strategy[[]models.FipeValuation]
	history   []strategy[[]models.IpvaHistoryEntry]
	dataProbe []cascadia.Selector
}

// New compiles the layout's selectors.
func New(layout Layout) (*Extractor, error) {
	e := &Extractor{layout: layout}

	for _, raw := range layout.DetailSelectors {
		sel, err := cascadia.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("detail selector %q: %w", raw, err)
		}
		e.detail = append(e.detail, detailStrategy(raw, sel))
		e.dataProbe = append(e.dataProbe, sel)
	}
	for _, raw := range layout.ValuationSelectors {
		sel, err := cascadia.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("valuation selector %q: %w", raw, err)
		}
		e.valuation = append(e.valuation, valuationStrategy(raw, sel))
	}
	if marker := strings.TrimSpace(layout.HistoryMarker); marker != "" {
		e.history = append(e.history, historyStrategy(marker))
	}
	return e, nil
}

// Extract reads every category from rawHTML. Only an empty or unparseable
// document is an error, and it is FATAL: extraction must never run before a
// page has loaded.
func (e *Extractor) Extract(rawHTML string) (*models.VehicleRecord, error) {
	doc, err := parse(rawHTML)
	if err != nil {
		return nil, err
	}

	rec := models.NewVehicleRecord()
	if attrs, from := firstNonEmpty(doc, e.detail); from != "" {
		rec.Attributes = attrs
	}
	if vals, from := firstNonEmpty(doc, e.valuation); from != "" {
		rec.Valuations = vals
	}
	if hist, from := firstNonEmpty(doc, e.history); from != "" {
		rec.IpvaHistory = hist
	}
	return rec, nil
}

// Marker is what a static page snapshot says about a plate.
type Marker int

const (
	// MarkerNone means neither the data table nor the not-found text is
	// present, which usually means the content is rendered by script.
	MarkerNone Marker = iota
	MarkerData
	MarkerNotFound
)

func (m Marker) String() string {
	switch m {
	case MarkerData:
		return "data"
	case MarkerNotFound:
		return "not-found"
	}
	return "none"
}

// Probe reports which outcome marker rawHTML carries. The data table wins
// when both are present.
func (e *Extractor) Probe(rawHTML string) Marker {
	doc, err := parse(rawHTML)
	if err != nil {
		return MarkerNone
	}
	for _, sel := range e.dataProbe {
		if doc.FindMatcher(sel).Length() > 0 {
			return MarkerData
		}
	}
	if e.layout.NotFoundText != "" && strings.Contains(cleanText(doc.Find("body").Text()), e.layout.NotFoundText) {
		return MarkerNotFound
	}
	return MarkerNone
}

func parse(rawHTML string) (*goquery.Document, error) {
	if strings.TrimSpace(rawHTML) == "" {
		return nil, models.NewLookupError(models.KindFatal, "extraction invoked without a loaded page", nil)
	}
	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, models.NewLookupError(models.KindFatal, "failed to parse page HTML", err)
	}
	return goquery.NewDocumentFromNode(root), nil
}

// ── Per-category strategies ──────────────────────────────────────────

var yearPattern = regexp.MustCompile(`^\d{4}$`)

func detailStrategy(name string, sel cascadia.Selector) strategy[map[string]string] {
	return strategy[map[string]string]{
		name: name,
		run: func(doc *goquery.Document) (map[string]string, bool) {
			attrs := make(map[string]string)
			doc.FindMatcher(sel).Find("tr").Each(func(_ int, row *goquery.Selection) {
				cells := rowCells(row)
				if len(cells) != 2 {
					return
				}
				key := cleanLabel(cells[0])
				if key == "" {
					return
				}
				attrs[key] = cells[1]
			})
			return attrs, len(attrs) > 0
		},
	}
}

func valuationStrategy(name string, sel cascadia.Selector) strategy[[]models.FipeValuation] {
	return strategy[[]models.FipeValuation]{
		name: name,
		run: func(doc *goquery.Document) ([]models.FipeValuation, bool) {
			var out []models.FipeValuation
			doc.FindMatcher(sel).Find("tr").Each(func(_ int, row *goquery.Selection) {
				cells := rowCells(row)
				if len(cells) < 3 {
					return
				}
				out = append(out, models.FipeValuation{
					Code:  cells[0],
					Model: cells[1],
					Value: cells[2],
				})
			})
			return out, len(out) > 0
		},
	}
}

func historyStrategy(marker string) strategy[[]models.IpvaHistoryEntry] {
	return strategy[[]models.IpvaHistoryEntry]{
		name: "marker:" + marker,
		run: func(doc *goquery.Document) ([]models.IpvaHistoryEntry, bool) {
			table := tableContaining(doc, marker)
			if table == nil {
				return nil, false
			}
			var out []models.IpvaHistoryEntry
			table.Find("tr").Each(func(_ int, row *goquery.Selection) {
				cells := rowCells(row)
				if len(cells) < 3 || !yearPattern.MatchString(cells[0]) {
					return
				}
				out = append(out, models.IpvaHistoryEntry{
					Year:        cells[0],
					MarketValue: cells[1],
					TaxValue:    cells[2],
				})
			})
			return out, len(out) > 0
		},
	}
}

// tableContaining returns the innermost table whose text contains marker,
// so a layout table wrapping the history table is skipped.
func tableContaining(doc *goquery.Document, marker string) *goquery.Selection {
	var found *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, t *goquery.Selection) bool {
		if !strings.Contains(cleanText(t.Text()), marker) {
			return true
		}
		nested := false
		t.Find("table").EachWithBreak(func(_ int, inner *goquery.Selection) bool {
			nested = strings.Contains(cleanText(inner.Text()), marker)
			return !nested
		})
		if nested {
			return true
		}
		found = t
		return false
	})
	return found
}

// rowCells returns the cleaned text of a row's direct td cells.
func rowCells(row *goquery.Selection) []string {
	tds := row.ChildrenFiltered("td")
	cells := make([]string, 0, tds.Length())
	tds.Each(func(_ int, td *goquery.Selection) {
		cells = append(cells, cleanText(td.Text()))
	})
	return cells
}

// cleanText trims and collapses internal whitespace runs to one space.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanLabel normalizes a detail label: "Marca:" and "Marca :" both
// become "Marca".
func cleanLabel(s string) string {
	return strings.TrimSpace(strings.TrimSuffix(cleanText(s), ":"))
}
