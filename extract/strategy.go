package extract

import "github.com/PuerkitoBio/goquery"

// strategy is one way of reading a data category from a document. run is
// pure; ok is false when its source structure is absent or yields nothing.
type strategy[T any] struct {
	name string
	run  func(*goquery.Document) (out T, ok bool)
}

// firstNonEmpty applies strategies in order and returns the first result
// that reports ok, plus the name of the strategy that produced it.
func firstNonEmpty[T any](doc *goquery.Document, strategies []strategy[T]) (T, string) {
	var zero T
	for _, s := range strategies {
		if out, ok := s.run(doc); ok {
			return out, s.name
		}
	}
	return zero, ""
}
