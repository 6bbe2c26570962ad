package extract

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/placafipe/models"
)

func newExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := New(DefaultLayout())
	require.NoError(t, err)
	return e
}

func TestExtractFullPage(t *testing.T) {
	raw, err := os.ReadFile("testdata/plate_page.html")
	require.NoError(t, err)

	rec, err := newExtractor(t).Extract(string(raw))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"Marca":     "Ford",
		"Modelo":    "Ka SE 1.0",
		"Ano":       "2019",
		"Cor":       "Prata",
		"Município": "São Paulo",
		"Chassi":    "*****12345",
	}, rec.Attributes)

	// Desktop layout wins; the mobile table is never merged in.
	assert.Equal(t, []models.FipeValuation{
		{Code: "003421-4", Model: "Ka SE 1.0 Flex 5p", Value: "R$ 45.123,00"},
		{Code: "003421-4", Model: "Ka SE Plus 1.0", Value: "R$ 47.900,00"},
	}, rec.Valuations)

	assert.Equal(t, []models.IpvaHistoryEntry{
		{Year: "2024", MarketValue: "R$ 44.000,00", TaxValue: "R$ 1.760,00"},
		{Year: "2023", MarketValue: "R$ 46.500,00", TaxValue: "R$ 1.860,00"},
	}, rec.IpvaHistory)
}

func TestExtractDetailRows(t *testing.T) {
	page := `<html><body>
		<table class="fipeTablePriceDetail">
			<tr><td>Marca</td><td>Ford</td></tr>
			<tr><td>Modelo</td><td>Ka</td></tr>
		</table></body></html>`

	rec, err := newExtractor(t).Extract(page)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Marca": "Ford", "Modelo": "Ka"}, rec.Attributes)
	assert.Empty(t, rec.Valuations)
	assert.Empty(t, rec.IpvaHistory)
	assert.NotNil(t, rec.Valuations)
	assert.NotNil(t, rec.IpvaHistory)
}

func TestExtractReadsEveryMatchingTable(t *testing.T) {
	page := `<html><body>
		<table class="fipeTablePriceDetail">
			<tr><td>Marca</td><td>Ford</td></tr>
			<tr><td>Modelo</td><td>Ka</td></tr>
		</table>
		<table class="fipeTablePriceDetail">
			<tr><td>Cor</td><td>Prata</td></tr>
			<tr><td>Chassi</td><td>*****12345</td></tr>
		</table>
		<table class="fipe-desktop">
			<tr><td>1</td><td>Ka</td><td>R$ 1,00</td></tr>
		</table>
		<table class="fipe-desktop">
			<tr><td>2</td><td>Ka Plus</td><td>R$ 2,00</td></tr>
		</table>
		<table class="fipe-mobile">
			<tr><td>9</td><td>Mobile</td><td>R$ 9,00</td></tr>
		</table></body></html>`

	rec, err := newExtractor(t).Extract(page)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"Marca":  "Ford",
		"Modelo": "Ka",
		"Cor":    "Prata",
		"Chassi": "*****12345",
	}, rec.Attributes)

	// Both desktop tables contribute, in document order; the mobile
	// fallback is still skipped.
	assert.Equal(t, []models.FipeValuation{
		{Code: "1", Model: "Ka", Value: "R$ 1,00"},
		{Code: "2", Model: "Ka Plus", Value: "R$ 2,00"},
	}, rec.Valuations)
}

func TestExtractMalformedValuation(t *testing.T) {
	page := `<html><body>
		<table class="fipeTablePriceDetail">
			<tr><td>Marca:</td><td>Ford</td></tr>
		</table>
		<table class="fipe-desktop">
			<tr><td>003421-4</td><td>R$ 45.123,00</td></tr>
			<tr><td>003422-2</td><td>R$ 50.000,00</td></tr>
		</table></body></html>`

	rec, err := newExtractor(t).Extract(page)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Marca": "Ford"}, rec.Attributes)
	assert.Empty(t, rec.Valuations)
	assert.False(t, rec.Empty())
}

func TestExtractValuationFallback(t *testing.T) {
	tests := []struct {
		name string
		page string
		want []models.FipeValuation
	}{
		{
			name: "mobile when desktop absent",
			page: `<table class="fipe-mobile"><tr><td>1</td><td>Ka</td><td>R$ 1,00</td></tr></table>`,
			want: []models.FipeValuation{{Code: "1", Model: "Ka", Value: "R$ 1,00"}},
		},
		{
			name: "mobile when desktop yields no rows",
			page: `<table class="fipe-desktop"><tr><th>Código</th><th>Modelo</th><th>Valor</th></tr></table>
				<table class="fipe-mobile"><tr><td>2</td><td>Fiesta</td><td>R$ 2,00</td></tr></table>`,
			want: []models.FipeValuation{{Code: "2", Model: "Fiesta", Value: "R$ 2,00"}},
		},
		{
			name: "neither",
			page: `<table class="other"><tr><td>3</td><td>Focus</td><td>R$ 3,00</td></tr></table>`,
			want: []models.FipeValuation{},
		},
	}
	e := newExtractor(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := e.Extract("<html><body>" + tt.page + "</body></html>")
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.Valuations)
		})
	}
}

func TestExtractHistoryOnlyYearRows(t *testing.T) {
	page := `<html><body>
		<table id="noise"><tr><td>2024</td><td>a</td><td>b</td></tr></table>
		<table>
			<tr><td>Ano IPVA</td><td>Valor Venal</td><td>Valor IPVA</td></tr>
			<tr><td>2022</td><td>R$ 10,00</td><td>R$ 1,00</td></tr>
			<tr><td>22</td><td>R$ 10,00</td><td>R$ 1,00</td></tr>
			<tr><td>2021</td><td>R$ 9,00</td></tr>
			<tr><td> 2020 </td><td>R$ 8,00</td><td>R$ 0,80</td></tr>
		</table></body></html>`

	rec, err := newExtractor(t).Extract(page)
	require.NoError(t, err)
	assert.Equal(t, []models.IpvaHistoryEntry{
		{Year: "2022", MarketValue: "R$ 10,00", TaxValue: "R$ 1,00"},
		{Year: "2020", MarketValue: "R$ 8,00", TaxValue: "R$ 0,80"},
	}, rec.IpvaHistory)
}

func TestExtractEmptyPageIsFatal(t *testing.T) {
	for _, raw := range []string{"", "   \n\t"} {
		_, err := newExtractor(t).Extract(raw)
		require.Error(t, err)
		assert.Equal(t, models.KindFatal, models.KindOf(err))
	}
}

func TestExtractPageWithoutTables(t *testing.T) {
	rec, err := newExtractor(t).Extract("<html><body><p>manutenção</p></body></html>")
	require.NoError(t, err)
	assert.True(t, rec.Empty())
}

func TestCustomLayout(t *testing.T) {
	e, err := New(Layout{
		DetailSelectors:    []string{"#details table", "table.legacy"},
		ValuationSelectors: []string{"table.precos"},
		HistoryMarker:      "Exercício",
	})
	require.NoError(t, err)

	rec, err := e.Extract(`<html><body>
		<table class="legacy"><tr><td>Marca:</td><td>Fiat</td></tr></table>
		<table class="precos"><tr><td>1</td><td>Uno</td><td>R$ 1,00</td></tr></table>
		<table><tr><td>Exercício</td></tr><tr><td>2019</td><td>x</td><td>y</td></tr></table>
		</body></html>`)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Marca": "Fiat"}, rec.Attributes)
	assert.Len(t, rec.Valuations, 1)
	assert.Equal(t, "2019", rec.IpvaHistory[0].Year)
}

func TestNewRejectsBadSelector(t *testing.T) {
	_, err := New(Layout{DetailSelectors: []string{"table[["}})
	assert.Error(t, err)
}

func TestProbe(t *testing.T) {
	e := newExtractor(t)
	tests := []struct {
		name string
		page string
		want Marker
	}{
		{"data", `<table class="fipeTablePriceDetail"><tr><td>a</td><td>b</td></tr></table>`, MarkerData},
		{"not found", `<div class="alert">Placa   não encontrada</div>`, MarkerNotFound},
		{"data wins", `<p>Placa não encontrada</p><table class="fipeTablePriceDetail"></table>`, MarkerData},
		{"shell", `<div id="app"></div><script src="app.js"></script>`, MarkerNone},
		{"empty", ``, MarkerNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := tt.page
			if page != "" {
				page = "<html><body>" + page + "</body></html>"
			}
			assert.Equal(t, tt.want, e.Probe(page))
		})
	}
}
