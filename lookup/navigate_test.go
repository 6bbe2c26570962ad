package lookup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/use-agent/placafipe/browser"
	"github.com/use-agent/placafipe/browser/browsertest"
	"github.com/use-agent/placafipe/models"
)

const (
	dataPage = `<html><body>
		<table class="fipeTablePriceDetail">
			<tr><td>Marca:</td><td>Ford</td></tr>
			<tr><td>Modelo:</td><td>Ka</td></tr>
		</table>
		<table class="fipe-desktop">
			<tr><td>003421-4</td><td>Ka SE 1.0</td><td>R$ 45.123,00</td></tr>
		</table></body></html>`
	notFoundPage = `<html><body><div class="alert">Placa não encontrada</div></body></html>`
	blankPage    = `<html><body><div id="app"></div></body></html>`
)

func testNavigator() *Navigator {
	return &Navigator{
		Wait:              browser.WaitNetworkIdle,
		NavigationTimeout: 200 * time.Millisecond,
		SelectorTimeout:   50 * time.Millisecond,
		DataSelectors:     []string{"table.fipeTablePriceDetail"},
		NotFoundText:      "Placa não encontrada",
	}
}

func TestNavigate(t *testing.T) {
	tests := []struct {
		name string
		page *browsertest.Page
		want models.Kind // "" means success
	}{
		{"data", &browsertest.Page{Status: 200, Content: dataPage}, ""},
		{"not found text", &browsertest.Page{Status: 200, Content: notFoundPage}, models.KindNotFound},
		{"http 404", &browsertest.Page{Status: 404, Content: dataPage}, models.KindNotFound},
		{"neither marker", &browsertest.Page{Status: 200, Content: blankPage}, models.KindTimeout},
		{"slow navigation", &browsertest.Page{NavigateDelay: time.Second, Content: dataPage}, models.KindTimeout},
		{"transport failure", &browsertest.Page{NavigateErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}, models.KindTransient},
		{"unknown status", &browsertest.Page{Content: dataPage}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := testNavigator().Navigate(context.Background(), tt.page, "https://placafipe.com/placa/ABC1234")
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.want, models.KindOf(err))
		})
	}
}

func TestNavigatePassesWaitStrategy(t *testing.T) {
	page := &browsertest.Page{Status: 200, Content: dataPage}
	n := testNavigator()
	n.Wait = browser.WaitContentLoaded

	assert.NoError(t, n.Navigate(context.Background(), page, "https://placafipe.com/placa/ABC1234"))
	assert.Equal(t, []browser.WaitStrategy{browser.WaitContentLoaded}, page.Waits())
	assert.Equal(t, []string{"https://placafipe.com/placa/ABC1234"}, page.URLs())
}

func TestNavigateRaceIsBoundedBySelectorTimeout(t *testing.T) {
	n := testNavigator()
	n.SelectorTimeout = 30 * time.Millisecond

	start := time.Now()
	err := n.Navigate(context.Background(), &browsertest.Page{Status: 200, Content: blankPage}, "https://x/placa/A")
	assert.Equal(t, models.KindTimeout, models.KindOf(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestNavigateParentDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	n := testNavigator()
	n.SelectorTimeout = time.Minute
	err := n.Navigate(ctx, &browsertest.Page{Status: 200, Content: blankPage}, "https://x/placa/A")
	assert.Equal(t, models.KindTimeout, models.KindOf(err))
}
