package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/placafipe/lookup"
	"github.com/use-agent/placafipe/models"
)

// Looker performs plate lookups. *lookup.Service implements it.
type Looker interface {
	Lookup(ctx context.Context, raw string) (*lookup.Result, error)
}

// Lookup returns a handler for GET /consultar/:placa.
//
// The plate is passed through as typed; normalization and every failure
// classification happen inside the lookup pipeline. timeoutStatus is the
// status used for TIMEOUT outcomes (504 or 500).
func Lookup(svc Looker, timeoutStatus int) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.Lookup(c.Request.Context(), c.Param("placa"))
		if err != nil {
			respondError(c, err, timeoutStatus)
			return
		}
		c.JSON(http.StatusOK, models.NewLookupResponse(res.Plate, res.Record, res.Attempts, res.Source))
	}
}
