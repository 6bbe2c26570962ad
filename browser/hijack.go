package browser

import (
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/placafipe/intercept"
)

// installPolicy routes every request of page through policy. Aborted
// requests fail with BlockedByClient so the page sees an ordinary network
// error and carries on.
//
// Returns the running router so the caller can Stop it, or nil when the
// policy blocks nothing.
func installPolicy(page *rod.Page, policy *intercept.Policy, logger *slog.Logger) *rod.HijackRouter {
	if policy.Empty() {
		return nil
	}

	router := page.HijackRequests()

	// Pattern "*" with an empty resource type sees every request.
	_ = router.Add("*", "", func(h *rod.Hijack) {
		req := intercept.Request{
			URL:  h.Request.URL().String(),
			Type: intercept.ResourceType(h.Request.Type()),
		}
		if policy.Decide(req) == intercept.Abort {
			logger.Debug("request blocked", "url", req.URL, "type", req.Type, "rule", policy.Rule(req))
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// router.Run blocks until Stop.
	go router.Run()

	return router
}
