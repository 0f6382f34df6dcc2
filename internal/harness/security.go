package harness

import (
	"context"
	"net/http"

	"github.com/ethpandaops/market-sim-harness/internal/harness/probe"
)

// boundaryCase is one endpoint that must refuse unauthenticated callers.
type boundaryCase struct {
	method string
	path   string
}

var authBoundary = []boundaryCase{
	{http.MethodPost, "/trade"},
	{http.MethodGet, "/portfolio"},
	{http.MethodGet, "/trades"},
	{http.MethodGet, "/shorts"},
	{http.MethodPost, "/admin/simulation/start"},
	{http.MethodPost, "/admin/simulation/stop"},
	{http.MethodPost, "/admin/simulation/square-off"},
	{http.MethodGet, "/admin/simulation/status"},
}

// Any of these means the boundary held. 503 covers admin surfaces that are
// disabled outright.
var rejectedStatuses = []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusServiceUnavailable}

type validationCase struct {
	name string
	body map[string]any
}

func (o *Orchestrator) validationCases() []validationCase {
	symbol := o.primarySymbol()

	return []validationCase{
		{name: "empty body", body: map[string]any{}},
		{name: "invalid order type", body: map[string]any{"symbol": symbol, "order_type": "hold", "quantity": 1}},
		{name: "missing quantity", body: map[string]any{"symbol": symbol, "order_type": "buy"}},
		{name: "zero quantity", body: map[string]any{"symbol": symbol, "order_type": "buy", "quantity": 0}},
	}
}

func (o *Orchestrator) runAuthBoundary(ctx context.Context) {
	for _, bc := range authBoundary {
		o.check("Auth Boundary "+bc.method+" "+bc.path, func() checkResult {
			resp, err := o.call(ctx, bc.method, bc.path, o.boundaryBody(bc.path))
			if err != nil {
				return connectionFailure(err)
			}

			code := resp.StatusCode

			switch {
			case resp.StatusIn(rejectedStatuses...):
				return pass("Rejected unauthenticated request (%d)", code)
			case code >= 200 && code < 300:
				return fail("security regression: %s %s returned %d without credentials", bc.method, bc.path, code).
					with(map[string]any{"status": code})
			default:
				return fail("Unexpected status %d (expected 401, 403 or 503)", code).
					with(map[string]any{"status": code})
			}
		})
	}
}

func (o *Orchestrator) boundaryBody(path string) map[string]any {
	if path != "/trade" {
		return map[string]any{}
	}

	symbol := o.primarySymbol()

	return map[string]any{"symbol": symbol, "order_type": "buy", "quantity": 1}
}

func (o *Orchestrator) runInputValidation(ctx context.Context) {
	for _, vc := range o.validationCases() {
		o.check("Input Validation "+vc.name, func() checkResult {
			resp, err := o.probe.Post(ctx, "/trade", vc.body)
			if err != nil {
				return connectionFailure(err)
			}

			switch {
			case resp.StatusIn(http.StatusBadRequest, http.StatusUnauthorized):
				return pass("Rejected with %d", resp.StatusCode)
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				return fail("Accepted invalid order (%d)", resp.StatusCode)
			default:
				return fail("Unexpected status %d (expected 400 or 401)", resp.StatusCode)
			}
		})
	}
}

func (o *Orchestrator) call(ctx context.Context, method, path string, body any) (*probe.Response, error) {
	if method == http.MethodPost {
		return o.probe.Post(ctx, path, body)
	}

	return o.probe.Get(ctx, path, nil)
}
