package harness

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

func (o *Orchestrator) runLeaderboard(ctx context.Context) {
	o.check("Leaderboard", func() checkResult {
		resp, err := o.probe.Get(ctx, "/leaderboard", nil)
		if err != nil {
			return connectionFailure(err)
		}

		if resp.StatusCode != http.StatusOK {
			return fail("Status code: %d", resp.StatusCode)
		}

		entries, ok := resp.Array()
		if !ok {
			return fail("Expected a JSON array")
		}

		return pass("%d entries", len(entries))
	})

	limit := o.tc.LeaderboardLimit

	o.check("Leaderboard Limit", func() checkResult {
		resp, err := o.probe.Get(ctx, "/leaderboard", url.Values{"limit": {strconv.Itoa(limit)}})
		if err != nil {
			return connectionFailure(err)
		}

		if resp.StatusCode != http.StatusOK {
			return fail("Status code: %d", resp.StatusCode)
		}

		entries, ok := resp.Array()
		if !ok {
			return fail("Expected a JSON array")
		}

		if len(entries) > limit {
			return fail("limit=%d returned %d entries", limit, len(entries))
		}

		return pass("limit=%d returned %d entries", limit, len(entries))
	})
}
