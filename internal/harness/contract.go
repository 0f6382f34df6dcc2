package harness

import (
	"fmt"
	"net/url"
)

// missingFields returns the names in fields that obj does not carry, in order.
func missingFields(obj map[string]any, fields ...string) []string {
	missing := make([]string, 0)

	for _, f := range fields {
		if _, ok := obj[f]; !ok {
			missing = append(missing, f)
		}
	}

	return missing
}

func missingMessage(missing []string) string {
	return fmt.Sprintf("Missing fields: %v", missing)
}

// arrayField returns obj[key] when it is a JSON array.
func arrayField(obj map[string]any, key string) ([]any, bool) {
	v, ok := obj[key].([]any)
	return v, ok
}

// symbolPath builds "<prefix>/<symbol>" with the symbol path-escaped.
func symbolPath(prefix, symbol string) string {
	return prefix + "/" + url.PathEscape(symbol)
}

// fallbackSymbol stands in for order payloads when discovery found nothing.
const fallbackSymbol = "AAPL"

func (o *Orchestrator) primarySymbol() string {
	if len(o.symbols) > 0 {
		return o.symbols[0]
	}

	return fallbackSymbol
}
