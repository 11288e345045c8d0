package modelclient

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/harun/turnstream/pkg/protocol"
)

// parseRateLimits reads the primary and secondary window header groups, e.g.
// x-codex-primary-used-percent, x-codex-primary-window-minutes and
// x-codex-primary-reset-after-seconds.
func parseRateLimits(header http.Header, prefix string) (protocol.RateLimitSnapshot, bool) {
	if prefix == "" {
		prefix = DefaultRateLimitHeaderPrefix
	}
	prefix = strings.TrimSuffix(prefix, "-")

	snapshot := protocol.RateLimitSnapshot{
		Primary:   parseRateLimitWindow(header, prefix+"-primary"),
		Secondary: parseRateLimitWindow(header, prefix+"-secondary"),
	}
	return snapshot, !snapshot.IsEmpty()
}

func parseRateLimitWindow(header http.Header, group string) *protocol.RateLimitWindow {
	used, ok := headerFloat(header, group+"-used-percent")
	if !ok {
		return nil
	}
	return &protocol.RateLimitWindow{
		UsedPercent:     used,
		WindowMinutes:   headerInt(header, group+"-window-minutes"),
		ResetsInSeconds: headerInt(header, group+"-reset-after-seconds"),
	}
}

func headerFloat(header http.Header, name string) (float64, bool) {
	raw := strings.TrimSpace(header.Get(name))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func headerInt(header http.Header, name string) *int64 {
	raw := strings.TrimSpace(header.Get(name))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}
