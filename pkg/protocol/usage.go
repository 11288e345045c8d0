package protocol

// TokenUsage tracks token consumption reported by the provider.
// The provider is authoritative; totals are not cross-checked here.
type TokenUsage struct {
	InputTokens           int64 `json:"input_tokens"`
	CachedInputTokens     int64 `json:"cached_input_tokens"`
	OutputTokens          int64 `json:"output_tokens"`
	ReasoningOutputTokens int64 `json:"reasoning_output_tokens"`
	TotalTokens           int64 `json:"total_tokens"`
}

// Add accumulates another usage report into u
func (u *TokenUsage) Add(other *TokenUsage) {
	if u == nil || other == nil {
		return
	}
	u.InputTokens += other.InputTokens
	u.CachedInputTokens += other.CachedInputTokens
	u.OutputTokens += other.OutputTokens
	u.ReasoningOutputTokens += other.ReasoningOutputTokens
	u.TotalTokens += other.TotalTokens
}

// IsZero reports whether no tokens were recorded
func (u *TokenUsage) IsZero() bool {
	return u == nil || *u == TokenUsage{}
}

// RateLimitWindow describes one rate-limit window reported by the server
type RateLimitWindow struct {
	UsedPercent     float64 `json:"used_percent"`
	WindowMinutes   *int64  `json:"window_minutes,omitempty"`
	ResetsInSeconds *int64  `json:"resets_in_seconds,omitempty"`
}

// RateLimitSnapshot holds the primary and secondary windows, either may be absent
type RateLimitSnapshot struct {
	Primary   *RateLimitWindow `json:"primary,omitempty"`
	Secondary *RateLimitWindow `json:"secondary,omitempty"`
}

// IsEmpty reports whether neither window is present
func (s RateLimitSnapshot) IsEmpty() bool {
	return s.Primary == nil && s.Secondary == nil
}
