// Package protocol defines the provider-agnostic data model shared by the stream,
// the event parser, the streaming client and the turn executor.
//
// A stream produces exactly one Completed event and it is the last one observed.
// A RateLimits event, when present, comes first.
package protocol
