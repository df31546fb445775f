// Package provider defines the pluggable embedding and chat model
// interfaces Mnemos's cortex depends on, plus a production HTTP
// implementation and a deterministic stub.
//
// The production client is grounded on
// quantumlife-canon-core/internal/shadowllm/providers/azureopenai: single
// attempt (no retries), context-deadline honored, abstract error
// buckets, response bodies never logged. Stdlib net/http is used
// deliberately here — see DESIGN.md — because spec §6 requires swappable
// generic endpoints/model IDs at the config layer, a contract no
// vendor-specific SDK in the pack matches.
package provider

import "context"

// EmbeddingProvider turns text into a fixed-dimension float32 vector.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// ChatProvider completes a prompt with retrieved context.
type ChatProvider interface {
	// Complete returns the full completion text. Streaming to a frame
	// channel is layered on top by pkg/cortex/chat, not by the provider
	// itself — the provider's job ends at "give me the answer".
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ErrorBucket is an abstract classification of a provider failure, safe
// to log and to drive retry/fallback decisions without leaking response
// content or credentials.
type ErrorBucket string

const (
	BucketSuccess     ErrorBucket = "success"
	BucketBadRequest  ErrorBucket = "bad_request"
	BucketUnauthorized ErrorBucket = "unauthorized"
	BucketForbidden   ErrorBucket = "forbidden"
	BucketNotFound    ErrorBucket = "not_found"
	BucketRateLimited ErrorBucket = "rate_limited"
	BucketServerError ErrorBucket = "server_error"
	BucketTimeout     ErrorBucket = "timeout"
	BucketUnknown     ErrorBucket = "unknown_error"
)

// ProviderError is returned by both providers on failure. Error() never
// includes response body content or request headers.
type ProviderError struct {
	Bucket  ErrorBucket
	Message string
}

func (e *ProviderError) Error() string {
	return "provider: " + string(e.Bucket) + ": " + e.Message
}

func statusBucket(code int) ErrorBucket {
	switch {
	case code >= 200 && code < 300:
		return BucketSuccess
	case code == 400:
		return BucketBadRequest
	case code == 401:
		return BucketUnauthorized
	case code == 403:
		return BucketForbidden
	case code == 404:
		return BucketNotFound
	case code == 429:
		return BucketRateLimited
	case code >= 500:
		return BucketServerError
	default:
		return BucketUnknown
	}
}
