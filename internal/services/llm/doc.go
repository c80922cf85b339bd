// Package llm provides a chat completion client for document metadata
// extraction.
//
// The client talks to any OpenAI-compatible endpoint (OpenRouter by default),
// always requests a JSON object response and returns a Completion carrying
// the raw content, the finish reason and token Usage. Callers decode the
// content with DecodeJSON, which tolerates code fences and prose around the
// object.
//
// # Retry Behaviour
//
// Requests are retried on HTTP 408/429/5xx, empty content and network
// timeouts with exponential backoff (base 1s, max 10s, 3 attempts by
// default). A Retry-After header overrides the backoff. Context cancellation
// aborts retries immediately.
//
// # Entry Points
//
// NewClient and ConfigFromSettings build a client from the llm config section.
// Client.Complete sends a Request. Client.HealthCheck verifies
// the key and model for the status command.
package llm
