// Package queue publishes request bodies to a durable message broker.
//
// Routes that declare a queue hand their body to a per-service Publisher,
// which confirms delivery in the background and retries with exponential
// backoff. The production Broker is NATS JetStream: each queue maps to a
// file-stored stream with work-queue retention, and every message carries a
// Nats-Msg-Id so that retried attempts are deduplicated by the stream.
//
// Bodies can be augmented before publishing with Transform, which copies a
// path segment, a header or a caller attribute into the body and optionally
// wraps the result in a fixed envelope.
package queue
