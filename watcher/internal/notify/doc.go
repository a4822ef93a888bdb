// Package notify delivers alert batches to the configured channel.
//
// One poll cycle produces at most one Batch. Channels:
//   - slack: incoming webhook, one message with one attachment per alert
//   - teams: Office 365 connector MessageCard, one section per alert
//   - http:  the batch as a JSON document POSTed to any endpoint
//   - kafka: one record per alert, keyed by the alert's dedup key (kafka-go)
//   - log:   structured log lines only (dry runs)
//
// New builds the channel named in config.NotifyConfig and wraps it with
// WithRetry, which redelivers a batch after retryable failures using
// truncated exponential backoff with ±25% jitter. Every failure is a
// *DeliveryError; Retryable reports whether trying again could succeed.
package notify
