// Package batch runs concurrent target fetches through a bounded worker pool.
//
// All workers share one rate limiter (inside the client) and one cancellation
// signal, so a batch of hundreds of targets proceeds at the pace the limiter
// allows and stops promptly when asked.
//
// Example usage:
//
//	fetcher, _ := batch.New(client, batch.DefaultConfig())
//	fetcher.Run(ids, onResult, onDone)
//	...
//	fetcher.Stop(5 * time.Second)
//
// The fetcher guarantees:
//   - Exactly one onResult callback per requested id, success or failure
//   - Exactly one onDone callback per batch, fired immediately for empty input
//   - A panicking fetch or callback surfaces as a failed record, never a crash
//   - At most one batch in flight; overlapping Run calls are refused
package batch
