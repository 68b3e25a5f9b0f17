// Package core provides the business logic for cleaning CSV uploads.
//
// This package sits between the transport layers (the web server and the
// CLI) and the pure normalization pipeline in package normalize. It owns
// everything a run needs beyond the bytes-in, bytes-out transformation.
//
// # Architecture
//
//   - Service: the entry point. [Service.Clean] reads an upload, runs the
//     pipeline under a timeout and caches the result for download.
//   - RunLimiter: a semaphore bounding concurrent runs.
//   - Result cache: finished runs stay in memory for the configured TTL,
//     bounded by a maximum entry count (oldest evicted first).
//   - History: every run, successful or not, is recorded in a
//     history.Store.
//   - Retention: [Service.StartRetentionScheduler] drops expired runs and
//     purges old history.
//
// # Cleaning Flow
//
//  1. Acquire a limiter slot (or fail with [ErrTooManyRuns])
//  2. Read the upload up to the size limit
//  3. Detect, decode, parse, escape and serialize (package normalize)
//  4. Cache the Run and record a history entry
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - DET001: Encoding detection failed
//   - ENC001-ENC002: Decoding errors
//   - CSV001-CSV004: Malformed CSV
//   - FILE001-FILE005: File errors (size, empty, missing)
//   - RUN001-RUN005: Run errors (expired, busy, cancelled, timeout)
package core
