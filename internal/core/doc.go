// Package core provides the ingestion pipeline: per-resource downloaders, the
// access gate and the bulk orchestrator. It has no HTTP routing and can be
// driven by the web layer, a CLI or tests.
//
// # Architecture
//
// The package is organized around a few concepts:
//
//   - Resource definitions: registered at init time with [Register], one per
//     EDDB dump. See package resources.
//   - Downloader: fetches one dump and upserts each record through the store,
//     which applies the record normalizer. Each call produces a [Job].
//   - AccessGate: a single clearance check done before any side effect.
//   - BulkOrchestrator: runs every downloader in [BulkOrder], waiting for each
//     job to finish before starting the next, and stops on the first failure.
//   - Service: ties the above together for the web layer and the scheduler.
//
// # Job Lifecycle
//
// A job moves idle → started → done, or to error from either idle (fetch
// failed) or started (decode or persistence failed). Started is entered once
// the remote source answered 2xx. Records committed before a failure remain
// committed; upserts are keyed by external id, so re-running a download is
// idempotent.
//
//	job, err := svc.Download(ctx, principal, core.KindStation)
//	snap, err := job.AwaitStart(ctx) // status code of the remote fetch
//	snap, err = job.Wait(ctx)        // terminal state and record count
//
// Jobs are not cancellable. Shutdown waits for them with [Service.Drain].
//
// # Error Handling
//
// Failures are typed: [FetchError], [ParseError], [PersistenceError], plus
// sentinel errors for gate and concurrency rejections. [MapError] turns them
// into user messages with support codes (ING001-ING008, AUTH001).
package core
