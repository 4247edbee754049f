// Package database provides SQLite-based storage for finished crawls.
//
// This package implements the CrawlDB, which stores:
//   - One run record per crawl with its headline numbers and full result
//   - The URL and content hash of every page the run recorded
//
// The archive is write-once history. It is read by the history and compare
// commands and is never used to resume a crawl.
//
// Design decision: We use SQLite (via modernc.org/sqlite) instead of other
// databases because the archive is a single local file and the CGO-free
// driver keeps cross-compilation simple.
package database
