// Package report renders crawl results.
//
// This package contains writers for different output formats:
//   - SimpleWriter: the plain text sitemap, one block per page
//   - JSONWriter: structured JSON output for tool integration
//   - MarkdownWriter: a Markdown document for sharing
//
// Writers implement the Writer interface, allowing them to be used
// interchangeably and composed for multi-format output.
package report
