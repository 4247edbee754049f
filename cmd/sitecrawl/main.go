// Package main provides the entry point for the sitecrawl CLI.
//
// sitecrawl starts from a domain root, follows forward page links within the
// same domain and prints a sitemap: for every distinct page, the URLs that
// served it, its same-domain links and its static assets.
//
// Usage:
//
//	sitecrawl crawl <domain-root>
//	sitecrawl crawl -o sitemap.txt example.com
//
// See --help for all available options.
package main

// main is the entry point for sitecrawl.
func main() {
	Execute()
}
