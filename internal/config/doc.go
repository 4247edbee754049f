// Package config provides configuration structures and utilities for
// sitecrawl. It defines the crawl settings populated from CLI flags, the
// optional per-site YAML configuration file, and the XDG directories used
// for configuration and the result archive.
package config
