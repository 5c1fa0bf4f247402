// Package crawler implements the single-marketplace crawl: the frontier of
// pending and visited URLs, link normalization, and the orchestrator that
// renders pages, hands them to an extraction pipeline and persists products.
package crawler
