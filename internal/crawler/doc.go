// Package crawler implements the per-URL article crawl state machine and the
// session that runs it over a batch of URLs. Policy resolution, pacing,
// fetch strategies and extraction are injected through the interfaces in
// interfaces.go; concrete implementations live in sibling packages and are
// wired together by internal/app.
package crawler
