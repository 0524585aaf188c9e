// Package testtree contains a test runner that is similar to Go's testing package, but is
// run as regular application code rather than Go tests.
//
// Tests are declared ahead of time with a Builder, producing a Tree of suites and tests
// with stable dot-separated paths such as "2.1.5". Run walks the tree depth-first, one
// test at a time, applying the only/version/filter/skip rules, calling suite hooks around
// each test, and delivering lifecycle events to listeners in traversal order.
package testtree
