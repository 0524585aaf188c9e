// Package bulktests contains the contract tests for bulk data export servers.
//
// The tests are registered into a testtree.Tree by BuildTree and run by the testtree
// engine. Each test body receives a *testtree.T, which can be passed to the testify
// assert and require packages, and an *Environment as the run configuration. Bodies
// drive the server through a bulkclient.Client whose requests are logged to the test's
// own console log.
package bulktests
