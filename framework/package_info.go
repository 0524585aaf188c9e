// Package framework contains the low-level building blocks of the conformance test runner
// that do not depend on the bulk data domain.
//
// The general model is:
//
// 1. Tests are arranged in a tree of suites and tests (see the testtree subpackage), built
// once before the run and then walked depth-first by the execution engine.
//
// 2. Each test owns a CapturingLogger that collects its debug output, which a reporter may
// dump at the end of the test.
//
// 3. Failures carry an ErrorKind, so that a requirement that does not apply to the server
// under test ("not supported") can be told apart from a real failure.
//
// The domain-specific code that knows what is being tested is responsible for building the
// tree, providing the test bodies, and talking to the server under test.
package framework
