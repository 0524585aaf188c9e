package bulktests

import (
	"github.com/bulk-data-tools/bulk-export-contract-tests/framework/testtree"
)

// BuildTree registers every contract test.
func BuildTree() (*testtree.Tree, error) {
	b := testtree.NewBuilder("bulk data export")
	b.Suite(testtree.NodeOptions{Name: "capability statement"}, DoCapabilityStatementTests)
	b.Suite(testtree.NodeOptions{Name: "authorization"}, DoAuthorizationTests)
	b.Suite(testtree.NodeOptions{Name: "kick-off"}, DoKickOffTests)
	b.Suite(testtree.NodeOptions{Name: "status"}, DoStatusTests)
	b.Suite(testtree.NodeOptions{Name: "download"}, DoDownloadTests)
	b.Suite(testtree.NodeOptions{Name: "cancellation"}, DoCancellationTests)
	return b.Build()
}
