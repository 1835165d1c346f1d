// Package refpkg issues transaction references that are unique process-wide.
package refpkg

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// Reference prefixes.
const (
	PrefixTransaction = "TXN"
	PrefixTransfer    = "TRF"
)

// Generator issues references backed by snowflake ids.
//
// Snowflake ids are time ordered and never repeat for a single node, so
// references are unique as long as every process uses its own node id.
type Generator struct {
	node *snowflake.Node
}

// New returns a Generator for the given node id (0-1023).
func New(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}

	return &Generator{node: node}, nil
}

// Transaction returns a reference for a single transaction record.
func (g *Generator) Transaction() string {
	return PrefixTransaction + g.node.Generate().String()
}

// Transfer returns a correlation reference shared by both transfer legs.
func (g *Generator) Transfer() string {
	return PrefixTransfer + g.node.Generate().String()
}
