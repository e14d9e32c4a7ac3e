package uid

import (
	"crypto/rand"
	"math/big"

	"github.com/bwmarrin/snowflake"
)

// Snowflake generates roughly time-ordered int64 identifiers.
type Snowflake struct {
	node *snowflake.Node
}

// NewSnowflake returns a Snowflake generator with a random node number, so
// multiple instances started without coordination are unlikely to collide.
func NewSnowflake() (*Snowflake, error) {
	max := big.NewInt(1024)

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return nil, err
	}

	node, err := snowflake.NewNode(n.Int64())
	if err != nil {
		return nil, err
	}

	return &Snowflake{node: node}, nil
}

// Generate returns a new snowflake identifier.
func (s *Snowflake) Generate() int64 {
	return s.node.Generate().Int64()
}
