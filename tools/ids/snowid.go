package ids

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

// Connection and message IDs must be unique within a node's lifetime and
// sortable by creation time.

var (
	mu   sync.Mutex
	node *snowflake.Node
)

func getNode() *snowflake.Node {
	mu.Lock()
	defer mu.Unlock()
	if node == nil {
		node, _ = snowflake.NewNode(1)
	}
	return node
}

func Generate() int64 {
	return getNode().Generate().Int64()
}

func GenerateString() string {
	return getNode().Generate().String()
}

// SetNodeID sets the node part (0~1023). Call once during startup.
func SetNodeID(nodeID int64) {
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return
	}
	mu.Lock()
	node = n
	mu.Unlock()
}
