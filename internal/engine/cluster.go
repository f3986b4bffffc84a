package engine

import (
	"fmt"

	"github.com/google/uuid"
)

// Node is one configured engine address.
type Node struct {
	ID      uuid.UUID
	Name    string
	Address string
	// Active marks the node the session is connected to.
	Active bool
}

// Cluster is the engine topology as configured for this session.
type Cluster struct {
	nodes []Node
}

// newCluster derives stable node ids from the driver and address so that
// the same configuration always reports the same ids.
func newCluster(driver string, addresses []string, active int) *Cluster {
	nodes := make([]Node, len(addresses))
	for i, addr := range addresses {
		nodes[i] = Node{
			ID:      uuid.NewSHA1(uuid.NameSpaceURL, []byte(driver+"://"+addr)),
			Name:    fmt.Sprintf("node-%d", i),
			Address: addr,
			Active:  i == active,
		}
	}
	return &Cluster{nodes: nodes}
}

// Nodes returns a copy of the node list.
func (c *Cluster) Nodes() []Node {
	out := make([]Node, len(c.nodes))
	copy(out, c.nodes)
	return out
}

// Active returns the node the session is connected to.
func (c *Cluster) Active() Node {
	for _, n := range c.nodes {
		if n.Active {
			return n
		}
	}
	return Node{}
}

// NodeForPartition returns the node owning a partition. Partitions are
// spread over the nodes round-robin.
func (c *Cluster) NodeForPartition(partition int) Node {
	if len(c.nodes) == 0 {
		return Node{}
	}
	if partition < 0 {
		partition = -partition
	}
	return c.nodes[partition%len(c.nodes)]
}
