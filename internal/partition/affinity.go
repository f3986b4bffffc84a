// Package partition assigns rows to partitions by their affinity column so
// that related rows (every city of one country) are colocated.
package partition

import (
	"fmt"
	"sort"

	"github.com/spaolacci/murmur3"

	werrors "github.com/arkilian/worlddb/internal/errors"
	"github.com/arkilian/worlddb/internal/mapping"
	"github.com/arkilian/worlddb/pkg/types"
)

// DefaultPartitions is the partition count used when none is configured.
const DefaultPartitions = 25

// Affinity maps affinity values onto a fixed number of partitions.
type Affinity struct {
	partitions uint32
}

// NewAffinity creates an affinity function over n partitions.
func NewAffinity(n int) (*Affinity, error) {
	if n <= 0 {
		return nil, werrors.NewValidationError(werrors.CodeInvalidConfig,
			fmt.Sprintf("partition count must be > 0, got %d", n))
	}
	return &Affinity{partitions: uint32(n)}, nil
}

// Partitions returns the partition count.
func (a *Affinity) Partitions() int {
	return int(a.partitions)
}

// PartitionOf returns the partition of an affinity value. Values are hashed
// through their string form, so int64(7) and "7" share a partition.
func (a *Affinity) PartitionOf(value interface{}) int {
	s, _ := types.AsString(value)
	return int(murmur3.Sum32([]byte(s)) % a.partitions)
}

// PartitionForKey returns the partition of a row or key tuple using the
// table's affinity column.
func (a *Affinity) PartitionForKey(t *mapping.Table, tuple *types.Tuple) (int, error) {
	col := t.AffinityColumn()
	v, ok := tuple.Value(col)
	if !ok {
		return 0, werrors.NewValidationError(werrors.CodeMissingKeyColumn,
			fmt.Sprintf("%s: tuple has no affinity column %s", t.Name, col))
	}
	return a.PartitionOf(v), nil
}

// Group buckets tuples by partition. Partitions are returned in ascending
// order and tuples keep their input order within a partition.
func (a *Affinity) Group(t *mapping.Table, tuples []*types.Tuple) ([]Bucket, error) {
	byPart := make(map[int][]*types.Tuple)
	for _, tuple := range tuples {
		p, err := a.PartitionForKey(t, tuple)
		if err != nil {
			return nil, err
		}
		byPart[p] = append(byPart[p], tuple)
	}
	buckets := make([]Bucket, 0, len(byPart))
	for p, rows := range byPart {
		buckets = append(buckets, Bucket{Partition: p, Tuples: rows})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Partition < buckets[j].Partition })
	return buckets, nil
}

// Bucket is the set of tuples assigned to one partition.
type Bucket struct {
	Partition int
	Tuples    []*types.Tuple
}
