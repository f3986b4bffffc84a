package partition

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	werrors "github.com/arkilian/worlddb/internal/errors"
	"github.com/arkilian/worlddb/internal/model"
	"github.com/arkilian/worlddb/pkg/types"
)

func TestNewAffinityRejectsZero(t *testing.T) {
	if _, err := NewAffinity(0); !werrors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPartitionForKey_Colocation(t *testing.T) {
	a, err := NewAffinity(DefaultPartitions)
	if err != nil {
		t.Fatal(err)
	}

	tirana := types.TupleOf("ID", int64(34), "COUNTRYCODE", "ALB", "NAME", "Tirana")
	durres := types.TupleOf("ID", int64(35), "COUNTRYCODE", "ALB", "NAME", "Durrës")

	p1, err := a.PartitionForKey(model.CityTable, tirana)
	if err != nil {
		t.Fatal(err)
	}
	p2, _ := a.PartitionForKey(model.CityTable, durres)
	if p1 != p2 {
		t.Errorf("cities of one country split across partitions %d and %d", p1, p2)
	}
	if p1 < 0 || p1 >= DefaultPartitions {
		t.Errorf("partition %d out of range", p1)
	}

	country := types.TupleOf("CODE", "ALB")
	pc, _ := a.PartitionForKey(model.CountryTable, country)
	if pc != p1 {
		t.Errorf("country partition %d differs from its cities %d", pc, p1)
	}
}

func TestPartitionForKey_MissingAffinity(t *testing.T) {
	a, _ := NewAffinity(4)
	_, err := a.PartitionForKey(model.CityTable, types.TupleOf("ID", 1))
	if werrors.GetCode(err) != werrors.CodeMissingKeyColumn {
		t.Errorf("expected missing key column, got %v", err)
	}
}

func TestGroup(t *testing.T) {
	a, _ := NewAffinity(8)
	rows := []*types.Tuple{
		types.TupleOf("ID", 1, "COUNTRYCODE", "AFG"),
		types.TupleOf("ID", 34, "COUNTRYCODE", "ALB"),
		types.TupleOf("ID", 2, "COUNTRYCODE", "AFG"),
	}
	buckets, err := a.Group(model.CityTable, rows)
	if err != nil {
		t.Fatal(err)
	}
	total := 0
	for i, b := range buckets {
		if i > 0 && buckets[i-1].Partition >= b.Partition {
			t.Errorf("buckets not ordered: %d then %d", buckets[i-1].Partition, b.Partition)
		}
		total += len(b.Tuples)
	}
	if total != len(rows) {
		t.Errorf("grouped %d rows, want %d", total, len(rows))
	}
}

func TestProperty_PartitionInRangeAndStable(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("partition is stable and within range", prop.ForAll(
		func(code string, n int) bool {
			a, err := NewAffinity(n)
			if err != nil {
				return false
			}
			p := a.PartitionOf(code)
			return p >= 0 && p < n && p == a.PartitionOf(code)
		},
		gen.AlphaString(),
		gen.IntRange(1, 1024),
	))

	properties.TestingRun(t)
}
