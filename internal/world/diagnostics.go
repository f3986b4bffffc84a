package world

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/arkilian/worlddb/internal/engine"
	"github.com/arkilian/worlddb/internal/mapping"
	"github.com/arkilian/worlddb/internal/model"
	"github.com/arkilian/worlddb/internal/partition"
	"github.com/arkilian/worlddb/pkg/types"
)

// CityByIDSQL is the statement the access demo runs through the SQL surface.
const CityByIDSQL = "SELECT name, population FROM city WHERE id = ?"

// Diagnostics logs what the engine holds and exercises its access surfaces.
type Diagnostics struct {
	session  *engine.Session
	affinity *partition.Affinity
}

// NewDiagnostics creates diagnostics for a session. A nil affinity uses
// the default partition count.
func NewDiagnostics(s *engine.Session, a *partition.Affinity) *Diagnostics {
	if a == nil {
		a, _ = partition.NewAffinity(partition.DefaultPartitions)
	}
	return &Diagnostics{session: s, affinity: a}
}

// LogStartup logs the table names and the node topology.
func (d *Diagnostics) LogStartup(ctx context.Context) error {
	tables, err := d.session.Tables(ctx)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	log.Printf("Table names existing in cluster: %v", tables)

	log.Printf("Node information:")
	for _, n := range d.session.Cluster().Nodes() {
		log.Printf("ID: %s, Name: %s, Address: %s, Active: %v", n.ID, n.Name, n.Address, n.Active)
	}
	return nil
}

// AccessReport is what the access demo read for one city.
type AccessReport struct {
	// Found is false when the city does not exist. The other fields are
	// then zero.
	Found bool
	// Record is the whole row read through the record view.
	Record model.City
	// Value is the non-key part read through the key/value view.
	Value *types.Tuple
	// Name and Population come from the SQL surface.
	Name       string
	Population int64
	// Partition and Node locate the row by its affinity column.
	Partition int
	Node      engine.Node
}

// DemonstrateAccess reads one city through the record view, the key/value
// view and the SQL surface, logging each result.
func (d *Diagnostics) DemonstrateAccess(ctx context.Context, cityID int64) (AccessReport, error) {
	var report AccessReport
	log.Printf("--- Demonstrating data access surfaces ---")
	defer log.Printf("--- End of access demonstration ---")

	table, err := d.session.Table(ctx, model.CityTable.Name)
	if err != nil {
		return report, err
	}
	key, err := mapping.KeyTuple(model.CityTable, cityID)
	if err != nil {
		return report, err
	}

	record, found, err := table.RecordView().Get(ctx, nil, key)
	if err != nil {
		return report, fmt.Errorf("record view: %w", err)
	}
	if !found {
		log.Printf("City %d not found", cityID)
		return report, nil
	}
	report.Found = true
	if report.Record, err = mapping.Decode[model.City](record); err != nil {
		return report, err
	}
	log.Printf("Record view result: city %d = %s (population: %d)",
		cityID, report.Record.Name, report.Record.Population)

	if report.Partition, err = d.affinity.PartitionForKey(model.CityTable, record); err != nil {
		return report, err
	}
	report.Node = d.session.Cluster().NodeForPartition(report.Partition)
	log.Printf("City %d is colocated with %s in partition %d on %s",
		cityID, report.Record.CountryCode, report.Partition, report.Node.Name)

	value, found, err := table.KeyValueView().Get(ctx, nil, key)
	if err != nil {
		return report, fmt.Errorf("key/value view: %w", err)
	}
	if found {
		report.Value = value
		log.Printf("Key/value view result: city %d value = %s in %s",
			cityID, value.String("NAME"), value.String("DISTRICT"))
	}

	q := d.session.SQL()
	rs, err := q.Execute(ctx, nil, q.StatementBuilder().Query(CityByIDSQL).Build(), cityID)
	if err != nil {
		return report, fmt.Errorf("sql: %w", err)
	}
	defer rs.Close()
	if rs.Next() {
		row := rs.Row()
		report.Name = row.String("NAME")
		report.Population = row.Int64("POPULATION")
		log.Printf("SQL result: city = %s, population = %d", report.Name, report.Population)
	}
	return report, rs.Err()
}

// PrintTopCities writes the ranking as a fixed-width table.
func PrintTopCities(w io.Writer, rows []model.PopulousCity) error {
	if _, err := fmt.Fprintf(w, "%15s %12s %10s\n", "City", "Country", "Population"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%15s %12s %10s\n", "===============", "============", "=========="); err != nil {
		return err
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(w, "%15s %12s %10d\n", r.CityName, r.CountryName, r.Population); err != nil {
			return err
		}
	}
	return nil
}
