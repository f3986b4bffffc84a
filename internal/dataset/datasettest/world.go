// Package datasettest opens engine sessions preloaded with the sample
// world dataset, for tests.
package datasettest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/arkilian/worlddb/internal/dataset"
	"github.com/arkilian/worlddb/internal/engine"
)

// OpenWorld returns a session on a fresh sqlite database holding the sample
// world dataset. The session is closed when the test ends.
func OpenWorld(t testing.TB) *engine.Session {
	t.Helper()
	s, err := engine.Open(context.Background(), engine.Config{
		Driver:         "sqlite3",
		Addresses:      []string{filepath.Join(t.TempDir(), "world.db")},
		ConnectTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("open world: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if _, err := dataset.NewLoader(nil, s).LoadScript(context.Background(), "sample/world.sql", dataset.SampleWorld); err != nil {
		t.Fatalf("load world: %v", err)
	}
	return s
}
