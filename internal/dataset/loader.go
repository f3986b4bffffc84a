// Package dataset loads SQL scripts from object storage into the engine.
//
// Scripts are plain SQL, or snappy block-compressed when the object name
// ends in ".sz". Every load runs in a single transaction: either all
// statements of all objects apply or none do.
package dataset

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang/snappy"

	"github.com/arkilian/worlddb/internal/engine"
	"github.com/arkilian/worlddb/internal/notify"
	"github.com/arkilian/worlddb/internal/observability"
	"github.com/arkilian/worlddb/internal/query/parser"
	"github.com/arkilian/worlddb/internal/storage"
)

// CompressedSuffix marks snappy-compressed scripts.
const CompressedSuffix = ".sz"

// SampleWorld is a small world dataset covering every table the service
// reads.
//
//go:embed sample/world.sql
var SampleWorld []byte

// Stats summarises a load.
type Stats struct {
	Objects    int
	Statements int
	Duration   time.Duration
}

// Loader executes dataset scripts against a session.
type Loader struct {
	store   storage.ObjectStore
	session *engine.Session
	fetcher *storage.Fetcher
	// notifier, when set, is told about every committed load.
	notifier *notify.Notifier
}

// NewLoader creates a loader. store may be nil when only LoadScript is used.
func NewLoader(store storage.ObjectStore, session *engine.Session) *Loader {
	l := &Loader{store: store, session: session}
	if store != nil {
		l.fetcher = storage.NewFetcher(store, 4)
	}
	return l
}

// WithConcurrency bounds the number of objects fetched in parallel.
func (l *Loader) WithConcurrency(n int) *Loader {
	if l.store != nil {
		l.fetcher = storage.NewFetcher(l.store, n)
	}
	return l
}

// WithNotifier publishes a DatasetLoaded notification per script after
// each committed load.
func (l *Loader) WithNotifier(n *notify.Notifier) *Loader {
	l.notifier = n
	return l
}

// Load fetches the given objects and executes them, in the given order,
// inside one transaction.
func (l *Loader) Load(ctx context.Context, objectPaths ...string) (Stats, error) {
	if l.store == nil {
		return Stats{}, fmt.Errorf("dataset: loader has no object store")
	}
	start := time.Now()

	objects, err := l.fetcher.FetchAll(ctx, objectPaths)
	if err != nil {
		return Stats{}, fmt.Errorf("dataset: %w", err)
	}

	scripts := make([]script, len(objects))
	for i, obj := range objects {
		data, err := Decode(obj.Path, obj.Data)
		if err != nil {
			return Stats{}, err
		}
		scripts[i] = script{name: obj.Path, data: data}
	}

	stats, err := l.execute(ctx, scripts)
	stats.Duration = time.Since(start)
	return stats, err
}

// LoadPrefix loads every object under prefix in lexical order.
func (l *Loader) LoadPrefix(ctx context.Context, prefix string) (Stats, error) {
	if l.store == nil {
		return Stats{}, fmt.Errorf("dataset: loader has no object store")
	}
	paths, err := l.store.List(ctx, prefix)
	if err != nil {
		return Stats{}, fmt.Errorf("dataset: list %s: %w", prefix, err)
	}
	if len(paths) == 0 {
		return Stats{}, fmt.Errorf("dataset: no objects under %q", prefix)
	}
	return l.Load(ctx, paths...)
}

// LoadScript executes an in-memory script.
func (l *Loader) LoadScript(ctx context.Context, name string, data []byte) (Stats, error) {
	start := time.Now()
	stats, err := l.execute(ctx, []script{{name: name, data: data}})
	stats.Duration = time.Since(start)
	return stats, err
}

// Publish stores a script in the object store, snappy-compressed when
// compress is set. It returns the object path written.
func (l *Loader) Publish(ctx context.Context, objectPath string, data []byte, compress bool) (string, error) {
	if l.store == nil {
		return "", fmt.Errorf("dataset: loader has no object store")
	}
	if compress {
		data = snappy.Encode(nil, data)
		if !strings.HasSuffix(objectPath, CompressedSuffix) {
			objectPath += CompressedSuffix
		}
	}
	if err := l.store.Put(ctx, objectPath, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("dataset: publish %s: %w", objectPath, err)
	}
	return objectPath, nil
}

// Decode returns the SQL text of an object, decompressing ".sz" objects.
func Decode(objectPath string, data []byte) ([]byte, error) {
	if !strings.HasSuffix(objectPath, CompressedSuffix) {
		return data, nil
	}
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("dataset: decompress %s: %w", objectPath, err)
	}
	return raw, nil
}

type script struct {
	name string
	data []byte
}

func (l *Loader) execute(ctx context.Context, scripts []script) (Stats, error) {
	var stats Stats
	counts := make([]int, len(scripts))
	err := l.session.RunInTransaction(ctx, func(tx *engine.Transaction) error {
		for i, s := range scripts {
			statements, err := parser.SplitStatements(string(s.data), parser.ForDialect(l.session.Dialect()))
			if err != nil {
				return fmt.Errorf("dataset: %s: %w", s.name, err)
			}
			for n, text := range statements {
				stmt := engine.Statement{Query: text}
				if _, err := l.session.SQL().Exec(ctx, tx, stmt); err != nil {
					return fmt.Errorf("dataset: %s statement %d: %w", s.name, n+1, err)
				}
				observability.DatasetStatements.Inc()
			}
			counts[i] = len(statements)
			stats.Objects++
			stats.Statements += len(statements)
			log.Printf("Loaded %s (%d statements)", s.name, len(statements))
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	if l.notifier != nil {
		for i, s := range scripts {
			l.notifier.Publish(notify.Notification{Kind: notify.DatasetLoaded, Source: s.name, Statements: counts[i]})
		}
	}
	return stats, nil
}
