// Package mongo registers the "mongo" sink kind: one collection per table,
// one document per row.
//
// Cells keep their JSON types: numbers become int64 or float64 when they fit,
// booleans stay booleans and nil cells are stored as null. Table attributes
// are upserted into AttributesCollection keyed by table name.
//
// Options:
//   - database: target database (default: the URI path, else "jsonflat").
package mongo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"jsonflat/internal/storage"
	"jsonflat/internal/value"
)

// AttributesCollection stores table attributes.
const AttributesCollection = "jsonflat_tables"

// DefaultBatchSize is the number of buffered documents per InsertMany.
const DefaultBatchSize = 1000

func init() {
	storage.Register("mongo", New)
}

// store is the subset of the driver the sink uses.
type store interface {
	insertMany(ctx context.Context, coll string, docs []any) error
	putAttributes(ctx context.Context, table string, attrs map[string]string) error
	close(ctx context.Context) error
}

type driverStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func (d *driverStore) insertMany(ctx context.Context, coll string, docs []any) error {
	_, err := d.db.Collection(coll).InsertMany(ctx, docs)
	return err
}

func (d *driverStore) putAttributes(ctx context.Context, table string, attrs map[string]string) error {
	doc := bson.D{{Key: "_id", Value: table}, {Key: "attributes", Value: attrs}}
	_, err := d.db.Collection(AttributesCollection).ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: table}}, doc, options.Replace().SetUpsert(true))
	return err
}

func (d *driverStore) close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}

// Sink writes tables as collections.
type Sink struct {
	st        store
	batchSize int

	mu     sync.Mutex
	tables []*Table
}

// New connects a client and returns a sink over the selected database.
func New(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("mongo: dsn is required")
	}
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	name := cfg.Options.String("database", databaseFromURI(cfg.DSN))
	st := &driverStore{client: client, db: client.Database(name)}
	return newSink(st, cfg.BatchSize), nil
}

func newSink(st store, batchSize int) *Sink {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Sink{st: st, batchSize: batchSize}
}

// CreateTable records the table attributes. Collections are created on first insert.
func (s *Sink) CreateTable(ctx context.Context, spec storage.TableSpec) (storage.Table, error) {
	if len(spec.Attributes) > 0 {
		if err := s.st.putAttributes(ctx, spec.Name, spec.Attributes); err != nil {
			return nil, fmt.Errorf("write attributes %s: %w", spec.Name, err)
		}
	}
	t := &Table{BaseTable: storage.NewBaseTable(spec), sink: s}
	s.mu.Lock()
	s.tables = append(s.tables, t)
	s.mu.Unlock()
	return t, nil
}

// Close flushes every table and disconnects.
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	tables := s.tables
	s.tables = nil
	s.mu.Unlock()

	var errs []error
	for _, t := range tables {
		errs = append(errs, t.flush(ctx))
	}
	errs = append(errs, s.st.close(ctx))
	return errors.Join(errs...)
}

// Table buffers documents for one collection.
type Table struct {
	storage.BaseTable

	sink    *Sink
	pending []any
	written int64
}

// Written returns the number of documents inserted so far.
func (t *Table) Written() int64 { return t.written }

// AppendRow buffers row as a document in header order.
func (t *Table) AppendRow(ctx context.Context, row storage.Row) error {
	t.pending = append(t.pending, Document(t.Columns, row))
	if len(t.pending) >= t.sink.batchSize {
		return t.flush(ctx)
	}
	return nil
}

func (t *Table) flush(ctx context.Context) error {
	if len(t.pending) == 0 {
		return nil
	}
	docs := t.pending
	t.pending = nil
	if err := t.sink.st.insertMany(ctx, t.TableName, docs); err != nil {
		return fmt.Errorf("insert into %s (%d docs): %w", t.TableName, len(docs), err)
	}
	t.written += int64(len(docs))
	return nil
}

// Document builds an ordered document from row following header.
func Document(header []string, row storage.Row) bson.D {
	doc := make(bson.D, 0, len(header))
	for _, c := range header {
		doc = append(doc, bson.E{Key: c, Value: cell(row[c])})
	}
	return doc
}

func cell(v any) any {
	n, ok := v.(value.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

func databaseFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err == nil {
		if name := strings.Trim(u.Path, "/"); name != "" {
			return name
		}
	}
	return "jsonflat"
}

var _ storage.Sink = (*Sink)(nil)
