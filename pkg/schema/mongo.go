package schema

import (
	"context"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/strata-data/mapengine/pkg/config"
	"github.com/strata-data/mapengine/pkg/types"
)

// MongoAdapter discovers schemas from a document store. MongoDB has no
// declared schema, so discovery infers one by sampling up to 50 documents
// per collection (in natural order, unsorted) and unioning their top-level
// fields, each typed by the first sampled document that carries it,
// following the ListCollectionNames/sample pattern the replication
// stream uses to watch a collection.
type MongoAdapter struct {
	cfg    config.SourceConfig
	client *mongo.Client
}

// NewMongoAdapter builds a MongoAdapter from a source configuration.
func NewMongoAdapter(cfg config.SourceConfig) (Adapter, error) {
	return &MongoAdapter{cfg: cfg}, nil
}

func (a *MongoAdapter) SystemType() string { return "mongodb" }

func (a *MongoAdapter) Connect(ctx context.Context) error {
	uri := a.cfg.URI
	if uri == "" {
		uri = fmt.Sprintf("mongodb://%s:%s@%s:%d", a.cfg.Username, a.cfg.Password, a.cfg.Host, a.cfg.Port)
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return fmt.Errorf("mongo adapter connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongo adapter ping: %w", err)
	}
	a.client = client
	return nil
}

func (a *MongoAdapter) Disconnect(ctx context.Context) error {
	if a.client == nil {
		return nil
	}
	return a.client.Disconnect(ctx)
}

const schemaInferenceSampleSize = 50

func (a *MongoAdapter) DiscoverSchemas(ctx context.Context) (types.NativeSchema, error) {
	if a.client == nil {
		return types.NativeSchema{}, ErrAdapterNotConnected
	}

	db := a.client.Database(a.cfg.Database)
	collections, err := db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return types.NativeSchema{}, fmt.Errorf("mongo adapter list collections: %w", err)
	}

	native := types.NativeSchema{Name: a.cfg.Database}
	for _, collName := range collections {
		fieldTypes := make(map[string]string)

		cursor, err := db.Collection(collName).Find(ctx, bson.D{}, options.Find().SetLimit(schemaInferenceSampleSize))
		if err != nil {
			return types.NativeSchema{}, fmt.Errorf("mongo adapter sample %s: %w", collName, err)
		}

		for cursor.Next(ctx) {
			var doc bson.M
			if err := cursor.Decode(&doc); err != nil {
				cursor.Close(ctx)
				return types.NativeSchema{}, fmt.Errorf("mongo adapter decode sample from %s: %w", collName, err)
			}
			for field, value := range doc {
				if _, seen := fieldTypes[field]; !seen {
					fieldTypes[field] = bsonFieldType(value)
				}
			}
		}
		cursor.Close(ctx)

		names := make([]string, 0, len(fieldTypes))
		for name := range fieldTypes {
			names = append(names, name)
		}
		sort.Strings(names)

		table := types.Table{Name: collName}
		for i, name := range names {
			table.Columns = append(table.Columns, types.Column{
				Name:            name,
				NativeType:      fieldTypes[name],
				IsPrimaryKey:    name == "_id",
				OrdinalPosition: i + 1,
				Metadata:        types.ColumnMetadata{Nullable: true},
			})
		}
		native.Tables = append(native.Tables, table)
	}

	return native, nil
}

func bsonFieldType(value interface{}) string {
	switch value.(type) {
	case int32, int64, int:
		return "int"
	case float64:
		return "double"
	case string:
		return "string"
	case bool:
		return "bool"
	case bson.M, bson.D:
		return "json"
	case bson.A:
		return "array"
	default:
		return "string"
	}
}

func (a *MongoAdapter) GetSampleData(ctx context.Context, schemaName, table string, opts SampleOptions) ([]map[string]interface{}, error) {
	if a.client == nil {
		return nil, ErrAdapterNotConnected
	}

	limit := int64(opts.Limit)
	if limit <= 0 {
		limit = 100
	}
	findOpts := options.Find().SetLimit(limit).SetSkip(int64(opts.Offset))
	if opts.OrderBy != "" {
		dir := 1
		if opts.OrderDir == "desc" {
			dir = -1
		}
		findOpts.SetSort(bson.D{{Key: opts.OrderBy, Value: dir}})
	}

	cursor, err := a.client.Database(schemaName).Collection(table).Find(ctx, bson.D{}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo adapter sample rows: %w", err)
	}
	defer cursor.Close(ctx)

	var results []map[string]interface{}
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo adapter decode sample row: %w", err)
		}
		results = append(results, doc)
	}
	return results, cursor.Err()
}
