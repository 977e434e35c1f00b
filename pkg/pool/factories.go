package pool

import (
	"context"
	"fmt"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/jmoiron/sqlx"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLFactory builds a Factory whose connections are pooled *sqlx.DB
// handles against dsn, mirroring pkg/schema/mysql.go's connection
// setup so the pool and the discovery adapter open connections the
// same way.
func MySQLFactory(dsn string) Factory {
	return Factory{
		Create: func(ctx context.Context) (interface{}, error) {
			db, err := sqlx.ConnectContext(ctx, "mysql", dsn)
			if err != nil {
				return nil, fmt.Errorf("pool: mysql connect: %w", err)
			}
			return db, nil
		},
		Destroy: func(conn interface{}) {
			if db, ok := conn.(*sqlx.DB); ok {
				_ = db.Close()
			}
		},
		Validate: func(conn interface{}) bool {
			db, ok := conn.(*sqlx.DB)
			return ok && db.Ping() == nil
		},
	}
}

// MongoFactory builds a Factory whose connections are *mongo.Client
// handles against uri, mirroring pkg/schema/mongo.go's driver choice
// (go.mongodb.org/mongo-driver v1, the teacher's direct dependency).
func MongoFactory(uri string) Factory {
	return Factory{
		Create: func(ctx context.Context) (interface{}, error) {
			client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
			if err != nil {
				return nil, fmt.Errorf("pool: mongo connect: %w", err)
			}
			if err := client.Ping(ctx, readpref.Primary()); err != nil {
				return nil, fmt.Errorf("pool: mongo ping: %w", err)
			}
			return client, nil
		},
		Destroy: func(conn interface{}) {
			if client, ok := conn.(*mongo.Client); ok {
				_ = client.Disconnect(context.Background())
			}
		},
		Validate: func(conn interface{}) bool {
			client, ok := conn.(*mongo.Client)
			if !ok {
				return false
			}
			return client.Ping(context.Background(), readpref.Primary()) == nil
		},
	}
}

// ElasticsearchFactory builds a Factory whose connections are
// *elasticsearch.Client handles, the same client type
// pkg/stages/enrichment.go asserts against esapi.Transport for its
// es_lookup enrichment rule.
func ElasticsearchFactory(addresses []string) Factory {
	return Factory{
		Create: func(ctx context.Context) (interface{}, error) {
			client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addresses})
			if err != nil {
				return nil, fmt.Errorf("pool: elasticsearch client: %w", err)
			}
			return client, nil
		},
		Destroy: func(conn interface{}) {
			// *elasticsearch.Client has no explicit close; its
			// underlying http.Transport is reclaimed by the garbage
			// collector once the client is unreferenced.
		},
		Validate: func(conn interface{}) bool {
			client, ok := conn.(*elasticsearch.Client)
			if !ok {
				return false
			}
			res, err := client.Ping()
			if err != nil {
				return false
			}
			defer res.Body.Close()
			return !res.IsError()
		},
	}
}
