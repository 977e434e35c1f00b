package schema

import (
	"context"
	"fmt"

	_ "github.com/go-mysql-org/go-mysql/mysql"
	myschema "github.com/go-mysql-org/go-mysql/schema"
	"github.com/jmoiron/sqlx"

	_ "github.com/go-sql-driver/mysql"
	"github.com/strata-data/mapengine/pkg/config"
	"github.com/strata-data/mapengine/pkg/types"
)

// MySQLAdapter discovers schemas from a MySQL source by opening a pooled
// sqlx connection and delegating column introspection to go-mysql's
// schema package, the same collaborator the replication stream uses to
// build its binlog table cache.
type MySQLAdapter struct {
	cfg  config.SourceConfig
	conn *sqlx.DB
}

// NewMySQLAdapter builds a MySQLAdapter from a source configuration.
func NewMySQLAdapter(cfg config.SourceConfig) (Adapter, error) {
	return &MySQLAdapter{cfg: cfg}, nil
}

func (a *MySQLAdapter) SystemType() string { return "mysql" }

func (a *MySQLAdapter) Connect(ctx context.Context) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?interpolateParams=true",
		a.cfg.Username, a.cfg.Password, a.cfg.Host, a.cfg.Port, a.cfg.Database)
	conn, err := sqlx.ConnectContext(ctx, "mysql", dsn)
	if err != nil {
		return fmt.Errorf("mysql adapter connect: %w", err)
	}
	a.conn = conn
	return nil
}

func (a *MySQLAdapter) Disconnect(ctx context.Context) error {
	if a.conn == nil {
		return nil
	}
	return a.conn.Close()
}

func (a *MySQLAdapter) DiscoverSchemas(ctx context.Context) (types.NativeSchema, error) {
	if a.conn == nil {
		return types.NativeSchema{}, ErrAdapterNotConnected
	}

	var tableNames []string
	if err := a.conn.SelectContext(ctx, &tableNames,
		"SELECT table_name FROM information_schema.tables WHERE table_schema = ?", a.cfg.Database); err != nil {
		return types.NativeSchema{}, fmt.Errorf("mysql adapter list tables: %w", err)
	}

	native := types.NativeSchema{Name: a.cfg.Database}
	for _, tableName := range tableNames {
		table, err := myschema.NewTableFromSqlDB(a.conn.DB, a.cfg.Database, tableName)
		if err != nil {
			return types.NativeSchema{}, fmt.Errorf("mysql adapter introspect table %s: %w", tableName, err)
		}

		pk := make(map[int]bool, len(table.PKColumns))
		for _, idx := range table.PKColumns {
			pk[idx] = true
		}

		nativeTable := types.Table{Name: tableName}
		for i, col := range table.Columns {
			nativeTable.Columns = append(nativeTable.Columns, types.Column{
				Name:            col.Name,
				NativeType:      col.RawType,
				IsPrimaryKey:    pk[i],
				OrdinalPosition: i + 1,
				Metadata: types.ColumnMetadata{
					Nullable: true,
				},
			})
		}
		native.Tables = append(native.Tables, nativeTable)
	}

	return native, nil
}

func (a *MySQLAdapter) GetSampleData(ctx context.Context, schemaName, table string, opts SampleOptions) ([]map[string]interface{}, error) {
	if a.conn == nil {
		return nil, ErrAdapterNotConnected
	}

	query := fmt.Sprintf("SELECT * FROM `%s`.`%s`", schemaName, table)
	if opts.OrderBy != "" {
		dir := "ASC"
		if opts.OrderDir == "desc" {
			dir = "DESC"
		}
		query += fmt.Sprintf(" ORDER BY `%s` %s", opts.OrderBy, dir)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, opts.Offset)

	rows, err := a.conn.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("mysql adapter sample rows: %w", err)
	}
	defer rows.Close()

	var results []map[string]interface{}
	for rows.Next() {
		row := make(map[string]interface{})
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("mysql adapter scan sample row: %w", err)
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

func (a *MySQLAdapter) GetTableStatistics(ctx context.Context, schemaName, table string) (TableStats, error) {
	if a.conn == nil {
		return TableStats{}, ErrAdapterNotConnected
	}

	var stats struct {
		Rows      int64 `db:"TABLE_ROWS"`
		DataBytes int64 `db:"DATA_LENGTH"`
		IdxBytes  int64 `db:"INDEX_LENGTH"`
	}
	err := a.conn.GetContext(ctx, &stats,
		`SELECT TABLE_ROWS, DATA_LENGTH, INDEX_LENGTH FROM information_schema.tables
		 WHERE table_schema = ? AND table_name = ?`, schemaName, table)
	if err != nil {
		return TableStats{}, fmt.Errorf("mysql adapter table stats: %w", err)
	}

	return TableStats{
		RowCount:  stats.Rows,
		SizeBytes: stats.DataBytes + stats.IdxBytes,
	}, nil
}
