package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/modelled-needs-server/internal/database"
	"github.com/modelled-needs-server/internal/domain"
)

// Source tables of the population dataset
const (
	PatientTable     = "population_master"
	DeprivationTable = "imd_2019"
)

// OpenFunc opens a database handle; sql.Open by default
type OpenFunc func(driverName, dataSourceName string) (*sql.DB, error)

// PatientRepository reads patient-level records with one scoped connection
// per request
type PatientRepository struct {
	open OpenFunc
	log  *logrus.Logger
}

// NewPatientRepository creates a new patient repository
func NewPatientRepository(logger *logrus.Logger) *PatientRepository {
	return &PatientRepository{
		open: sql.Open,
		log:  logger,
	}
}

// WithOpener replaces the function used to open database handles
func (r *PatientRepository) WithOpener(open OpenFunc) *PatientRepository {
	r.open = open
	return r
}

// BuildPatientQuery renders the SELECT for the requested columns and the
// positional arguments it needs
func BuildPatientQuery(query domain.PatientQuery) (string, []any, error) {
	if len(query.Columns) == 0 {
		return "", nil, fmt.Errorf("no columns requested: %w", domain.ErrInvalidInput)
	}

	quoted := make([]string, len(query.Columns))
	for i, c := range query.Columns {
		quoted[i] = pq.QuoteIdentifier(c)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s LEFT JOIN %s ON lsoa = lsoa_code",
		strings.Join(quoted, ", "), PatientTable, DeprivationTable)

	var args []any
	if len(query.FilterAreas) > 0 {
		fmt.Fprintf(&b, " WHERE %s.ccg = ANY($1)", PatientTable)
		args = append(args, pq.Array(query.FilterAreas))
	}
	return b.String(), args, nil
}

// FetchPatientRecords opens a handle for cfg, acquires exactly one
// connection, runs the query and releases everything before returning
func (r *PatientRepository) FetchPatientRecords(ctx context.Context, cfg domain.DatabaseConfig, query domain.PatientQuery) (*domain.PatientTable, error) {
	stmt, args, err := BuildPatientQuery(query)
	if err != nil {
		return nil, err
	}

	db, err := r.open("postgres", database.ConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening database: %v: %w", err, domain.ErrInfrastructure)
	}
	db.SetMaxOpenConns(1)
	defer func() {
		if cerr := db.Close(); cerr != nil {
			r.log.WithError(cerr).Warn("Failed to close database handle")
		}
	}()

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection to %s: %v: %w", cfg.Host, err, domain.ErrInfrastructure)
	}
	defer conn.Close()

	started := time.Now()
	rows, err := conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"columns": query.Columns,
			"error":   err,
		}).Error("Patient query failed")
		return nil, fmt.Errorf("querying patient records: %v: %w", err, domain.ErrInfrastructure)
	}
	defer rows.Close()

	table, err := scanTable(rows)
	if err != nil {
		return nil, fmt.Errorf("reading patient records: %v: %w", err, domain.ErrInfrastructure)
	}

	r.log.WithFields(logrus.Fields{
		"rows":         len(table.Rows),
		"columns":      len(table.Columns),
		"filter_areas": len(query.FilterAreas),
		"duration":     time.Since(started),
	}).Info("Patient records fetched")

	return table, nil
}

func scanTable(rows *sql.Rows) (*domain.PatientTable, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	table := &domain.PatientTable{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = normalizeValue(v, types[i].DatabaseTypeName())
		}
		table.Rows = append(table.Rows, values)
	}
	return table, rows.Err()
}

// normalizeValue maps driver values onto nil, bool, int64, float64 or
// string. lib/pq returns text and numeric columns as bytes.
func normalizeValue(v any, dbType string) any {
	switch x := v.(type) {
	case []byte:
		s := string(x)
		switch dbType {
		case "NUMERIC", "DECIMAL":
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f
			}
		}
		return s
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return v
	}
}
