package sink

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"prakashmadai10/gisaudit/audit"
)

//go:embed schema.sql
var schemaSQL string

// Store is the full sink surface the pipeline needs. *AuditTable implements
// it; tests substitute fakes.
type Store interface {
	SchemaInspector
	SnapshotQuerier
	BatchInserter
	UseCapability(Capability)
}

// AuditTable is the Postgres-backed reporting table.
type AuditTable struct {
	pool  *pgxpool.Pool
	table string
	cap   Capability
}

func NewAuditTable(pool *pgxpool.Pool, table string) *AuditTable {
	return &AuditTable{pool: pool, table: table}
}

// UseCapability fixes the probed capability for subsequent inserts. Must be
// called once after Probe, before collection starts.
func (t *AuditTable) UseCapability(cap Capability) {
	t.cap = cap
}

// EnsureSchema creates the audit table if it does not exist. The embedded DDL
// names the default table; both the table and its index are renamed when the
// configured table differs. The index name must be rewritten before the table
// name, which is its prefix.
func (t *AuditTable) EnsureSchema(ctx context.Context) error {
	ddl := strings.ReplaceAll(schemaSQL, "gis_audit_key_run_idx",
		pgx.Identifier{t.table + "_key_run_idx"}.Sanitize())
	ddl = strings.ReplaceAll(ddl, "gis_audit", t.ident())
	if _, err := t.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensuring audit table schema: %w", err)
	}
	return nil
}

// Fields returns the table's declared column names.
func (t *AuditTable) Fields(ctx context.Context) ([]string, error) {
	rows, err := t.pool.Query(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_name = $1
	`, t.table)
	if err != nil {
		return nil, fmt.Errorf("querying column list: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning column name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading column list: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("table %q has no columns or does not exist", t.table)
	}
	return names, nil
}

// CanCreate reports whether the current role may insert into the table.
func (t *AuditTable) CanCreate(ctx context.Context) (bool, error) {
	var ok bool
	err := t.pool.QueryRow(ctx,
		`SELECT has_table_privilege(current_user, $1, 'INSERT')`, t.table,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("checking insert privilege: %w", err)
	}
	return ok, nil
}

// SnapshotRows returns the most recent row per (portal, item, sublayer) key
// among rows recorded before beforeMs.
func (t *AuditTable) SnapshotRows(ctx context.Context, beforeMs int64) ([]SnapshotRow, error) {
	query := fmt.Sprintf(`
		SELECT DISTINCT ON (portal, item_id, sub_layer_id)
			portal, item_id, COALESCE(sub_layer_id, 0),
			total_features, item_created, item_updated, data_updated, schema_updated,
			run_timestamp
		FROM %s
		WHERE run_timestamp < $1
		ORDER BY portal, item_id, sub_layer_id, run_timestamp DESC
	`, t.ident())

	rows, err := t.pool.Query(ctx, query, beforeMs)
	if err != nil {
		return nil, fmt.Errorf("querying previous snapshot: %w", err)
	}
	defer rows.Close()

	var out []SnapshotRow
	for rows.Next() {
		var (
			r      SnapshotRow
			portal string
		)
		if err := rows.Scan(
			&portal, &r.Key.ItemID, &r.Key.SublayerID,
			&r.TotalFeatures, &r.ItemCreatedMs, &r.ItemUpdatedMs, &r.DataUpdatedMs, &r.SchemaUpdatedMs,
			&r.RunTimestampMs,
		); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		r.Key.Source = audit.Source(portal)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading previous snapshot: %w", err)
	}
	return out, nil
}

// Base columns every record carries. Optional columns are appended per the
// probed capability.
var baseColumns = []string{
	"portal", "item_id", "layer_name",
	"item_created", "item_updated", "data_updated", "schema_updated",
	"last_edited_user", "created_user",
	"total_features", "is_authoritative",
	"fy", "report_month",
	"run_timestamp", "data_run_label", "edit_run_id", "time_zone",
}

// InsertRows appends records via a single pgx batch, one statement per record
// so each row reports success or failure individually.
func (t *AuditTable) InsertRows(ctx context.Context, records []audit.LayerRecord) ([]RowResult, error) {
	columns := append([]string{}, baseColumns...)
	if t.cap.SublayerID {
		columns = append(columns, colSublayerID)
	}
	if t.cap.SublayerName {
		columns = append(columns, colSublayerName)
	}
	if t.cap.Owner {
		columns = append(columns, colOwner)
	}
	if t.cap.ItemURL {
		columns = append(columns, colItemURL)
	}
	if t.cap.ServiceURL {
		columns = append(columns, colServiceURL)
	}
	if t.cap.DeltaFeatures {
		columns = append(columns, colDeltaFeatures)
	}

	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	insertSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		t.ident(), strings.Join(columns, ", "), strings.Join(placeholders, ", "),
	)

	batch := &pgx.Batch{}
	for i := range records {
		batch.Queue(insertSQL, t.rowArgs(&records[i])...)
	}

	br := t.pool.SendBatch(ctx, batch)
	defer br.Close()

	results := make([]RowResult, len(records))
	for i := range records {
		if _, err := br.Exec(); err != nil {
			results[i] = RowResult{OK: false, Reason: err.Error()}
			continue
		}
		results[i] = RowResult{OK: true}
	}
	return results, nil
}

func (t *AuditTable) rowArgs(r *audit.LayerRecord) []interface{} {
	args := []interface{}{
		string(r.Source), r.ItemID, r.LayerTitle,
		r.ItemCreatedMs, r.ItemUpdatedMs, r.DataUpdatedMs, r.SchemaUpdatedMs,
		r.LastEditor, r.LastCreator,
		r.TotalFeatures, r.IsAuthoritative,
		r.FiscalYear, r.ReportMonth,
		r.RunTimestampMs, r.RunLabel, r.RunID, r.TimeZone,
	}
	if t.cap.SublayerID {
		args = append(args, r.SublayerID)
	}
	if t.cap.SublayerName {
		args = append(args, r.SublayerName)
	}
	if t.cap.Owner {
		args = append(args, r.Owner)
	}
	if t.cap.ItemURL {
		args = append(args, nullableString(r.ItemURL))
	}
	if t.cap.ServiceURL {
		args = append(args, nullableString(r.ServiceURL))
	}
	if t.cap.DeltaFeatures {
		args = append(args, r.DeltaFeatures)
	}
	return args
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (t *AuditTable) ident() string {
	return pgx.Identifier{t.table}.Sanitize()
}
