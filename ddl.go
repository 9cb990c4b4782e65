package qorzendb

// managementTableDDL bootstraps qorzendb's seven management tables.
// Every statement is CREATE TABLE IF NOT EXISTS: this is unconditional
// bootstrap DDL, not a migration engine, per the explicit Non-goal.
// Column sets follow spec §4.9–§4.11; types are kept portable
// (TEXT/INTEGER/TIMESTAMP/BOOLEAN) across the five generic SQL
// dialects plus ODBC/AS400 management connections.
var managementTableDDL = []string{
	`CREATE TABLE IF NOT EXISTS db_field_mappings (
		id TEXT PRIMARY KEY,
		connection_id TEXT NOT NULL,
		table_name TEXT NOT NULL,
		description TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE(connection_id, table_name)
	)`,
	`CREATE TABLE IF NOT EXISTS db_field_mapping_entries (
		id TEXT PRIMARY KEY,
		mapping_id TEXT NOT NULL REFERENCES db_field_mappings(id) ON DELETE CASCADE,
		original_field TEXT NOT NULL,
		mapped_field TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE(mapping_id, original_field)
	)`,
	`CREATE TABLE IF NOT EXISTS db_history_schedules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		data_connection TEXT NOT NULL,
		history_connection TEXT NOT NULL,
		saved_query_id TEXT NOT NULL,
		frequency TEXT NOT NULL,
		retention_days INTEGER NOT NULL DEFAULT 0,
		enabled BOOLEAN NOT NULL DEFAULT 1,
		last_run TIMESTAMP,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS db_history_entries (
		id TEXT PRIMARY KEY,
		schedule_id TEXT NOT NULL REFERENCES db_history_schedules(id) ON DELETE CASCADE,
		snapshot_id TEXT NOT NULL,
		run_at TIMESTAMP NOT NULL,
		row_count INTEGER NOT NULL DEFAULT 0,
		error TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS db_history_data (
		id TEXT PRIMARY KEY,
		snapshot_id TEXT NOT NULL,
		records TEXT NOT NULL,
		schema TEXT NOT NULL,
		collected_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS db_validation_rules (
		id TEXT PRIMARY KEY,
		connection_id TEXT NOT NULL,
		table_name TEXT NOT NULL,
		field_name TEXT NOT NULL,
		rule_type TEXT NOT NULL,
		parameters TEXT,
		enabled BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS db_validation_results (
		id TEXT PRIMARY KEY,
		rule_id TEXT NOT NULL REFERENCES db_validation_rules(id) ON DELETE CASCADE,
		record_key TEXT,
		field_name TEXT NOT NULL,
		passed BOOLEAN NOT NULL,
		message TEXT,
		evaluated_at TIMESTAMP NOT NULL
	)`,
}
