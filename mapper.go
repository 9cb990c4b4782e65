package qorzendb

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// FieldMapper renames columns of a table at query time without
// touching the underlying schema (C8). It keeps an in-memory cache of
// (connection, table) -> *FieldMapping and, per spec, degrades silently
// if its management tables cannot be created.
type FieldMapper struct {
	mgr      *Manager
	cfg      FieldMappingConfig
	connID   string
	mu       sync.RWMutex
	byID     map[string]*FieldMapping
	byTable  map[string]*FieldMapping // key: connection+"\x00"+table
	redis    *redis.Client
	degraded bool
}

func mappingCacheKey(connection, table string) string { return connection + "\x00" + table }

func newFieldMapper(mgr *Manager, cfg FieldMappingConfig) *FieldMapper {
	connID := cfg.ConnectionName
	if connID == "" || !mgr.HasConnection(connID) {
		connID = "default"
	}

	fm := &FieldMapper{mgr: mgr, cfg: cfg, connID: connID, byID: make(map[string]*FieldMapping), byTable: make(map[string]*FieldMapping)}
	if !cfg.Enabled {
		fm.degraded = true
		return fm
	}
	if cfg.RedisAddr != "" {
		fm.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fm.ensureTables(ctx); err != nil {
		mgr.logger.Warn("field mapper initialization failed; feature degraded", "error", err)
		fm.degraded = true
	}
	return fm
}

// ensureTables creates the mapper's two management tables, first via
// the scoped-session path and, on failure, by retrying with a raw
// Execute — mirroring the original's two-step bootstrap attempt.
func (fm *FieldMapper) ensureTables(ctx context.Context) error {
	stmts := managementTableDDL[:2] // db_field_mappings, db_field_mapping_entries
	err := <-fm.mgr.AsyncSession(ctx, fm.connID, func(s *Session) error {
		for _, stmt := range stmts {
			if _, err := s.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		return nil
	}
	for _, stmt := range stmts {
		if rawErr := fm.mgr.Execute(ctx, fm.connID, stmt); rawErr != nil {
			return rawErr
		}
	}
	return nil
}

// CreateMapping inserts a new FieldMapping transactionally: the mapping
// row, then one entry row per field, all in one session.
func (fm *FieldMapper) CreateMapping(ctx context.Context, connection, table string, fieldMap map[string]string, description string) (*FieldMapping, error) {
	if fm.degraded {
		return nil, NewConfigurationError("field mapper is degraded")
	}
	mapping := &FieldMapping{
		ID: uuid.NewString(), ConnectionName: connection, TableName: table,
		FieldMap: fieldMap, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}

	err := fm.mgr.Session(ctx, fm.connID, func(s *Session) error {
		if _, err := s.Exec(ctx, `INSERT INTO db_field_mappings (id, connection_id, table_name, description, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			mapping.ID, connection, table, description, mapping.CreatedAt, mapping.UpdatedAt); err != nil {
			return err
		}
		return fm.insertEntries(ctx, s, mapping)
	})
	if err != nil {
		return nil, NewDatabaseError("failed to create field mapping", err, "connection", connection, "table", table)
	}

	fm.mu.Lock()
	fm.byID[mapping.ID] = mapping
	fm.byTable[mappingCacheKey(connection, table)] = mapping
	fm.mu.Unlock()
	fm.invalidateRedis(ctx, connection, table)
	return mapping, nil
}

func (fm *FieldMapper) insertEntries(ctx context.Context, s *Session, mapping *FieldMapping) error {
	for orig, mapped := range mapping.FieldMap {
		if _, err := s.Exec(ctx, `INSERT INTO db_field_mapping_entries (id, mapping_id, original_field, mapped_field, created_at) VALUES (?, ?, ?, ?, ?)`,
			uuid.NewString(), mapping.ID, orig, mapped, time.Now()); err != nil {
			return err
		}
	}
	return nil
}

// UpdateMapping replaces a mapping's entries wholesale: delete then
// re-insert, all inside one session, so readers never observe a
// partially-updated field map.
func (fm *FieldMapper) UpdateMapping(ctx context.Context, id string, fieldMap map[string]string, description string) error {
	fm.mu.RLock()
	mapping, ok := fm.byID[id]
	fm.mu.RUnlock()
	if !ok {
		return NewConfigurationError("unknown field mapping", "id", id)
	}

	err := fm.mgr.Session(ctx, fm.connID, func(s *Session) error {
		if _, err := s.Exec(ctx, `DELETE FROM db_field_mapping_entries WHERE mapping_id = ?`, id); err != nil {
			return err
		}
		mapping.FieldMap = fieldMap
		mapping.UpdatedAt = time.Now()
		if _, err := s.Exec(ctx, `UPDATE db_field_mappings SET description = ?, updated_at = ? WHERE id = ?`,
			description, mapping.UpdatedAt, id); err != nil {
			return err
		}
		return fm.insertEntries(ctx, s, mapping)
	})
	if err != nil {
		return NewDatabaseError("failed to update field mapping", err, "id", id)
	}
	fm.invalidateRedis(ctx, mapping.ConnectionName, mapping.TableName)
	return nil
}

// DeleteMapping removes a mapping and its entries (cascade).
func (fm *FieldMapper) DeleteMapping(ctx context.Context, id string) error {
	fm.mu.RLock()
	mapping, ok := fm.byID[id]
	fm.mu.RUnlock()
	if !ok {
		return NewConfigurationError("unknown field mapping", "id", id)
	}

	err := fm.mgr.Session(ctx, fm.connID, func(s *Session) error {
		_, err := s.Exec(ctx, `DELETE FROM db_field_mappings WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return NewDatabaseError("failed to delete field mapping", err, "id", id)
	}

	fm.mu.Lock()
	delete(fm.byID, id)
	delete(fm.byTable, mappingCacheKey(mapping.ConnectionName, mapping.TableName))
	fm.mu.Unlock()
	fm.invalidateRedis(ctx, mapping.ConnectionName, mapping.TableName)
	return nil
}

// GetMapping looks up the mapping for (connection, table) in the
// in-memory cache, then in Redis when configured. This package only
// deletes mapping keys from Redis; it never writes them.
func (fm *FieldMapper) GetMapping(ctx context.Context, connection, table string) (*FieldMapping, bool) {
	fm.mu.RLock()
	mapping, ok := fm.byTable[mappingCacheKey(connection, table)]
	fm.mu.RUnlock()
	if ok {
		return mapping, true
	}
	if fm.redis != nil {
		if cached, err := fm.redis.Get(ctx, mappingCacheKey(connection, table)).Result(); err == nil {
			var m FieldMapping
			if json.Unmarshal([]byte(cached), &m) == nil {
				return &m, true
			}
		}
	}
	return nil, false
}

func (fm *FieldMapper) GetMappingByID(id string) (*FieldMapping, bool) {
	fm.mu.RLock()
	defer fm.mu.RUnlock()
	m, ok := fm.byID[id]
	return m, ok
}

// GetAllMappings returns every mapping, optionally filtered to one
// connection.
func (fm *FieldMapper) GetAllMappings(connection string) []*FieldMapping {
	fm.mu.RLock()
	defer fm.mu.RUnlock()
	out := make([]*FieldMapping, 0, len(fm.byID))
	for _, m := range fm.byID {
		if connection == "" || m.ConnectionName == connection {
			out = append(out, m)
		}
	}
	return out
}

func (fm *FieldMapper) invalidateRedis(ctx context.Context, connection, table string) {
	if fm.redis == nil {
		return
	}
	fm.redis.Del(ctx, mappingCacheKey(connection, table))
}

// selectStarPattern / fieldTokenPattern ground apply_mapping_to_query's
// SQL rewriting: expanding `SELECT *`, and limiting per-field `AS`
// clauses to plain identifiers (ApplyToQuery skips fields that already
// carry an alias or are qualified/expressions).
var selectStarPattern = regexp.MustCompile(`(?i)SELECT\s+\*\s+FROM`)
var fieldTokenPattern = regexp.MustCompile(`(?i)^[A-Za-z_][A-Za-z0-9_]*$`)

// ApplyToQuery rewrites query so that mapped fields are returned under
// their display name via a `col AS alias` clause. SELECT * is expanded
// to the table's known original field names first. Fields that are
// already qualified, already aliased, or are expressions are left
// untouched — a conservative, regex-based rewrite, not a SQL parser.
func (fm *FieldMapper) ApplyToQuery(connection, table, query string) string {
	mapping, ok := fm.GetMapping(context.Background(), connection, table)
	if !ok || len(mapping.FieldMap) == 0 {
		return query
	}

	if selectStarPattern.MatchString(query) {
		fields := make([]string, 0, len(mapping.FieldMap))
		for orig, mapped := range mapping.FieldMap {
			fields = append(fields, quoteAs(orig, mapped))
		}
		return selectStarPattern.ReplaceAllString(query, "SELECT "+strings.Join(fields, ", ")+" FROM")
	}

	// Selective rewrite: for each bare, unaliased field name in the
	// query that has a mapping, append `AS mapped`.
	rewritten := query
	for orig, mapped := range mapping.FieldMap {
		if !fieldTokenPattern.MatchString(orig) {
			continue
		}
		already := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(orig) + `\s+AS\s+`)
		if already.MatchString(rewritten) {
			continue
		}
		bare := regexp.MustCompile(`(?i)(^|[\s,(])` + regexp.QuoteMeta(orig) + `\b(?:\s*,|\s+FROM)`)
		rewritten = bare.ReplaceAllStringFunc(rewritten, func(m string) string {
			return strings.Replace(m, orig, quoteAs(orig, mapped), 1)
		})
	}
	return rewritten
}

func quoteAs(orig, mapped string) string { return orig + " AS " + mapped }

// ApplyToResult renames result.Rows' keys and records the field map
// used on result.MappedFields, matching apply_mapping_to_results.
func (fm *FieldMapper) ApplyToResult(ctx context.Context, connection, table string, result *QueryResult) {
	mapping, ok := fm.GetMapping(ctx, connection, table)
	if !ok {
		return
	}
	lowerMap := make(map[string]string, len(mapping.FieldMap))
	for orig, mapped := range mapping.FieldMap {
		lowerMap[strings.ToLower(orig)] = mapped
	}

	for i, row := range result.Rows {
		renamed := make(map[string]any, len(row))
		for k, v := range row {
			if mapped, ok := lowerMap[strings.ToLower(k)]; ok {
				renamed[mapped] = v
			} else {
				renamed[k] = v
			}
		}
		result.Rows[i] = renamed
	}
	result.MappedFields = mapping.FieldMap
}

// standardizeStrip strips everything but word/space chars.
var standardizeStrip = regexp.MustCompile(`[^\w\s]`)
var standardizeWhitespace = regexp.MustCompile(`\s+`)
var standardizeCamelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)
var standardizeRepeatUnderscore = regexp.MustCompile(`_+`)

// StandardizeFieldName normalizes a column/display name: strip
// non-word/space characters, collapse whitespace to underscores, add
// an underscore at lower->upper transitions, lowercase, collapse
// repeated underscores, then trim leading/trailing underscores.
func StandardizeFieldName(s string) string {
	out := standardizeStrip.ReplaceAllString(s, "")
	out = standardizeWhitespace.ReplaceAllString(out, "_")
	out = standardizeCamelBoundary.ReplaceAllString(out, "${1}_${2}")
	out = strings.ToLower(out)
	out = standardizeRepeatUnderscore.ReplaceAllString(out, "_")
	return strings.Trim(out, "_")
}
