package qorzendb

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ValidationEngine evaluates rule-based checks against rows already
// fetched by the caller (C10). It is handed records and reports
// pass/fail per field; the only rule that queries the data connection
// itself is unique, whose evaluator counts matching rows in the table.
type ValidationEngine struct {
	mgr      *Manager
	cfg      ValidationConfig
	connID   string
	mu       sync.RWMutex
	rules    map[string]*ValidationRule
	byTable  map[string][]*ValidationRule // key: connection+"\x00"+table
	degraded bool
}

// CustomValidator is a caller-registered predicate for RuleCustom
// rules, looked up by the rule's Parameters["validator"] name.
type CustomValidator func(value any, params map[string]any) (bool, string)

func newValidationEngine(mgr *Manager, cfg ValidationConfig) *ValidationEngine {
	connID := cfg.ConnectionName
	if connID == "" || !mgr.HasConnection(connID) {
		connID = "default"
	}
	ve := &ValidationEngine{
		mgr: mgr, cfg: cfg, connID: connID,
		rules: make(map[string]*ValidationRule), byTable: make(map[string][]*ValidationRule),
	}
	if !cfg.Enabled {
		ve.degraded = true
		return ve
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ve.ensureTables(ctx); err != nil {
		mgr.logger.Warn("validation engine initialization failed; feature degraded", "error", err)
		ve.degraded = true
		return ve
	}
	if err := ve.loadRules(ctx); err != nil {
		mgr.logger.Warn("failed to load existing validation rules", "error", err)
	}
	return ve
}

func (ve *ValidationEngine) ensureTables(ctx context.Context) error {
	stmts := managementTableDDL[5:7] // db_validation_rules, db_validation_results
	err := <-ve.mgr.AsyncSession(ctx, ve.connID, func(s *Session) error {
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
		if rawErr := ve.mgr.Execute(ctx, ve.connID, stmt); rawErr != nil {
			return rawErr
		}
	}
	return nil
}

func (ve *ValidationEngine) loadRules(ctx context.Context) error {
	var rows []map[string]any
	err := ve.mgr.Session(ctx, ve.connID, func(s *Session) error {
		r, err := s.QueryAll(ctx, `SELECT id, connection_id, table_name, field_name, rule_type, parameters, enabled FROM db_validation_rules`)
		rows = r
		return err
	})
	if err != nil {
		return err
	}
	for _, row := range rows {
		enabled, _ := row["enabled"].(bool)
		var params map[string]any
		if raw, ok := row["parameters"].(string); ok && raw != "" {
			_ = json.Unmarshal([]byte(raw), &params)
		}
		rule := &ValidationRule{
			ID: fmt.Sprint(row["id"]), ConnectionName: fmt.Sprint(row["connection_id"]),
			TableName: fmt.Sprint(row["table_name"]), FieldName: fmt.Sprint(row["field_name"]),
			RuleType: ValidationRuleType(fmt.Sprint(row["rule_type"])), Parameters: params, Enabled: enabled,
		}
		ve.index(rule)
	}
	return nil
}

func (ve *ValidationEngine) index(rule *ValidationRule) {
	ve.mu.Lock()
	defer ve.mu.Unlock()
	ve.rules[rule.ID] = rule
	key := mappingCacheKey(rule.ConnectionName, rule.TableName)
	ve.byTable[key] = append(ve.byTable[key], rule)
}

// requiredRuleParams lists, for rule types with a fixed parameter name,
// the parameters a rule must carry, validated at CreateRule time so a
// malformed rule never reaches evaluation. range/length instead require
// "at least one of" a pair of bound parameters and are checked
// separately below.
var requiredRuleParams = map[ValidationRuleType][]string{
	RuleRange:       nil,
	RulePattern:     {"pattern"},
	RuleNotNull:     nil,
	RuleLength:      nil,
	RuleEnumeration: {"allowed_values"},
	RuleReference:   {"reference_values"},
	RuleUnique:      nil,
	RuleCustom:      {"validator"},
}

// requiredRuleParamPairs lists, for rule types needing at least one of a
// pair of bound parameters, the two acceptable parameter names.
var requiredRuleParamPairs = map[ValidationRuleType][2]string{
	RuleRange:  {"min", "max"},
	RuleLength: {"min_length", "max_length"},
}

func validateRuleParams(ruleType ValidationRuleType, params map[string]any) error {
	required, known := requiredRuleParams[ruleType]
	if !known {
		return NewValidationError("unknown validation rule type", "rule_type", string(ruleType))
	}
	for _, key := range required {
		if _, ok := params[key]; !ok {
			return NewConfigurationError("validation rule missing required parameter", "rule_type", string(ruleType), "parameter", key)
		}
	}
	if pair, ok := requiredRuleParamPairs[ruleType]; ok {
		_, hasFirst := params[pair[0]]
		_, hasSecond := params[pair[1]]
		if !hasFirst && !hasSecond {
			return NewConfigurationError("validation rule requires at least one bound parameter",
				"rule_type", string(ruleType), "parameter", pair[0], "or", pair[1])
		}
	}
	if ruleType == RuleEnumeration || ruleType == RuleReference {
		key := "allowed_values"
		if ruleType == RuleReference {
			key = "reference_values"
		}
		if list, _ := params[key].([]any); len(list) == 0 {
			return NewConfigurationError("validation rule parameter must be non-empty", "rule_type", string(ruleType), "parameter", key)
		}
	}
	return nil
}

// CreateRule validates parameters for ruleType, persists the rule, and
// indexes it for evaluation.
func (ve *ValidationEngine) CreateRule(ctx context.Context, connection, table, field string, ruleType ValidationRuleType, params map[string]any, enabled bool) (*ValidationRule, error) {
	if ve.degraded {
		return nil, NewConfigurationError("validation engine is degraded")
	}
	if err := validateRuleParams(ruleType, params); err != nil {
		return nil, err
	}

	rule := &ValidationRule{
		ID: uuid.NewString(), ConnectionName: connection, TableName: table, FieldName: field,
		RuleType: ruleType, Parameters: params, Enabled: enabled, CreatedAt: time.Now(),
	}

	paramsJSON := encodeParams(params)
	err := ve.mgr.Session(ctx, ve.connID, func(s *Session) error {
		_, err := s.Exec(ctx, `INSERT INTO db_validation_rules (id, connection_id, table_name, field_name, rule_type, parameters, enabled, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rule.ID, connection, table, field, string(ruleType), paramsJSON, enabled, rule.CreatedAt)
		return err
	})
	if err != nil {
		return nil, NewDatabaseError("failed to create validation rule", err, "connection", connection, "table", table, "field", field)
	}
	ve.index(rule)
	return rule, nil
}

// DeleteRule removes a rule and its recorded results.
func (ve *ValidationEngine) DeleteRule(ctx context.Context, id string) error {
	ve.mu.Lock()
	rule, ok := ve.rules[id]
	if ok {
		delete(ve.rules, id)
		key := mappingCacheKey(rule.ConnectionName, rule.TableName)
		filtered := ve.byTable[key][:0]
		for _, r := range ve.byTable[key] {
			if r.ID != id {
				filtered = append(filtered, r)
			}
		}
		ve.byTable[key] = filtered
	}
	ve.mu.Unlock()
	if !ok {
		return NewConfigurationError("unknown validation rule", "id", id)
	}

	return ve.mgr.Session(ctx, ve.connID, func(s *Session) error {
		_, err := s.Exec(ctx, `DELETE FROM db_validation_rules WHERE id = ?`, id)
		return err
	})
}

// GetRulesForTable returns every rule registered against (connection, table).
func (ve *ValidationEngine) GetRulesForTable(connection, table string) []*ValidationRule {
	ve.mu.RLock()
	defer ve.mu.RUnlock()
	return append([]*ValidationRule(nil), ve.byTable[mappingCacheKey(connection, table)]...)
}

var customValidators = struct {
	mu sync.RWMutex
	m  map[string]CustomValidator
}{m: make(map[string]CustomValidator)}

// RegisterCustomValidator makes a CustomValidator available to
// RuleCustom rules under the given name.
func RegisterCustomValidator(name string, fn CustomValidator) {
	customValidators.mu.Lock()
	defer customValidators.mu.Unlock()
	customValidators.m[name] = fn
}

// ValidateRecord evaluates every enabled rule for (connection, table)
// against one record, recording each result.
func (ve *ValidationEngine) ValidateRecord(ctx context.Context, connection, table, recordKey string, record map[string]any) ([]ValidationResult, error) {
	rules := ve.GetRulesForTable(connection, table)
	results := make([]ValidationResult, 0, len(rules))
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		passed, msg := ve.evaluate(ctx, rule, connection, table, record)
		result := ValidationResult{
			RuleID: rule.ID, RecordKey: recordKey, FieldName: rule.FieldName,
			Passed: passed, Message: msg, EvaluatedAt: time.Now(),
		}
		results = append(results, result)
		if err := ve.recordResult(ctx, result); err != nil {
			ve.mgr.logger.Warn("failed to persist validation result", "rule", rule.ID, "error", err)
		}
	}
	return results, nil
}

// ValidateAllRules runs ValidateRecord over every row in records,
// keyed by recordKeyField (falls back to the row's index if the field
// is absent), matching validate_all_rules' batch entry point.
func (ve *ValidationEngine) ValidateAllRules(ctx context.Context, connection, table, recordKeyField string, records []map[string]any) ([]ValidationResult, error) {
	var all []ValidationResult
	for i, record := range records {
		key := fmt.Sprint(i)
		if recordKeyField != "" {
			if v, ok := record[recordKeyField]; ok {
				key = fmt.Sprint(v)
			}
		}
		results, err := ve.ValidateRecord(ctx, connection, table, key, record)
		if err != nil {
			return nil, err
		}
		all = append(all, results...)
	}
	return all, nil
}

func (ve *ValidationEngine) recordResult(ctx context.Context, result ValidationResult) error {
	return ve.mgr.Session(ctx, ve.connID, func(s *Session) error {
		_, err := s.Exec(ctx, `INSERT INTO db_validation_results (id, rule_id, record_key, field_name, passed, message, evaluated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), result.RuleID, result.RecordKey, result.FieldName, result.Passed, result.Message, result.EvaluatedAt)
		return err
	})
}

func (ve *ValidationEngine) evaluate(ctx context.Context, rule *ValidationRule, connection, table string, record map[string]any) (bool, string) {
	value := record[rule.FieldName]
	switch rule.RuleType {
	case RuleNotNull:
		return evalNotNull(value)
	case RuleRange:
		return evalRange(value, rule.Parameters)
	case RulePattern:
		return evalPattern(value, rule.Parameters)
	case RuleLength:
		return evalLength(value, rule.Parameters)
	case RuleEnumeration:
		return evalEnumeration(value, rule.Parameters)
	case RuleReference:
		return evalReference(value, rule.Parameters)
	case RuleUnique:
		return ve.evalUnique(ctx, connection, table, rule.FieldName, value)
	case RuleCustom:
		return evalCustom(value, rule.Parameters)
	default:
		return false, "unknown rule type"
	}
}

func evalNotNull(value any) (bool, string) {
	if value == nil {
		return false, "value is null"
	}
	if s, ok := value.(string); ok && s == "" {
		return false, "value is empty"
	}
	return true, ""
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func evalRange(value any, params map[string]any) (bool, string) {
	n, ok := toFloat(value)
	if !ok {
		return false, "value is not numeric"
	}
	if min, hasMin := params["min"]; hasMin {
		if m, _ := toFloat(min); n < m {
			return false, fmt.Sprintf("value %v below minimum %v", n, m)
		}
	}
	if max, hasMax := params["max"]; hasMax {
		if m, _ := toFloat(max); n > m {
			return false, fmt.Sprintf("value %v above maximum %v", n, m)
		}
	}
	return true, ""
}

func evalPattern(value any, params map[string]any) (bool, string) {
	s := fmt.Sprint(value)
	pattern, _ := params["pattern"].(string)
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, "invalid pattern parameter"
	}
	if !re.MatchString(s) {
		return false, "value does not match pattern"
	}
	return true, ""
}

func evalLength(value any, params map[string]any) (bool, string) {
	s := fmt.Sprint(value)
	n := float64(len(s))
	if min, hasMin := params["min_length"]; hasMin {
		if m, _ := toFloat(min); n < m {
			return false, fmt.Sprintf("length %d below minimum %v", len(s), m)
		}
	}
	if max, hasMax := params["max_length"]; hasMax {
		if m, _ := toFloat(max); n > m {
			return false, fmt.Sprintf("length %d above maximum %v", len(s), m)
		}
	}
	return true, ""
}

func evalEnumeration(value any, params map[string]any) (bool, string) {
	if stringMembership(value, params, "allowed_values") {
		return true, ""
	}
	return false, "value not in allowed set"
}

// evalReference checks that the stringified value appears in the
// rule's static reference_values list — a membership check identical
// in shape to enumeration, not a live cross-table lookup.
func evalReference(value any, params map[string]any) (bool, string) {
	if stringMembership(value, params, "reference_values") {
		return true, ""
	}
	return false, "value not found in reference_values"
}

// stringMembership reports whether value's string form appears among
// the stringified entries of params[key].
func stringMembership(value any, params map[string]any, key string) bool {
	allowed, _ := params[key].([]any)
	s := fmt.Sprint(value)
	for _, a := range allowed {
		if fmt.Sprint(a) == s {
			return true
		}
	}
	return false
}

// evalUnique checks that no other row of (connection, table) carries
// the same value for this field, computing the frequency fresh on
// every call rather than maintaining a cached count, so freshly
// deleted rows are reflected immediately.
func (ve *ValidationEngine) evalUnique(ctx context.Context, connection, table, field string, value any) (bool, string) {
	result, err := ve.mgr.ExecuteQuery(ctx, connection, fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", field, table, field), 0, false, value)
	if err != nil {
		return false, "uniqueness lookup failed: " + err.Error()
	}
	if result.RowCount > 1 {
		return false, "value is not unique"
	}
	return true, ""
}

func evalCustom(value any, params map[string]any) (bool, string) {
	name, _ := params["validator"].(string)
	customValidators.mu.RLock()
	fn, ok := customValidators.m[name]
	customValidators.mu.RUnlock()
	if !ok {
		return false, "unregistered custom validator: " + name
	}
	return fn(value, params)
}

func encodeParams(params map[string]any) string {
	b, err := json.Marshal(params)
	if err != nil {
		return "{}"
	}
	return string(b)
}
