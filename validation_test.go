package qorzendb

import "testing"

func TestValidateRuleParams(t *testing.T) {
	if err := validateRuleParams(RuleRange, map[string]any{"min": 0, "max": 10}); err != nil {
		t.Errorf("expected valid range params to pass, got %v", err)
	}
	if err := validateRuleParams(RuleRange, map[string]any{"min": 0}); err != nil {
		t.Errorf("expected at least one of min/max to be sufficient, got %v", err)
	}
	if err := validateRuleParams(RuleRange, map[string]any{}); err == nil {
		t.Error("expected range with neither min nor max to be rejected")
	}
	if err := validateRuleParams(RuleLength, map[string]any{"min_length": 2}); err != nil {
		t.Errorf("expected at least one of min_length/max_length to be sufficient, got %v", err)
	}
	if err := validateRuleParams(RuleEnumeration, map[string]any{"allowed_values": []any{"red"}}); err != nil {
		t.Errorf("expected non-empty allowed_values to pass, got %v", err)
	}
	if err := validateRuleParams(RuleEnumeration, map[string]any{"allowed_values": []any{}}); err == nil {
		t.Error("expected empty allowed_values to be rejected")
	}
	if err := validateRuleParams(RuleReference, map[string]any{"reference_values": []any{"A"}}); err != nil {
		t.Errorf("expected non-empty reference_values to pass, got %v", err)
	}
	if err := validateRuleParams(RuleNotNull, nil); err != nil {
		t.Errorf("not_null rule requires no parameters, got error %v", err)
	}
	if err := validateRuleParams("bogus", nil); err == nil {
		t.Error("expected unknown rule type to be rejected")
	}
}

func TestEvalNotNull(t *testing.T) {
	if ok, _ := evalNotNull(nil); ok {
		t.Error("nil value should fail not_null")
	}
	if ok, _ := evalNotNull(""); ok {
		t.Error("empty string should fail not_null")
	}
	if ok, _ := evalNotNull("x"); !ok {
		t.Error("non-empty value should pass not_null")
	}
}

func TestEvalRange(t *testing.T) {
	params := map[string]any{"min": 0.0, "max": 10.0}
	if ok, _ := evalRange(5, params); !ok {
		t.Error("5 should be within [0, 10]")
	}
	if ok, _ := evalRange(15, params); ok {
		t.Error("15 should be outside [0, 10]")
	}
	if ok, _ := evalRange("not a number", params); ok {
		t.Error("non-numeric value should fail range validation")
	}
}

func TestEvalPattern(t *testing.T) {
	params := map[string]any{"pattern": `^\d{5}$`}
	if ok, _ := evalPattern("12345", params); !ok {
		t.Error("12345 should match the pattern")
	}
	if ok, _ := evalPattern("abc", params); ok {
		t.Error("abc should not match the pattern")
	}
}

func TestEvalLength(t *testing.T) {
	params := map[string]any{"min_length": 2.0, "max_length": 5.0}
	if ok, _ := evalLength("abc", params); !ok {
		t.Error("length 3 should be within [2, 5]")
	}
	if ok, _ := evalLength("a", params); ok {
		t.Error("length 1 should be outside [2, 5]")
	}
}

func TestEvalEnumeration(t *testing.T) {
	params := map[string]any{"allowed_values": []any{"red", "green", "blue"}}
	if ok, _ := evalEnumeration("green", params); !ok {
		t.Error("green should be an allowed value")
	}
	if ok, _ := evalEnumeration("purple", params); ok {
		t.Error("purple should not be an allowed value")
	}
}

func TestEvalReference(t *testing.T) {
	params := map[string]any{"reference_values": []any{1, 2, 3}}
	if ok, _ := evalReference(2, params); !ok {
		t.Error("2 should be found in reference_values")
	}
	if ok, msg := evalReference(99, params); ok || msg == "" {
		t.Error("99 should not be found in reference_values, and should report a message")
	}
}

func TestEvalCustom_UnregisteredValidator(t *testing.T) {
	if ok, msg := evalCustom("x", map[string]any{"validator": "does-not-exist"}); ok || msg == "" {
		t.Error("expected an unregistered custom validator to fail with a message")
	}
}

func TestRegisterCustomValidator(t *testing.T) {
	RegisterCustomValidator("always-true", func(value any, params map[string]any) (bool, string) {
		return true, ""
	})
	if ok, _ := evalCustom("anything", map[string]any{"validator": "always-true"}); !ok {
		t.Error("expected registered custom validator to be invoked and pass")
	}
}

func TestGetRulesForTable(t *testing.T) {
	ve := &ValidationEngine{byTable: map[string][]*ValidationRule{
		mappingCacheKey("default", "widgets"): {{ID: "1", FieldName: "qty"}},
	}}
	rules := ve.GetRulesForTable("default", "widgets")
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}
	if rules[0].FieldName != "qty" {
		t.Errorf("unexpected rule field name %q", rules[0].FieldName)
	}
	if len(ve.GetRulesForTable("default", "other")) != 0 {
		t.Error("expected no rules for an unregistered table")
	}
}
