package summary

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/medex/medex/internal/domain/result"
)

func flatResult(t *testing.T, payload string) *result.Result {
	t.Helper()
	res, err := result.ParsePayload(result.KindFlat, json.RawMessage(payload))
	if err != nil {
		t.Fatalf("parse flat payload: %v", err)
	}
	return res
}

func nestedResult(t *testing.T, payload string) *result.Result {
	t.Helper()
	res, err := result.ParsePayload(result.KindNested, json.RawMessage(payload))
	if err != nil {
		t.Fatalf("parse nested payload: %v", err)
	}
	return res
}

func TestAggregate_FlatRegistryOrder(t *testing.T) {
	res := flatResult(t, `{
		"medications":[{"text":"lisinopril","cui":"C0065374"}],
		"disorders":[{"text":"hypertension"},{"text":"diabetes"}],
		"not_in_registry":[{"text":"ignored"}]
	}`)
	groups := Aggregate(res)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].Key != "disorders" || groups[1].Key != "medications" {
		t.Errorf("registry order not respected: %q, %q", groups[0].Key, groups[1].Key)
	}
	if groups[0].Count != 2 {
		t.Errorf("disorders count = %d, want 2", groups[0].Count)
	}
	if groups[0].Display != "Disorders/Diseases" || groups[0].Icon == "" {
		t.Errorf("registry metadata missing: %+v", groups[0])
	}
}

func TestAggregate_FlatLabeledLines(t *testing.T) {
	res := flatResult(t, `{
		"lab_results":[{"text":"glucose","value":"180 mg/dL","context":"fasting glucose elevated"}]
	}`)
	groups := Aggregate(res)
	if len(groups) != 1 || len(groups[0].Blocks) != 1 {
		t.Fatalf("unexpected shape: %+v", groups)
	}
	lines := groups[0].Blocks[0].Lines
	want := []Line{
		{Label: "Text", Value: "glucose"},
		{Label: "Value", Value: "180 mg/dL"},
		{Label: "Context", Value: "fasting glucose elevated"},
	}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d: %+v", len(want), len(lines), lines)
	}
	for i, w := range want {
		if lines[i] != w {
			t.Errorf("line %d = %+v, want %+v", i, lines[i], w)
		}
	}
}

func TestAggregate_FlatEscapesValues(t *testing.T) {
	res := flatResult(t, `{
		"disorders":[{"text":"<b>bold disease</b>","context":"a & b"}]
	}`)
	groups := Aggregate(res)
	for _, line := range groups[0].Blocks[0].Lines {
		if strings.ContainsAny(line.Value, "<>") {
			t.Errorf("unescaped value %q", line.Value)
		}
	}
	if groups[0].Blocks[0].Lines[1].Value != "a &amp; b" {
		t.Errorf("ampersand not escaped: %q", groups[0].Blocks[0].Lines[1].Value)
	}
}

func TestAggregate_FlatMalformedRecordStillCounted(t *testing.T) {
	// A record whose fields are all wrong-typed renders no lines but still
	// appears in the count.
	res := flatResult(t, `{"lab_results":[{"text":42,"value":7}]}`)
	groups := Aggregate(res)
	if len(groups) != 1 || groups[0].Count != 1 {
		t.Fatalf("malformed record dropped from summary: %+v", groups)
	}
	if len(groups[0].Blocks[0].Lines) != 0 {
		t.Errorf("wrong-typed fields must be skipped: %+v", groups[0].Blocks[0])
	}
}

func TestAggregate_NestedDocumentOrder(t *testing.T) {
	res := nestedResult(t, `{
		"vital_signs":[{"name":"BP","value":"120/80"}],
		"problems":[{"name":"CHF"}]
	}`)
	groups := Aggregate(res)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].Key != "vital_signs" || groups[1].Key != "problems" {
		t.Errorf("document order not respected: %q, %q", groups[0].Key, groups[1].Key)
	}
}

func TestAggregate_NestedSkipsInternalAndEmpty(t *testing.T) {
	res := nestedResult(t, `{
		"_metadata":{"uscdi_version":"v6"},
		"orders":[],
		"care_plan":{},
		"clinical_notes":null,
		"problems":[{"name":"Asthma"}]
	}`)
	groups := Aggregate(res)
	if len(groups) != 1 || groups[0].Key != "problems" {
		t.Errorf("expected only problems, got %+v", groups)
	}
}

func TestAggregate_NestedUnknownKeySynthesized(t *testing.T) {
	res := nestedResult(t, `{"social_history_notes":[{"detail":"former smoker"}]}`)
	groups := Aggregate(res)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if groups[0].Display != "Social History Notes" {
		t.Errorf("display = %q", groups[0].Display)
	}
	if groups[0].Icon != result.DefaultIcon {
		t.Errorf("icon = %q, want default", groups[0].Icon)
	}
}

func TestAggregate_NestedDumpIndentedAndEscaped(t *testing.T) {
	res := nestedResult(t, `{"problems":[{"name":"<CHF>","severity":"moderate"}]}`)
	groups := Aggregate(res)
	d := groups[0].Blocks[0].Dump
	if !strings.Contains(d, "\n  ") {
		t.Errorf("dump not indented: %q", d)
	}
	if strings.Contains(d, "<CHF>") {
		t.Errorf("dump not escaped: %q", d)
	}
	if !strings.Contains(d, "&lt;CHF&gt;") {
		t.Errorf("expected escaped value in dump: %q", d)
	}
}

func TestAggregate_NestedSingleObjectOneBlock(t *testing.T) {
	res := nestedResult(t, `{"patient_demographics":{"name":"John Doe","age":54}}`)
	groups := Aggregate(res)
	if len(groups) != 1 || len(groups[0].Blocks) != 1 || groups[0].Count != 1 {
		t.Fatalf("bare object should yield a single block: %+v", groups)
	}
}

func TestAggregate_EmptyPayloads(t *testing.T) {
	if got := Aggregate(flatResult(t, `{}`)); len(got) != 0 {
		t.Errorf("empty flat payload: expected no groups, got %+v", got)
	}
	if got := Aggregate(nestedResult(t, `{"orders":[],"problems":null}`)); len(got) != 0 {
		t.Errorf("all-empty nested payload: expected no groups, got %+v", got)
	}
	if got := Aggregate(nil); got != nil {
		t.Errorf("nil result: expected nil, got %+v", got)
	}
}
