package result

import (
	"encoding/json"
	"testing"
)

func TestParseResponse_FlatDetection(t *testing.T) {
	raw := []byte(`{"success":true,"entities":{"disorders":[{"text":"hypertension","cui":"C0020538"}]},"total_entities":1}`)
	res, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Kind != KindFlat {
		t.Errorf("expected flat kind, got %q", res.Kind)
	}
	recs := res.Flat["disorders"]
	if len(recs) != 1 {
		t.Fatalf("expected 1 disorder record, got %d", len(recs))
	}
	if text, ok := recs[0].String("text"); !ok || text != "hypertension" {
		t.Errorf("expected text=hypertension, got %q (ok=%v)", text, ok)
	}
}

func TestParseResponse_NestedDetection(t *testing.T) {
	raw := []byte(`{"success":true,"uscdi_data":{"problems":[{"name":"Hypertension"}],"_metadata":{"uscdi_version":"v6"}}}`)
	res, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Kind != KindNested {
		t.Errorf("expected nested kind, got %q", res.Kind)
	}
	if len(res.Classes) != 2 {
		t.Fatalf("expected 2 class entries, got %d", len(res.Classes))
	}
	if res.Classes[0].Key != "problems" || res.Classes[1].Key != "_metadata" {
		t.Errorf("document key order not preserved: %q, %q", res.Classes[0].Key, res.Classes[1].Key)
	}
	if !res.Classes[1].Internal() {
		t.Error("_metadata should be internal")
	}
}

func TestParseResponse_FailureEnvelope(t *testing.T) {
	cases := []string{
		`{"success":false,"error":"model unavailable"}`,
		`{"success":true}`,
		`not json`,
	}
	for _, c := range cases {
		if _, err := ParseResponse([]byte(c)); err == nil {
			t.Errorf("expected error for %q", c)
		}
	}
}

func TestParsePayload_NestedKeyOrder(t *testing.T) {
	raw := json.RawMessage(`{"vital_signs":[{"name":"BP"}],"problems":[{"name":"CHF"}],"medications":[{"name":"lisinopril"}]}`)
	res, err := ParsePayload(KindNested, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"vital_signs", "problems", "medications"}
	if len(res.Classes) != len(want) {
		t.Fatalf("expected %d classes, got %d", len(want), len(res.Classes))
	}
	for i, w := range want {
		if res.Classes[i].Key != w {
			t.Errorf("class %d: expected %q, got %q", i, w, res.Classes[i].Key)
		}
	}
}

func TestParsePayload_NestedSingleObjectAndEmpties(t *testing.T) {
	raw := json.RawMessage(`{"patient_demographics":{"name":"John Doe"},"orders":[],"care_plan":{},"clinical_notes":null,"laboratory":"  "}`)
	res, err := ParsePayload(KindNested, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	byKey := map[string]ClassEntry{}
	for _, e := range res.Classes {
		byKey[e.Key] = e
	}
	if e := byKey["patient_demographics"]; e.Empty() || e.IsArray || len(e.Records) != 1 {
		t.Errorf("single object entry mishandled: %+v", e)
	}
	for _, key := range []string{"orders", "care_plan", "clinical_notes", "laboratory"} {
		if !byKey[key].Empty() {
			t.Errorf("expected %q to be empty", key)
		}
	}
}

func TestRecord_StringSkipsWrongTypes(t *testing.T) {
	rec := NewRecord(json.RawMessage(`{"text":42,"value":"120/80","nested":{"a":1}}`))
	if _, ok := rec.String("text"); ok {
		t.Error("numeric field should not resolve as string")
	}
	if _, ok := rec.String("nested"); ok {
		t.Error("object field should not resolve as string")
	}
	if v, ok := rec.String("value"); !ok || v != "120/80" {
		t.Errorf("expected value=120/80, got %q (ok=%v)", v, ok)
	}
}

func TestRecord_FieldOrder(t *testing.T) {
	rec := NewRecord(json.RawMessage(`{"zeta":"z","alpha":"a","mid":"m"}`))
	want := []string{"zeta", "alpha", "mid"}
	fields := rec.Fields()
	if len(fields) != len(want) {
		t.Fatalf("expected %d fields, got %d", len(want), len(fields))
	}
	for i, w := range want {
		if fields[i].Key != w {
			t.Errorf("field %d: expected %q, got %q", i, w, fields[i].Key)
		}
	}
}

func TestRecord_NonObject(t *testing.T) {
	rec := NewRecord(json.RawMessage(`"aspirin 81mg"`))
	if rec.IsObject() {
		t.Error("scalar should not be an object")
	}
	if len(rec.Fields()) != 0 {
		t.Error("scalar should have no fields")
	}
}

func TestSynthesizeDisplay(t *testing.T) {
	cases := map[string]string{
		"family_health_history": "Family Health History",
		"unknown_key":           "Unknown Key",
		"single":                "Single",
	}
	for in, want := range cases {
		if got := SynthesizeDisplay(in); got != want {
			t.Errorf("SynthesizeDisplay(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRegistries(t *testing.T) {
	if len(FlatCategories) != 10 {
		t.Errorf("expected 10 flat categories, got %d", len(FlatCategories))
	}
	if len(NestedClasses) != 22 {
		t.Errorf("expected 22 nested classes, got %d", len(NestedClasses))
	}
	if _, ok := LookupFlat("signs_symptoms"); !ok {
		t.Error("signs_symptoms missing from flat registry")
	}
	if _, ok := LookupNested("problems"); !ok {
		t.Error("problems missing from nested registry")
	}
	if _, ok := LookupNested("no_such_class"); ok {
		t.Error("unexpected registry hit for unknown class")
	}
}
