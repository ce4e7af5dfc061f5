package export

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/medex/medex/internal/domain/annotation"
	"github.com/medex/medex/internal/domain/result"
	"github.com/medex/medex/internal/domain/summary"
)

func TestFilename(t *testing.T) {
	date := time.Date(2025, time.March, 7, 15, 4, 5, 0, time.UTC)
	if got := Filename(result.KindFlat, date); got != "medical-entities-2025-03-07.json" {
		t.Errorf("flat filename = %q", got)
	}
	if got := Filename(result.KindNested, date); got != "uscdi-data-2025-03-07.json" {
		t.Errorf("nested filename = %q", got)
	}
}

func TestMarshal_PrettyPrintsPayloadAsReceived(t *testing.T) {
	payload := json.RawMessage(`{"disorders":[{"text":"hypertension","cui":"C0020538"}]}`)
	res, err := result.ParsePayload(result.KindFlat, payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out, err := Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var roundTripped, original interface{}
	if err := json.Unmarshal(out, &roundTripped); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if err := json.Unmarshal(payload, &original); err != nil {
		t.Fatalf("unmarshal original: %v", err)
	}
	if !reflect.DeepEqual(roundTripped, original) {
		t.Errorf("export differs from received payload:\n%s", out)
	}
}

func TestMarshal_NoResult(t *testing.T) {
	if _, err := Marshal(nil); err == nil {
		t.Error("expected error for nil result")
	}
}

func TestRoundTrip_FlatAggregateEqual(t *testing.T) {
	payload := json.RawMessage(`{
		"disorders":[{"text":"hypertension","cui":"C0020538"}],
		"signs_symptoms":[{"text":"chest pain","context":"on exertion"}],
		"medications":[{"text":"lisinopril","value":"20mg"}]
	}`)
	res, err := result.ParsePayload(result.KindFlat, payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	exported, err := Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	imported, err := Import(result.KindFlat, exported)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !reflect.DeepEqual(summary.Aggregate(res), summary.Aggregate(imported)) {
		t.Error("flat aggregate differs after round trip")
	}
}

func TestRoundTrip_NestedAggregateAndSegmentsEqual(t *testing.T) {
	payload := json.RawMessage(`{
		"problems":[{"name":"Hypertension","umls_cui":"C0020538"}],
		"medications":[{"name":"lisinopril"}],
		"_metadata":{"uscdi_version":"v6"}
	}`)
	source := "Hypertension treated with lisinopril 20mg daily."

	res, err := result.ParsePayload(result.KindNested, payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	exported, err := Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	imported, err := Import(result.KindNested, exported)
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	if !reflect.DeepEqual(summary.Aggregate(res), summary.Aggregate(imported)) {
		t.Error("nested aggregate differs after round trip")
	}
	if !reflect.DeepEqual(annotation.Annotate(res, source), annotation.Annotate(imported, source)) {
		t.Error("segment sequence differs after round trip")
	}
}
