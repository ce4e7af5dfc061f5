package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medex/medex/internal/domain/annotation"
	"github.com/medex/medex/internal/domain/result"
	"github.com/medex/medex/internal/platform/llm"
	"github.com/medex/medex/internal/platform/telemetry"
)

// ErrEmptyNote is returned when the clinical note is missing or blank.
var ErrEmptyNote = errors.New("medical note text is required and cannot be empty")

// ErrUnknownDataClass is returned for single-class extraction of a class
// that is not part of the nested schema.
var ErrUnknownDataClass = errors.New("invalid data class")

// ErrUnknownModel is returned when a request names a model that is not in
// the offered model list.
var ErrUnknownModel = errors.New("unknown model")

// clinicalClasses are the nested-schema classes whose items get concept
// identifier enrichment.
var clinicalClasses = []string{
	"problems", "medications", "allergies_and_intolerances",
	"procedures", "laboratory", "vital_signs", "diagnostic_imaging",
	"immunizations", "clinical_tests", "family_health_history",
}

type Service struct {
	llm       llm.Client
	repo      RunRepository
	sessions  *SessionStore
	metrics   *telemetry.Provider
	logger    zerolog.Logger
	model     string // default model
	enrichCUI bool
}

func NewService(client llm.Client, repo RunRepository, sessions *SessionStore, metrics *telemetry.Provider, logger zerolog.Logger, defaultModel string) *Service {
	if !IsKnownModel(defaultModel) {
		defaultModel = "gemini-2.5-flash"
	}
	return &Service{
		llm:       client,
		repo:      repo,
		sessions:  sessions,
		metrics:   metrics,
		logger:    logger,
		model:     defaultModel,
		enrichCUI: true,
	}
}

// SetCUIEnrichment toggles per-item concept identifier lookups during
// nested extraction. Mainly for tests, where the extra calls are noise.
func (s *Service) SetCUIEnrichment(on bool) { s.enrichCUI = on }

// DefaultModel returns the model used when a request names none.
func (s *Service) DefaultModel() string { return s.model }

// resolveModel falls back to the default for an empty request and rejects
// model ids that are not offered on the models endpoint.
func (s *Service) resolveModel(model string) (string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return s.model, nil
	}
	if !IsKnownModel(model) {
		return "", fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
	return model, nil
}

// ExtractFlat runs the ten-category entity extraction on the note, persists
// the run, and replaces the user's session.
func (s *Service) ExtractFlat(ctx context.Context, userID uuid.UUID, note, model string) (*Run, *result.Result, error) {
	if strings.TrimSpace(note) == "" {
		return nil, nil, ErrEmptyNote
	}
	model, err := s.resolveModel(model)
	if err != nil {
		return nil, nil, err
	}

	raw, err := s.llm.GenerateJSON(ctx, model, flatSystemPrompt, flatUserPrompt(note))
	if err != nil {
		s.countError("flat")
		return nil, nil, fmt.Errorf("extract entities: %w", err)
	}

	res, err := result.ParsePayload(result.KindFlat, raw)
	if err != nil {
		s.countError("flat")
		return nil, nil, fmt.Errorf("parse extraction payload: %w", err)
	}

	total := 0
	for _, records := range res.Flat {
		total += len(records)
	}

	run := &Run{
		UserID:      userID,
		Kind:        string(result.KindFlat),
		Model:       model,
		NoteChars:   len(note),
		EntityCount: total,
		Payload:     res.Payload(),
	}
	if err := s.repo.Create(ctx, run); err != nil {
		return nil, nil, fmt.Errorf("store extraction run: %w", err)
	}

	s.sessions.Replace(userID.String(), res, note)
	if s.metrics != nil {
		s.metrics.ExtractionCounter(string(result.KindFlat), model)
	}
	return run, res, nil
}

// ExtractUSCDI runs the nested extraction: the data classes go out in
// parallel group calls, the responses are combined in group order, clinical
// items are enriched with concept identifiers, and a metadata block is
// appended. The run is persisted and the user's session replaced.
func (s *Service) ExtractUSCDI(ctx context.Context, userID uuid.UUID, note, model string) (*Run, *result.Result, error) {
	if strings.TrimSpace(note) == "" {
		return nil, nil, ErrEmptyNote
	}
	model, err := s.resolveModel(model)
	if err != nil {
		return nil, nil, err
	}

	groupRaws := make([]json.RawMessage, len(dataClassGroups))
	groupErrs := make([]error, len(dataClassGroups))

	var wg sync.WaitGroup
	for i, group := range dataClassGroups {
		wg.Add(1)
		go func(i int, group []string) {
			defer wg.Done()
			raw, err := s.llm.GenerateJSON(ctx, model, groupSystemPrompt(group), groupUserPrompt(group, note))
			if err != nil {
				groupErrs[i] = err
				return
			}
			groupRaws[i] = raw
		}(i, group)
	}
	wg.Wait()

	combined := newOrderedObject()
	failures := 0
	for i, raw := range groupRaws {
		if groupErrs[i] != nil {
			failures++
			s.logger.Warn().Err(groupErrs[i]).
				Strs("classes", dataClassGroups[i]).
				Msg("data class group extraction failed")
			continue
		}
		pairs, err := decodeOrderedObject(raw)
		if err != nil {
			failures++
			s.logger.Warn().Err(err).
				Strs("classes", dataClassGroups[i]).
				Msg("data class group returned malformed JSON")
			continue
		}
		for _, kv := range pairs {
			combined.set(normalizeKey(kv.key), kv.value)
		}
	}
	if failures == len(dataClassGroups) {
		s.countError("nested")
		return nil, nil, fmt.Errorf("extract clinical data: all %d group calls failed", failures)
	}

	if s.enrichCUI {
		s.enrichWithConceptIDs(ctx, combined, model)
	}

	classKeys := make([]string, 0, len(combined.pairs))
	for _, kv := range combined.pairs {
		if !strings.HasPrefix(kv.key, "_") {
			classKeys = append(classKeys, kv.key)
		}
	}
	meta, err := json.Marshal(map[string]interface{}{
		"uscdi_version":          uscdiVersion,
		"extraction_model":       model,
		"extraction_method":      "parallel",
		"umls_enrichment":        s.enrichCUI,
		"data_classes_extracted": classKeys,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("marshal metadata: %w", err)
	}
	combined.set("_metadata", meta)

	payload := combined.marshal()
	res, err := result.ParsePayload(result.KindNested, payload)
	if err != nil {
		s.countError("nested")
		return nil, nil, fmt.Errorf("parse extraction payload: %w", err)
	}

	run := &Run{
		UserID:      userID,
		Kind:        string(result.KindNested),
		Model:       model,
		NoteChars:   len(note),
		EntityCount: len(classKeys),
		Payload:     res.Payload(),
	}
	if err := s.repo.Create(ctx, run); err != nil {
		return nil, nil, fmt.Errorf("store extraction run: %w", err)
	}

	s.sessions.Replace(userID.String(), res, note)
	if s.metrics != nil {
		s.metrics.ExtractionCounter(string(result.KindNested), model)
	}
	return run, res, nil
}

// ExtractClass extracts a single nested-schema data class. The result is
// returned directly and not stored.
func (s *Service) ExtractClass(ctx context.Context, note, class, model string) (json.RawMessage, error) {
	if strings.TrimSpace(note) == "" {
		return nil, ErrEmptyNote
	}
	if _, ok := dataClassDescriptions[class]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDataClass, class)
	}
	model, err := s.resolveModel(model)
	if err != nil {
		return nil, err
	}

	raw, err := s.llm.GenerateJSON(ctx, model, classSystemPrompt(class), classUserPrompt(class, note))
	if err != nil {
		return nil, fmt.Errorf("extract data class %s: %w", class, err)
	}
	return raw, nil
}

// GetRun returns one stored extraction for the user.
func (s *Service) GetRun(ctx context.Context, userID, id uuid.UUID) (*Run, error) {
	run, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	// Reloading a stored run makes it the active session result again. The
	// note text itself is not persisted, so the restored session has no
	// source text and annotation shows the placeholder until a new note is
	// extracted.
	if res, perr := result.ParsePayload(result.Kind(run.Kind), run.Payload); perr == nil {
		s.sessions.Replace(userID.String(), res, "")
	}
	return run, nil
}

// ListRuns returns the user's stored extractions, newest first.
func (s *Service) ListRuns(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Run, int, error) {
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

// Sessions exposes the session store for the annotate, summary, and export
// handlers.
func (s *Service) Sessions() *SessionStore { return s.sessions }

func (s *Service) countError(kind string) {
	if s.metrics != nil {
		s.metrics.ExtractionErrorCounter(kind)
	}
}

// enrichWithConceptIDs adds a umls_cui field to clinical items that resolve
// to a term. Lookups run one call per item; failures leave the item as is.
func (s *Service) enrichWithConceptIDs(ctx context.Context, obj *orderedObject, model string) {
	for _, class := range clinicalClasses {
		idx, ok := obj.index[class]
		if !ok {
			continue
		}
		value := obj.pairs[idx].value

		switch {
		case len(value) > 0 && value[0] == '[':
			var items []json.RawMessage
			if err := json.Unmarshal(value, &items); err != nil {
				continue
			}
			for i, item := range items {
				items[i] = s.enrichItem(ctx, item, class, model)
			}
			rebuilt, err := json.Marshal(items)
			if err != nil {
				continue
			}
			obj.pairs[idx].value = rebuilt
		case len(value) > 0 && value[0] == '{':
			obj.pairs[idx].value = s.enrichItem(ctx, value, class, model)
		}
	}
}

func (s *Service) enrichItem(ctx context.Context, item json.RawMessage, class, model string) json.RawMessage {
	rec := result.NewRecord(item)
	if !rec.IsObject() {
		return item
	}
	if _, ok := rec.String("umls_cui"); ok {
		return item
	}

	term, field := annotation.ResolveMentionField(rec, class)
	if term == "" {
		return item
	}

	raw, err := s.llm.GenerateJSON(ctx, model, cuiSystemPrompt, cuiUserPrompt(term, class))
	if err != nil {
		s.logger.Debug().Err(err).Str("term", term).Msg("concept id lookup failed")
		return item
	}

	var parsed struct {
		CUI *string `json:"cui"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil || parsed.CUI == nil || *parsed.CUI == "" || *parsed.CUI == "null" {
		return item
	}

	cui, _ := json.Marshal(*parsed.CUI)
	mappedFrom, _ := json.Marshal(field)
	pairs := make([]kvPair, 0, len(rec.Fields())+2)
	for _, f := range rec.Fields() {
		pairs = append(pairs, kvPair{key: f.Key, value: f.Value})
	}
	pairs = append(pairs,
		kvPair{key: "umls_cui", value: cui},
		kvPair{key: "_cui_mapped_from", value: mappedFrom},
	)
	return marshalObject(pairs)
}

// -- ordered JSON object helpers --

type kvPair struct {
	key   string
	value json.RawMessage
}

// orderedObject is a JSON object that remembers insertion order. Setting an
// existing key replaces the value in place.
type orderedObject struct {
	pairs []kvPair
	index map[string]int
}

func newOrderedObject() *orderedObject {
	return &orderedObject{index: make(map[string]int)}
}

func (o *orderedObject) set(key string, value json.RawMessage) {
	if i, ok := o.index[key]; ok {
		o.pairs[i].value = value
		return
	}
	o.index[key] = len(o.pairs)
	o.pairs = append(o.pairs, kvPair{key: key, value: value})
}

func (o *orderedObject) marshal() json.RawMessage {
	return marshalObject(o.pairs)
}

func marshalObject(pairs []kvPair) json.RawMessage {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range pairs {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(kv.key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(kv.value)
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// decodeOrderedObject reads a JSON object's top-level keys and raw values in
// document order.
func decodeOrderedObject(raw json.RawMessage) ([]kvPair, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected JSON object, got %v", tok)
	}

	var pairs []kvPair
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", keyTok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		pairs = append(pairs, kvPair{key: key, value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return pairs, nil
}
