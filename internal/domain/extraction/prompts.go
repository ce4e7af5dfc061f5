package extraction

import (
	"fmt"
	"strings"
)

// flatSystemPrompt asks the model for the ten-category entity schema keyed
// by UMLS semantic types.
const flatSystemPrompt = `You are a medical entity extraction system trained to identify clinical entities based on UMLS (Unified Medical Language System) semantic types.

Extract ALL relevant medical entities from the clinical note and categorize them according to these UMLS semantic types:

1. **Disorders/Diseases**: Medical conditions, diagnoses, syndromes
2. **Signs and Symptoms**: Clinical findings, symptoms, vital signs
3. **Procedures**: Medical procedures, surgeries, therapeutic interventions
4. **Medications/Drugs**: Pharmaceuticals, drugs, medications
5. **Anatomy**: Body parts, organs, anatomical structures
6. **Laboratory Results**: Lab values, test results, measurements
7. **Medical Devices**: Equipment, devices, implants
8. **Organisms**: Bacteria, viruses, microorganisms
9. **Substances**: Chemical substances, biological substances
10. **Temporal Information**: Dates, durations, frequencies

Return your response as a valid JSON object with this structure:
{
  "disorders": [{"text": "entity text", "cui": "UMLS CUI if known", "context": "brief context"}],
  "signs_symptoms": [{"text": "entity text", "cui": "UMLS CUI if known", "context": "brief context"}],
  "procedures": [{"text": "entity text", "cui": "UMLS CUI if known", "context": "brief context"}],
  "medications": [{"text": "entity text", "cui": "UMLS CUI if known", "context": "brief context"}],
  "anatomy": [{"text": "entity text", "cui": "UMLS CUI if known", "context": "brief context"}],
  "lab_results": [{"text": "entity text", "value": "value if present", "context": "brief context"}],
  "devices": [{"text": "entity text", "cui": "UMLS CUI if known", "context": "brief context"}],
  "organisms": [{"text": "entity text", "cui": "UMLS CUI if known", "context": "brief context"}],
  "substances": [{"text": "entity text", "cui": "UMLS CUI if known", "context": "brief context"}],
  "temporal": [{"text": "entity text", "context": "brief context"}]
}

If a CUI is not confidently known, use null. Provide brief context showing how the entity appears in the note.`

func flatUserPrompt(note string) string {
	return fmt.Sprintf(`Extract all medical entities from this clinical note:

%s

Return only the JSON object, no additional text.`, note)
}

// uscdiVersion is the interoperability standard version the nested schema
// follows.
const uscdiVersion = "v6"

// dataClassGroups batches the USCDI data classes for parallel extraction.
// Each group goes out as one model call.
var dataClassGroups = [][]string{
	{"patient_demographics", "encounter_information", "facility_information"},
	{"problems", "medications", "allergies_and_intolerances"},
	{"vital_signs", "laboratory", "clinical_tests"},
	{"procedures", "diagnostic_imaging", "orders"},
	{"care_plan", "immunizations", "family_health_history"},
	{"care_team_members", "provenance", "health_insurance_information"},
	{"goals_and_preferences", "health_status_assessments", "clinical_notes"},
	{"medical_devices"},
}

// dataClassDescriptions feeds both the data-classes listing endpoint and
// the single-class extraction prompt.
var dataClassDescriptions = map[string]string{
	"patient_demographics":         "Patient identity, birth date, sex, race, ethnicity, and contact details",
	"encounter_information":        "Encounter type, date, location, and disposition",
	"facility_information":         "Facility name, identifier, and type",
	"problems":                     "Conditions, diagnoses, and health concerns",
	"medications":                  "Medications with dose, route, frequency, and status",
	"allergies_and_intolerances":   "Allergens with reaction, severity, and status",
	"vital_signs":                  "Vital sign measurements with values and units",
	"laboratory":                   "Laboratory tests with values, units, and reference ranges",
	"clinical_tests":               "Non-imaging, non-laboratory diagnostic tests",
	"procedures":                   "Surgical and therapeutic procedures performed",
	"diagnostic_imaging":           "Imaging studies with modality and findings",
	"orders":                       "Orders for medications, labs, imaging, and referrals",
	"care_plan":                    "Assessment, treatment plan, and follow-up instructions",
	"immunizations":                "Vaccines with dates and status",
	"family_health_history":        "Health conditions of family members",
	"care_team_members":            "Providers involved in care with roles",
	"provenance":                   "Source and authorship of the record",
	"health_insurance_information": "Coverage type, payer, and member identifiers",
	"goals_and_preferences":        "Patient goals, preferences, and advance directives",
	"health_status_assessments":    "Functional status, cognitive status, and assessments",
	"clinical_notes":               "Note type and narrative sections",
	"medical_devices":              "Implanted and external medical devices",
}

// titleCase converts a snake_case class key to a display phrase, "problems"
// -> "Problems", "vital_signs" -> "Vital Signs".
func titleCase(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func groupSystemPrompt(classNames []string) string {
	display := make([]string, len(classNames))
	for i, cn := range classNames {
		display[i] = titleCase(cn)
	}
	classesStr := strings.Join(display, ", ")

	return fmt.Sprintf(`You are a clinical data extraction system. Extract only the following USCDI %s data classes: %s.

Extract all relevant information for these classes only. Return valid JSON with these class names as keys.

IMPORTANT: For each clinical entity, always include a "name" or "text" field with the primary clinical term.`, uscdiVersion, classesStr)
}

func groupUserPrompt(classNames []string, note string) string {
	display := make([]string, len(classNames))
	for i, cn := range classNames {
		display[i] = titleCase(cn)
	}
	classesStr := strings.Join(display, ", ")

	return fmt.Sprintf(`Extract %s from this clinical note:

%s

Return JSON with only these data classes populated. Each item should have a "name" field containing the primary term.`, classesStr, note)
}

func classSystemPrompt(class string) string {
	desc := dataClassDescriptions[class]
	return fmt.Sprintf(`You are a clinical data extraction system. Extract %s from clinical notes according to the USCDI %s standard.

Return your response as a valid JSON object.`, strings.ToLower(desc), uscdiVersion)
}

func classUserPrompt(class, note string) string {
	return fmt.Sprintf(`Extract %s from this clinical note:

%s

Return only the JSON object, no additional text.`, titleCase(class), note)
}

// cuiSystemPrompt asks the model for a single concept identifier.
const cuiSystemPrompt = `You are a medical terminology expert. Given a clinical term, return its UMLS Concept Unique Identifier (CUI).

Return ONLY the CUI code (e.g., C0011849) in JSON format: {"cui": "C0011849"}
If no CUI exists, return: {"cui": null}`

func cuiUserPrompt(term, class string) string {
	return fmt.Sprintf(`Clinical term: %q
Category: %s

Return the UMLS CUI code.`, term, strings.ReplaceAll(class, "_", " "))
}

// normalizeKey converts a model-produced class key to snake_case:
// "Patient Demographics" -> "patient_demographics".
func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")
	return key
}
