package result

import "strings"

// Category describes one entry of the display registry.
type Category struct {
	Key     string `json:"key"`
	Display string `json:"display"`
	Icon    string `json:"icon"`
}

// DefaultIcon is used for nested keys the registry does not know.
const DefaultIcon = "📄"

// FlatCategories is the fixed, ordered registry of the flat schema. The order
// defines both summary display order and match discovery order.
var FlatCategories = []Category{
	{Key: "disorders", Display: "Disorders/Diseases", Icon: "🩺"},
	{Key: "signs_symptoms", Display: "Signs & Symptoms", Icon: "🤒"},
	{Key: "procedures", Display: "Procedures", Icon: "🏥"},
	{Key: "medications", Display: "Medications/Drugs", Icon: "💊"},
	{Key: "anatomy", Display: "Anatomical Structures", Icon: "🫀"},
	{Key: "lab_results", Display: "Laboratory Results", Icon: "🧪"},
	{Key: "devices", Display: "Medical Devices", Icon: "🔬"},
	{Key: "organisms", Display: "Organisms", Icon: "🦠"},
	{Key: "substances", Display: "Substances", Icon: "⚗️"},
	{Key: "temporal", Display: "Temporal Information", Icon: "📅"},
}

// NestedClasses is the registry of known USCDI v6 data classes. Nested
// results iterate their own key order; this registry only supplies display
// names and icons for keys it knows.
var NestedClasses = []Category{
	{Key: "patient_demographics", Display: "Patient Demographics", Icon: "👤"},
	{Key: "encounter_information", Display: "Encounter Information", Icon: "🏥"},
	{Key: "facility_information", Display: "Facility Information", Icon: "🏨"},
	{Key: "problems", Display: "Problems", Icon: "🩺"},
	{Key: "medications", Display: "Medications", Icon: "💊"},
	{Key: "allergies_and_intolerances", Display: "Allergies & Intolerances", Icon: "⚠️"},
	{Key: "vital_signs", Display: "Vital Signs", Icon: "❤️"},
	{Key: "laboratory", Display: "Laboratory", Icon: "🧪"},
	{Key: "clinical_tests", Display: "Clinical Tests", Icon: "🔬"},
	{Key: "procedures", Display: "Procedures", Icon: "⚕️"},
	{Key: "diagnostic_imaging", Display: "Diagnostic Imaging", Icon: "🩻"},
	{Key: "orders", Display: "Orders", Icon: "📋"},
	{Key: "care_plan", Display: "Care Plan", Icon: "📝"},
	{Key: "immunizations", Display: "Immunizations", Icon: "💉"},
	{Key: "family_health_history", Display: "Family Health History", Icon: "👪"},
	{Key: "care_team_members", Display: "Care Team Members", Icon: "🧑‍⚕️"},
	{Key: "provenance", Display: "Provenance", Icon: "🔗"},
	{Key: "health_insurance_information", Display: "Health Insurance Information", Icon: "💳"},
	{Key: "goals_and_preferences", Display: "Goals & Preferences", Icon: "🎯"},
	{Key: "health_status_assessments", Display: "Health Status Assessments", Icon: "📊"},
	{Key: "clinical_notes", Display: "Clinical Notes", Icon: "📄"},
	{Key: "medical_devices", Display: "Medical Devices", Icon: "⚙️"},
}

var (
	flatByKey   = indexCategories(FlatCategories)
	nestedByKey = indexCategories(NestedClasses)
)

func indexCategories(cats []Category) map[string]Category {
	m := make(map[string]Category, len(cats))
	for _, c := range cats {
		m[c.Key] = c
	}
	return m
}

// LookupFlat returns the flat registry entry for key.
func LookupFlat(key string) (Category, bool) {
	c, ok := flatByKey[key]
	return c, ok
}

// LookupNested returns the nested registry entry for key.
func LookupNested(key string) (Category, bool) {
	c, ok := nestedByKey[key]
	return c, ok
}

// SynthesizeDisplay builds a display name for an unknown key: underscores
// become spaces and each word is capitalized.
func SynthesizeDisplay(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
