package classify

// Category is the emergency taxonomy category of a message identifier.
type Category int

const (
	CategoryNone Category = iota
	CategoryEtwsEarthquake
	CategoryEtwsTsunami
	CategoryEtwsEarthquakeAndTsunami
	CategoryEtwsTest
	CategoryEtwsOther
	CategoryCmasPresidential
	CategoryCmasExtreme
	CategoryCmasSevere
	CategoryCmasAmber
	CategoryCmasRequiredMonthlyTest
	CategoryCmasExercise
	CategoryCmasOperatorDefined
)

// Title keys for identifiers without a category of their own.
const (
	TitleKeyOtherPublicAlert = "pws_other_message_identifiers"
	TitleKeyOtherBroadcast   = "cb_other_message_identifiers"
)

type categoryInfo struct {
	name     string
	titleKey string
	title    string
}

var categories = map[Category]categoryInfo{
	CategoryNone:                     {"none", "", ""},
	CategoryEtwsEarthquake:           {"etws_earthquake", "etws_earthquake_warning", "Earthquake warning"},
	CategoryEtwsTsunami:              {"etws_tsunami", "etws_tsunami_warning", "Tsunami warning"},
	CategoryEtwsEarthquakeAndTsunami: {"etws_earthquake_and_tsunami", "etws_earthquake_and_tsunami_warning", "Earthquake and tsunami warning"},
	CategoryEtwsTest:                 {"etws_test", "etws_test_message", "ETWS test message"},
	CategoryEtwsOther:                {"etws_other", "etws_other_emergency_type", "ETWS warning"},
	CategoryCmasPresidential:         {"cmas_presidential", "cmas_presidential_level_alert", "Presidential alert"},
	CategoryCmasExtreme:              {"cmas_extreme", "cmas_extreme_alert", "Emergency alert: Extreme"},
	CategoryCmasSevere:               {"cmas_severe", "cmas_severe_alert", "Emergency alert: Severe"},
	CategoryCmasAmber:                {"cmas_amber", "cmas_amber_alert", "Child abduction (Amber alert)"},
	CategoryCmasRequiredMonthlyTest:  {"cmas_required_monthly_test", "cmas_required_monthly_test", "Emergency alert monthly test"},
	CategoryCmasExercise:             {"cmas_exercise", "cmas_exercise_alert", "Emergency alert (exercise)"},
	CategoryCmasOperatorDefined:      {"cmas_operator_defined", "cmas_operator_defined_alert", "Emergency alert (operator)"},
}

var fallbackTitles = map[string]string{
	TitleKeyOtherPublicAlert: "Emergency alert",
	TitleKeyOtherBroadcast:   "Cell broadcast",
}

func (c Category) String() string {
	if info, ok := categories[c]; ok {
		return info.name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// TitleKey returns the title resource key of c, empty for CategoryNone.
func (c Category) TitleKey() string {
	return categories[c].titleKey
}

// IsEtws reports whether c is one of the ETWS categories.
func (c Category) IsEtws() bool {
	return c >= CategoryEtwsEarthquake && c <= CategoryEtwsOther
}

// IsCmas reports whether c is one of the CMAS categories.
func (c Category) IsCmas() bool {
	return c >= CategoryCmasPresidential && c <= CategoryCmasOperatorDefined
}

// TitleFor returns the default english title for a title key.
func TitleFor(key string) string {
	for _, info := range categories {
		if info.titleKey != "" && info.titleKey == key {
			return info.title
		}
	}
	return fallbackTitles[key]
}
