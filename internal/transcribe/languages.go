package transcribe

// Language is one entry of the display table.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// displayLanguages is ordered by display priority, Urdu first.
var displayLanguages = [...]Language{
	{Code: "ur", Name: "Urdu"},
	{Code: "hi", Name: "Hindi"},
	{Code: "en", Name: "English"},
	{Code: "ja", Name: "Japanese"},
	{Code: "es", Name: "Spanish"},
	{Code: "fr", Name: "French"},
}

var displayNames = func() map[string]string {
	names := make(map[string]string, len(displayLanguages))
	for _, lang := range displayLanguages {
		names[lang.Code] = lang.Name
	}
	return names
}()

// Languages returns a copy of the display table in priority order.
func Languages() []Language {
	out := make([]Language, len(displayLanguages))
	copy(out, displayLanguages[:])
	return out
}

func DisplayName(code string) (string, bool) {
	name, ok := displayNames[code]
	return name, ok
}

// LanguageLabel renders the label shown next to a transcript.
func LanguageLabel(code string) string {
	if name, ok := DisplayName(code); ok {
		return "🌐 " + name + " (" + code + ")"
	}
	return "🌐 " + code
}
