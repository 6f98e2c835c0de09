package prompt

// Language is one selectable translation language.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

var languages = []Language{
	{"en", "English"},
	{"zh-CN", "Chinese (Simplified)"},
	{"zh-TW", "Chinese (Traditional)"},
	{"es", "Spanish"},
	{"fr", "French"},
	{"de", "German"},
	{"ja", "Japanese"},
	{"ko", "Korean"},
	{"pt", "Portuguese"},
	{"ru", "Russian"},
	{"ar", "Arabic"},
	{"hi", "Hindi"},
	{"it", "Italian"},
	{"nl", "Dutch"},
	{"sv", "Swedish"},
	{"da", "Danish"},
	{"no", "Norwegian"},
	{"fi", "Finnish"},
	{"pl", "Polish"},
	{"tr", "Turkish"},
	{"bn", "Bengali"},
}

// Languages returns the supported languages in display order.
func Languages() []Language {
	out := make([]Language, len(languages))
	copy(out, languages)
	return out
}

// LanguageName returns the display name for code.
func LanguageName(code string) (string, bool) {
	for _, l := range languages {
		if l.Code == code {
			return l.Name, true
		}
	}
	return "", false
}
