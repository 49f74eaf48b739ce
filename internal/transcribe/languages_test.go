package transcribe

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDisplayTableKeysAreShortCodes(t *testing.T) {
	t.Parallel()

	shortCode := regexp.MustCompile(`^[a-z]{2,3}$`)
	for _, lang := range Languages() {
		require.Regexpf(t, shortCode, lang.Code, "invalid language code %q", lang.Code)
		require.NotEmpty(t, lang.Name)
	}
	require.Len(t, displayNames, len(displayLanguages), "duplicate language code")
}

func TestLanguagesPrioritizesUrdu(t *testing.T) {
	t.Parallel()

	langs := Languages()
	require.Equal(t, Language{Code: "ur", Name: "Urdu"}, langs[0])
	require.Len(t, langs, 6)
}

func TestLanguagesReturnsCopy(t *testing.T) {
	t.Parallel()

	langs := Languages()
	langs[0].Name = "changed"

	name, ok := DisplayName("ur")
	require.True(t, ok)
	require.Equal(t, "Urdu", name)
	require.Equal(t, "Urdu", Languages()[0].Name)
}

func TestLanguageLabel(t *testing.T) {
	t.Parallel()

	require.Equal(t, "🌐 English (en)", LanguageLabel("en"))
	require.Equal(t, "🌐 Urdu (ur)", LanguageLabel("ur"))
	require.Equal(t, "🌐 Hindi (hi)", LanguageLabel("hi"))
	require.Equal(t, "🌐 zz", LanguageLabel("zz"))
	require.Equal(t, "🌐 unknown", LanguageLabel("unknown"))
}
