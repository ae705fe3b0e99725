package pool

import "github.com/nlebel/vocalis/internal/config"

// builtinVoices lists the Kokoro voices shipped with the engine image,
// keyed by ISO-639-1 language code.
var builtinVoices = map[string][]string{
	"fr": {"ff_siwis"},
	"en": {
		"af_heart", "af_bella", "af_sarah", "af_sky",
		"am_adam", "am_michael",
		"bf_emma", "bf_isabella",
		"bm_george", "bm_lewis",
	},
}

// builtinDefaults names the voice used per language when a request does
// not pick one.
var builtinDefaults = map[string]string{
	"fr": "ff_siwis",
	"en": "af_heart",
}

// catalog merges config voice overrides over the built-in tables.
func catalog(cfg config.TTSConfig) map[string][]string {
	voices := make(map[string][]string, len(builtinVoices))
	for lang, vs := range builtinVoices {
		voices[lang] = append([]string(nil), vs...)
	}
	for lang, vs := range cfg.Voices {
		voices[lang] = append([]string(nil), vs...)
	}
	return voices
}

// defaults merges config default voices over the built-in ones.
func defaults(cfg config.TTSConfig) map[string]string {
	out := make(map[string]string, len(builtinDefaults))
	for lang, v := range builtinDefaults {
		out[lang] = v
	}
	for lang, v := range cfg.DefaultVoices {
		if v != "" {
			out[lang] = v
		}
	}
	return out
}

// STTLanguage is one entry of the transcription language listing.
type STTLanguage struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// STTLanguages returns the languages the transcription side accepts,
// including the auto-detect pseudo-language.
func STTLanguages() []STTLanguage {
	return []STTLanguage{
		{Code: "fr", Label: "French"},
		{Code: "en", Label: "English"},
		{Code: "auto", Label: "Auto-detect"},
	}
}
