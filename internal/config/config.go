package config

// TrimSettings holds the silence-trimming parameters.
type TrimSettings struct {
	// BufferSec of audio kept before the first and after the last word.
	BufferSec float64
	// MinSec is the minimum duration of a trimmed file; shorter results
	// are skipped.
	MinSec float64
}

// Config holds the full application configuration.
type Config struct {
	TrimSettings

	// NumJobs bounds concurrent alignment and trim workers.
	NumJobs int
	// AlignTimeoutSec caps one engine invocation; on timeout the utterance
	// is recorded as unaligned.
	AlignTimeoutSec int
	// RateLimitPerMin throttles engine invocations; 0 disables.
	RateLimitPerMin int
	// Language is the phonemizer language code.
	Language string
}

// Default returns a Config with the defaults the Python version shipped.
func Default() *Config {
	return &Config{
		TrimSettings: TrimSettings{
			BufferSec: 0.1,
			MinSec:    0.5,
		},
		NumJobs:         12,
		AlignTimeoutSec: 300,
		RateLimitPerMin: 0,
		Language:        "en-us",
	}
}

// LangAlias maps short language codes to the phonemizer's full codes.
var LangAlias = map[string]string{
	"cs": "cs-cz",
	"de": "de-de",
	"en": "en-us",
	"es": "es-es",
	"fr": "fr-fr",
	"it": "it-it",
	"ru": "ru-ru",
	"sv": "sv-se",
}

// ResolveLanguage expands a short language code, passing unknown codes
// through unchanged.
func ResolveLanguage(lang string) string {
	if full, ok := LangAlias[lang]; ok {
		return full
	}
	return lang
}
