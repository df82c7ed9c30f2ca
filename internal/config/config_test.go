package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"parley/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("PARLEY_ENV_FILE", "")
	t.Setenv("PARLEY_GLOSSARY_FILE", "")
	t.Setenv("GOOGLE_TRANSLATE_API_KEY", "translate-key")
	t.Setenv("GOOGLE_TTS_API_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Languages() != (domain.LanguagePair{Source: domain.LanguageEnglish, Target: domain.LanguageHindi}) {
		t.Fatalf("unexpected default languages: %+v", cfg.Languages())
	}
	if !cfg.AutoSpeak || !cfg.DeepgramSmartFormat {
		t.Fatalf("expected auto-speak and smart format on by default")
	}
	if cfg.TranslationTimeout != 15*time.Second {
		t.Fatalf("unexpected translation timeout: %s", cfg.TranslationTimeout)
	}
	if cfg.TTSAPIKey != "translate-key" {
		t.Fatalf("expected tts key to fall back to translate key, got %q", cfg.TTSAPIKey)
	}
	if cfg.GlossaryFile != filepath.Join(home, ".config", "parley", "glossary.txt") {
		t.Fatalf("unexpected glossary path: %q", cfg.GlossaryFile)
	}
	if cfg.SampleRate != 16000 || cfg.Channels != 1 || cfg.AudioChunkSize != 4096 || cfg.StreamingGrace != time.Second {
		t.Fatalf("unexpected audio defaults: %+v", cfg)
	}
	if cfg.DeepgramModel != "nova-2" || cfg.FFmpegCommand != "ffmpeg" || cfg.FFplayCommand != "ffplay" {
		t.Fatalf("unexpected command defaults: %+v", cfg)
	}
}

func TestLoadRespectsOverridesAndFallbacks(t *testing.T) {
	t.Setenv("PARLEY_ENV_FILE", "")
	t.Setenv("PARLEY_SOURCE_LANGUAGE", "ar-SA")
	t.Setenv("PARLEY_TARGET_LANGUAGE", "mr")
	t.Setenv("PARLEY_AUTO_SPEAK", "false")
	t.Setenv("PARLEY_GLOSSARY_FILE", "/tmp/my-glossary.txt")
	t.Setenv("PARLEY_TRANSLATION_TIMEOUT", "3s")
	t.Setenv("GOOGLE_TTS_API_KEY", "tts-key")
	t.Setenv("GOOGLE_TRANSLATE_API_KEY", "translate-key")
	t.Setenv("PARLEY_TTS_SPEAKING_RATE", "1.5")
	t.Setenv("PARLEY_TTS_PITCH", "-4")
	t.Setenv("PARLEY_SAMPLE_RATE", "-1")
	t.Setenv("PARLEY_CHANNELS", "0")
	t.Setenv("PARLEY_AUDIO_CHUNK_SIZE", "12")
	t.Setenv("PARLEY_GLOSSARY_ITERATION_LIMIT", "0")
	t.Setenv("DEEPGRAM_MODEL", "nova-3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Languages() != (domain.LanguagePair{Source: domain.LanguageArabic, Target: domain.LanguageMarathi}) {
		t.Fatalf("unexpected languages: %+v", cfg.Languages())
	}
	if cfg.AutoSpeak {
		t.Fatalf("expected auto-speak disabled")
	}
	if cfg.GlossaryFile != "/tmp/my-glossary.txt" || cfg.GlossaryIterationLimit != 30 {
		t.Fatalf("unexpected glossary settings: %q %d", cfg.GlossaryFile, cfg.GlossaryIterationLimit)
	}
	if cfg.TranslationTimeout != 3*time.Second || cfg.TTSAPIKey != "tts-key" {
		t.Fatalf("unexpected translation settings: %+v", cfg)
	}
	if cfg.TTSSpeakingRate != 1.5 || cfg.TTSPitch != -4 {
		t.Fatalf("unexpected voice settings: %g %g", cfg.TTSSpeakingRate, cfg.TTSPitch)
	}
	if cfg.SampleRate != 16000 || cfg.Channels != 1 || cfg.AudioChunkSize != 4096 {
		t.Fatalf("expected audio fallbacks, got %d %d %d", cfg.SampleRate, cfg.Channels, cfg.AudioChunkSize)
	}
	if cfg.DeepgramModel != "nova-3" {
		t.Fatalf("unexpected model: %q", cfg.DeepgramModel)
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string][2]string{
		"unsupported language": {"PARLEY_TARGET_LANGUAGE", "fr"},
		"zero timeout":         {"PARLEY_TRANSLATION_TIMEOUT", "0s"},
		"speaking rate":        {"PARLEY_TTS_SPEAKING_RATE", "9"},
		"pitch":                {"PARLEY_TTS_PITCH", "30"},
		"malformed duration":   {"PARLEY_STREAMING_GRACE", "soon"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("PARLEY_ENV_FILE", "")
			t.Setenv(kv[0], kv[1])
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", kv[0], kv[1])
			}
		})
	}
}

func TestLoadEnvFileOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.env")
	contents := "PARLEY_TARGET_LANGUAGE=mr\nDEEPGRAM_API_KEY=from-file\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// registered so t.Setenv restores them after Overload
	t.Setenv("PARLEY_TARGET_LANGUAGE", "hi")
	t.Setenv("DEEPGRAM_API_KEY", "from-env")
	t.Setenv("PARLEY_ENV_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.TargetLanguage != "mr" || cfg.DeepgramAPIKey != "from-file" {
		t.Fatalf("expected env file values, got %q %q", cfg.TargetLanguage, cfg.DeepgramAPIKey)
	}
}

func TestLoadEnvFileMissing(t *testing.T) {
	t.Setenv("PARLEY_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "PARLEY_ENV_FILE") {
		t.Fatalf("expected env file error, got %v", err)
	}
}
