package translate

import (
	"context"
	"time"
)

// StubTranslatorConfig configures the stub translator behavior.
type StubTranslatorConfig struct {
	// ProcessingDelay simulates translation processing time.
	ProcessingDelay time.Duration
	// Dictionary maps source text to translated text, keyed by target
	// language. If a lookup misses, the stub returns "[LANG] " + text.
	Dictionary map[string]map[string]string
	// DetectedLanguage is reported when the source language is "auto".
	DetectedLanguage string
	// Err, when set, is returned by every call.
	Err error
}

// StubTranslator is a test implementation that returns deterministic
// translations without a network.
type StubTranslator struct {
	config *StubTranslatorConfig
}

// NewStubTranslator creates a new stub translator with the given config.
func NewStubTranslator(config *StubTranslatorConfig) *StubTranslator {
	if config == nil {
		config = &StubTranslatorConfig{DetectedLanguage: "en"}
	}
	return &StubTranslator{config: config}
}

// Translate returns a dictionary translation or a language-prefixed copy of
// the content.
func (s *StubTranslator) Translate(ctx context.Context, content, sourceLang, targetLang string) (Result, error) {
	if s.config.ProcessingDelay > 0 {
		select {
		case <-time.After(s.config.ProcessingDelay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	if s.config.Err != nil {
		return Result{}, s.config.Err
	}

	translated := ""
	if langDict, ok := s.config.Dictionary[targetLang]; ok {
		translated = langDict[content]
	}
	if translated == "" {
		translated = "[" + targetLang + "] " + content
	}

	detected := sourceLang
	if sourceLang == SourceAuto {
		detected = s.config.DetectedLanguage
	}

	return Result{
		TranslatedText:   translated,
		DetectedLanguage: detected,
		ModelType:        "stub",
		Confidence:       0.92,
	}, nil
}
