package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Typed failures from the translation service. Anything else is treated as
// a network error.
var (
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrModelUnavailable    = errors.New("translation model unavailable")
)

// SourceAuto asks the service to detect the source language.
const SourceAuto = "auto"

// Result is a completed translation returned by the service.
type Result struct {
	TranslatedText   string
	DetectedLanguage string
	ModelType        string
	Confidence       float64
}

// Translator converts text between languages.
type Translator interface {
	Translate(ctx context.Context, content, sourceLang, targetLang string) (Result, error)
}

// HTTPTranslator calls the external translation service over HTTP.
type HTTPTranslator struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTranslator creates a translator client for the given base URL.
func NewHTTPTranslator(baseURL string) *HTTPTranslator {
	return &HTTPTranslator{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type translateRequest struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
}

type translateResponse struct {
	TranslatedText   string  `json:"translated_text"`
	DetectedLanguage string  `json:"detected_language"`
	ModelType        string  `json:"model_type"`
	Confidence       float64 `json:"confidence"`
}

// Translate posts the content to the service. HTTP 422 maps to
// ErrUnsupportedLanguage and 503 to ErrModelUnavailable.
func (t *HTTPTranslator) Translate(ctx context.Context, content, sourceLang, targetLang string) (Result, error) {
	body, err := json.Marshal(translateRequest{
		Text:           content,
		SourceLanguage: sourceLang,
		TargetLanguage: targetLang,
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal translate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/translate", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build translate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("translate request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnprocessableEntity:
		return Result{}, fmt.Errorf("translate %s->%s: %w", sourceLang, targetLang, ErrUnsupportedLanguage)
	case http.StatusServiceUnavailable:
		return Result{}, fmt.Errorf("translate %s->%s: %w", sourceLang, targetLang, ErrModelUnavailable)
	default:
		return Result{}, fmt.Errorf("translate: unexpected status %d", resp.StatusCode)
	}

	var tr translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return Result{}, fmt.Errorf("decode translate response: %w", err)
	}

	return Result{
		TranslatedText:   tr.TranslatedText,
		DetectedLanguage: tr.DetectedLanguage,
		ModelType:        tr.ModelType,
		Confidence:       tr.Confidence,
	}, nil
}
