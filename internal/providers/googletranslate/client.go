// Package googletranslate calls the Google Cloud Translation v2 REST API.
package googletranslate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"parley/internal/domain"
	"parley/internal/languages"
)

const (
	// DefaultURL is the v2 translate endpoint.
	DefaultURL     = "https://translation.googleapis.com/language/translate/v2"
	DefaultTimeout = 15 * time.Second

	providerName = "google-translate"
)

// Config controls the translate client.
type Config struct {
	APIKey     string
	URL        string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client implements ports.Translator. It never retries; each call is bounded
// by Timeout.
type Client struct {
	apiKey     string
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient fills unset URL, timeout and HTTP client with defaults.
func NewClient(cfg Config) *Client {
	endpoint := strings.TrimSpace(cfg.URL)
	if endpoint == "" {
		endpoint = DefaultURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		endpoint:   endpoint,
		timeout:    timeout,
		httpClient: httpClient,
	}
}

// Name identifies the provider in logs and translation results.
func (c *Client) Name() string {
	return providerName
}

type translateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
}

type translateResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText string `json:"translatedText"`
		} `json:"translations"`
	} `json:"data"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason  string `json:"reason"`
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"error"`
}

// Translate sends one request. Service failures come back as
// *domain.TranslationError.
func (c *Client) Translate(ctx context.Context, req domain.TranslationRequest) (domain.TranslationResult, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return domain.TranslationResult{}, domain.ErrNothingToTranslate
	}
	for _, code := range []domain.LanguageCode{req.Source, req.Target} {
		if !languages.IsSupported(code) {
			return domain.TranslationResult{}, &domain.TranslationError{
				Kind:    domain.FailureInvalidLanguage,
				Message: fmt.Sprintf("unsupported language %q", code),
				Err:     domain.ErrUnsupportedLanguage,
			}
		}
	}
	if c.apiKey == "" {
		return domain.TranslationResult{}, &domain.TranslationError{
			Kind:    domain.FailureService,
			Message: "GOOGLE_TRANSLATE_API_KEY is not configured",
		}
	}

	body, err := json.Marshal(translateRequest{
		Q:      text,
		Source: string(req.Source),
		Target: string(req.Target),
		Format: "text",
	})
	if err != nil {
		return domain.TranslationResult{}, fmt.Errorf("marshal translation request: %w", err)
	}

	endpoint, err := c.requestURL()
	if err != nil {
		return domain.TranslationResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.TranslationResult{}, fmt.Errorf("build translation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.TranslationResult{}, networkError(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.TranslationResult{}, networkError(ctx, fmt.Errorf("read translation response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.TranslationResult{}, statusError(resp.StatusCode, respBody)
	}

	var parsed translateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return domain.TranslationResult{}, &domain.TranslationError{
			Kind:    domain.FailureService,
			Message: "decode translation response",
			Err:     err,
		}
	}
	if len(parsed.Data.Translations) == 0 {
		return domain.TranslationResult{}, &domain.TranslationError{
			Kind:    domain.FailureService,
			Message: "translation response missing translations",
		}
	}

	translated := strings.TrimSpace(parsed.Data.Translations[0].TranslatedText)
	if translated == "" {
		return domain.TranslationResult{}, &domain.TranslationError{
			Kind:    domain.FailureService,
			Message: "translation response was empty",
		}
	}

	return domain.TranslationResult{
		Text:     translated,
		Provider: c.Name(),
		Latency:  time.Since(started),
	}, nil
}

func (c *Client) requestURL() (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid translate URL: %w", err)
	}
	query := u.Query()
	query.Set("key", c.apiKey)
	u.RawQuery = query.Encode()
	return u.String(), nil
}

func networkError(ctx context.Context, err error) error {
	message := "translation request failed"
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		message = "translation request timed out"
	}
	return &domain.TranslationError{Kind: domain.FailureNetwork, Message: message, Err: err}
}

func statusError(status int, body []byte) error {
	message := strings.TrimSpace(string(body))
	var payload errorResponse
	if err := json.Unmarshal(body, &payload); err == nil && strings.TrimSpace(payload.Error.Message) != "" {
		message = strings.TrimSpace(payload.Error.Message)
	}

	kind := domain.FailureService
	switch {
	case status == http.StatusTooManyRequests:
		kind = domain.FailureRateLimited
	case status == http.StatusBadRequest && mentionsLanguage(message):
		kind = domain.FailureInvalidLanguage
	}
	return &domain.TranslationError{Kind: kind, StatusCode: status, Message: message}
}

func mentionsLanguage(message string) bool {
	return strings.Contains(strings.ToLower(message), "language")
}
