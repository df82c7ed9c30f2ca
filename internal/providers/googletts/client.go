// Package googletts renders speech with the Google Cloud Text-to-Speech REST
// API.
package googletts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"parley/internal/ports"
)

const (
	DefaultURL          = "https://texttospeech.googleapis.com/v1"
	DefaultSpeakingRate = 1.0

	encodingMP3 = "mp3"
)

// Config controls the text-to-speech client.
type Config struct {
	APIKey       string
	URL          string
	SpeakingRate float64
	Pitch        float64
	HTTPClient   *http.Client
}

// Client implements ports.SpeechRenderer.
type Client struct {
	apiKey       string
	baseURL      string
	speakingRate float64
	pitch        float64
	httpClient   *http.Client
}

// NewClient fills unset URL, speaking rate and HTTP client with defaults.
func NewClient(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		base = DefaultURL
	}
	rate := cfg.SpeakingRate
	if rate <= 0 {
		rate = DefaultSpeakingRate
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		apiKey:       strings.TrimSpace(cfg.APIKey),
		baseURL:      base,
		speakingRate: rate,
		pitch:        cfg.Pitch,
		httpClient:   httpClient,
	}
}

type synthesizeRequest struct {
	Input       synthesisInput `json:"input"`
	Voice       voiceSelection `json:"voice"`
	AudioConfig audioConfig    `json:"audioConfig"`
}

type synthesisInput struct {
	Text string `json:"text"`
}

type voiceSelection struct {
	LanguageCode string `json:"languageCode"`
}

type audioConfig struct {
	AudioEncoding string  `json:"audioEncoding"`
	SpeakingRate  float64 `json:"speakingRate"`
	Pitch         float64 `json:"pitch"`
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

// Render returns MP3 audio for text spoken in locale.
func (c *Client) Render(ctx context.Context, text string, locale string) (ports.SpeechAudio, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ports.SpeechAudio{}, errors.New("text is required")
	}
	if c.apiKey == "" {
		return ports.SpeechAudio{}, errors.New("GOOGLE_TTS_API_KEY is not configured")
	}

	body, err := json.Marshal(synthesizeRequest{
		Input: synthesisInput{Text: text},
		Voice: voiceSelection{LanguageCode: locale},
		AudioConfig: audioConfig{
			AudioEncoding: "MP3",
			SpeakingRate:  c.speakingRate,
			Pitch:         c.pitch,
		},
	})
	if err != nil {
		return ports.SpeechAudio{}, fmt.Errorf("marshal synthesis request: %w", err)
	}

	endpoint, err := url.Parse(c.baseURL + "/text:synthesize")
	if err != nil {
		return ports.SpeechAudio{}, fmt.Errorf("invalid text-to-speech URL: %w", err)
	}
	query := endpoint.Query()
	query.Set("key", c.apiKey)
	endpoint.RawQuery = query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return ports.SpeechAudio{}, fmt.Errorf("build synthesis request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ports.SpeechAudio{}, fmt.Errorf("send synthesis request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return ports.SpeechAudio{}, fmt.Errorf("read synthesis response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return ports.SpeechAudio{}, fmt.Errorf("text-to-speech status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed synthesizeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return ports.SpeechAudio{}, fmt.Errorf("decode synthesis response: %w", err)
	}
	audio, err := base64.StdEncoding.DecodeString(parsed.AudioContent)
	if err != nil {
		return ports.SpeechAudio{}, fmt.Errorf("decode audio content: %w", err)
	}
	if len(audio) == 0 {
		return ports.SpeechAudio{}, errors.New("text-to-speech returned no audio")
	}

	return ports.SpeechAudio{Data: audio, Encoding: encodingMP3}, nil
}
