package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/lmeyer/audioscribe/internal/apperr"
)

const defaultWhisperURL = "https://api.openai.com/v1/audio/transcriptions"

// WhisperClient calls a whisper-style transcription endpoint with
// verbose JSON output and segment-level timestamps.
type WhisperClient struct {
	apiURL         string
	apiKey         string
	model          string
	wordTimestamps bool
	httpClient     *http.Client
}

type WhisperOption func(*WhisperClient)

func WithWhisperURL(url string) WhisperOption {
	return func(c *WhisperClient) {
		c.apiURL = url
	}
}

// WithWordTimestamps additionally requests word-level granularity.
func WithWordTimestamps(enabled bool) WhisperOption {
	return func(c *WhisperClient) {
		c.wordTimestamps = enabled
	}
}

func WithWhisperHTTPClient(client *http.Client) WhisperOption {
	return func(c *WhisperClient) {
		c.httpClient = client
	}
}

func NewWhisperClient(apiKey, model string, opts ...WhisperOption) *WhisperClient {
	c := &WhisperClient{
		apiURL: defaultWhisperURL,
		apiKey: apiKey,
		model:  model,
		httpClient: &http.Client{
			Timeout: 15 * time.Minute,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *WhisperClient) Source() string {
	return c.model
}

func (c *WhisperClient) Transcribe(ctx context.Context, audioPath string) (*Result, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindResource, "open audio chunk").
			WithContext("path", audioPath)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("model", c.model); err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "build transcription request")
	}
	if err := mw.WriteField("response_format", "verbose_json"); err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "build transcription request")
	}
	if err := mw.WriteField("timestamp_granularities[]", "segment"); err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "build transcription request")
	}
	if c.wordTimestamps {
		if err := mw.WriteField("timestamp_granularities[]", "word"); err != nil {
			return nil, apperr.Wrap(err, apperr.KindInternal, "build transcription request")
		}
	}

	fw, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "build transcription request")
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, apperr.Wrap(err, apperr.KindResource, "read audio chunk")
	}
	if err := mw.Close(); err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "build transcription request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, &body)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "build transcription request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindUpstream, "transcription request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, apperr.Newf(apperr.KindUpstream, "transcription service returned %d: %s",
			resp.StatusCode, string(detail))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperr.Wrap(err, apperr.KindUpstream, "decode transcription response")
	}
	return &result, nil
}

var _ Recognizer = (*WhisperClient)(nil)
