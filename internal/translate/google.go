package translate

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lmeyer/audioscribe/internal/apperr"
)

const defaultGoogleEndpoint = "https://translate.googleapis.com/translate_a/single"

// googleSource tags translation artifacts produced by this client.
const googleSource = "google-translate-gtx"

// GoogleClient calls the public gtx translation endpoint. The response
// is an untyped nested array: element 0 holds [translated, original]
// sentence pairs, element 2 the detected source language.
type GoogleClient struct {
	endpoint   string
	httpClient *http.Client
}

type GoogleOption func(*GoogleClient)

func WithGoogleEndpoint(endpoint string) GoogleOption {
	return func(c *GoogleClient) {
		c.endpoint = endpoint
	}
}

func WithGoogleHTTPClient(client *http.Client) GoogleOption {
	return func(c *GoogleClient) {
		c.httpClient = client
	}
}

func NewGoogleClient(opts ...GoogleOption) *GoogleClient {
	c := &GoogleClient{
		endpoint: defaultGoogleEndpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *GoogleClient) Source() string {
	return googleSource
}

func (c *GoogleClient) Translate(ctx context.Context, text, sourceLang, targetLang string) (*Result, error) {
	if strings.TrimSpace(targetLang) == "" {
		return nil, apperr.New(apperr.KindInput, "target language is required")
	}
	if strings.TrimSpace(sourceLang) == "" {
		sourceLang = "auto"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL(text, sourceLang, targetLang), nil)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "build translation request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Accept", "*/*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindUpstream, "translation request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, apperr.Newf(apperr.KindUpstream, "translation service returned %d: %s",
			resp.StatusCode, string(detail))
	}

	var data []any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, apperr.Wrap(err, apperr.KindUpstream, "decode translation response")
	}
	return parseGoogleResponse(data), nil
}

func (c *GoogleClient) buildURL(text, sourceLang, targetLang string) string {
	params := url.Values{}
	params.Set("client", "gtx")
	params.Set("ie", "UTF-8")
	params.Set("oe", "UTF-8")
	params.Set("sl", sourceLang)
	params.Set("tl", targetLang)
	params.Set("hl", targetLang)
	params.Set("q", text)
	for _, dt := range []string{"bd", "ex", "ld", "md", "rw", "rm", "ss", "t", "at", "gt", "qca"} {
		params.Add("dt", dt)
	}
	return c.endpoint + "?" + params.Encode()
}

func parseGoogleResponse(data []any) *Result {
	result := &Result{}

	if len(data) > 0 {
		if sentences, ok := data[0].([]any); ok {
			var translated strings.Builder
			for _, entry := range sentences {
				pair, ok := entry.([]any)
				if !ok || len(pair) == 0 {
					continue
				}
				if chunk, ok := pair[0].(string); ok {
					translated.WriteString(chunk)
				}
			}
			result.Translation = translated.String()
		}
	}

	if len(data) > 2 {
		if detected, ok := data[2].(string); ok {
			result.DetectedSourceLanguage = detected
		}
	}

	return result
}

var _ Translator = (*GoogleClient)(nil)
