// Package translate is the best-effort translation adapter. Translate never
// fails: on any degradation it returns the original text plus a reason code,
// so callers always have usable text.
package translate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/livrario/ingest/pkg/config"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
)

// ProviderName is reported as the second result on successful translation.
const ProviderName = "libretranslate"

// Degradation reason codes. Anything else returned by Translate is either
// ProviderName or a "provider-error:"/"provider-exc:" prefixed code.
const (
	ReasonEmpty      = "empty"
	ReasonNoProvider = "no-provider"
)

type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
	log        logger.Logger
}

func New(cfg *config.Config) *Client {
	return &Client{
		url:        cfg.TranslateURL,
		apiKey:     cfg.TranslateAPIKey,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		log:        logger.New(),
	}
}

// Succeeded reports whether a Translate result code names a provider rather
// than a degradation reason.
func Succeeded(code string) bool {
	switch {
	case code == "", code == ReasonEmpty, code == ReasonNoProvider:
		return false
	case strings.HasPrefix(code, "provider-error:"), strings.HasPrefix(code, "provider-exc:"):
		return false
	}
	return true
}

// Translate translates text from sourceLang ("" means auto-detect) into
// targetLang. It returns the translated text and the provider name, or the
// original text and a reason code on any degradation.
func (c *Client) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return text, ReasonEmpty
	}
	if c.url == "" {
		return text, ReasonNoProvider
	}

	if sourceLang == "" {
		sourceLang = "auto"
	}
	form := url.Values{}
	form.Set("q", text)
	form.Set("source", sourceLang)
	form.Set("target", targetLang)
	form.Set("format", "text")
	if c.apiKey != "" {
		form.Set("api_key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return text, "provider-exc:" + err.Error()
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Err(err).Warn("translation request failed")
		return text, "provider-exc:" + err.Error()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return text, fmt.Sprintf("provider-error:%d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return text, "provider-exc:" + err.Error()
	}

	var payload struct {
		TranslatedText string `json:"translatedText"`
		TranslatedAlt  string `json:"translated_text"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return text, "provider-exc:" + err.Error()
	}

	translated := payload.TranslatedText
	if translated == "" {
		translated = payload.TranslatedAlt
	}
	if translated == "" {
		translated = text
	}
	return translated, ProviderName
}
