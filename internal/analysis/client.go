package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"needledrop/internal/services"
)

// HTTPDoer matches the subset of http.Client the analysis client uses.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Features holds the track fields derived from one analysis run. Nil
// pointers and the empty key mean the extractor omitted the descriptor;
// downstream writes leave those attributes untouched.
type Features struct {
	BPM          *int
	Key          string
	Danceability *float64
	Duration     *int
}

// rawResult mirrors the extractor's response document. Only the
// descriptors the pipeline stores are decoded; pointers distinguish an
// omitted descriptor from a zero value.
type rawResult struct {
	Rhythm struct {
		BPM          *float64 `json:"bpm"`
		Danceability *float64 `json:"danceability"`
	} `json:"rhythm"`
	Tonal struct {
		KeyEDMA struct {
			Key   string `json:"key"`
			Scale string `json:"scale"`
		} `json:"key_edma"`
	} `json:"tonal"`
	Metadata struct {
		AudioProperties struct {
			Length *float64 `json:"length"`
		} `json:"audio_properties"`
	} `json:"metadata"`
}

type analyzeRequest struct {
	Filename string `json:"filename"`
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient injects a custom HTTP doer (tests).
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.httpClient = doer
		}
	}
}

// Client talks to the feature-extraction HTTP service. The service pulls
// the WAV itself, so the request carries a URL the service can reach, not
// file contents.
type Client struct {
	serviceURL   string
	audioBaseURL string
	timeout      time.Duration
	httpClient   HTTPDoer
}

// New constructs an analysis client. audioBaseURL is the externally
// reachable endpoint that serves files out of the audio directory.
func New(serviceURL, audioBaseURL string, timeoutSeconds int, opts ...Option) (*Client, error) {
	serviceURL = strings.TrimSpace(serviceURL)
	if serviceURL == "" {
		return nil, errors.New("analysis service url required")
	}
	audioBaseURL = strings.TrimSpace(audioBaseURL)
	if audioBaseURL == "" {
		return nil, errors.New("audio base url required")
	}
	if timeoutSeconds <= 0 {
		timeoutSeconds = 60
	}
	client := &Client{
		serviceURL:   serviceURL,
		audioBaseURL: audioBaseURL,
		timeout:      time.Duration(timeoutSeconds) * time.Second,
		httpClient:   &http.Client{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Analyze submits the named WAV for feature extraction and returns the
// mapped track fields.
func (c *Client) Analyze(ctx context.Context, wavName string) (Features, error) {
	wavName = strings.TrimSpace(wavName)
	if wavName == "" {
		return Features{}, services.Wrap(services.ErrValidation, "analyze", "analyze", "wav filename required", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload := analyzeRequest{Filename: c.audioBaseURL + "?filename=" + url.QueryEscape(wavName)}
	body, err := json.Marshal(payload)
	if err != nil {
		return Features{}, services.Wrap(services.ErrValidation, "analyze", "analyze", "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serviceURL, bytes.NewReader(body))
	if err != nil {
		return Features{}, services.Wrap(services.ErrConfiguration, "analyze", "analyze", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Features{}, services.Wrap(services.ErrTimeout, "analyze", "analyze", "analysis service did not respond in time", err)
		}
		return Features{}, services.Wrap(services.ErrTransient, "analyze", "analyze", "analysis service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Features{}, services.Wrap(services.ErrTransient, "analyze", "analyze",
			fmt.Sprintf("analysis service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))), nil)
	}

	var raw rawResult
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return Features{}, services.Wrap(services.ErrTransient, "analyze", "analyze", "decode response", err)
	}
	return mapFeatures(raw), nil
}

func mapFeatures(raw rawResult) Features {
	var features Features
	if raw.Rhythm.BPM != nil {
		bpm := int(math.Round(*raw.Rhythm.BPM))
		features.BPM = &bpm
	}
	if raw.Rhythm.Danceability != nil {
		danceability := math.Round(*raw.Rhythm.Danceability*1000) / 1000
		features.Danceability = &danceability
	}
	if raw.Metadata.AudioProperties.Length != nil {
		duration := int(math.Round(*raw.Metadata.AudioProperties.Length))
		features.Duration = &duration
	}
	key := strings.TrimSpace(raw.Tonal.KeyEDMA.Key)
	scale := strings.TrimSpace(raw.Tonal.KeyEDMA.Scale)
	if key != "" && scale != "" {
		features.Key = key + " " + scale
	}
	return features
}
