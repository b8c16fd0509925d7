package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"needledrop/internal/jobqueue"
	"needledrop/internal/jobstatus"
	"needledrop/internal/settings"
)

// apiClient is a thin wrapper over the daemon's HTTP API.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type enqueueResult struct {
	JobID string `json:"job_id"`
	Queue string `json:"queue"`
}

func (c *apiClient) enqueueDownload(payload map[string]any) (enqueueResult, error) {
	var result enqueueResult
	err := c.do(http.MethodPost, "/api/jobs/download", payload, &result)
	return result, err
}

type jobsListing struct {
	Counts jobqueue.Counts `json:"counts"`
	Jobs   []*jobqueue.Job `json:"jobs"`
}

func (c *apiClient) listJobs(queue string) (jobsListing, error) {
	var listing jobsListing
	err := c.do(http.MethodGet, "/api/jobs/"+queue, nil, &listing)
	return listing, err
}

func (c *apiClient) getJob(queue, id string) (*jobqueue.Job, error) {
	var job jobqueue.Job
	if err := c.do(http.MethodGet, "/api/jobs/"+queue+"/"+id, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *apiClient) clearQueue(queue string) error {
	return c.do(http.MethodDelete, "/api/jobs/"+queue, nil, nil)
}

func (c *apiClient) workerSummary() (jobstatus.Summary, error) {
	var summary jobstatus.Summary
	err := c.do(http.MethodGet, "/api/worker/jobs/summary", nil, &summary)
	return summary, err
}

type workerListing struct {
	Jobs []jobstatus.Record `json:"jobs"`
}

func (c *apiClient) listWorkerJobs(limit int) ([]jobstatus.Record, error) {
	path := "/api/worker/jobs"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	var listing workerListing
	err := c.do(http.MethodGet, path, nil, &listing)
	return listing.Jobs, err
}

func (c *apiClient) getSettings(friendID int) (settings.Settings, error) {
	var got settings.Settings
	err := c.do(http.MethodGet, fmt.Sprintf("/api/settings/%d", friendID), nil, &got)
	return got, err
}

func (c *apiClient) updateSettings(friendID int, patch settings.Patch) (settings.Settings, error) {
	var got settings.Settings
	err := c.do(http.MethodPatch, fmt.Sprintf("/api/settings/%d", friendID), patch, &got)
	return got, err
}
