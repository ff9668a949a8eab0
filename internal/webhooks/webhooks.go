// Package webhooks posts a JSON notice to configured URLs after each
// committed upload.
package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/onsitehq/leadq/internal/logging"
	"github.com/onsitehq/leadq/internal/merge"
)

const (
	defaultTimeout     = 500 * time.Millisecond
	defaultConcurrency = 4

	EventUploadCompleted = "upload.completed"
	EventDataCleared     = "data.cleared"
)

// Payload is the body posted to every target.
type Payload struct {
	Event           string    `json:"event"`
	BatchID         string    `json:"batch_id,omitempty"`
	FileName        string    `json:"file_name,omitempty"`
	Source          string    `json:"source,omitempty"`
	NewLeads        int       `json:"new_leads"`
	UpdatedLeads    int       `json:"updated_leads"`
	PhoneMerged     int       `json:"phone_merged"`
	TotalAfterMerge int       `json:"total_after_merge"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// UploadPayload builds the notice for a committed upload.
func UploadPayload(fileName, source string, sum *merge.Summary, at time.Time) Payload {
	return Payload{
		Event:           EventUploadCompleted,
		BatchID:         sum.BatchID,
		FileName:        fileName,
		Source:          source,
		NewLeads:        sum.NewLeads,
		UpdatedLeads:    sum.UpdatedLeads,
		PhoneMerged:     sum.PhoneMerged,
		TotalAfterMerge: sum.TotalAfterMerge,
		OccurredAt:      at.UTC(),
	}
}

// Notifier delivers payloads. A nil or target-less Notifier does nothing.
type Notifier struct {
	urls   []string
	log    logging.Logger
	client *http.Client
}

// New keeps the raw target list; templating happens per payload.
func New(urls []string, logger logging.Logger) *Notifier {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Notifier{
		urls:   urls,
		log:    logger.WithField("component", "webhooks"),
		client: &http.Client{Timeout: defaultTimeout},
	}
}

// Enabled reports whether any target is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.urls) > 0
}

// Notify posts payload to every resolved target and waits for all of them.
// Delivery failures are logged, never returned.
func (n *Notifier) Notify(ctx context.Context, payload Payload) {
	if !n.Enabled() {
		return
	}
	targets := ResolveTargets(n.urls, payload, n.log)
	if len(targets) == 0 {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		n.log.WithField("error", err.Error()).Error("failed to encode payload")
		return
	}

	workers := defaultConcurrency
	if len(targets) < workers {
		workers = len(targets)
	}

	jobs := make(chan string)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for endpoint := range jobs {
				n.send(ctx, endpoint, body)
			}
		}()
	}

	for _, endpoint := range targets {
		jobs <- endpoint
	}
	close(jobs)
	wg.Wait()
}

func (n *Notifier) send(ctx context.Context, endpoint string, body []byte) {
	log := n.log.WithField("url", endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		log.WithField("error", err.Error()).Warn("build request failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		log.WithField("error", err.Error()).Warn("request failed")
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.WithField("status", resp.StatusCode).Warn("target rejected notice")
	}
}

// ResolveTargets templates, normalizes, validates and de-dupes urls.
// {event}, {batch_id} and {source} are substituted from payload.
func ResolveTargets(urls []string, payload Payload, logger logging.Logger) []string {
	if len(urls) == 0 {
		return nil
	}
	if logger == nil {
		logger = logging.Nop()
	}

	seen := make(map[string]struct{}, len(urls))
	var normalized []string

	for _, raw := range urls {
		templated := strings.TrimSpace(applyTemplate(strings.TrimSpace(raw), payload))
		templated = strings.TrimRight(templated, "/")
		if templated == "" {
			continue
		}
		if !isValidURL(templated) {
			logger.WithField("url", templated).Warn("skipping invalid webhook url")
			continue
		}
		if _, ok := seen[templated]; ok {
			continue
		}
		seen[templated] = struct{}{}
		normalized = append(normalized, templated)
	}

	return normalized
}

func applyTemplate(raw string, payload Payload) string {
	result := strings.ReplaceAll(raw, "{event}", payload.Event)
	result = strings.ReplaceAll(result, "{batch_id}", payload.BatchID)
	result = strings.ReplaceAll(result, "{source}", url.PathEscape(payload.Source))
	return result
}

func isValidURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return parsed.Host != ""
}
