// Package upstream holds what the three source clients share: the HTTP call
// helper with per-call timeout enforcement and the mapping from transport
// failures to domain error codes. Clients are stateless, retry nothing, and
// normalize payloads before anything leaves the package boundary.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	dErrors "konkurs/pkg/domain-errors"
)

// maxBodyBytes caps upstream response bodies; these services return small
// JSON documents and anything larger is malformed.
const maxBodyBytes = 4 << 20

// GetJSON issues a GET with the source's fixed timeout and decodes the
// response into v. Error codes: upstream_timeout on deadline, not_found on
// 404, upstream_unavailable otherwise.
func GetJSON(ctx context.Context, client *http.Client, url string, timeout time.Duration, v any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return dErrors.Wrap(err, dErrors.CodeUpstreamTimeout, "upstream call timed out")
		}
		return dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "upstream call failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return dErrors.New(dErrors.CodeNotFound, "upstream record not found")
	case resp.StatusCode >= 400:
		return dErrors.Newf(dErrors.CodeUpstreamUnavailable, "upstream returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "read upstream response")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "malformed upstream response")
	}
	return nil
}

// dateFormats are the date layouts the sources are known to emit.
var dateFormats = []string{"2006-01-02", "02-01-2006", "02/01/2006"}

// ParseDate canonicalizes an upstream date string to YYYY-MM-DD.
func ParseDate(value string) (string, error) {
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("unsupported date format: %q", value)
}
