package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/depsight/depsight/pkg/errors"
	"github.com/depsight/depsight/pkg/httputil"
)

func (f *Fetcher) getJSON(ctx context.Context, url, token, accept string, v any) error {
	body, err := f.do(ctx, url, token, accept)
	if err != nil {
		return err
	}
	defer body.Close()
	return json.NewDecoder(body).Decode(v)
}

// do performs a GET with retry on transient failures. Auth and not-found
// responses map to FETCH_FAILED: from the pipeline's point of view both mean
// the repository cannot be read with the supplied credential.
func (f *Fetcher) do(ctx context.Context, url, token, accept string) (io.ReadCloser, error) {
	var body io.ReadCloser
	err := httputil.RetryWithBackoff(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", cmpOr(accept, "application/vnd.github.v3+json"))
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := f.httpClient.Do(req)
		if err != nil {
			return &httputil.RetryableError{Err: errors.Wrap(errors.ErrCodeNetwork, err, "github request")}
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			body = resp.Body
			return nil
		case resp.StatusCode == http.StatusNotFound,
			resp.StatusCode == http.StatusUnauthorized,
			resp.StatusCode == http.StatusForbidden:
			resp.Body.Close()
			return errors.New(errors.ErrCodeFetchFailed,
				"github returned %d for %s (private repository or bad credential?)", resp.StatusCode, url)
		case resp.StatusCode >= 500:
			resp.Body.Close()
			return &httputil.RetryableError{Err: fmt.Errorf("github status %d", resp.StatusCode)}
		default:
			resp.Body.Close()
			return errors.New(errors.ErrCodeFetchFailed, "github returned %d for %s", resp.StatusCode, url)
		}
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func cmpOr(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
