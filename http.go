package main

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

var (
	globalTimeout int
)

func sendRequest(ctx context.Context, method, url string, queryParams url.Values, headers map[string]string, body io.Reader, timeout ...int) (*http.Response, error) {
	// Get timeout value, if passed, or use environment variable
	t := globalTimeout
	if len(timeout) > 0 {
		t = timeout[0]
	}

	// Create new HTTP client with timeout
	client := http.Client{
		Timeout: time.Duration(t) * time.Second,
	}

	// Create a new request bound to the caller's context
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}

	// Set query parameters if provided
	if queryParams != nil {
		req.URL.RawQuery = queryParams.Encode()
	}

	// Set headers if provided
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	// Initiate request
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

func readBody(resp *http.Response) ([]byte, error) {
	// Close the body once read to avoid leaking connections
	defer resp.Body.Close()

	// Check for gzipped "Content-Encoding" header
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("error creating gzip reader: %s", err)
		}
		defer gzipReader.Close()

		respBody, err := io.ReadAll(gzipReader)
		if err != nil {
			return nil, fmt.Errorf("error reading decompressed data: %s", err)
		}
		return respBody, nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %s", err)
	}
	return respBody, nil
}
