package net

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const (
	maxIdleConns     = 10
	timeoutInSeconds = 60
	clientAgent      = "sbmi (+https://github.com/mchmarny/sbmi)"
)

var (
	reqTransport = &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          maxIdleConns,
		IdleConnTimeout:       timeoutInSeconds * time.Second,
		DisableCompression:    false,
		DisableKeepAlives:     false,
		ResponseHeaderTimeout: time.Duration(timeoutInSeconds) * time.Second,
	}

	ErrorURLNotFound = errors.New("URL not found")
)

func getResp(ctx context.Context, url string) (*http.Response, error) {
	c, err := GetHTTPClient()
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP client: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP Get request: %w", err)
	}

	req.Header.Set("User-Agent", clientAgent)

	resp, err := c.Do(req) //nolint:gosec // URL comes from the operator's own flags
	if err != nil {
		return nil, fmt.Errorf("error executing HTTP Get request: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrorURLNotFound, url)
	case resp.StatusCode != http.StatusOK:
		PrintHTTPResponse(resp)
		resp.Body.Close()
		return nil, fmt.Errorf("error downloading file (status: %d - %s): %s", resp.StatusCode, resp.Status, url)
	}

	return resp, nil
}

// GetReader returns the body of url. The caller closes it.
func GetReader(ctx context.Context, url string) (io.ReadCloser, error) {
	resp, err := getResp(ctx, url)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Download saves the content of url into filepath.
func Download(ctx context.Context, url string, filepath string) (retErr error) {
	resp, err := getResp(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	out, err := os.Create(filepath)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", filepath, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && retErr == nil {
			retErr = fmt.Errorf("closing file: %w", cerr)
		}
	}()

	if _, err = io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("error saving downloaded content to file: %w", err)
	}

	return nil
}
