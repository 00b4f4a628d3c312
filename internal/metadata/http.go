package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nikbrunner/paperstack/internal/logging"
)

const userAgent = "paperstack/1.4.1"

// DefaultTimeout bounds each request to a source.
const DefaultTimeout = 10 * time.Second

// ClientOptions configures a source client.
type ClientOptions struct {
	BaseURL    string
	Mailto     string
	Timeout    time.Duration
	Retries    int
	Logger     logrus.FieldLogger
	HTTPClient *http.Client
}

// StatusError is a non-200 response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d", e.URL, e.Code)
}

func (e *StatusError) Unwrap() error {
	return ErrNetwork
}

// fetcher performs GET requests with a per-request timeout and bounded
// retry on transport errors and 5xx responses.
type fetcher struct {
	client  *http.Client
	timeout time.Duration
	retries int
	agent   string
	log     logrus.FieldLogger
	backoff time.Duration
}

func newFetcher(opts ClientOptions) fetcher {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	agent := userAgent
	if opts.Mailto != "" {
		agent += " (mailto:" + opts.Mailto + ")"
	}
	return fetcher{
		client:  client,
		timeout: timeout,
		retries: max(opts.Retries, 0),
		agent:   agent,
		log:     log,
		backoff: 250 * time.Millisecond,
	}
}

// get returns the body of a 200 response.
func (f fetcher) get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, classify(ctx.Err())
			case <-time.After(f.backoff * time.Duration(attempt)):
			}
			f.log.WithFields(logrus.Fields{"url": url, "attempt": attempt}).Debug("retrying")
		}

		body, retry, err := f.once(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return nil, lastErr
}

func (f fetcher) once(ctx context.Context, url string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.agent)

	resp, err := f.client.Do(req)
	if err != nil {
		err = classify(err)
		return nil, !errors.Is(err, context.Canceled), err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, classify(err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode >= 500, &StatusError{URL: url, Code: resp.StatusCode}
	}
	return body, false, nil
}

// classify maps transport errors onto ErrTimeout or ErrNetwork.
func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}
