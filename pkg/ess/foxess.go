package ess

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/wattledger/wattledger/pkg/common"
	"github.com/wattledger/wattledger/pkg/log"
)

const (
	foxReportPath   = "/op/v0/device/report/query"
	foxHistoryPath  = "/op/v0/device/history/query"
	foxRealtimePath = "/op/v0/device/real/query"
	foxDeviceList   = "/op/v0/device/list"
	foxMonthEnergy  = "/op/v1/device/energy/month"

	// errnoRateLimited is returned when requests are too frequent.
	errnoRateLimited = 40400
)

// DefaultAuthErrnos are the errno values the API uses for a rejected token
// or signature.
var DefaultAuthErrnos = []int{40256, 40257, 41807, 41808, 41809}

// FoxESS implements System against the FoxESS cloud OpenAPI.
//
// Every request is signed; since the exact signing separator isn't reliably
// documented, each call tries every Separator until one is accepted.
type FoxESS struct {
	client     *http.Client
	baseURL    string
	token      string
	lang       string
	timeZone   string
	location   *time.Location
	authErrnos map[int]bool
	retry      common.RetryPolicy
	clock      clock.Clock

	mu sync.Mutex
	sn string
}

func newFoxESS() *FoxESS {
	f := &FoxESS{
		client:   common.HTTPClient(time.Minute),
		baseURL:  "https://www.foxesscloud.com",
		lang:     "pl",
		timeZone: "Europe/Warsaw",
		location: time.UTC,
		retry:    common.DefaultRetryPolicy(),
		clock:    clock.New(),
	}
	f.setAuthErrnos(DefaultAuthErrnos)
	f.retry.Retryable = IsRetryable
	return f
}

func (f *FoxESS) setAuthErrnos(errnos []int) {
	f.authErrnos = make(map[int]bool, len(errnos))
	for _, e := range errnos {
		f.authErrnos[e] = true
	}
}

// Validate ensures the configuration is valid.
func (f *FoxESS) Validate() error {
	if f.token == "" {
		return errors.New("foxess-token is required")
	}
	if f.baseURL == "" {
		return errors.New("foxess-api-url is required")
	}
	if _, err := url.Parse(f.baseURL); err != nil {
		return fmt.Errorf("failed to parse foxess url (%s): %w", f.baseURL, err)
	}
	if f.location == nil {
		return errors.New("foxess location is required")
	}
	return nil
}

// Location returns the timezone the inverter's days are reported in.
func (f *FoxESS) Location() *time.Location {
	return f.location
}

type foxResponse struct {
	Errno  *int            `json:"errno"`
	Msg    string          `json:"msg"`
	Result json.RawMessage `json:"result"`
}

// post sends body to path, retrying transport errors with backoff. bodies
// are alternative field-naming conventions for the same request and are
// tried in order until one is accepted.
func (f *FoxESS) post(ctx context.Context, path string, bodies ...map[string]any) (json.RawMessage, error) {
	return common.RetryValue(ctx, f.retry, func(ctx context.Context) (json.RawMessage, error) {
		return f.probe(ctx, path, bodies)
	})
}

func (f *FoxESS) probe(ctx context.Context, path string, bodies []map[string]any) (json.RawMessage, error) {
	ts := f.clock.Now().UnixMilli()
	sigs := Signatures(path, f.token, ts)

	var lastErr error
	for _, body := range bodies {
		res, err := f.probeSignatures(ctx, path, body, ts, sigs)
		if err == nil {
			return res, nil
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			return nil, err
		}
		log.Ctx(ctx).DebugContext(
			ctx,
			"foxess rejected request body, trying next naming",
			slog.String("path", path),
			slog.Int("errno", apiErr.Errno),
			slog.String("msg", apiErr.Msg),
		)
		lastErr = err
	}
	return nil, lastErr
}

// probeSignatures tries each signature encoding in order and returns the
// result of the first response with errno 0.
func (f *FoxESS) probeSignatures(ctx context.Context, path string, body map[string]any, ts int64, sigs []Signature) (json.RawMessage, error) {
	authErr := &AuthError{Path: path, Tried: len(sigs)}
	for _, sig := range sigs {
		fr, err := f.do(ctx, path, body, ts, sig)
		if err != nil {
			return nil, err
		}
		if *fr.Errno == 0 {
			log.Ctx(ctx).DebugContext(ctx, "foxess accepted signature", slog.String("path", path), slog.String("separator", sig.Separator.Name()))
			return fr.Result, nil
		}
		if err := f.errnoError(path, fr); err != nil {
			return nil, err
		}
		authErr.Errno = *fr.Errno
		authErr.Msg = fr.Msg
	}
	log.Ctx(ctx).WarnContext(ctx, "foxess rejected every signature encoding", slog.String("path", path), slog.Int("errno", authErr.Errno))
	return nil, authErr
}

// errnoError returns the error for a response with a non-zero errno, or nil
// if the errno means the signature was rejected and the next encoding should
// be tried.
func (f *FoxESS) errnoError(path string, fr foxResponse) error {
	errno := *fr.Errno
	switch {
	case f.authErrnos[errno]:
		return nil
	case errno == errnoRateLimited:
		return &TransportError{Path: path, Err: fmt.Errorf("rate limited: %s", fr.Msg)}
	default:
		return &APIError{Path: path, Errno: errno, Msg: fr.Msg}
	}
}

func (f *FoxESS) do(ctx context.Context, path string, body map[string]any, ts int64, sig Signature) (foxResponse, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return foxResponse{}, fmt.Errorf("failed to encode body: %w", err)
	}
	u, err := url.JoinPath(f.baseURL, path)
	if err != nil {
		return foxResponse{}, fmt.Errorf("failed to build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return foxResponse{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("token", f.token)
	req.Header.Set("timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("signature", sig.Value)
	req.Header.Set("sign", sig.Value)
	req.Header.Set("lang", f.lang)

	resp, err := f.client.Do(req)
	if err != nil {
		return foxResponse{}, &TransportError{Path: path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return foxResponse{}, &TransportError{Path: path, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return foxResponse{}, &TransportError{Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status: %s", bytes.TrimSpace(raw))}
	}

	var fr foxResponse
	if err := json.Unmarshal(raw, &fr); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to decode foxess response", slog.Any("error", err), slog.String("body", string(raw)))
		return foxResponse{}, &TransportError{Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if fr.Errno == nil {
		return foxResponse{}, &TransportError{Path: path, StatusCode: resp.StatusCode, Err: errors.New("response missing errno")}
	}
	return fr, nil
}
