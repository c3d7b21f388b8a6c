package blur

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"blurclient/internal/domain"
	"blurclient/internal/infra"
)

// ErrMissingBaseURL indicates the client was configured without a service endpoint.
var ErrMissingBaseURL = errors.New("blur: base url is required")

// Options configures the processing-service client.
type Options struct {
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls to the remote blur backend: image processing,
// checkout-session creation and subscription-status lookup.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

// ProcessRequest carries the validated image and caller identity.
type ProcessRequest struct {
	Filename string
	MIME     string
	Data     []byte
	UserID   string
}

// Result is the binary blurred image returned on success.
type Result struct {
	Data        []byte
	ContentType string
}

type errorResponse struct {
	Detail  string `json:"detail"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

type checkoutResponse struct {
	URL     string `json:"url"`
	Session struct {
		URL string `json:"url"`
	} `json:"session"`
}

type statusResponse struct {
	Subscribed bool `json:"subscribed"`
	Active     bool `json:"active"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		l := infra.DiscardLogger()
		logger = &l
	}
	return &Client{baseURL: baseURL, httpClient: httpClient, logger: logger}, nil
}

// Process submits the image for blurring and returns the binary result.
// Entitlement rejections from the backend surface as
// domain.ErrEntitlementRequired; every other failure wraps
// domain.ErrProviderFailure.
func (c *Client) Process(ctx context.Context, req ProcessRequest) (*Result, error) {
	if len(req.Data) == 0 {
		return nil, errors.New("blur: image data is required")
	}
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", req.Filename)
	if err != nil {
		return nil, fmt.Errorf("blur: build multipart: %w", err)
	}
	if _, err := part.Write(req.Data); err != nil {
		return nil, fmt.Errorf("blur: write image part: %w", err)
	}
	if err := writer.WriteField("user_id", req.UserID); err != nil {
		return nil, fmt.Errorf("blur: write user_id part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("blur: finalize multipart: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/process", &body)
	if err != nil {
		return nil, fmt.Errorf("blur: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrProviderFailure, err)
	}

	if resp.StatusCode >= 300 {
		return nil, c.classifyProcessError(resp.StatusCode, raw)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}
	c.logger.Debug().
		Int("bytes", len(raw)).
		Str("content_type", contentType).
		Msg("blur: processed image")
	return &Result{Data: raw, ContentType: contentType}, nil
}

// entitlementVocab matches backend messages that mean "pay up" rather than
// "something broke".
var entitlementVocab = []string{"upgrade", "subscription", "subscribe", "limit reached", "daily limit", "quota"}

func (c *Client) classifyProcessError(status int, raw []byte) error {
	message := decodeErrorMessage(raw)
	if status == http.StatusPaymentRequired || status == http.StatusForbidden {
		return fmt.Errorf("%w: %s", domain.ErrEntitlementRequired, messageOrStatus(message, status))
	}
	lower := strings.ToLower(message)
	for _, word := range entitlementVocab {
		if strings.Contains(lower, word) {
			return fmt.Errorf("%w: %s", domain.ErrEntitlementRequired, message)
		}
	}
	return fmt.Errorf("%w: %s", domain.ErrProviderFailure, messageOrStatus(message, status))
}

// CreateCheckoutSession asks the payment backend for a checkout redirect URL
// for the given plan and identity.
func (c *Client) CreateCheckoutSession(ctx context.Context, plan domain.Plan, userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", domain.ErrMissingIdentity
	}
	endpoint := fmt.Sprintf("%s/create-checkout-session?plan=%s&user_id=%s",
		c.baseURL, url.QueryEscape(string(plan)), url.QueryEscape(userID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("blur: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", domain.ErrProviderFailure, err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: %s", domain.ErrProviderFailure, messageOrStatus(decodeErrorMessage(raw), resp.StatusCode))
	}

	var decoded checkoutResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("%w: decode checkout response: %v", domain.ErrProviderFailure, err)
	}
	// The URL arrives either at the top level or nested under the session.
	checkoutURL := decoded.URL
	if checkoutURL == "" {
		checkoutURL = decoded.Session.URL
	}
	if checkoutURL == "" {
		return "", fmt.Errorf("%w: no checkout url in response", domain.ErrProviderFailure)
	}
	c.logger.Debug().Str("plan", string(plan)).Msg("blur: checkout session created")
	return checkoutURL, nil
}

// SubscriptionStatus reports whether the backend considers the identity
// actively subscribed.
func (c *Client) SubscriptionStatus(ctx context.Context, userID string) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, domain.ErrMissingIdentity
	}
	endpoint := c.baseURL + "/subscription-status?user_id=" + url.QueryEscape(userID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("blur: build request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("%w: read response: %v", domain.ErrProviderFailure, err)
	}
	if resp.StatusCode >= 300 {
		return false, fmt.Errorf("%w: %s", domain.ErrProviderFailure, messageOrStatus(decodeErrorMessage(raw), resp.StatusCode))
	}

	var decoded statusResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return false, fmt.Errorf("%w: decode status response: %v", domain.ErrProviderFailure, err)
	}
	return decoded.Subscribed || decoded.Active, nil
}

func decodeErrorMessage(raw []byte) string {
	var detail errorResponse
	if err := json.Unmarshal(raw, &detail); err == nil {
		for _, candidate := range []string{detail.Detail, detail.Message, detail.Error} {
			if candidate != "" {
				return candidate
			}
		}
	}
	return strings.TrimSpace(string(raw))
}

func messageOrStatus(message string, status int) string {
	if message != "" {
		return message
	}
	return fmt.Sprintf("status %d", status)
}
