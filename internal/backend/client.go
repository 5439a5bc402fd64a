package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Entity names exposed by the backend platform
const (
	EntityUser                  = "User"
	EntityOrganisation          = "Organisation"
	EntityOrgInvite             = "OrgInvite"
	EntityEvent                 = "Event"
	EntityEventSignup           = "EventSignup"
	EntityNewsItem              = "NewsItem"
	EntityJobListing            = "JobListing"
	EntitySurvey                = "Survey"
	EntitySurveyResponse        = "SurveyResponse"
	EntityCourseBooking         = "CourseBooking"
	EntityFellowshipApplication = "FellowshipApplication"
	EntityDigitalCredential     = "DigitalCredential"
)

// Serverless functions exposed by the backend platform
const (
	FunctionSendEmail             = "sendEmail"
	FunctionSyncToCRM             = "syncToCRM"
	FunctionAddToMailingListGroup = "addToMailingListGroup"
	FunctionRegisterZoomAttendee  = "registerZoomAttendee"
)

var (
	ErrNotFound     = errors.New("entity not found")
	ErrUnauthorized = errors.New("backend rejected credentials")
)

// APIError is returned for any non-2xx backend response
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
}

// Is maps status codes onto the package sentinels
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	}
	return false
}

// ListParams narrows an entity list call
type ListParams struct {
	// Filter is an equality match on entity fields, sent as JSON in the q parameter
	Filter map[string]interface{}
	// Sort is a field name, prefixed with - for descending order
	Sort  string
	Limit int
}

// Client talks to the backend-as-a-service platform
type Client interface {
	// List decodes the matching entities into out, which must be a pointer to a slice
	List(ctx context.Context, entity string, params *ListParams, out interface{}) error
	// Get decodes a single entity into out
	Get(ctx context.Context, entity, id string, out interface{}) error
	// Create creates an entity and decodes the stored record into out when out is non-nil
	Create(ctx context.Context, entity string, in interface{}, out interface{}) error
	// Update writes fields onto an existing entity by id
	Update(ctx context.Context, entity, id string, fields map[string]interface{}, out interface{}) error
	// UpdateMe updates the profile of the user the call is made on behalf of
	UpdateMe(ctx context.Context, userID string, fields map[string]interface{}) error
	// Invoke calls a serverless function and decodes its JSON result into out when out is non-nil
	Invoke(ctx context.Context, function string, payload interface{}, out interface{}) error
}

// HTTPClientConfig holds settings for the HTTP backend client
type HTTPClientConfig struct {
	BaseURL string
	AppID   string
	APIKey  string
	Timeout time.Duration
}

// HTTPClient implements Client over the backend REST API
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient creates a new backend REST client
func NewHTTPClient(cfg *HTTPClientConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	if cfg.AppID != "" {
		base = fmt.Sprintf("%s/apps/%s", base, url.PathEscape(cfg.AppID))
	}

	return &HTTPClient{
		baseURL: base,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// List fetches entities matching params
func (c *HTTPClient) List(ctx context.Context, entity string, params *ListParams, out interface{}) error {
	query := url.Values{}
	if params != nil {
		if len(params.Filter) > 0 {
			filter, err := json.Marshal(params.Filter)
			if err != nil {
				return fmt.Errorf("failed to encode filter: %w", err)
			}
			query.Set("q", string(filter))
		}
		if params.Sort != "" {
			query.Set("sort", params.Sort)
		}
		if params.Limit > 0 {
			query.Set("limit", strconv.Itoa(params.Limit))
		}
	}

	return c.do(ctx, http.MethodGet, entityPath(entity, ""), query, nil, nil, out)
}

// Get fetches one entity by id
func (c *HTTPClient) Get(ctx context.Context, entity, id string, out interface{}) error {
	return c.do(ctx, http.MethodGet, entityPath(entity, id), nil, nil, nil, out)
}

// Create creates an entity
func (c *HTTPClient) Create(ctx context.Context, entity string, in interface{}, out interface{}) error {
	return c.do(ctx, http.MethodPost, entityPath(entity, ""), nil, nil, in, out)
}

// Update writes fields onto an entity
func (c *HTTPClient) Update(ctx context.Context, entity, id string, fields map[string]interface{}, out interface{}) error {
	return c.do(ctx, http.MethodPut, entityPath(entity, id), nil, nil, fields, out)
}

// UpdateMe updates a user's own profile through the auth endpoint
func (c *HTTPClient) UpdateMe(ctx context.Context, userID string, fields map[string]interface{}) error {
	headers := map[string]string{"X-On-Behalf-Of": userID}
	return c.do(ctx, http.MethodPut, "/auth/me", nil, headers, fields, nil)
}

// Invoke calls a serverless function
func (c *HTTPClient) Invoke(ctx context.Context, function string, payload interface{}, out interface{}) error {
	return c.do(ctx, http.MethodPost, "/functions/"+url.PathEscape(function), nil, nil, payload, out)
}

func entityPath(entity, id string) string {
	p := "/entities/" + url.PathEscape(entity)
	if id != "" {
		p += "/" + url.PathEscape(id)
	}
	return p
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, headers map[string]string, body interface{}, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func errorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Detail  string `json:"detail"`
	}
	if json.Unmarshal(raw, &body) == nil {
		for _, m := range []string{body.Message, body.Error, body.Detail} {
			if m != "" {
				return m
			}
		}
	}
	return strings.TrimSpace(string(raw))
}
