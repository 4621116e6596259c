// Package classroom is a read-only client for the Google Classroom REST API v1.
//
// List calls return a Listing: a 403 on a list means the caller may not see
// that collection and is reported as Forbidden rather than as an error. Get
// calls surface 403 and 404 as ErrPermissionDenied and ErrNotFound. Every
// other failure is a *ResourceFetchError.
package classroom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"golang.org/x/oauth2"

	"github.com/semillerodigital/classroomplus/internal/model"
)

// Defaults for Options fields left zero.
const (
	DefaultBaseURL       = "https://classroom.googleapis.com"
	DefaultUserInfoURL   = "https://openidconnect.googleapis.com/v1/userinfo"
	DefaultTokenURL      = "https://oauth2.googleapis.com/token"
	DefaultPageSize      = 100
	DefaultRetryInterval = 500 * time.Millisecond
)

var (
	// ErrPermissionDenied is returned when Classroom answers 403 on a single resource.
	ErrPermissionDenied = errors.New("classroom: permission denied")
	// ErrNotFound is returned when Classroom answers 404.
	ErrNotFound = errors.New("classroom: not found")
)

// Resource names the kind of object a request was for.
type Resource string

const (
	ResourceCourses     Resource = "courses"
	ResourceCourse      Resource = "course"
	ResourceCourseWork  Resource = "coursework"
	ResourceSubmissions Resource = "submissions"
	ResourceStudents    Resource = "students"
	ResourceTeachers    Resource = "teachers"
	ResourceUserInfo    Resource = "userinfo"
)

// ResourceFetchError describes a failed upstream request.
type ResourceFetchError struct {
	Resource     Resource
	CourseID     string
	CourseWorkID string
	Status       int // HTTP status, 0 for transport failures
	Message      string
	Err          error
}

func (e *ResourceFetchError) Error() string {
	var sb strings.Builder
	sb.WriteString("fetch ")
	sb.WriteString(string(e.Resource))
	if e.CourseID != "" {
		sb.WriteString(" course=" + e.CourseID)
	}
	if e.CourseWorkID != "" {
		sb.WriteString(" coursework=" + e.CourseWorkID)
	}
	if e.Status != 0 {
		fmt.Fprintf(&sb, ": status %d", e.Status)
	}
	if e.Message != "" {
		sb.WriteString(": " + e.Message)
	}
	if e.Err != nil && e.Message == "" {
		sb.WriteString(": " + e.Err.Error())
	}
	return sb.String()
}

func (e *ResourceFetchError) Unwrap() error { return e.Err }

func (e *ResourceFetchError) retryable() bool {
	// A rejected token refresh fails the same way on every attempt.
	var re *oauth2.RetrieveError
	if errors.As(e.Err, &re) {
		return false
	}
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Listing is one list call's result.
type Listing[T any] struct {
	Items         []T
	Forbidden     bool   // upstream answered 403; Items holds only pages read before it
	NextPageToken string // set when more pages exist and were not followed
}

// Options tune a Client. Zero values select the defaults.
type Options struct {
	BaseURL       string
	UserInfoURL   string
	PageSize      int
	FollowPages   bool          // follow nextPageToken instead of returning one page
	MaxPages      int           // cap on pages when following, 0 for no cap
	Timeout       time.Duration // per request, 0 disables
	MaxRetries    int           // retries of 429/5xx/transport errors, 0 disables
	RetryInterval time.Duration // initial backoff interval
}

func (o Options) withDefaults() Options {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if o.UserInfoURL == "" {
		o.UserInfoURL = DefaultUserInfoURL
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = DefaultRetryInterval
	}
	return o
}

// Client issues Classroom requests on behalf of one user. It is cheap to
// create and meant to live for a single request.
type Client struct {
	http *http.Client
	opts Options
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// New creates a Client that sends requests through httpClient, which is
// expected to add the caller's credentials.
func New(httpClient *http.Client, opts Options) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{http: httpClient, opts: opts.withDefaults()}
}

// OAuthConfig holds the application's OAuth client used to refresh a user's
// access token.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// HTTPClient returns a client that authorizes with accessToken. When a refresh
// token and client credentials are available, expired tokens are refreshed.
func (c OAuthConfig) HTTPClient(ctx context.Context, accessToken, refreshToken string) *http.Client {
	tok := &oauth2.Token{AccessToken: accessToken, RefreshToken: refreshToken, TokenType: "Bearer"}
	if refreshToken == "" || c.ClientID == "" {
		return oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))
	}
	tokenURL := c.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	cfg := &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams},
	}
	return cfg.Client(ctx, tok)
}

// Factory builds per-request clients for authenticated identities.
type Factory struct {
	OAuth   OAuthConfig
	Options Options
}

// ForIdentity returns a Client acting as id.
func (f Factory) ForIdentity(ctx context.Context, id *model.Identity) *Client {
	return New(f.OAuth.HTTPClient(ctx, id.AccessToken, id.RefreshToken), f.Options)
}

// ref identifies the object a request is about, for error reporting.
type ref struct {
	resource     Resource
	courseID     string
	courseWorkID string
}

func (r ref) fail(status int, msg string, err error) *ResourceFetchError {
	return &ResourceFetchError{
		Resource:     r.resource,
		CourseID:     r.courseID,
		CourseWorkID: r.courseWorkID,
		Status:       status,
		Message:      msg,
		Err:          err,
	}
}

// apiError is Google's JSON error body.
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (c *Client) get(ctx context.Context, r ref, rawURL string, q url.Values, out any) error {
	if len(q) > 0 {
		rawURL += "?" + q.Encode()
	}
	if c.opts.MaxRetries <= 0 {
		return c.getOnce(ctx, r, rawURL, out)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.RetryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.opts.MaxRetries)), ctx)
	return backoff.Retry(func() error {
		err := c.getOnce(ctx, r, rawURL, out)
		var fe *ResourceFetchError
		if errors.As(err, &fe) && fe.retryable() {
			slog.Debug("retrying classroom request", "resource", r.resource, "course_id", r.courseID, "status", fe.Status)
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, policy)
}

func (c *Client) getOnce(ctx context.Context, r ref, rawURL string, out any) error {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return r.fail(0, "", fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return r.fail(0, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var ae apiError
		msg := ""
		if json.Unmarshal(body, &ae) == nil {
			msg = ae.Error.Message
		}
		switch resp.StatusCode {
		case http.StatusForbidden:
			return r.fail(resp.StatusCode, msg, ErrPermissionDenied)
		case http.StatusNotFound:
			return r.fail(resp.StatusCode, msg, ErrNotFound)
		}
		return r.fail(resp.StatusCode, msg, errors.New(http.StatusText(resp.StatusCode)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return r.fail(resp.StatusCode, "", fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// list fetches one page, or several when FollowPages is set, of the JSON
// array stored under field.
func list[D any, T any](ctx context.Context, c *Client, r ref, rawURL string, q url.Values, field string, convert func(D) (T, error)) (Listing[T], error) {
	if q == nil {
		q = url.Values{}
	}
	q.Set("pageSize", strconv.Itoa(c.opts.PageSize))

	var out Listing[T]
	for pages := 1; ; pages++ {
		var raw map[string]json.RawMessage
		err := c.get(ctx, r, rawURL, q, &raw)
		if errors.Is(err, ErrPermissionDenied) {
			slog.Debug("classroom list forbidden", "resource", r.resource, "course_id", r.courseID, "coursework_id", r.courseWorkID, "page", pages)
			// Keep what earlier pages returned.
			return Listing[T]{Items: out.Items, Forbidden: true}, nil
		}
		if err != nil {
			return Listing[T]{}, err
		}

		var items []D
		if b, ok := raw[field]; ok {
			if err := json.Unmarshal(b, &items); err != nil {
				return Listing[T]{}, r.fail(http.StatusOK, "", fmt.Errorf("decode %s: %w", field, err))
			}
		}
		for _, d := range items {
			v, err := convert(d)
			if err != nil {
				slog.Warn("dropping invalid classroom record", "resource", r.resource, "course_id", r.courseID, "error", err)
				continue
			}
			out.Items = append(out.Items, v)
		}

		out.NextPageToken = ""
		if b, ok := raw["nextPageToken"]; ok {
			_ = json.Unmarshal(b, &out.NextPageToken)
		}
		if out.NextPageToken == "" || !c.opts.FollowPages || (c.opts.MaxPages > 0 && pages >= c.opts.MaxPages) {
			return out, nil
		}
		q.Set("pageToken", out.NextPageToken)
	}
}

func (c *Client) url(parts ...string) string {
	var sb strings.Builder
	sb.WriteString(c.opts.BaseURL)
	sb.WriteString("/v1")
	for _, p := range parts {
		sb.WriteByte('/')
		sb.WriteString(url.PathEscape(p))
	}
	return sb.String()
}
