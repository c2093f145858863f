package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"
)

const (
	loginPath    = "/Identity/Account/Login"
	calendarPath = "/Outage/GetCalendarData"

	// Form field the login page hides its anti-forgery token in.
	verificationTokenField = "__RequestVerificationToken"

	queryDateLayout = "2006-01-02"
)

// Options parameterise the portal client.
type Options struct {
	BaseURL   string
	Username  string
	Password  string
	UserAgent string
	Timeout   time.Duration
}

// Client talks to the CEB Care portal. Login establishes a cookie-backed
// session; subsequent calendar queries ride on the same jar.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewClient constructs a portal client with its own cookie session.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://cebcare.ceb.lk"
	}

	jar, _ := cookiejar.New(nil)

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "portal_client").Logger(),
		client:  &http.Client{Timeout: timeout, Jar: jar},
		baseURL: baseURL,
	}
}

// Login fetches the login page, extracts the anti-forgery token, and posts
// the credential form. All failures wrap ErrAuth.
func (c *Client) Login(ctx context.Context) error {
	if c.opts.Username == "" || c.opts.Password == "" {
		return fmt.Errorf("%w: credentials not configured", ErrAuth)
	}

	loginURL := c.baseURL + loginPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loginURL, nil)
	if err != nil {
		return fmt.Errorf("%w: create login page request: %v", ErrAuth, err)
	}
	c.setCommonHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: fetch login page: %v", ErrAuth, err)
	}
	pageBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("%w: read login page: %v", ErrAuth, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: login page returned %d", ErrAuth, resp.StatusCode)
	}

	token, err := extractVerificationToken(strings.NewReader(string(pageBody)))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}

	form := url.Values{}
	form.Set("Input.UserName", c.opts.Username)
	form.Set("Input.Password", c.opts.Password)
	form.Set(verificationTokenField, token)
	form.Set("Input.RememberMe", "false")

	postReq, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: create login request: %v", ErrAuth, err)
	}
	c.setCommonHeaders(postReq)
	postReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	postResp, err := c.client.Do(postReq)
	if err != nil {
		return fmt.Errorf("%w: submit login form: %v", ErrAuth, err)
	}
	defer postResp.Body.Close()
	_, _ = io.Copy(io.Discard, postResp.Body)

	if postResp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: login returned %d", ErrAuth, postResp.StatusCode)
	}

	c.logger.Info().Msg("portal login succeeded")
	return nil
}

// FetchOutages queries the calendar endpoint for one account. Failures wrap
// ErrFetch so callers can skip the account and continue.
func (c *Client) FetchOutages(ctx context.Context, accountNumber string, from, to time.Time) ([]RawOutage, error) {
	query := url.Values{}
	query.Set("from", from.Format(queryDateLayout))
	query.Set("to", to.Format(queryDateLayout))
	query.Set("acctNo", accountNumber)

	endpoint := c.baseURL + calendarPath + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create calendar request: %v", ErrFetch, err)
	}
	c.setCommonHeaders(req)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: calendar request: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read calendar response: %v", ErrFetch, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: calendar returned %d for account %s", ErrFetch, resp.StatusCode, accountNumber)
	}

	outages, err := decodeCalendarPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	c.logger.Debug().Str("account", accountNumber).Int("outages", len(outages)).Msg("calendar data fetched")
	return outages, nil
}

func (c *Client) setCommonHeaders(req *http.Request) {
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "cebwatcher/1.0")
	}
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,si;q=0.8")
	req.Header.Set("Cache-Control", "no-cache")
}

// extractVerificationToken walks the login page DOM looking for the hidden
// anti-forgery input.
func extractVerificationToken(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse login page: %v", err)
	}

	var token string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if token != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "input" {
			var name, value string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "name":
					name = attr.Val
				case "value":
					value = attr.Val
				}
			}
			if name == verificationTokenField {
				token = value
				return
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	if token == "" {
		return "", fmt.Errorf("verification token not found in login page")
	}
	return token, nil
}

type calendarResponse struct {
	Interruptions []RawOutage `json:"interruptions"`
}

func decodeCalendarPayload(payload []byte) ([]RawOutage, error) {
	var decoded calendarResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode calendar payload: %v", err)
	}
	return decoded.Interruptions, nil
}

var _ OutageFetcher = (*Client)(nil)
