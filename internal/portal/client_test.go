package portal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const loginPage = `<html><body><form method="post">
<input type="hidden" name="__RequestVerificationToken" value="tok-123"/>
<input type="text" name="Input.UserName"/>
</form></body></html>`

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestClient(baseURL string) *Client {
	return NewClient(Options{
		BaseURL:   baseURL,
		Username:  "user",
		Password:  "secret",
		UserAgent: "test",
		Timeout:   time.Second,
	}, testLogger())
}

func TestLoginSubmitsScrapedToken(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Identity/Account/Login" {
			http.NotFound(w, r)
			return
		}
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(loginPage))
			return
		}
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"Input.UserName":             r.PostForm.Get("Input.UserName"),
			"Input.Password":             r.PostForm.Get("Input.Password"),
			"__RequestVerificationToken": r.PostForm.Get("__RequestVerificationToken"),
			"Input.RememberMe":           r.PostForm.Get("Input.RememberMe"),
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	require.NoError(t, c.Login(context.Background()))

	assert.Equal(t, "user", gotForm["Input.UserName"])
	assert.Equal(t, "secret", gotForm["Input.Password"])
	assert.Equal(t, "tok-123", gotForm["__RequestVerificationToken"])
	assert.Equal(t, "false", gotForm["Input.RememberMe"])
}

func TestLoginFailsWithoutToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>no form here</body></html>"))
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Login(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuth)
}

func TestLoginFailsOnRejectedCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(loginPage))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Login(context.Background())
	assert.ErrorIs(t, err, ErrAuth)
}

func TestLoginFailsWithoutCredentials(t *testing.T) {
	c := NewClient(Options{BaseURL: "http://localhost"}, testLogger())
	assert.ErrorIs(t, c.Login(context.Background()), ErrAuth)
}

func TestFetchOutages(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Outage/GetCalendarData" {
			http.NotFound(w, r)
			return
		}
		gotQuery = map[string]string{
			"from":   r.URL.Query().Get("from"),
			"to":     r.URL.Query().Get("to"),
			"acctNo": r.URL.Query().Get("acctNo"),
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"interruptions": []map[string]string{{
				"startTime":            "2025-01-10T10:00:00Z",
				"endTime":              "2025-01-10T14:00:00Z",
				"description":          "Maintenance",
				"interruptionTypeName": "Scheduled",
				"status":               "Confirmed",
			}},
		})
	}))
	defer srv.Close()

	from := time.Date(2025, 1, 9, 8, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 30)

	outages, err := newTestClient(srv.URL).FetchOutages(context.Background(), "4603310609", from, to)
	require.NoError(t, err)

	assert.Equal(t, "2025-01-09", gotQuery["from"])
	assert.Equal(t, "2025-02-08", gotQuery["to"])
	assert.Equal(t, "4603310609", gotQuery["acctNo"])

	require.Len(t, outages, 1)
	assert.Equal(t, "Maintenance", outages[0].Description)
	assert.Equal(t, "Confirmed", outages[0].Status)
}

func TestFetchOutagesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchOutages(context.Background(), "111", time.Now(), time.Now().AddDate(0, 0, 30))
	assert.ErrorIs(t, err, ErrFetch)
}

func TestExtractVerificationTokenMissingValue(t *testing.T) {
	_, err := extractVerificationToken(strings.NewReader(`<input name="__RequestVerificationToken"/>`))
	assert.Error(t, err)
}
