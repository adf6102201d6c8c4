package audience_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/okuraya/dataglue/audience"
	"github.com/okuraya/dataglue/retry"
)

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(f roundTripperFunc) *http.Client {
	return &http.Client{Transport: f}
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     http.Header{},
	}
}

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts: attempts,
		BaseDelay:   time.Microsecond,
		MaxDelay:    time.Millisecond,
		Multiplier:  2,
	}
}

// newClient builds a client with an unthrottled limiter so multi-chunk
// tests finish instantly.
func newClient(t *testing.T, hc *http.Client, opts ...audience.Option) *audience.Client {
	t.Helper()
	opts = append([]audience.Option{
		audience.WithHTTPClient(hc),
		audience.WithLimiter(rate.NewLimiter(rate.Inf, 0)),
	}, opts...)
	c, err := audience.New("101", "token", opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestClient_Create(t *testing.T) {
	var req *http.Request
	var body []byte
	hc := newTestClient(func(r *http.Request) (*http.Response, error) {
		req = r
		body, _ = io.ReadAll(r.Body)
		return jsonResponse(http.StatusOK, `{"id":"6042"}`), nil
	})

	c := newClient(t, hc)
	id, err := c.Create(context.Background(), "buyers", "repeat buyers")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if id != "6042" {
		t.Errorf(`id should be "6042", but %q`, id)
	}
	if req.Method != http.MethodPost {
		t.Errorf("method should be POST, but %s", req.Method)
	}
	want := "https://graph.facebook.com/v12.0/act_101/customaudiences"
	if got := req.URL.String(); got != want {
		t.Errorf("url should be %q, but %q", want, got)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer token" {
		t.Errorf(`Authorization should be "Bearer token", but %q`, got)
	}

	var m map[string]string
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatalf("body should be json: %v", err)
	}
	if m["name"] != "buyers" || m["subtype"] != "CUSTOM" || m["description"] != "repeat buyers" {
		t.Errorf("body should carry name, subtype and description, but %v", m)
	}
}

func TestClient_Get(t *testing.T) {
	var url string
	hc := newTestClient(func(r *http.Request) (*http.Response, error) {
		url = r.URL.String()
		return jsonResponse(http.StatusOK,
			`{"id":"6042","name":"buyers","approximate_count":4200,"time_updated":1615715213}`), nil
	})

	c := newClient(t, hc)
	a, err := c.Get(context.Background(), "6042")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	want := "https://graph.facebook.com/v12.0/6042" +
		"?fields=id,name,approximate_count,time_updated,time_content_updated"
	if url != want {
		t.Errorf("url should be %q, but %q", want, url)
	}
	if a.ID != "6042" || a.Name != "buyers" || a.ApproximateCount != 4200 {
		t.Errorf("audience fields should come from the response, but %+v", a)
	}
	if a.TimeUpdated.Unix() != 1615715213 {
		t.Errorf("TimeUpdated should convert from epoch seconds, but %v", a.TimeUpdated)
	}
	if !a.TimeContentUpdated.IsZero() {
		t.Errorf("an absent timestamp should stay zero, but %v", a.TimeContentUpdated)
	}
}

func TestClient_AddUsers(t *testing.T) {
	values := make([]string, 26000)
	for i := range values {
		values[i] = fmt.Sprintf("User%05d@Example.com", i)
	}
	values[0] = "  Alice@Example.COM  "

	type request struct {
		schema string
		size   int
		first  string
	}
	var reqs []request
	hc := newTestClient(func(r *http.Request) (*http.Response, error) {
		var body struct {
			Payload struct {
				Schema string     `json:"schema"`
				Data   [][]string `json:"data"`
			} `json:"payload"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("body should be json: %v", err)
		}
		reqs = append(reqs, request{
			schema: body.Payload.Schema,
			size:   len(body.Payload.Data),
			first:  body.Payload.Data[0][0],
		})
		return jsonResponse(http.StatusOK, `{"audience_id":"6042"}`), nil
	})

	c := newClient(t, hc)
	if err := c.AddUsers(context.Background(), "6042", audience.EmailSHA256, values); err != nil {
		t.Fatalf("AddUsers: %v", err)
	}

	sizes := []int{12000, 12000, 2000}
	if len(reqs) != len(sizes) {
		t.Fatalf("26000 users should take %d requests, but %d", len(sizes), len(reqs))
	}
	for i, want := range sizes {
		if reqs[i].size != want {
			t.Errorf("request %d should carry %d users, but %d", i, want, reqs[i].size)
		}
		if reqs[i].schema != "EMAIL_SHA256" {
			t.Errorf("request %d schema should be EMAIL_SHA256, but %q", i, reqs[i].schema)
		}
	}
	if want := "ff8d9819fc0e12bf0d24892e45987e249a28dce836a85cad60e28eaaa8c6d976"; reqs[0].first != want {
		t.Errorf("emails should be normalized and hashed, but %q", reqs[0].first)
	}
}

func TestClient_RemoveUsers(t *testing.T) {
	values := make([]string, 1500)
	for i := range values {
		values[i] = fmt.Sprintf("id-%04d", i)
	}

	var methods []string
	var sizes []int
	var first string
	hc := newTestClient(func(r *http.Request) (*http.Response, error) {
		var body struct {
			Payload struct {
				Data [][]string `json:"data"`
			} `json:"payload"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("body should be json: %v", err)
		}
		methods = append(methods, r.Method)
		sizes = append(sizes, len(body.Payload.Data))
		if first == "" {
			first = body.Payload.Data[0][0]
		}
		return jsonResponse(http.StatusOK, `{}`), nil
	})

	c := newClient(t, hc)
	if err := c.RemoveUsers(context.Background(), "6042", audience.MobileAdvertiserID, values); err != nil {
		t.Fatalf("RemoveUsers: %v", err)
	}

	if len(sizes) != 2 || sizes[0] != 1000 || sizes[1] != 500 {
		t.Errorf("1500 users should split into 1000 and 500, but %v", sizes)
	}
	for _, m := range methods {
		if m != http.MethodDelete {
			t.Errorf("removals should use DELETE, but %s", m)
		}
	}
	if first != "id-0000" {
		t.Errorf("advertiser ids should pass through unhashed, but %q", first)
	}
}

func TestClient_retriesServerError(t *testing.T) {
	var calls int
	hc := newTestClient(func(*http.Request) (*http.Response, error) {
		calls++
		if calls < 3 {
			return jsonResponse(http.StatusInternalServerError, `{}`), nil
		}
		return jsonResponse(http.StatusOK, `{"id":"6042"}`), nil
	})

	c := newClient(t, hc, audience.WithRetryPolicy(fastPolicy(5)))
	id, err := c.Create(context.Background(), "buyers", "")
	if err != nil {
		t.Fatalf("Create should survive transient errors: %v", err)
	}
	if id != "6042" {
		t.Errorf(`id should be "6042", but %q`, id)
	}
	if calls != 3 {
		t.Errorf("two failures should take 3 calls, but %d", calls)
	}
}

func TestClient_retriesTooManyRequests(t *testing.T) {
	var calls int
	hc := newTestClient(func(*http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return jsonResponse(http.StatusTooManyRequests, `{}`), nil
		}
		return jsonResponse(http.StatusOK, `{"id":"1"}`), nil
	})

	c := newClient(t, hc, audience.WithRetryPolicy(fastPolicy(5)))
	if _, err := c.Create(context.Background(), "buyers", ""); err != nil {
		t.Fatalf("Create should survive a 429: %v", err)
	}
	if calls != 2 {
		t.Errorf("a single 429 should take 2 calls, but %d", calls)
	}
}

func TestClient_apiErrorDoesNotRetry(t *testing.T) {
	var calls int
	hc := newTestClient(func(*http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(http.StatusBadRequest,
			`{"error":{"message":"Invalid parameter","type":"OAuthException","code":100}}`), nil
	})

	c := newClient(t, hc, audience.WithRetryPolicy(fastPolicy(5)))
	_, err := c.Create(context.Background(), "buyers", "")
	if err == nil {
		t.Fatal("a structured api error should fail the call")
	}

	var ae *audience.APIError
	if !errors.As(err, &ae) {
		t.Fatalf("error should be an APIError, but %T: %v", err, err)
	}
	if ae.Code != 100 || ae.Type != "OAuthException" || ae.Message != "Invalid parameter" {
		t.Errorf("error fields should come from the response, but %+v", ae)
	}
	if calls != 1 {
		t.Errorf("api errors should not retry, but %d calls", calls)
	}
}

func TestClient_exhausted(t *testing.T) {
	var calls int
	hc := newTestClient(func(*http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(http.StatusServiceUnavailable, `{}`), nil
	})

	c := newClient(t, hc, audience.WithRetryPolicy(fastPolicy(2)))
	_, err := c.Get(context.Background(), "6042")
	if err == nil {
		t.Fatal("persistent failures should exhaust the retry budget")
	}

	var ee *retry.ExhaustedError
	if !errors.As(err, &ee) {
		t.Fatalf("error should be an ExhaustedError, but %T: %v", err, err)
	}
	if ee.Attempts != 2 {
		t.Errorf("Attempts should be 2, but %d", ee.Attempts)
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("error should carry the last status, but %v", err)
	}
	if calls != 2 {
		t.Errorf("budget of 2 should make 2 calls, but %d", calls)
	}
}

func TestNew_invalidOption(t *testing.T) {
	if _, err := audience.New("101", "token", audience.WithHTTPClient(nil)); err == nil {
		t.Error("a nil http client should be rejected")
	}
	if _, err := audience.New("101", "token", audience.WithBaseURL("")); err == nil {
		t.Error("an empty base url should be rejected")
	}
}
