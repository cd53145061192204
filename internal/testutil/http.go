package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/worldstream/server/internal/auth"
)

// HTTPTestHelper drives a handler in-process with JSON request bodies.
type HTTPTestHelper struct {
	Handler http.Handler
}

// NewHTTPTestHelper creates a new HTTP test helper
func NewHTTPTestHelper(handler http.Handler) *HTTPTestHelper {
	return &HTTPTestHelper{Handler: handler}
}

// Do sends body encoded as JSON. A nil body sends an empty request with a
// zero content length.
func (h *HTTPTestHelper) Do(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var raw []byte
	if body != nil {
		var err error
		if raw, err = json.Marshal(body); err != nil {
			panic(err)
		}
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	rr := httptest.NewRecorder()
	h.Handler.ServeHTTP(rr, req)
	return rr
}

// MakeRequest sends an anonymous request.
func (h *HTTPTestHelper) MakeRequest(method, path string, body interface{}) *httptest.ResponseRecorder {
	return h.Do(method, path, body, nil)
}

// MakeRequestWithHeaders sends a request with extra headers.
func (h *HTTPTestHelper) MakeRequestWithHeaders(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	return h.Do(method, path, body, headers)
}

// MakeAuthorizedRequest sends a request carrying a bearer token.
func (h *HTTPTestHelper) MakeAuthorizedRequest(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	return h.Do(method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// DecodeJSON decodes the recorded body into v.
func DecodeJSON(t testing.TB, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode %d response %q: %v", rr.Code, rr.Body.String(), err)
	}
}

// AssertError checks the status and the code of an error response.
func AssertError(t testing.TB, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
	var resp auth.ErrorResponse
	DecodeJSON(t, rr, &resp)
	if resp.Code != code {
		t.Errorf("expected error code %q, got %q (%s)", code, resp.Code, resp.Message)
	}
}
