package api

import (
	"net/http/httptest"
	"testing"

	"github.com/worldstream/server/internal/config"
	"github.com/worldstream/server/internal/testutil"
)

// newTestServices wires services over an in-memory archive and closes every
// session and connection when the test ends.
func newTestServices(t *testing.T, mods ...func(*config.Config)) *Services {
	t.Helper()
	cfg := testutil.TestConfig()
	for _, mod := range mods {
		mod(cfg)
	}
	svc := NewServices(cfg, testutil.SetupTestDB(t))
	t.Cleanup(func() {
		svc.Hub.CloseAll()
		svc.Registry.CloseAll()
	})
	return svc
}

func newTestHelper(t *testing.T, mods ...func(*config.Config)) (*Services, *testutil.HTTPTestHelper) {
	t.Helper()
	svc := newTestServices(t, mods...)
	return svc, testutil.NewHTTPTestHelper(NewRouter(svc))
}

// createSession creates a session through the API and returns its response.
func createSession(t *testing.T, helper *testutil.HTTPTestHelper, body interface{}) SessionResponse {
	t.Helper()
	rr := helper.MakeRequest("POST", "/api/sessions", body)
	if rr.Code != 201 {
		t.Fatalf("create session: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp SessionResponse
	testutil.DecodeJSON(t, rr, &resp)
	return resp
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	testutil.DecodeJSON(t, rr, v)
}
