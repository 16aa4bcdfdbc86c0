// Package test provides helpers to run the agent in tests without talking to Steam.
package test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SafeMPC/steamguard/internal/api"
	"github.com/SafeMPC/steamguard/internal/api/handlers"
	"github.com/SafeMPC/steamguard/internal/api/httperrors"
	"github.com/SafeMPC/steamguard/internal/config"
	"github.com/SafeMPC/steamguard/internal/guard"
	"github.com/SafeMPC/steamguard/internal/steam"
	"github.com/SafeMPC/steamguard/internal/steamerr"
	"github.com/dropbox/godropbox/time2"
	"github.com/stretchr/testify/require"
)

const (
	// Unix is the time the mock clock of a test server starts at.
	Unix     = 1700000000
	SteamID  = "76561197960287930"
	DeviceID = "android:11111111-2222-3333-4444-555555555555"
	Secret   = "AAAAAAAAAAAAAAAAAAAAAAAAAAA="
)

// Credentials returns authenticator credentials with all-zero secrets.
func Credentials(t *testing.T) *guard.Credentials {
	t.Helper()

	secret, err := base64.StdEncoding.DecodeString(Secret)
	require.NoError(t, err)

	creds, err := guard.NewCredentials(secret, secret, SteamID, DeviceID)
	require.NoError(t, err)
	return creds
}

// WithTestServer runs closure against a fully routed server backed by the given fakes.
func WithTestServer(t *testing.T, session api.Session, confirmations api.Confirmations, closure func(s *api.Server)) {
	t.Helper()

	s := api.NewServer(config.DefaultClientConfigFromEnv(), time2.NewMockClock(time.Unix(Unix, 0)), nil)
	s.Credentials = Credentials(t)
	s.Session = session
	s.Confirmations = confirmations
	s.InitRouter()
	handlers.AttachAllRoutes(s)

	require.True(t, s.Ready())

	closure(s)
}

// PerformRequest sends a request through the server's router without opening a socket.
func PerformRequest(t *testing.T, s *api.Server, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res := httptest.NewRecorder()
	s.Echo.ServeHTTP(res, req)
	return res
}

// ParseResponseAndValidate decodes a JSON response body into v.
func ParseResponseAndValidate(t *testing.T, res *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(res.Result().Body).Decode(v))
}

// RequireHTTPError asserts that res carries the given status and error type.
func RequireHTTPError(t *testing.T, res *httptest.ResponseRecorder, code int, errorType string) {
	t.Helper()

	require.Equal(t, code, res.Code)

	var httpErr httperrors.HTTPError
	ParseResponseAndValidate(t, res, &httpErr)
	require.Equal(t, code, httpErr.Code)
	require.Equal(t, errorType, httpErr.Type)
}

// MockSession reports a fixed liveness. A successful Relogin makes it alive.
type MockSession struct {
	api.Session
	Alive      bool
	Err        error
	ReloginErr error
	Relogins   int
}

func (m *MockSession) Relogin(context.Context) error {
	m.Relogins++
	if m.ReloginErr != nil {
		return m.ReloginErr
	}
	m.Alive = true
	return nil
}

func (m *MockSession) IsAlive(context.Context) (bool, error) {
	return m.Alive, m.Err
}

func (m *MockSession) State() steam.State {
	if m.Alive {
		return steam.StateAuthenticated
	}
	return steam.StateExpired
}

func (m *MockSession) SteamID() string {
	return SteamID
}

// MockConfirmations serves a fixed confirmation queue and records resolutions.
// Each call first consumes one error from Errs, then fails with Err if set.
type MockConfirmations struct {
	api.Confirmations
	Pending  []steam.Confirmation
	Errs     []error
	Err      error
	Resolved []ResolveCall
}

func (m *MockConfirmations) nextErr() error {
	if len(m.Errs) > 0 {
		err := m.Errs[0]
		m.Errs = m.Errs[1:]
		return err
	}
	return m.Err
}

type ResolveCall struct {
	TargetID string
	Action   steam.ConfirmationAction
	Kind     steam.ConfirmationKind
}

func (m *MockConfirmations) List(context.Context) ([]steam.Confirmation, error) {
	if err := m.nextErr(); err != nil {
		return nil, err
	}
	return m.Pending, nil
}

func (m *MockConfirmations) Resolve(_ context.Context, targetID string, action steam.ConfirmationAction, kind steam.ConfirmationKind) (*steam.ConfirmationResult, error) {
	m.Resolved = append(m.Resolved, ResolveCall{TargetID: targetID, Action: action, Kind: kind})

	if err := m.nextErr(); err != nil {
		return nil, err
	}
	for _, c := range m.Pending {
		if c.CreatorID == targetID && c.Kind == kind {
			return &steam.ConfirmationResult{Confirmation: c, Action: action}, nil
		}
	}
	return nil, steamerr.Newf(steamerr.KindConfirmationNotFound, "no pending %s confirmation for %s", kind, targetID)
}
