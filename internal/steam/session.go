package steam

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/SafeMPC/steamguard/internal/config"
	"github.com/SafeMPC/steamguard/internal/guard"
	"github.com/SafeMPC/steamguard/internal/metrics"
	"github.com/SafeMPC/steamguard/internal/steamerr"
	"github.com/SafeMPC/steamguard/internal/storage"
	"github.com/dropbox/godropbox/time2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

var invalidAPIKeyMarker = []byte("Please verify your <pre>key=</pre> parameter")

// Session is an authenticated identity on Steam.
//
// mu guards the state, the transport pointer and the identity fields. It is held only while
// these are read or replaced; handshakes run on a private transport that is installed once
// they succeed, so a relogin never disturbs requests already in flight.
type Session struct {
	cfg        config.Steam
	clock      time2.Clock
	store      storage.SessionStore
	metrics    *metrics.Metrics
	baseClient *http.Client

	mu        sync.Mutex
	state     State
	transport *Transport
	steamID   string
	apiKey    string
	username  string
	password  string
	creds     *guard.Credentials
}

type SessionOption func(*Session)

func WithClock(clock time2.Clock) SessionOption {
	return func(s *Session) { s.clock = clock }
}

func WithStore(store storage.SessionStore) SessionOption {
	return func(s *Session) { s.store = store }
}

func WithMetrics(m *metrics.Metrics) SessionOption {
	return func(s *Session) { s.metrics = m }
}

// WithHTTPClient sets the client whose round tripper and timeout every transport reuses.
func WithHTTPClient(client *http.Client) SessionOption {
	return func(s *Session) { s.baseClient = client }
}

// NewSession returns an unauthenticated session.
func NewSession(cfg config.Steam, opts ...SessionOption) *Session {
	s := &Session{
		cfg:    cfg,
		clock:  time2.DefaultClock,
		state:  StateUnauthenticated,
		apiKey: cfg.APIKey,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) newTransport() *Transport {
	return NewTransport(s.baseClient, s.cfg.Timeout, s.metrics)
}

// Login authenticates with the given username, password and authenticator credentials.
// It must be called on an unauthenticated session.
func (s *Session) Login(ctx context.Context, username, password string, creds *guard.Credentials) error {
	if creds == nil {
		return steamerr.New(steamerr.KindInvalidSecret, "credentials are required")
	}

	s.mu.Lock()
	if s.state != StateUnauthenticated {
		state := s.state
		s.mu.Unlock()
		return steamerr.Newf(steamerr.KindLoginFailed, "login requires an unauthenticated session, session is %s", state)
	}
	s.state = StateAuthenticating
	s.mu.Unlock()

	return s.authenticate(ctx, username, password, creds, StateUnauthenticated)
}

// Relogin repeats the handshake with the credentials of the last successful Login.
// An authenticated session is expired first, so a failed relogin always leaves the
// session Expired. Requests already in flight finish on the previous transport.
func (s *Session) Relogin(ctx context.Context) error {
	s.mu.Lock()
	if s.creds == nil {
		s.mu.Unlock()
		return steamerr.New(steamerr.KindLoginRequired, "use login method first")
	}
	if s.state == StateAuthenticating {
		s.mu.Unlock()
		return steamerr.New(steamerr.KindLoginFailed, "login already in progress")
	}
	s.expireLocked()
	s.state = StateAuthenticating
	username, password, creds := s.username, s.password, s.creds
	s.mu.Unlock()

	return s.authenticate(ctx, username, password, creds, StateExpired)
}

// authenticate runs the handshake on a fresh transport and installs it on success.
// On failure the session falls back to onFailure.
func (s *Session) authenticate(ctx context.Context, username, password string, creds *guard.Credentials, onFailure State) error {
	transport := s.newTransport()
	executor := &loginExecutor{
		cfg:       s.cfg,
		transport: transport,
		clock:     s.clock,
		username:  username,
		password:  password,
		creds:     creds,
	}

	steamID, err := executor.login(ctx)
	if err != nil {
		err = classifyLoginError(err)
		s.metrics.ObserveLogin(steamerr.KindOf(err).String())
		log.Warn().Err(err).Str("username", username).Msg("Steam login failed")

		s.mu.Lock()
		s.state = onFailure
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.transport = transport
	s.steamID = steamID
	s.username = username
	s.password = password
	s.creds = creds
	s.state = StateAuthenticated
	s.mu.Unlock()

	s.metrics.ObserveLogin("success")
	log.Info().Str("username", username).Str("steam_id", steamID).Msg("Steam login successful")

	s.saveSnapshot(ctx, username, transport, steamID)
	return nil
}

// classifyLoginError keeps the kinds a caller can act on and reports everything else as LoginFailed.
func classifyLoginError(err error) error {
	switch steamerr.KindOf(err) {
	case steamerr.KindInvalidCredentials,
		steamerr.KindCaptchaRequired,
		steamerr.KindTooManyRequests,
		steamerr.KindInvalidSecret,
		steamerr.KindLoginFailed:
		return err
	default:
		return steamerr.Wrap(steamerr.KindLoginFailed, err, "something bad occurred during login")
	}
}

// Resume restores a stored session for username if the server still honors it and
// performs a full Login otherwise.
func (s *Session) Resume(ctx context.Context, username, password string, creds *guard.Credentials) error {
	if creds == nil {
		return steamerr.New(steamerr.KindInvalidSecret, "credentials are required")
	}
	if s.State() != StateUnauthenticated {
		return steamerr.Newf(steamerr.KindLoginFailed, "resume requires an unauthenticated session, session is %s", s.State())
	}
	if s.store == nil {
		return s.Login(ctx, username, password, creds)
	}

	snapshot, err := s.store.Load(ctx, username)
	if err != nil {
		if !errors.Is(err, storage.ErrSessionNotFound) {
			log.Warn().Err(err).Str("username", username).Msg("Failed to load stored session, logging in")
		}
		return s.Login(ctx, username, password, creds)
	}

	transport := s.newTransport()
	for rawURL, cookies := range snapshot.Cookies {
		if err := transport.SetCookies(rawURL, cookies); err != nil {
			log.Warn().Err(err).Str("url", rawURL).Msg("Skipping stored cookies")
		}
	}

	alive, err := s.probe(ctx, transport)
	if err != nil || !alive {
		log.Info().Err(err).Str("username", username).Msg("Stored session is no longer valid, logging in")
		return s.Login(ctx, username, password, creds)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUnauthenticated {
		return steamerr.Newf(steamerr.KindLoginFailed, "resume requires an unauthenticated session, session is %s", s.state)
	}

	s.transport = transport
	s.steamID = snapshot.SteamID
	s.username = username
	s.password = password
	s.creds = creds
	s.state = StateAuthenticated

	log.Info().Str("username", username).Str("steam_id", snapshot.SteamID).Msg("Resumed stored Steam session")
	return nil
}

func (s *Session) saveSnapshot(ctx context.Context, username string, transport *Transport, steamID string) {
	if s.store == nil {
		return
	}

	snapshot := &storage.SessionSnapshot{
		SteamID: steamID,
		Cookies: map[string][]*http.Cookie{
			s.cfg.StoreURL:     transport.Cookies(s.cfg.StoreURL),
			s.cfg.CommunityURL: transport.Cookies(s.cfg.CommunityURL),
		},
		SavedAt: s.clock.Now(),
	}

	if err := s.store.Save(ctx, username, snapshot); err != nil {
		log.Warn().Err(err).Str("username", username).Msg("Failed to store session snapshot")
	}
}

// IsAlive reports whether the server still honors the session. It never changes the state.
func (s *Session) IsAlive(ctx context.Context) (bool, error) {
	s.mu.Lock()
	state, transport := s.state, s.transport
	s.mu.Unlock()

	if state != StateAuthenticated || transport == nil {
		return false, nil
	}
	return s.probe(ctx, transport)
}

func (s *Session) probe(ctx context.Context, transport *Transport) (bool, error) {
	res, err := transport.Head(ctx, s.cfg.StoreURL+"/account/store_transactions/")
	if err != nil {
		return false, err
	}
	return res.StatusCode == http.StatusOK, nil
}

// Expire marks an authenticated session as expired so that only Relogin is accepted.
func (s *Session) Expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked()
}

func (s *Session) expireLocked() {
	if s.state == StateAuthenticated {
		s.state = StateExpired
		log.Info().Str("steam_id", s.steamID).Msg("Steam session marked as expired")
	}
}

// Logout ends the session on the server (best effort), removes the stored snapshot and
// forgets the retained credentials.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateAuthenticating {
		s.mu.Unlock()
		return steamerr.New(steamerr.KindLoginFailed, "login in progress")
	}
	wasAuthenticated := s.state == StateAuthenticated
	transport, username := s.transport, s.username

	s.state = StateUnauthenticated
	s.transport = nil
	s.steamID = ""
	s.username = ""
	s.password = ""
	s.creds = nil
	s.mu.Unlock()

	if wasAuthenticated && transport != nil {
		sessionID, _ := transport.Cookie(s.cfg.StoreURL, "sessionid")
		res, err := transport.Do(ctx, http.MethodPost, s.cfg.StoreURL+"/logout/", url.Values{"sessionid": {sessionID}}, nil)
		if err == nil {
			err = checkStatus(res)
		}
		if err != nil {
			log.Warn().Err(err).Str("username", username).Msg("Server side logout failed")
		}
	}

	if s.store != nil && username != "" {
		if err := s.store.Delete(ctx, username); err != nil {
			log.Warn().Err(err).Str("username", username).Msg("Failed to delete session snapshot")
		}
	}

	return nil
}

// Call sends an authenticated request and returns the JSON payload.
// resource is either an absolute URL or a path relative to the web API base URL.
func (s *Session) Call(ctx context.Context, method, resource string, params url.Values) (json.RawMessage, error) {
	return s.Request(ctx, method, resource, params, nil)
}

// Request is Call with additional request headers.
func (s *Session) Request(ctx context.Context, method, resource string, params url.Values, header http.Header) (json.RawMessage, error) {
	s.mu.Lock()
	state, transport, apiKey := s.state, s.transport, s.apiKey
	s.mu.Unlock()

	if state != StateAuthenticated || transport == nil {
		return nil, steamerr.Newf(steamerr.KindLoginRequired, "use login method first, session is %s", state)
	}

	target := resource
	if !strings.HasPrefix(resource, "http://") && !strings.HasPrefix(resource, "https://") {
		target = s.cfg.APIURL + "/" + strings.TrimLeft(resource, "/")
	}

	if apiKey != "" && strings.HasPrefix(target, s.cfg.APIURL) {
		merged := url.Values{}
		for k, v := range params {
			merged[k] = v
		}
		merged.Set("key", apiKey)
		params = merged
	}

	res, err := transport.Do(ctx, method, target, params, header)
	if err != nil {
		return nil, err
	}

	if bytes.Contains(res.Body, invalidAPIKeyMarker) {
		return nil, steamerr.New(steamerr.KindInvalidCredentials, "invalid steam api key")
	}
	if err := checkStatus(res); err != nil {
		return nil, err
	}
	if !json.Valid(res.Body) {
		return nil, steamerr.Newf(steamerr.KindInvalidResponse, "invalid json in response to %s %s", method, resource)
	}

	return json.RawMessage(res.Body), nil
}

// APICall calls a web API method, e.g. APICall(ctx, "GET", "IEconService", "GetTradeOffer", "v1", params).
func (s *Session) APICall(ctx context.Context, method, iface, apiMethod, version string, params url.Values) (json.RawMessage, error) {
	return s.Call(ctx, method, strings.Join([]string{iface, apiMethod, version}, "/"), params)
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) SteamID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steamID
}

func (s *Session) Credentials() *guard.Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds
}

func (s *Session) SetAPIKey(apiKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKey = apiKey
}

// SessionID returns the community sessionid cookie used as CSRF token on form posts.
func (s *Session) SessionID() string {
	s.mu.Lock()
	transport := s.transport
	s.mu.Unlock()

	if transport == nil {
		return ""
	}
	sessionID, _ := transport.Cookie(s.cfg.CommunityURL, "sessionid")
	return sessionID
}

// Config returns the endpoints the session talks to.
func (s *Session) Config() config.Steam {
	return s.cfg
}

// Clock returns the clock used for login codes.
func (s *Session) Clock() time2.Clock {
	return s.clock
}
