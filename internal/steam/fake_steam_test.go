package steam_test

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SafeMPC/steamguard/internal/config"
	"github.com/SafeMPC/steamguard/internal/guard"
	"github.com/SafeMPC/steamguard/internal/steam"
	"github.com/dropbox/godropbox/time2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testUsername = "gaben"
	testPassword = "hunter2"
	testSteamID  = "76561197960287930"
	testDeviceID = "android:11111111-2222-3333-4444-555555555555"
	testSecret   = "AAAAAAAAAAAAAAAAAAAAAAAAAAA="
	testUnix     = 1700000000
)

type loginMode int

const (
	loginTwoFactor       loginMode = iota // asks for a code, then accepts the correct one
	loginIncorrect                        // wrong password
	loginCaptcha                          // captcha required
	loginTooMany                          // throttled
	loginRejectTwoFactor                  // never accepts the code
)

type recordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Form   url.Values
	Header http.Header
}

type fakeConfirmation struct {
	ID        string
	Nonce     string
	CreatorID string
	Type      int
}

// fakeSteam emulates the store, community and web API endpoints the client talks to.
type fakeSteam struct {
	t      *testing.T
	server *httptest.Server
	key    *rsa.PrivateKey
	creds  *guard.Credentials
	clock  time2.Clock

	mu            sync.Mutex
	requests      []recordedRequest
	loginMode     loginMode
	alive         bool
	needAuth      bool
	actSuccess    bool
	confirmations []fakeConfirmation
	escrowEndDate int64

	// numericSteamID sends transfer_parameters.steamid as a JSON number.
	numericSteamID bool
	// loginGate, when set, holds every dologin request until it is closed.
	loginGate    chan struct{}
	loginEntered chan struct{}
	// slowGate holds requests to the slow API method until it is closed.
	slowGate    chan struct{}
	slowEntered chan struct{}
}

func newFakeSteam(t *testing.T, clock time2.Clock) *fakeSteam {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)

	f := &fakeSteam{
		t:          t,
		key:        key,
		creds:      testCredentials(t),
		clock:      clock,
		alive:      true,
		actSuccess: true,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/store/login/getrsakey/", f.handleRSAKey)
	mux.HandleFunc("/store/login/dologin/", f.handleDoLogin)
	mux.HandleFunc("/community/login/transfer", f.handleTransfer)
	mux.HandleFunc("/store/account/store_transactions/", f.handleProbe)
	mux.HandleFunc("/store/logout/", f.handleOK)
	mux.HandleFunc("/community/mobileconf/getlist", f.handleGetList)
	mux.HandleFunc("/community/mobileconf/ajaxop", f.handleAjaxOp)
	mux.HandleFunc("/community/tradeoffer/", f.handleTradeOfferAccept)
	mux.HandleFunc("/community/market/sellitem/", f.handleSellItem)
	mux.HandleFunc("/api/IEconService/GetTradeOffer/v1", f.handleGetTradeOffer)
	mux.HandleFunc("/api/IEconService/DeclineTradeOffer/v1", f.handleOK)
	mux.HandleFunc("/api/IEconService/CancelTradeOffer/v1", f.handleOK)
	mux.HandleFunc("/api/IPlayerService/GetBadKey/v1", f.handleBadKey)
	mux.HandleFunc("/api/ITestService/Status/v1", f.handleStatus)
	mux.HandleFunc("/api/ITestService/Slow/v1", f.handleSlow)

	f.server = httptest.NewServer(f.record(mux))
	t.Cleanup(f.server.Close)

	return f
}

func testCredentials(t *testing.T) *guard.Credentials {
	t.Helper()

	secret, err := base64.StdEncoding.DecodeString(testSecret)
	require.NoError(t, err)

	creds, err := guard.NewCredentials(secret, secret, testSteamID, testDeviceID)
	require.NoError(t, err)
	return creds
}

func newTestClock() *time2.MockClock {
	return time2.NewMockClock(time.Unix(testUnix, 0))
}

func (f *fakeSteam) config() config.Steam {
	return config.Steam{
		Username:     testUsername,
		Password:     testPassword,
		StoreURL:     f.server.URL + "/store",
		CommunityURL: f.server.URL + "/community",
		APIURL:       f.server.URL + "/api",
		Timeout:      5 * time.Second,
	}
}

func (f *fakeSteam) newSession(opts ...steam.SessionOption) *steam.Session {
	opts = append([]steam.SessionOption{steam.WithClock(f.clock)}, opts...)
	return steam.NewSession(f.config(), opts...)
}

func (f *fakeSteam) login(t *testing.T, s *steam.Session) {
	t.Helper()
	require.NoError(t, s.Login(t.Context(), testUsername, testPassword, f.creds))
}

func (f *fakeSteam) set(fn func(f *fakeSteam)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// requestsTo returns the recorded requests whose path starts with prefix.
func (f *fakeSteam) requestsTo(prefix string) []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []recordedRequest
	for _, r := range f.requests {
		if strings.HasPrefix(r.Path, prefix) {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeSteam) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeSteam) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()

		form := url.Values{}
		for k, v := range r.PostForm {
			form[k] = v
		}

		f.mu.Lock()
		f.requests = append(f.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Form:   form,
			Header: r.Header.Clone(),
		})
		f.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (f *fakeSteam) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	assert.NoError(f.t, json.NewEncoder(w).Encode(v))
}

func (f *fakeSteam) handleOK(w http.ResponseWriter, _ *http.Request) {
	f.writeJSON(w, map[string]interface{}{"response": map[string]interface{}{}})
}

func (f *fakeSteam) handleBadKey(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusForbidden)
	fmt.Fprint(w, "<html><body>Access is denied. Please verify your <pre>key=</pre> parameter.</body></html>")
}

// handleStatus answers with the status code and raw body given in the query.
func (f *fakeSteam) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := strconv.Atoi(r.URL.Query().Get("status"))
	assert.NoError(f.t, err)
	w.WriteHeader(status)
	fmt.Fprint(w, r.URL.Query().Get("body"))
}

func (f *fakeSteam) handleSlow(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	gate, entered := f.slowGate, f.slowEntered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	f.handleOK(w, nil)
}

// holdLogin makes dologin requests block until the returned release func is called.
// entered receives once per held request.
func (f *fakeSteam) holdLogin() (entered <-chan struct{}, release func()) {
	gate := make(chan struct{})
	ch := make(chan struct{}, 4)
	f.set(func(f *fakeSteam) {
		f.loginGate = gate
		f.loginEntered = ch
	})

	var once sync.Once
	return ch, func() { once.Do(func() { close(gate) }) }
}

func (f *fakeSteam) handleRSAKey(w http.ResponseWriter, _ *http.Request) {
	f.writeJSON(w, map[string]interface{}{
		"success":       true,
		"publickey_mod": f.key.N.Text(16),
		"publickey_exp": big.NewInt(int64(f.key.E)).Text(16),
		"timestamp":     "123456789",
	})
}

func (f *fakeSteam) handleDoLogin(w http.ResponseWriter, r *http.Request) {
	encrypted, err := base64.StdEncoding.DecodeString(r.PostForm.Get("password"))
	assert.NoError(f.t, err)
	password, err := rsa.DecryptPKCS1v15(nil, f.key, encrypted)
	assert.NoError(f.t, err)

	f.mu.Lock()
	mode, numericSteamID := f.loginMode, f.numericSteamID
	gate, entered := f.loginGate, f.loginEntered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	switch {
	case mode == loginCaptcha:
		f.writeJSON(w, map[string]interface{}{"success": false, "captcha_needed": true, "captcha_gid": "1"})
		return
	case mode == loginTooMany:
		f.writeJSON(w, map[string]interface{}{"success": false, "message": "There have been too many login failures"})
		return
	case mode == loginIncorrect || string(password) != testPassword:
		f.writeJSON(w, map[string]interface{}{"success": false, "message": "The account name or password that you have entered is incorrect."})
		return
	}

	code := r.PostForm.Get("twofactorcode")
	expected, err := f.creds.Code(f.clock.Now().Unix())
	assert.NoError(f.t, err)

	if mode == loginRejectTwoFactor || code != expected {
		f.writeJSON(w, map[string]interface{}{"success": false, "requires_twofactor": true})
		return
	}

	var steamID interface{} = testSteamID
	if numericSteamID {
		steamID = json.Number(testSteamID)
	}

	f.writeJSON(w, map[string]interface{}{
		"success":        true,
		"login_complete": true,
		"transfer_urls":  []string{f.server.URL + "/community/login/transfer"},
		"transfer_parameters": map[string]interface{}{
			"steamid":        steamID,
			"token_secure":   "secure-token",
			"auth":           "auth-token",
			"remember_login": true,
		},
	})
}

func (f *fakeSteam) handleTransfer(w http.ResponseWriter, r *http.Request) {
	assert.Equal(f.t, testSteamID, r.PostForm.Get("steamid"))
	http.SetCookie(w, &http.Cookie{Name: "steamLoginSecure", Value: testSteamID + "%7C%7Csecure-token", Path: "/"})
	w.WriteHeader(http.StatusOK)
}

func (f *fakeSteam) handleProbe(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	alive := f.alive
	f.mu.Unlock()

	_, err := r.Cookie("steamLoginSecure")
	if !alive || err != nil {
		http.Redirect(w, r, "/store/login/", http.StatusFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (f *fakeSteam) handleGetList(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	needAuth := f.needAuth
	confirmations := append([]fakeConfirmation(nil), f.confirmations...)
	f.mu.Unlock()

	if needAuth {
		f.writeJSON(w, map[string]interface{}{"success": false, "needauth": true})
		return
	}

	conf := make([]map[string]interface{}, 0, len(confirmations))
	for _, c := range confirmations {
		conf = append(conf, map[string]interface{}{
			"type":          c.Type,
			"type_name":     "Trade Offer",
			"id":            c.ID,
			"creator_id":    c.CreatorID,
			"nonce":         c.Nonce,
			"creation_time": testUnix - 60,
			"headline":      "Trade with someone",
			"summary":       []string{"You will give 1 item"},
		})
	}

	f.writeJSON(w, map[string]interface{}{"success": true, "conf": conf})
}

func (f *fakeSteam) handleAjaxOp(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	success := f.actSuccess
	f.mu.Unlock()

	f.writeJSON(w, map[string]interface{}{"success": success})
}

func (f *fakeSteam) handleTradeOfferAccept(w http.ResponseWriter, _ *http.Request) {
	f.writeJSON(w, map[string]interface{}{"tradeid": "555", "needs_mobile_confirmation": true})
}

func (f *fakeSteam) handleSellItem(w http.ResponseWriter, _ *http.Request) {
	f.writeJSON(w, map[string]interface{}{"success": true, "requires_confirmation": 1, "needs_mobile_confirmation": true})
}

func (f *fakeSteam) handleGetTradeOffer(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	escrow := f.escrowEndDate
	f.mu.Unlock()

	f.writeJSON(w, map[string]interface{}{
		"response": map[string]interface{}{
			"offer": map[string]interface{}{
				"tradeofferid":      r.URL.Query().Get("tradeofferid"),
				"accountid_other":   22202,
				"trade_offer_state": 2,
				"escrow_end_date":   escrow,
			},
		},
	})
}
