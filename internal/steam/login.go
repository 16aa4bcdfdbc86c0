package steam

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/SafeMPC/steamguard/internal/config"
	"github.com/SafeMPC/steamguard/internal/guard"
	"github.com/SafeMPC/steamguard/internal/steamerr"
	"github.com/dropbox/godropbox/time2"
	"github.com/rs/zerolog/log"
)

const mobileClientVersion = "0 (2.1.3)"

type rsaKeyResponse struct {
	Success      bool   `json:"success"`
	PublicKeyMod string `json:"publickey_mod"`
	PublicKeyExp string `json:"publickey_exp"`
	Timestamp    string `json:"timestamp"`
}

type loginResponse struct {
	Success            bool               `json:"success"`
	RequiresTwoFactor  bool               `json:"requires_twofactor"`
	CaptchaNeeded      bool               `json:"captcha_needed"`
	EmailAuthNeeded    bool               `json:"emailauth_needed"`
	Message            string             `json:"message"`
	LoginComplete      bool               `json:"login_complete"`
	TransferURLs       []string           `json:"transfer_urls"`
	TransferParameters transferParameters `json:"transfer_parameters"`
}

// transferParameters keeps the raw JSON of every value so numeric ids survive unchanged.
type transferParameters map[string]json.RawMessage

func (p transferParameters) values() (url.Values, error) {
	params := url.Values{}
	for k, raw := range p {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			params.Set(k, s)
			continue
		}

		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var v interface{}
		if err := dec.Decode(&v); err != nil {
			return nil, steamerr.Wrapf(steamerr.KindInvalidResponse, err, "invalid transfer parameter %q", k)
		}
		switch t := v.(type) {
		case json.Number:
			params.Set(k, t.String())
		case bool:
			params.Set(k, strconv.FormatBool(t))
		case nil:
			params.Set(k, "")
		default:
			params.Set(k, string(raw))
		}
	}
	return params, nil
}

// loginExecutor runs one login handshake on its own transport.
type loginExecutor struct {
	cfg       config.Steam
	transport *Transport
	clock     time2.Clock
	username  string
	password  string
	creds     *guard.Credentials
}

// login performs the handshake and returns the account's steam id.
func (e *loginExecutor) login(ctx context.Context) (string, error) {
	resp, err := e.sendCredentials(ctx, "")
	if err != nil {
		return "", err
	}

	if resp.RequiresTwoFactor && !resp.Success {
		code, err := e.creds.Code(e.clock.Now().Unix())
		if err != nil {
			return "", err
		}

		log.Debug().Str("username", e.username).Msg("Steam requested two-factor code, resubmitting")
		resp, err = e.sendCredentials(ctx, code)
		if err != nil {
			return "", err
		}
	}

	if err := checkLoginOutcome(resp); err != nil {
		return "", err
	}

	steamID, err := e.performTransfers(ctx, resp)
	if err != nil {
		return "", err
	}

	if err := e.setSessionCookies(); err != nil {
		return "", err
	}

	return steamID, nil
}

func checkLoginOutcome(resp *loginResponse) error {
	msg := strings.ToLower(resp.Message)

	switch {
	case resp.CaptchaNeeded:
		return steamerr.New(steamerr.KindCaptchaRequired, "steam requires a captcha to log in")
	case resp.Success:
		return nil
	case strings.Contains(msg, "too many") || strings.Contains(msg, "rate limit"):
		return steamerr.Newf(steamerr.KindTooManyRequests, "login rate limited: %s", resp.Message)
	case resp.RequiresTwoFactor:
		return steamerr.New(steamerr.KindInvalidCredentials, "two-factor code was rejected")
	case strings.Contains(msg, "incorrect"):
		return steamerr.Newf(steamerr.KindInvalidCredentials, "invalid credentials: %s", resp.Message)
	case resp.EmailAuthNeeded:
		return steamerr.New(steamerr.KindLoginFailed, "steam requires an email code, which is not supported")
	default:
		return steamerr.Newf(steamerr.KindLoginFailed, "login was not successful: %s", resp.Message)
	}
}

// sendCredentials fetches a fresh RSA key and submits the encrypted password.
func (e *loginExecutor) sendCredentials(ctx context.Context, twoFactorCode string) (*loginResponse, error) {
	key, timestamp, err := e.fetchRSAKey(ctx)
	if err != nil {
		return nil, err
	}

	encrypted, err := rsa.EncryptPKCS1v15(rand.Reader, key, []byte(e.password))
	if err != nil {
		return nil, steamerr.Wrap(steamerr.KindLoginFailed, err, "failed to encrypt password")
	}

	form := url.Values{
		"username":          {e.username},
		"password":          {base64.StdEncoding.EncodeToString(encrypted)},
		"twofactorcode":     {twoFactorCode},
		"emailauth":         {""},
		"loginfriendlyname": {""},
		"captchagid":        {"-1"},
		"captcha_text":      {""},
		"emailsteamid":      {""},
		"rsatimestamp":      {timestamp},
		"remember_login":    {"true"},
		"donotcache":        {e.donotcache()},
	}

	var resp loginResponse
	if err := e.postJSON(ctx, e.cfg.StoreURL+"/login/dologin/", form, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (e *loginExecutor) fetchRSAKey(ctx context.Context) (*rsa.PublicKey, string, error) {
	form := url.Values{
		"username":   {e.username},
		"donotcache": {e.donotcache()},
	}

	var resp rsaKeyResponse
	if err := e.postJSON(ctx, e.cfg.StoreURL+"/login/getrsakey/", form, &resp); err != nil {
		return nil, "", err
	}
	if !resp.Success {
		return nil, "", steamerr.New(steamerr.KindLoginFailed, "steam did not provide an RSA key")
	}

	mod, ok := new(big.Int).SetString(resp.PublicKeyMod, 16)
	if !ok {
		return nil, "", steamerr.New(steamerr.KindInvalidResponse, "invalid RSA modulus")
	}
	exp, err := strconv.ParseInt(resp.PublicKeyExp, 16, 32)
	if err != nil {
		return nil, "", steamerr.Wrap(steamerr.KindInvalidResponse, err, "invalid RSA exponent")
	}

	return &rsa.PublicKey{N: mod, E: int(exp)}, resp.Timestamp, nil
}

// performTransfers posts the transfer parameters to every transfer url so each Steam
// domain receives its login cookies.
func (e *loginExecutor) performTransfers(ctx context.Context, resp *loginResponse) (string, error) {
	params, err := resp.TransferParameters.values()
	if err != nil {
		return "", err
	}

	steamID := params.Get("steamid")
	if steamID == "" {
		return "", steamerr.New(steamerr.KindInvalidResponse, "login response did not contain a steamid")
	}

	for _, transferURL := range resp.TransferURLs {
		res, err := e.transport.Do(ctx, http.MethodPost, transferURL, params, nil)
		if err != nil {
			return "", err
		}
		if err := checkStatus(res); err != nil {
			return "", err
		}
	}

	return steamID, nil
}

func (e *loginExecutor) setSessionCookies() error {
	sessionID, ok := e.transport.Cookie(e.cfg.CommunityURL, "sessionid")
	if !ok {
		buf := make([]byte, 12)
		if _, err := rand.Read(buf); err != nil {
			return steamerr.Wrap(steamerr.KindLoginFailed, err, "failed to generate session id")
		}
		sessionID = hex.EncodeToString(buf)
	}

	for _, u := range []string{e.cfg.StoreURL, e.cfg.CommunityURL} {
		if err := e.transport.SetCookies(u, []*http.Cookie{{Name: "sessionid", Value: sessionID, Path: "/"}}); err != nil {
			return steamerr.Wrap(steamerr.KindLoginFailed, err, "failed to set session cookie")
		}
	}

	mobile := []*http.Cookie{
		{Name: "mobileClientVersion", Value: url.QueryEscape(mobileClientVersion), Path: "/"},
		{Name: "mobileClient", Value: "android", Path: "/"},
		{Name: "Steam_Language", Value: "english", Path: "/"},
	}
	if err := e.transport.SetCookies(e.cfg.CommunityURL, mobile); err != nil {
		return steamerr.Wrap(steamerr.KindLoginFailed, err, "failed to set mobile cookies")
	}

	return nil
}

func (e *loginExecutor) postJSON(ctx context.Context, rawURL string, form url.Values, out interface{}) error {
	res, err := e.transport.Do(ctx, http.MethodPost, rawURL, form, nil)
	if err != nil {
		return err
	}

	if res.StatusCode == http.StatusTooManyRequests {
		return steamerr.New(steamerr.KindTooManyRequests, "steam responded with a 429 http code during login")
	}
	if err := checkStatus(res); err != nil {
		return err
	}

	if err := json.Unmarshal(res.Body, out); err != nil {
		return steamerr.Wrap(steamerr.KindInvalidResponse, err, "failed to decode login response")
	}
	return nil
}

func (e *loginExecutor) donotcache() string {
	return strconv.FormatInt(e.clock.Now().UnixNano()/int64(1e6), 10)
}
