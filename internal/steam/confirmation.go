package steam

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/SafeMPC/steamguard/internal/guard"
	"github.com/SafeMPC/steamguard/internal/metrics"
	"github.com/SafeMPC/steamguard/internal/steamerr"
	"github.com/dropbox/godropbox/time2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ConfirmationKind is the business area a confirmation gates.
type ConfirmationKind int

const (
	KindOther ConfirmationKind = iota
	KindTrade
	KindMarket
)

// server side confirmation types
const (
	confTypeTrade  = 2
	confTypeMarket = 3
)

func kindFromType(t int) ConfirmationKind {
	switch t {
	case confTypeTrade:
		return KindTrade
	case confTypeMarket:
		return KindMarket
	default:
		return KindOther
	}
}

func (k ConfirmationKind) String() string {
	switch k {
	case KindTrade:
		return "trade"
	case KindMarket:
		return "market"
	default:
		return "other"
	}
}

// ParseConfirmationKind parses "trade" or "market".
func ParseConfirmationKind(s string) (ConfirmationKind, error) {
	switch strings.ToLower(s) {
	case "trade":
		return KindTrade, nil
	case "market":
		return KindMarket, nil
	default:
		return KindOther, errors.Errorf("unknown confirmation kind %q", s)
	}
}

// ConfirmationAction is the decision submitted for a confirmation.
type ConfirmationAction int

const (
	ActionAllow ConfirmationAction = iota
	ActionDeny
)

// tag is used both as the signing tag and as the ajaxop operation.
func (a ConfirmationAction) tag() string {
	if a == ActionDeny {
		return guard.TagCancel
	}
	return guard.TagAllow
}

func (a ConfirmationAction) String() string {
	if a == ActionDeny {
		return "deny"
	}
	return "allow"
}

// ParseConfirmationAction parses "allow"/"accept" or "deny"/"cancel".
func ParseConfirmationAction(s string) (ConfirmationAction, error) {
	switch strings.ToLower(s) {
	case "allow", "accept":
		return ActionAllow, nil
	case "deny", "cancel":
		return ActionDeny, nil
	default:
		return ActionAllow, errors.Errorf("unknown confirmation action %q", s)
	}
}

// Confirmation is one pending entry of the mobile confirmation queue.
type Confirmation struct {
	ID          string           `json:"id"`
	Key         string           `json:"-"`
	CreatorID   string           `json:"creator_id"`
	Kind        ConfirmationKind `json:"-"`
	TypeName    string           `json:"type_name"`
	Description string           `json:"description"`
	CreatedAt   time.Time        `json:"created_at"`
}

// ConfirmationResult describes an accepted allow/deny submission.
type ConfirmationResult struct {
	Confirmation Confirmation       `json:"confirmation"`
	Action       ConfirmationAction `json:"-"`
}

type confirmationListResponse struct {
	Success  bool   `json:"success"`
	NeedAuth bool   `json:"needauth"`
	Message  string `json:"message"`
	Detail   string `json:"detail"`
	Conf     []struct {
		Type         int      `json:"type"`
		TypeName     string   `json:"type_name"`
		ID           string   `json:"id"`
		CreatorID    string   `json:"creator_id"`
		Nonce        string   `json:"nonce"`
		CreationTime int64    `json:"creation_time"`
		Headline     string   `json:"headline"`
		Summary      []string `json:"summary"`
	} `json:"conf"`
}

type confirmationActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SessionCaller is what the executor needs from an authenticated session.
type SessionCaller interface {
	Call(ctx context.Context, method, resource string, params url.Values) (json.RawMessage, error)
	SteamID() string
	Expire()
}

// ConfirmationExecutor lists, correlates and resolves mobile confirmations.
// It keeps no state between calls; the confirmation queue is read fresh every time.
type ConfirmationExecutor struct {
	caller       SessionCaller
	creds        *guard.Credentials
	communityURL string
	clock        time2.Clock
	metrics      *metrics.Metrics
}

// NewConfirmationExecutor creates an executor. clock and m may be nil.
func NewConfirmationExecutor(caller SessionCaller, creds *guard.Credentials, communityURL string, clock time2.Clock, m *metrics.Metrics) *ConfirmationExecutor {
	if clock == nil {
		clock = time2.DefaultClock
	}
	return &ConfirmationExecutor{
		caller:       caller,
		creds:        creds,
		communityURL: strings.TrimRight(communityURL, "/"),
		clock:        clock,
		metrics:      m,
	}
}

func (e *ConfirmationExecutor) accountID() string {
	if id := e.caller.SteamID(); id != "" {
		return id
	}
	return e.creds.AccountID()
}

// signedParams returns the query parameters shared by all mobileconf requests, signed for tag at now.
func (e *ConfirmationExecutor) signedParams(tag string) (url.Values, error) {
	now := e.clock.Now().Unix()

	key, err := e.creds.Sign(now, tag)
	if err != nil {
		return nil, err
	}

	return url.Values{
		"p":   {e.creds.DeviceID()},
		"a":   {e.accountID()},
		"k":   {key},
		"t":   {strconv.FormatInt(now, 10)},
		"m":   {"react"},
		"tag": {tag},
	}, nil
}

// List returns the pending confirmations.
func (e *ConfirmationExecutor) List(ctx context.Context) ([]Confirmation, error) {
	params, err := e.signedParams(guard.TagList)
	if err != nil {
		return nil, err
	}

	raw, err := e.caller.Call(ctx, http.MethodGet, e.communityURL+"/mobileconf/getlist", params)
	if err != nil {
		return nil, err
	}

	var resp confirmationListResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, steamerr.Wrap(steamerr.KindInvalidResponse, err, "failed to decode confirmation list")
	}

	if resp.NeedAuth {
		e.caller.Expire()
		return nil, steamerr.New(steamerr.KindLoginRequired, "confirmation list requires re-authentication")
	}
	if !resp.Success {
		return nil, steamerr.Newf(steamerr.KindServerError, "failed to list confirmations: %s %s", resp.Message, resp.Detail)
	}

	confirmations := make([]Confirmation, 0, len(resp.Conf))
	for _, c := range resp.Conf {
		description := c.Headline
		if len(c.Summary) > 0 {
			description = strings.TrimSpace(description + " " + strings.Join(c.Summary, "; "))
		}

		confirmations = append(confirmations, Confirmation{
			ID:          c.ID,
			Key:         c.Nonce,
			CreatorID:   c.CreatorID,
			Kind:        kindFromType(c.Type),
			TypeName:    c.TypeName,
			Description: description,
			CreatedAt:   time.Unix(c.CreationTime, 0),
		})
	}

	return confirmations, nil
}

// Resolve finds the pending confirmation created by targetID and submits action for it.
// A target without a pending confirmation yields ConfirmationNotFound and no action request.
func (e *ConfirmationExecutor) Resolve(ctx context.Context, targetID string, action ConfirmationAction, kind ConfirmationKind) (*ConfirmationResult, error) {
	confirmations, err := e.List(ctx)
	if err != nil {
		e.metrics.ObserveConfirmation(action.String(), "error")
		return nil, err
	}

	for _, c := range confirmations {
		if c.CreatorID == targetID && c.Kind == kind {
			return e.Respond(ctx, c, action)
		}
	}

	e.metrics.ObserveConfirmation(action.String(), "not_found")
	log.Debug().Str("target_id", targetID).Str("kind", kind.String()).Int("pending", len(confirmations)).Msg("No pending confirmation for target")
	return nil, steamerr.Newf(steamerr.KindConfirmationNotFound, "no pending %s confirmation for %s", kind, targetID)
}

// Respond submits action for a confirmation obtained from List.
func (e *ConfirmationExecutor) Respond(ctx context.Context, c Confirmation, action ConfirmationAction) (*ConfirmationResult, error) {
	params, err := e.signedParams(action.tag())
	if err != nil {
		return nil, err
	}
	params.Set("op", action.tag())
	params.Set("cid", c.ID)
	params.Set("ck", c.Key)

	raw, err := e.caller.Call(ctx, http.MethodGet, e.communityURL+"/mobileconf/ajaxop", params)
	if err != nil {
		e.metrics.ObserveConfirmation(action.String(), "error")
		return nil, err
	}

	var resp confirmationActionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		e.metrics.ObserveConfirmation(action.String(), "error")
		return nil, steamerr.Wrap(steamerr.KindInvalidResponse, err, "failed to decode confirmation response")
	}

	if !resp.Success {
		e.metrics.ObserveConfirmation(action.String(), "rejected")
		log.Warn().Str("confirmation_id", c.ID).Str("creator_id", c.CreatorID).Str("action", action.String()).Str("message", resp.Message).Msg("Confirmation rejected")
		return nil, steamerr.Newf(steamerr.KindConfirmationRejected, "steam rejected %s of confirmation %s", action, c.ID)
	}

	e.metrics.ObserveConfirmation(action.String(), "success")
	log.Info().Str("confirmation_id", c.ID).Str("creator_id", c.CreatorID).Str("kind", c.Kind.String()).Str("action", action.String()).Msg("Confirmation resolved")

	return &ConfirmationResult{Confirmation: c, Action: action}, nil
}
