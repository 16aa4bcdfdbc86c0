package steam

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/SafeMPC/steamguard/internal/steamerr"
	"github.com/rs/zerolog/log"
)

// TradeOffer is the subset of IEconService trade offer fields the client acts on.
type TradeOffer struct {
	TradeOfferID   string `json:"tradeofferid"`
	AccountIDOther int64  `json:"accountid_other"`
	Message        string `json:"message"`
	State          int    `json:"trade_offer_state"`
	ExpirationTime int64  `json:"expiration_time"`
	EscrowEndDate  int64  `json:"escrow_end_date"`
	IsOurOffer     bool   `json:"is_our_offer"`
}

// ActionResult is the community response of a trade or market action.
type ActionResult struct {
	TradeID                 string              `json:"tradeid,omitempty"`
	NeedsMobileConfirmation bool                `json:"needs_mobile_confirmation"`
	Confirmation            *ConfirmationResult `json:"confirmation,omitempty"`
}

type tradeOfferResponse struct {
	Response struct {
		Offer *TradeOffer `json:"offer"`
	} `json:"response"`
}

type communityActionResponse struct {
	Success                 json.RawMessage `json:"success"`
	TradeID                 string          `json:"tradeid"`
	NeedsMobileConfirmation bool            `json:"needs_mobile_confirmation"`
	Message                 string          `json:"message"`
	StrError                string          `json:"strError"`
}

// Client performs the trade and market operations that need mobile confirmation.
type Client struct {
	session  *Session
	executor *ConfirmationExecutor
}

func NewClient(session *Session, executor *ConfirmationExecutor) *Client {
	return &Client{session: session, executor: executor}
}

// ConfirmTradeOffer allows the pending confirmation of the given trade offer.
func (c *Client) ConfirmTradeOffer(ctx context.Context, offerID string) (*ConfirmationResult, error) {
	return c.executor.Resolve(ctx, offerID, ActionAllow, KindTrade)
}

// ConfirmSellListing allows the pending confirmation of the market listing created for assetID.
func (c *Client) ConfirmSellListing(ctx context.Context, assetID string) (*ConfirmationResult, error) {
	return c.executor.Resolve(ctx, assetID, ActionAllow, KindMarket)
}

func (c *Client) GetTradeOffer(ctx context.Context, offerID string) (*TradeOffer, error) {
	params := url.Values{
		"tradeofferid": {offerID},
		"language":     {"english"},
	}

	raw, err := c.session.APICall(ctx, http.MethodGet, "IEconService", "GetTradeOffer", "v1", params)
	if err != nil {
		return nil, err
	}

	var resp tradeOfferResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, steamerr.Wrap(steamerr.KindInvalidResponse, err, "failed to decode trade offer")
	}
	if resp.Response.Offer == nil {
		return nil, steamerr.Newf(steamerr.KindInvalidResponse, "trade offer %s missing from response", offerID)
	}

	return resp.Response.Offer, nil
}

// AcceptTradeOffer accepts an incoming trade offer and confirms it when Steam asks for it.
// The offer is fetched first when checkHold is set or the partner is unknown; an offer that
// would be held in escrow is refused with TradeHold.
func (c *Client) AcceptTradeOffer(ctx context.Context, offerID, partnerID string, checkHold bool) (*ActionResult, error) {
	if checkHold || partnerID == "" {
		offer, err := c.GetTradeOffer(ctx, offerID)
		if err != nil {
			return nil, err
		}
		if checkHold && offer.EscrowEndDate != 0 {
			return nil, steamerr.Newf(steamerr.KindTradeHold, "offer %s not accepted because items would be put on hold", offerID)
		}
		if partnerID == "" {
			partnerID = strconv.FormatInt(offer.AccountIDOther, 10)
		}
	}

	partnerSteamID, err := AccountIDToSteamID(partnerID)
	if err != nil {
		return nil, err
	}

	community := c.session.Config().CommunityURL
	form := url.Values{
		"sessionid":    {c.session.SessionID()},
		"tradeofferid": {offerID},
		"serverid":     {"1"},
		"partner":      {partnerSteamID},
		"captcha":      {""},
	}
	header := http.Header{"Referer": {community + "/tradeoffer/" + offerID}}

	result, err := c.communityAction(ctx, community+"/tradeoffer/"+offerID+"/accept", form, header)
	if err != nil {
		return nil, err
	}

	if result.NeedsMobileConfirmation {
		confirmation, err := c.ConfirmTradeOffer(ctx, offerID)
		if err != nil {
			return nil, err
		}
		result.Confirmation = confirmation
	}

	log.Info().Str("trade_offer_id", offerID).Str("partner", partnerSteamID).Bool("confirmed", result.Confirmation != nil).Msg("Trade offer accepted")
	return result, nil
}

func (c *Client) DeclineTradeOffer(ctx context.Context, offerID string) error {
	_, err := c.session.APICall(ctx, http.MethodPost, "IEconService", "DeclineTradeOffer", "v1", url.Values{"tradeofferid": {offerID}})
	return err
}

func (c *Client) CancelTradeOffer(ctx context.Context, offerID string) error {
	_, err := c.session.APICall(ctx, http.MethodPost, "IEconService", "CancelTradeOffer", "v1", url.Values{"tradeofferid": {offerID}})
	return err
}

// CreateSellOrder lists one item on the market for price (in cents, after fees) and confirms
// the listing when required.
func (c *Client) CreateSellOrder(ctx context.Context, assetID, appID, contextID string, price int) (*ActionResult, error) {
	community := c.session.Config().CommunityURL
	form := url.Values{
		"assetid":   {assetID},
		"sessionid": {c.session.SessionID()},
		"contextid": {contextID},
		"appid":     {appID},
		"amount":    {"1"},
		"price":     {strconv.Itoa(price)},
	}
	header := http.Header{"Referer": {community + "/profiles/" + c.session.SteamID() + "/inventory"}}

	result, err := c.communityAction(ctx, community+"/market/sellitem/", form, header)
	if err != nil {
		return nil, err
	}

	if result.NeedsMobileConfirmation {
		confirmation, err := c.ConfirmSellListing(ctx, assetID)
		if err != nil {
			return nil, err
		}
		result.Confirmation = confirmation
	}

	log.Info().Str("asset_id", assetID).Str("app_id", appID).Int("price", price).Bool("confirmed", result.Confirmation != nil).Msg("Sell order created")
	return result, nil
}

func (c *Client) communityAction(ctx context.Context, target string, form url.Values, header http.Header) (*ActionResult, error) {
	raw, err := c.session.Request(ctx, http.MethodPost, target, form, header)
	if err != nil {
		return nil, err
	}

	var resp communityActionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, steamerr.Wrap(steamerr.KindInvalidResponse, err, "failed to decode community response")
	}
	if resp.StrError != "" {
		return nil, steamerr.Newf(steamerr.KindServerError, "steam refused the request: %s", resp.StrError)
	}
	// market endpoints report success as a boolean, trade endpoints omit it
	if string(resp.Success) == "false" {
		return nil, steamerr.Newf(steamerr.KindServerError, "steam refused the request: %s", resp.Message)
	}

	return &ActionResult{
		TradeID:                 resp.TradeID,
		NeedsMobileConfirmation: resp.NeedsMobileConfirmation,
	}, nil
}
