package steam_test

import (
	"testing"
	"time"

	"github.com/SafeMPC/steamguard/internal/guard"
	"github.com/SafeMPC/steamguard/internal/metrics"
	"github.com/SafeMPC/steamguard/internal/steam"
	"github.com/SafeMPC/steamguard/internal/steamerr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExecutor(t *testing.T, f *fakeSteam, s *steam.Session) *steam.ConfirmationExecutor {
	t.Helper()
	return steam.NewConfirmationExecutor(s, f.creds, f.config().CommunityURL, f.clock, nil)
}

func TestConfirmationList(t *testing.T) {
	f := newFakeSteam(t, newTestClock())
	f.set(func(f *fakeSteam) {
		f.confirmations = []fakeConfirmation{
			{ID: "100", Nonce: "n100", CreatorID: "5001", Type: 2},
			{ID: "101", Nonce: "n101", CreatorID: "7001", Type: 3},
			{ID: "102", Nonce: "n102", CreatorID: "9001", Type: 9},
		}
	})
	s := f.newSession()
	f.login(t, s)

	confirmations, err := newExecutor(t, f, s).List(t.Context())
	require.NoError(t, err)
	require.Len(t, confirmations, 3)

	assert.Equal(t, "100", confirmations[0].ID)
	assert.Equal(t, "n100", confirmations[0].Key)
	assert.Equal(t, "5001", confirmations[0].CreatorID)
	assert.Equal(t, steam.KindTrade, confirmations[0].Kind)
	assert.Equal(t, steam.KindMarket, confirmations[1].Kind)
	assert.Equal(t, steam.KindOther, confirmations[2].Kind)
	assert.Equal(t, time.Unix(testUnix-60, 0), confirmations[0].CreatedAt)
	assert.Contains(t, confirmations[0].Description, "You will give 1 item")

	lists := f.requestsTo("/community/mobileconf/getlist")
	require.Len(t, lists, 1)
	q := lists[0].Query
	assert.Equal(t, testDeviceID, q.Get("p"))
	assert.Equal(t, testSteamID, q.Get("a"))
	assert.Equal(t, "eNwbycsZmo6DUTC3uKn6r5OWEyE=", q.Get("k"))
	assert.Equal(t, "1700000000", q.Get("t"))
	assert.Equal(t, "react", q.Get("m"))
	assert.Equal(t, "conf", q.Get("tag"))
}

func TestConfirmationResolveAllow(t *testing.T) {
	f := newFakeSteam(t, newTestClock())
	f.set(func(f *fakeSteam) {
		f.confirmations = []fakeConfirmation{
			{ID: "100", Nonce: "n100", CreatorID: "5001", Type: 2},
			{ID: "101", Nonce: "n101", CreatorID: "5002", Type: 2},
		}
	})
	s := f.newSession()
	f.login(t, s)
	before := f.requestCount()

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	executor := steam.NewConfirmationExecutor(s, f.creds, f.config().CommunityURL, f.clock, m)

	result, err := executor.Resolve(t.Context(), "5002", steam.ActionAllow, steam.KindTrade)
	require.NoError(t, err)
	assert.Equal(t, "101", result.Confirmation.ID)
	assert.Equal(t, steam.ActionAllow, result.Action)

	assert.Equal(t, before+2, f.requestCount())

	acts := f.requestsTo("/community/mobileconf/ajaxop")
	require.Len(t, acts, 1)
	q := acts[0].Query
	assert.Equal(t, "allow", q.Get("op"))
	assert.Equal(t, "allow", q.Get("tag"))
	assert.Equal(t, "101", q.Get("cid"))
	assert.Equal(t, "n101", q.Get("ck"))
	assert.Equal(t, "FqtSjgfqg1NjSQfmDAlzJGFPkrQ=", q.Get("k"))

	list := f.requestsTo("/community/mobileconf/getlist")[0]
	assert.NotEqual(t, list.Query.Get("k"), q.Get("k"))

	count, err := testutil.GatherAndCount(reg, "steamguard_confirmations_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestConfirmationResolveDeny(t *testing.T) {
	clock := newTestClock()
	f := newFakeSteam(t, clock)
	f.set(func(f *fakeSteam) {
		f.confirmations = []fakeConfirmation{{ID: "200", Nonce: "n200", CreatorID: "8001", Type: 3}}
	})
	s := f.newSession()
	f.login(t, s)

	clock.Advance(5 * time.Second)

	_, err := newExecutor(t, f, s).Resolve(t.Context(), "8001", steam.ActionDeny, steam.KindMarket)
	require.NoError(t, err)

	acts := f.requestsTo("/community/mobileconf/ajaxop")
	require.Len(t, acts, 1)
	q := acts[0].Query
	assert.Equal(t, "cancel", q.Get("op"))
	assert.Equal(t, "cancel", q.Get("tag"))
	assert.Equal(t, "1700000005", q.Get("t"))

	expected, err := f.creds.Sign(testUnix+5, guard.TagCancel)
	require.NoError(t, err)
	assert.Equal(t, expected, q.Get("k"))
}

func TestConfirmationResolveNotFound(t *testing.T) {
	f := newFakeSteam(t, newTestClock())
	f.set(func(f *fakeSteam) {
		f.confirmations = []fakeConfirmation{
			{ID: "100", Nonce: "n100", CreatorID: "5001", Type: 2},
			// same creator but a different kind
			{ID: "101", Nonce: "n101", CreatorID: "5002", Type: 3},
		}
	})
	s := f.newSession()
	f.login(t, s)

	executor := newExecutor(t, f, s)

	_, err := executor.Resolve(t.Context(), "9999", steam.ActionAllow, steam.KindTrade)
	assert.ErrorIs(t, err, steamerr.ErrConfirmationNotFound)
	assert.True(t, steamerr.Retryable(err))

	_, err = executor.Resolve(t.Context(), "5002", steam.ActionAllow, steam.KindTrade)
	assert.ErrorIs(t, err, steamerr.ErrConfirmationNotFound)

	assert.Empty(t, f.requestsTo("/community/mobileconf/ajaxop"))
}

func TestConfirmationResolveRejected(t *testing.T) {
	f := newFakeSteam(t, newTestClock())
	f.set(func(f *fakeSteam) {
		f.confirmations = []fakeConfirmation{{ID: "100", Nonce: "n100", CreatorID: "5001", Type: 2}}
		f.actSuccess = false
	})
	s := f.newSession()
	f.login(t, s)

	_, err := newExecutor(t, f, s).Resolve(t.Context(), "5001", steam.ActionAllow, steam.KindTrade)
	assert.ErrorIs(t, err, steamerr.ErrConfirmationRejected)
	assert.False(t, steamerr.Retryable(err))
	assert.Len(t, f.requestsTo("/community/mobileconf/ajaxop"), 1)
}

func TestConfirmationNeedAuthExpiresSession(t *testing.T) {
	f := newFakeSteam(t, newTestClock())
	f.set(func(f *fakeSteam) { f.needAuth = true })
	s := f.newSession()
	f.login(t, s)

	_, err := newExecutor(t, f, s).Resolve(t.Context(), "5001", steam.ActionAllow, steam.KindTrade)
	assert.ErrorIs(t, err, steamerr.ErrLoginRequired)
	assert.Equal(t, steam.StateExpired, s.State())
	assert.Empty(t, f.requestsTo("/community/mobileconf/ajaxop"))
}

func TestConfirmationRequiresLogin(t *testing.T) {
	f := newFakeSteam(t, newTestClock())
	s := f.newSession()

	_, err := newExecutor(t, f, s).List(t.Context())
	assert.ErrorIs(t, err, steamerr.ErrLoginRequired)
	assert.Zero(t, f.requestCount())
}

func TestParseConfirmationKindAndAction(t *testing.T) {
	kind, err := steam.ParseConfirmationKind("Market")
	require.NoError(t, err)
	assert.Equal(t, steam.KindMarket, kind)

	_, err = steam.ParseConfirmationKind("gift")
	assert.Error(t, err)

	action, err := steam.ParseConfirmationAction("cancel")
	require.NoError(t, err)
	assert.Equal(t, steam.ActionDeny, action)
	assert.Equal(t, "deny", action.String())

	_, err = steam.ParseConfirmationAction("maybe")
	assert.Error(t, err)
}
