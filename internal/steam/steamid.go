package steam

import (
	"strconv"

	"github.com/SafeMPC/steamguard/internal/steamerr"
)

// steamIDBase is the 64-bit id of account 0 in the public individual universe.
const steamIDBase uint64 = 76561197960265728

// AccountIDToSteamID converts a 32-bit account id to a 64-bit steam id.
// Values that already are steam ids are returned unchanged.
func AccountIDToSteamID(accountID string) (string, error) {
	id, err := strconv.ParseUint(accountID, 10, 64)
	if err != nil {
		return "", steamerr.Wrapf(steamerr.KindInvalidResponse, err, "invalid account id %q", accountID)
	}
	if id > steamIDBase {
		return accountID, nil
	}
	return strconv.FormatUint(id+steamIDBase, 10), nil
}

// SteamIDToAccountID converts a 64-bit steam id to a 32-bit account id.
// Values below the steam id base are returned unchanged.
func SteamIDToAccountID(steamID string) (string, error) {
	id, err := strconv.ParseUint(steamID, 10, 64)
	if err != nil {
		return "", steamerr.Wrapf(steamerr.KindInvalidResponse, err, "invalid steam id %q", steamID)
	}
	if id < steamIDBase {
		return steamID, nil
	}
	return strconv.FormatUint(id-steamIDBase, 10), nil
}
