package guard

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/SafeMPC/steamguard/internal/steamerr"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// Credentials is the secret material of one authenticator. It is immutable once built.
type Credentials struct {
	sharedSecret   []byte
	identitySecret []byte
	accountID      string
	deviceID       string
}

// credentialDocument is the on-disk authenticator document. Account ids are accepted under
// any of the names used by authenticator exports.
type credentialDocument struct {
	SharedSecret   string      `json:"shared_secret" validate:"required,base64"`
	IdentitySecret string      `json:"identity_secret" validate:"required,base64"`
	AccountID      json.Number `json:"account_id"`
	SteamID        json.Number `json:"steamid"`
	DeviceID       string      `json:"device_id" validate:"omitempty,startswith=android:"`
	Session        *struct {
		SteamID json.Number `json:"SteamID"`
	} `json:"Session"`
}

func (d *credentialDocument) accountID() string {
	switch {
	case d.AccountID != "":
		return d.AccountID.String()
	case d.SteamID != "":
		return d.SteamID.String()
	case d.Session != nil:
		return d.Session.SteamID.String()
	default:
		return ""
	}
}

// LoadCredentials parses an authenticator document. All failures are reported as InvalidSecret.
func LoadCredentials(data []byte) (*Credentials, error) {
	var doc credentialDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, steamerr.Wrap(steamerr.KindInvalidSecret, err, "failed to decode credential document")
	}

	if err := validate.Struct(&doc); err != nil {
		return nil, steamerr.Wrap(steamerr.KindInvalidSecret, err, "invalid credential document")
	}

	shared, err := base64.StdEncoding.DecodeString(doc.SharedSecret)
	if err != nil {
		return nil, steamerr.Wrap(steamerr.KindInvalidSecret, err, "failed to decode shared secret")
	}

	identity, err := base64.StdEncoding.DecodeString(doc.IdentitySecret)
	if err != nil {
		return nil, steamerr.Wrap(steamerr.KindInvalidSecret, err, "failed to decode identity secret")
	}

	return NewCredentials(shared, identity, doc.accountID(), doc.DeviceID)
}

// NewCredentials builds credentials from decoded secrets. An empty deviceID is derived from the account id.
func NewCredentials(sharedSecret, identitySecret []byte, accountID, deviceID string) (*Credentials, error) {
	if len(sharedSecret) == 0 {
		return nil, steamerr.New(steamerr.KindInvalidSecret, "shared secret is empty")
	}
	if len(identitySecret) == 0 {
		return nil, steamerr.New(steamerr.KindInvalidSecret, "identity secret is empty")
	}
	if err := validate.Var(accountID, "required,numeric"); err != nil {
		return nil, steamerr.Wrap(steamerr.KindInvalidSecret, err, "invalid account id")
	}

	if deviceID == "" {
		deviceID = DeviceID(accountID)
	}

	return &Credentials{
		sharedSecret:   append([]byte(nil), sharedSecret...),
		identitySecret: append([]byte(nil), identitySecret...),
		accountID:      accountID,
		deviceID:       deviceID,
	}, nil
}

// DeviceID derives a stable mobile device id for an account.
func DeviceID(steamID string) string {
	return "android:" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(steamID)).String()
}

func (c *Credentials) AccountID() string { return c.accountID }

func (c *Credentials) DeviceID() string { return c.deviceID }

// Code returns the login code for the window containing unix.
func (c *Credentials) Code(unix int64) (string, error) {
	return GenerateCode(c.sharedSecret, unix)
}

// Sign returns the confirmation key for tag at unix.
func (c *Credentials) Sign(unix int64, tag string) (string, error) {
	return SignConfirmation(c.identitySecret, unix, tag)
}

// SharedSecret returns a copy of the shared secret.
func (c *Credentials) SharedSecret() []byte {
	return append([]byte(nil), c.sharedSecret...)
}

// String never includes secret material.
func (c *Credentials) String() string {
	return fmt.Sprintf("Credentials{account_id: %s, device_id: %s}", c.accountID, c.deviceID)
}
