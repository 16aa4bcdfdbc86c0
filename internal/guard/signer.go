package guard

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // required by the authenticator protocol
	"encoding/base64"
	"encoding/binary"

	"github.com/SafeMPC/steamguard/internal/steamerr"
)

const maxTagLength = 32

// Confirmation tags understood by the mobileconf endpoints.
const (
	TagList   = "conf"
	TagAllow  = "allow"
	TagCancel = "cancel"
)

// SignConfirmation computes the confirmation key for tag at unix using the identity secret.
// A key is only valid for the exact (tag, timestamp) pair it was computed for.
func SignConfirmation(identitySecret []byte, unix int64, tag string) (string, error) {
	if len(identitySecret) == 0 {
		return "", steamerr.New(steamerr.KindInvalidSecret, "identity secret is empty")
	}

	if len(tag) > maxTagLength {
		tag = tag[:maxTagLength]
	}

	buf := make([]byte, 8, 8+len(tag))
	binary.BigEndian.PutUint64(buf, uint64(unix))
	buf = append(buf, tag...)

	mac := hmac.New(sha1.New, identitySecret)
	mac.Write(buf)

	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}
