// Package guard derives the mobile authenticator material: login codes and confirmation keys.
package guard

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // required by the authenticator protocol
	"encoding/binary"
	"time"

	"github.com/SafeMPC/steamguard/internal/steamerr"
)

const (
	// CodePeriod is the validity window of a login code.
	CodePeriod = 30 * time.Second
	// CodeLength is the number of characters in a login code.
	CodeLength = 5

	codeAlphabet = "23456789BCDFGHJKMNPQRTVWXY"
)

// OneTimeCode is a login code together with the window it is accepted in.
type OneTimeCode struct {
	Value     string
	ValidFrom time.Time
	ValidTo   time.Time
}

// GenerateCode derives the login code for the 30 second window containing unix.
func GenerateCode(sharedSecret []byte, unix int64) (string, error) {
	if len(sharedSecret) == 0 {
		return "", steamerr.New(steamerr.KindInvalidSecret, "shared secret is empty")
	}

	var counter [8]byte
	binary.BigEndian.PutUint64(counter[:], uint64(unix/int64(CodePeriod/time.Second)))

	mac := hmac.New(sha1.New, sharedSecret)
	mac.Write(counter[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	full := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	code := make([]byte, CodeLength)
	n := uint32(len(codeAlphabet))
	for i := range code {
		code[i] = codeAlphabet[full%n]
		full /= n
	}

	return string(code), nil
}

// CodeAt returns the code valid at t along with its window.
func CodeAt(sharedSecret []byte, t time.Time) (OneTimeCode, error) {
	value, err := GenerateCode(sharedSecret, t.Unix())
	if err != nil {
		return OneTimeCode{}, err
	}

	period := int64(CodePeriod / time.Second)
	from := time.Unix(t.Unix()-t.Unix()%period, 0).In(t.Location())
	return OneTimeCode{
		Value:     value,
		ValidFrom: from,
		ValidTo:   from.Add(CodePeriod),
	}, nil
}
