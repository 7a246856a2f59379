package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidKeyEncoding is returned when a shared access key is not valid
// standard base64.
var ErrInvalidKeyEncoding = errors.New("shared access key is not valid base64")

// Credentials holds everything the MQTT transport needs to open a session
// against the hub.
type Credentials struct {
	ClientID string
	Username string
	Password string
}

// GenerateMQTTCredentials derives the full MQTT credential set for a device.
// The password is a SAS token valid for expiresIn counted from now.
func GenerateMQTTCredentials(hostName, deviceID, sharedAccessKey string, expiresIn time.Duration, now time.Time) (*Credentials, error) {
	token, err := GenerateSASToken(ResourceURI(hostName, deviceID), sharedAccessKey, expiresIn, now)
	if err != nil {
		return nil, err
	}

	return &Credentials{
		ClientID: deviceID,
		Username: Username(hostName, deviceID),
		Password: token,
	}, nil
}

// Username returns the username the hub expects alongside a SAS password.
func Username(hostName, deviceID string) string {
	return hostName + "/devices/" + deviceID
}

// ResourceURI returns the URL-encoded resource being authorized,
// host plus device path.
func ResourceURI(hostName, deviceID string) string {
	return urlEncode(hostName + "/devices/" + deviceID)
}

// GenerateSASToken builds a SharedAccessSignature string usable as an MQTT
// password. resourceURI must already be URL-encoded (see ResourceURI).
// The expiry is the ceiling of now+expiresIn in epoch seconds, so the token
// stays valid through at least the stated second. The caller supplies now,
// which keeps the function deterministic.
func GenerateSASToken(resourceURI, sharedAccessKey string, expiresIn time.Duration, now time.Time) (string, error) {
	key, err := base64.StdEncoding.DecodeString(sharedAccessKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKeyEncoding, err)
	}

	expiry := expiryEpoch(now, expiresIn)
	toSign := resourceURI + "\n" + strconv.FormatInt(expiry, 10)

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(toSign))
	signature := urlEncode(base64.StdEncoding.EncodeToString(mac.Sum(nil)))

	// Field order is fixed: the hub parses sr, sig, se positionally.
	// The signature is base64 then percent-encoded; se stays unencoded.
	return "SharedAccessSignature sr=" + resourceURI + "&sig=" + signature + "&se=" + strconv.FormatInt(expiry, 10), nil
}

// expiryEpoch rounds now+expiresIn up to whole epoch seconds.
func expiryEpoch(now time.Time, expiresIn time.Duration) int64 {
	expiry := now.Add(expiresIn)
	secs := expiry.Unix()
	if expiry.Nanosecond() > 0 {
		secs++
	}
	return secs
}

// urlEncode percent-encodes s with lowercase hex escapes. The hub's token
// parser was written against encoders that emit lowercase, so %2f rather
// than Go's %2F.
func urlEncode(s string) string {
	escaped := url.QueryEscape(s)

	var b strings.Builder
	b.Grow(len(escaped))
	for i := 0; i < len(escaped); i++ {
		c := escaped[i]
		b.WriteByte(c)
		if c == '%' && i+2 < len(escaped) {
			b.WriteByte(lowerHex(escaped[i+1]))
			b.WriteByte(lowerHex(escaped[i+2]))
			i += 2
		}
	}
	return b.String()
}

func lowerHex(c byte) byte {
	if c >= 'A' && c <= 'F' {
		return c + ('a' - 'A')
	}
	return c
}
