package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"time"
)

// sign computes the OKEx request signature:
// base64(HMAC-SHA256(secret, timestamp + method + path + body)).
func sign(secret, timestamp, method, path, body string) string {
	preHash := timestamp + method + path + body
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(preHash))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// isoTimestampMs returns now as ISO-8601 with millisecond precision, the
// format the exchange expects in both the signature pre-hash and the
// request header.
func isoTimestampMs(now time.Time) string {
	return now.UTC().Format("2006-01-02T15:04:05.000Z")
}
