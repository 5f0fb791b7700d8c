package tiktok

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"time"
)

const signaturePrefix = "_02B4Z6wo00001"

// placeholderSignature has the shape of the platform's _signature value but
// none of its meaning; the server does not validate it for profile pages.
func placeholderSignature(deviceID, rawURL string, ts int64) string {
	sum := sha256.Sum256([]byte(deviceID + "|" + rawURL + "|" + strconv.FormatInt(ts, 10)))
	return signaturePrefix + hex.EncodeToString(sum[:16])
}

// signURL returns a copy of u carrying a placeholder _signature parameter.
func signURL(u *url.URL, fp Fingerprint, now time.Time) *url.URL {
	signed := *u
	q := signed.Query()
	q.Set("_signature", placeholderSignature(fp.DeviceID, u.String(), now.Unix()))
	signed.RawQuery = q.Encode()
	return &signed
}
