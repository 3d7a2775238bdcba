package marvel

import (
	"crypto/md5" // #nosec G501 -- digest algorithm mandated by the gateway
	"encoding/hex"
	"net/url"
	"strconv"
	"time"
)

// authenticator signs outbound requests with the gateway's keyed digest
// scheme: a fresh timestamp, the public key, and md5(ts+private+public).
// Timestamps are single-use, so the digest is recomputed per request.
type authenticator struct {
	publicKey  string
	privateKey string
	now        func() time.Time
}

func newAuthenticator(publicKey, privateKey string) authenticator {
	return authenticator{
		publicKey:  publicKey,
		privateKey: privateKey,
		now:        time.Now,
	}
}

// sign adds ts, apikey and hash to the query values.
func (a authenticator) sign(q url.Values) {
	ts := strconv.FormatInt(a.now().UnixNano(), 10)
	sum := md5.Sum([]byte(ts + a.privateKey + a.publicKey)) // #nosec G401
	q.Set("ts", ts)
	q.Set("apikey", a.publicKey)
	q.Set("hash", hex.EncodeToString(sum[:]))
}
