package marvel

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignAddsAuthTriple(t *testing.T) {
	t.Parallel()

	fixed := time.Unix(1700000000, 0)
	auth := authenticator{
		publicKey:  "pub",
		privateKey: "priv",
		now:        func() time.Time { return fixed },
	}

	q := url.Values{}
	q.Set("limit", "20")
	auth.sign(q)

	ts := q.Get("ts")
	require.NotEmpty(t, ts)
	require.Equal(t, "pub", q.Get("apikey"))

	sum := md5.Sum([]byte(ts + "priv" + "pub"))
	require.Equal(t, hex.EncodeToString(sum[:]), q.Get("hash"))
	require.Equal(t, "20", q.Get("limit"))
}

func TestSignRecomputesPerRequest(t *testing.T) {
	t.Parallel()

	auth := newAuthenticator("pub", "priv")

	first := url.Values{}
	auth.sign(first)
	time.Sleep(time.Millisecond)
	second := url.Values{}
	auth.sign(second)

	require.NotEqual(t, first.Get("ts"), second.Get("ts"))
	require.NotEqual(t, first.Get("hash"), second.Get("hash"))
}
