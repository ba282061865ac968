package pagination

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeCursor_RoundTrip(t *testing.T) {
	c := Cursor{V: 1, Wid: "ws-123", Off: 200, Ps: 100, Wsv: 2, Fh: Fingerprint(map[string]any{"min_abs": 150})}
	tok, err := EncodeCursor(c)
	require.NoError(t, err)
	// url-safe base64 without padding
	require.False(t, strings.ContainsAny(tok, "+/="), tok)

	out, err := DecodeCursor(tok)
	require.NoError(t, err)
	require.Equal(t, c.Wid, out.Wid)
	require.Equal(t, c.Off, out.Off)
	require.Equal(t, c.Ps, out.Ps)
	require.NoError(t, out.Check("ws-123", 2, c.Fh))
}

func TestCursorCheck_Stale(t *testing.T) {
	c := Cursor{Wid: "ws", Ps: 10, Wsv: 1, Fh: "abc"}
	require.ErrorIs(t, c.Check("other", 1, "abc"), ErrStale)
	require.ErrorIs(t, c.Check("ws", 2, "abc"), ErrStale)
	require.ErrorIs(t, c.Check("ws", 1, "def"), ErrStale)
}

func TestDecodeCursor_Invalid(t *testing.T) {
	cases := []string{
		"",
		"!!!",
		base64.RawURLEncoding.EncodeToString([]byte("not-json")),
		mustB64(`{"v":1}`),
		mustB64(`{"v":1,"wid":"","off":0,"ps":10}`),
		mustB64(`{"v":1,"wid":"x","off":-1,"ps":10}`),
		mustB64(`{"v":1,"wid":"x","off":0,"ps":0}`),
	}
	for i, tok := range cases {
		_, err := DecodeCursor(tok)
		require.Error(t, err, "case %d", i)
	}
}

func TestFingerprint_Stable(t *testing.T) {
	type params struct {
		Min      float64  `json:"min"`
		Accounts []string `json:"accounts"`
	}
	a := Fingerprint(params{Min: 1, Accounts: []string{"Revenue"}})
	require.Equal(t, a, Fingerprint(params{Min: 1, Accounts: []string{"Revenue"}}))
	require.NotEqual(t, a, Fingerprint(params{Min: 2, Accounts: []string{"Revenue"}}))
	require.Len(t, a, 16)
}

func TestWindow(t *testing.T) {
	start, end, more := Window(250, 200, 100)
	require.Equal(t, 200, start)
	require.Equal(t, 250, end)
	require.False(t, more)

	start, end, more = Window(250, 0, 100)
	require.Equal(t, 0, start)
	require.Equal(t, 100, end)
	require.True(t, more)

	start, end, _ = Window(5, 10, 3)
	require.Equal(t, 5, start)
	require.Equal(t, 5, end)

	require.Equal(t, 30, NextOffset(10, 20))
	require.Equal(t, 0, NextOffset(-5, 0))
}

func FuzzDecodeCursor(f *testing.F) {
	seeds := []string{
		"", "abc", mustB64(`{"v":1}`), mustB64(`{"wid":"x"}`),
		mustB64(`{"v":1,"wid":"ws","off":0,"ps":1}`),
	}
	for _, s := range seeds {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, token string) {
		_, _ = DecodeCursor(token)
	})
}

func mustB64(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}
