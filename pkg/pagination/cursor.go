package pagination

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Cursor is the canonical, opaque pagination token (pre-encoding) with short
// field names to minimize payload size. It is serialized to minified JSON and
// encoded with URL-safe base64.
//
// Fields:
//   - v:   version of the cursor schema
//   - wid: workspace ID
//   - off: row offset into the filtered result
//   - ps:  page size in rows
//   - wsv: workspace write-version snapshot
//   - iat: issued-at timestamp (unix seconds)
//   - fh:  fingerprint of the filter parameters the page was cut from
type Cursor struct {
	V   int    `json:"v"`
	Wid string `json:"wid"`
	Off int    `json:"off"`
	Ps  int    `json:"ps"`
	Wsv int64  `json:"wsv"`
	Iat int64  `json:"iat"`
	Fh  string `json:"fh,omitempty"`
}

// ErrStale reports a cursor that no longer matches the workspace or filters.
var ErrStale = errors.New("cursor: stale for current workspace or filters")

// EncodeCursor serializes and encodes the cursor as URL-safe base64 (without padding).
func EncodeCursor(c Cursor) (string, error) {
	if err := validate(&c); err != nil {
		return "", err
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeCursor decodes a URL-safe base64 token and parses the JSON cursor.
func DecodeCursor(token string) (*Cursor, error) {
	t := strings.TrimSpace(token)
	if t == "" {
		return nil, errors.New("cursor: empty token")
	}
	data, err := base64.RawURLEncoding.DecodeString(t)
	if err != nil {
		return nil, fmt.Errorf("cursor: invalid base64: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("cursor: invalid json: %w", err)
	}
	if err := validate(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// validate performs structural checks and defaulting.
func validate(c *Cursor) error {
	if c.V <= 0 {
		c.V = 1
	}
	if c.Iat == 0 {
		c.Iat = time.Now().Unix()
	}
	if strings.TrimSpace(c.Wid) == "" {
		return errors.New("cursor: wid (workspace id) required")
	}
	if c.Off < 0 {
		return errors.New("cursor: off must be >= 0")
	}
	if c.Ps <= 0 {
		return errors.New("cursor: ps must be > 0")
	}
	if c.Wsv < 0 {
		c.Wsv = 0
	}
	return nil
}

// Check verifies the cursor still applies to workspace wid at version wsv
// with the filter fingerprint fh.
func (c *Cursor) Check(wid string, wsv int64, fh string) error {
	if c.Wid != wid || c.Wsv != wsv || c.Fh != fh {
		return ErrStale
	}
	return nil
}

// Fingerprint hashes any JSON-serializable filter description. Equal
// parameters always give equal fingerprints.
func Fingerprint(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}

// NextOffset computes the next offset after returning n units.
func NextOffset(curr, n int) int {
	if curr < 0 {
		curr = 0
	}
	if n <= 0 {
		return curr
	}
	return curr + n
}

// Window returns the [start, end) bounds of the page at off with size ps
// over total items, and whether more items follow.
func Window(total, off, ps int) (start, end int, more bool) {
	start = min(max(off, 0), total)
	end = min(start+ps, total)
	return start, end, end < total
}
