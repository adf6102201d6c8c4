// Package audience maintains advertising custom audiences through the
// Graph API. Membership updates ship as fixed-size chunks of hashed
// identifiers, rate limited and retried on transport failures.
package audience

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Schema identifies the kind of user identifier a payload carries.
type Schema int

const (
	// EmailSHA256 matches users by email address. Values are
	// normalized and hashed client-side before upload.
	EmailSHA256 Schema = iota
	// PhoneSHA256 matches users by phone number. Values are
	// normalized and hashed client-side before upload.
	PhoneSHA256
	// MobileAdvertiserID matches users by device advertising ID.
	// Values are sent as-is.
	MobileAdvertiserID
)

func (s Schema) String() string {
	switch s {
	case EmailSHA256:
		return "EMAIL_SHA256"
	case PhoneSHA256:
		return "PHONE_SHA256"
	case MobileAdvertiserID:
		return "MOBILE_ADVERTISER_ID"
	}
	return "UNKNOWN"
}

// hashed reports whether values under s must be hashed before upload.
func (s Schema) hashed() bool {
	return s == EmailSHA256 || s == PhoneSHA256
}

// Audience describes a custom audience.
type Audience struct {
	ID                 string
	Name               string
	ApproximateCount   int64
	TimeUpdated        time.Time
	TimeContentUpdated time.Time
}

// hashValues normalizes identifiers the way the matcher expects them,
// trimmed and lowercased, then hashes each one to SHA-256 hex.
func hashValues(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(v))))
		out[i] = hex.EncodeToString(sum[:])
	}
	return out
}

// chunks splits values into runs of at most size elements.
func chunks(values []string, size int) [][]string {
	var out [][]string
	for len(values) > size {
		out = append(out, values[:size])
		values = values[size:]
	}
	if len(values) > 0 {
		out = append(out, values)
	}
	return out
}
