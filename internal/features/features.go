// Package features answers which optional capabilities are available for
// the current premium status.
package features

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/auth"
	"github.com/dmitrijs2005/gophvault/internal/common"
)

// Feature is an optional capability.
type Feature int

const (
	// FeatureCanPreviewAttachments allows showing exported attachments in
	// a preview instead of the options menu.
	FeatureCanPreviewAttachments Feature = iota
	// FeatureCanMirrorBackups allows uploading database copies to S3.
	FeatureCanMirrorBackups
)

func (f Feature) String() string {
	switch f {
	case FeatureCanPreviewAttachments:
		return "canPreviewAttachments"
	case FeatureCanMirrorBackups:
		return "canMirrorBackups"
	default:
		return fmt.Sprintf("feature(%d)", int(f))
	}
}

// Gate is a boolean capability check.
type Gate interface {
	IsAvailable(f Feature) bool
}

// GateFunc adapts a function to Gate.
type GateFunc func(Feature) bool

func (fn GateFunc) IsAvailable(f Feature) bool { return fn(f) }

// PremiumStatus is the licensing state of the installation.
type PremiumStatus int

const (
	StatusInitialGracePeriod PremiumStatus = iota
	StatusFreeLightUse
	StatusFreeHeavyUse
	StatusSubscribed
	StatusLapsed
)

var statusNames = map[PremiumStatus]string{
	StatusInitialGracePeriod: "initialGracePeriod",
	StatusFreeLightUse:       "freeLightUse",
	StatusFreeHeavyUse:       "freeHeavyUse",
	StatusSubscribed:         "subscribed",
	StatusLapsed:             "lapsed",
}

func (s PremiumStatus) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ErrUnknownStatus is returned by ParseStatus.
var ErrUnknownStatus = errors.New("unknown premium status")

// ParseStatus accepts the names printed by PremiumStatus.String, case
// insensitively.
func ParseStatus(s string) (PremiumStatus, error) {
	for st, n := range statusNames {
		if strings.EqualFold(n, s) {
			return st, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// IsAvailable reports whether f may be used in status s.
func (s PremiumStatus) IsAvailable(f Feature) bool {
	switch s {
	case StatusInitialGracePeriod, StatusSubscribed:
		return true
	case StatusFreeLightUse:
		return f == FeatureCanPreviewAttachments
	default:
		return false
	}
}

const (
	lightUseLockTimeout = time.Hour
	heavyUseLockTimeout = 5 * time.Minute
)

// LockTimeout limits the configured auto-lock timeout for free statuses.
// Zero means "never lock" and is limited like any other value.
func (s PremiumStatus) LockTimeout(configured time.Duration) time.Duration {
	var limit time.Duration
	switch s {
	case StatusInitialGracePeriod, StatusFreeLightUse:
		limit = lightUseLockTimeout
	case StatusFreeHeavyUse:
		limit = heavyUseLockTimeout
	default:
		return configured
	}
	if configured <= 0 || configured > limit {
		return limit
	}
	return configured
}

// LicenseGate derives the premium status from a signed license token.
type LicenseGate struct {
	status PremiumStatus
}

// NewLicenseGate checks token with secret. An empty token means the free
// light-use tier; an expired token means the subscription lapsed.
func NewLicenseGate(token string, secret []byte) (*LicenseGate, error) {
	if token == "" {
		return &LicenseGate{status: StatusFreeLightUse}, nil
	}

	claims, err := auth.ParseToken(token, secret)
	if errors.Is(err, common.ErrTokenExpired) {
		return &LicenseGate{status: StatusLapsed}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("license: %w", err)
	}

	st, err := ParseStatus(claims.Status)
	if err != nil {
		return nil, fmt.Errorf("license: %w", err)
	}
	return &LicenseGate{status: st}, nil
}

// NewStaticGate returns a gate fixed to status.
func NewStaticGate(status PremiumStatus) *LicenseGate {
	return &LicenseGate{status: status}
}

// Status returns the current premium status.
func (g *LicenseGate) Status() PremiumStatus { return g.status }

func (g *LicenseGate) IsAvailable(f Feature) bool {
	return g.status.IsAvailable(f)
}
