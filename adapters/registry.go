// ABOUTME: Closed adapter registry keyed by platform
// ABOUTME: Resolves a platform name to its adapter variant, never a default
package adapters

import (
	"github.com/QV-Systems/rc-unified-crm-extension/crmerr"
	"github.com/QV-Systems/rc-unified-crm-extension/models"
)

// Adapters hold no per-request state, so one instance per platform serves
// every caller.
var (
	pipedrive  = newPipedrive()
	insightly  = newInsightly()
	clio       = newClio()
	accelerate = newAccelerate()
)

// ForPlatform resolves a platform to its adapter. Adding a platform means
// adding a case here and a variant implementing Adapter; callers never
// see concrete types. Unrecognized names fail, never fall through.
func ForPlatform(platform models.Platform) (Adapter, error) {
	switch platform {
	case models.PlatformPipedrive:
		return pipedrive, nil
	case models.PlatformInsightly:
		return insightly, nil
	case models.PlatformClio:
		return clio, nil
	case models.PlatformAccelerate:
		return accelerate, nil
	default:
		return nil, crmerr.UnknownPlatform(string(platform))
	}
}
