package adapters

import (
	"testing"

	"github.com/QV-Systems/rc-unified-crm-extension/crmerr"
	"github.com/QV-Systems/rc-unified-crm-extension/models"
)

func TestForPlatformResolvesEveryVariant(t *testing.T) {
	tests := []struct {
		platform models.Platform
		authType models.AuthType
	}{
		{models.PlatformPipedrive, models.AuthTypeOAuth},
		{models.PlatformInsightly, models.AuthTypeAPIKey},
		{models.PlatformClio, models.AuthTypeOAuth},
		{models.PlatformAccelerate, models.AuthTypeAPIKey},
	}

	for _, tt := range tests {
		adapter, err := ForPlatform(tt.platform)
		if err != nil {
			t.Fatalf("ForPlatform(%s) failed: %v", tt.platform, err)
		}
		if adapter.AuthType() != tt.authType {
			t.Errorf("%s declares %s, want %s", tt.platform, adapter.AuthType(), tt.authType)
		}
	}
}

func TestForPlatformUnknown(t *testing.T) {
	for _, name := range []string{"", "zendesk", "PIPEDRIVE"} {
		adapter, err := ForPlatform(models.Platform(name))
		if adapter != nil {
			t.Errorf("ForPlatform(%q) must not return a default adapter", name)
		}
		if crmerr.KindOf(err) != crmerr.KindUnknownPlatform {
			t.Errorf("ForPlatform(%q) kind = %v, want KindUnknownPlatform", name, crmerr.KindOf(err))
		}
	}
}
