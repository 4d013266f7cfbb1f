package subscriber

import (
	"strings"

	"github.com/mcqkaramu/server/internal/model"
)

var mobitelPrefixes = []string{"9470", "9471"}

// ResolveProvider picks the upstream provider for a canonical subscriber id.
// Anything that is not a Mobitel prefix goes to Dialog.
func ResolveProvider(canonicalID string) model.Provider {
	for _, p := range mobitelPrefixes {
		if strings.HasPrefix(canonicalID, p) {
			return model.ProviderMobitel
		}
	}
	return model.ProviderDialog
}
