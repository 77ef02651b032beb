package participants

import (
	"strings"

	"github.com/dkeye/golive/internal/domain"
)

// Rule decides which participants are infrastructure (recorders, egress and
// agent workers) rather than audience. Any matching criterion is enough.
type Rule struct {
	IdentityPrefixes []string `mapstructure:"infra_identity_prefixes"`
	// MetadataMarker matches when the participant metadata contains it.
	MetadataMarker string   `mapstructure:"infra_metadata_marker"`
	Kinds          []string `mapstructure:"infra_kinds"`
}

// DefaultRule matches the egress recorder naming used by LiveKit deployments.
func DefaultRule() Rule {
	return Rule{
		IdentityPrefixes: []string{"EG_"},
		Kinds:            []string{"egress"},
	}
}

func (r Rule) Classify(info domain.ParticipantInfo) domain.Classification {
	if info.Identity == "" {
		return domain.ClassUnknown
	}
	for _, p := range r.IdentityPrefixes {
		if p != "" && strings.HasPrefix(info.Identity, p) {
			return domain.ClassInfrastructure
		}
	}
	if r.MetadataMarker != "" && strings.Contains(info.Metadata, r.MetadataMarker) {
		return domain.ClassInfrastructure
	}
	for _, k := range r.Kinds {
		if k != "" && strings.EqualFold(info.Kind, k) {
			return domain.ClassInfrastructure
		}
	}
	return domain.ClassViewer
}
