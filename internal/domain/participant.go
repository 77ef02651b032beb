package domain

type Classification string

const (
	ClassUnknown        Classification = "unknown"
	ClassViewer         Classification = "viewer"
	ClassInfrastructure Classification = "infrastructure"
)

// ParticipantInfo is the provider's view of a remote participant at event time.
type ParticipantInfo struct {
	Identity string
	Name     string
	Metadata string
	// Kind is the provider's own participant kind ("standard", "egress", "agent", ...), if any.
	Kind string
}

// RemoteParticipant is a remote member of the room as tracked by the participant registry.
type RemoteParticipant struct {
	Identity       string                       `json:"identity"`
	Name           string                       `json:"name"`
	Metadata       string                       `json:"-"`
	Kind           string                       `json:"kind,omitempty"`
	Classification Classification               `json:"classification"`
	Publications   map[string]*TrackPublication `json:"publications"`
}

func NewRemoteParticipant(info ParticipantInfo, class Classification) *RemoteParticipant {
	return &RemoteParticipant{
		Identity:       info.Identity,
		Name:           info.Name,
		Metadata:       info.Metadata,
		Kind:           info.Kind,
		Classification: class,
		Publications:   make(map[string]*TrackPublication),
	}
}

// Clone deep-copies the participant including its publications.
func (p *RemoteParticipant) Clone() *RemoteParticipant {
	out := *p
	out.Publications = make(map[string]*TrackPublication, len(p.Publications))
	for sid, pub := range p.Publications {
		cp := *pub
		out.Publications[sid] = &cp
	}
	return &out
}
