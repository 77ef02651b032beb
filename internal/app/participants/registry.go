package participants

import (
	"sync"
	"time"

	"github.com/dkeye/golive/internal/core"
	"github.com/dkeye/golive/internal/domain"
	"github.com/rs/zerolog/log"
)

// Registry tracks remote participants of one session and derives the audience size.
type Registry struct {
	mu           sync.RWMutex
	rule         Rule
	participants map[string]*domain.RemoteParticipant
	viewers      int
	notify       core.Notifier
}

func NewRegistry(rule Rule, notify core.Notifier) *Registry {
	if notify == nil {
		notify = func(core.Notice) {}
	}
	return &Registry{
		rule:         rule,
		participants: make(map[string]*domain.RemoteParticipant),
		notify:       notify,
	}
}

// Seed loads the participants already in the room when the session starts.
// It does not emit join notices.
func (r *Registry) Seed(snapshot []domain.ParticipantInfo) {
	r.mu.Lock()
	for _, info := range snapshot {
		if _, ok := r.participants[info.Identity]; ok {
			continue
		}
		r.participants[info.Identity] = domain.NewRemoteParticipant(info, r.rule.Classify(info))
	}
	count := r.countLocked(snapshot)
	changed := count != r.viewers
	r.viewers = count
	r.mu.Unlock()

	log.Info().Str("module", "participants").Int("participants", len(snapshot)).Int("viewers", count).Msg("seeded")
	if changed {
		r.notify(core.Notice{Kind: core.NoticeViewerCount, ViewerCount: count, At: time.Now()})
	}
}

// Join records a connected participant. snapshot is the provider's participant set
// carried by the same event; the viewer count is recomputed from it.
func (r *Registry) Join(info domain.ParticipantInfo, snapshot []domain.ParticipantInfo) domain.Classification {
	class := r.rule.Classify(info)

	r.mu.Lock()
	p, existed := r.participants[info.Identity]
	if existed {
		p.Name = info.Name
		p.Metadata = info.Metadata
		p.Kind = info.Kind
		p.Classification = class
	} else {
		r.participants[info.Identity] = domain.NewRemoteParticipant(info, class)
	}
	if snapshot != nil {
		snapshot = withIdentity(snapshot, info)
	}
	count := r.countLocked(snapshot)
	changed := count != r.viewers
	r.viewers = count
	r.mu.Unlock()

	logger := log.With().Str("module", "participants").Str("identity", info.Identity).Str("class", string(class)).Logger()
	if existed {
		logger.Debug().Msg("participant updated")
	} else {
		logger.Info().Int("viewers", count).Msg("participant joined")
		r.notify(core.Notice{Kind: core.NoticeParticipantJoined, Identity: info.Identity, Classification: class, ViewerCount: count, At: time.Now()})
	}
	if changed {
		r.notify(core.Notice{Kind: core.NoticeViewerCount, ViewerCount: count, At: time.Now()})
	}
	return class
}

// Leave removes a participant and reports the classification it had.
func (r *Registry) Leave(info domain.ParticipantInfo, snapshot []domain.ParticipantInfo) (domain.Classification, bool) {
	r.mu.Lock()
	p, ok := r.participants[info.Identity]
	if ok {
		delete(r.participants, info.Identity)
	}
	if snapshot != nil {
		snapshot = withoutIdentity(snapshot, info.Identity)
	}
	count := r.countLocked(snapshot)
	changed := count != r.viewers
	r.viewers = count
	r.mu.Unlock()

	if !ok {
		log.Debug().Str("module", "participants").Str("identity", info.Identity).Msg("leave for unknown participant")
		if changed {
			r.notify(core.Notice{Kind: core.NoticeViewerCount, ViewerCount: count, At: time.Now()})
		}
		return domain.ClassUnknown, false
	}

	log.Info().Str("module", "participants").Str("identity", info.Identity).Int("viewers", count).Msg("participant left")
	r.notify(core.Notice{Kind: core.NoticeParticipantLeft, Identity: info.Identity, Classification: p.Classification, ViewerCount: count, At: time.Now()})
	if changed {
		r.notify(core.Notice{Kind: core.NoticeViewerCount, ViewerCount: count, At: time.Now()})
	}
	return p.Classification, true
}

// countLocked counts viewers in snapshot, or in the registry when the event carried none.
func (r *Registry) countLocked(snapshot []domain.ParticipantInfo) int {
	n := 0
	if snapshot == nil {
		for _, p := range r.participants {
			if p.Classification == domain.ClassViewer {
				n++
			}
		}
		return n
	}
	seen := make(map[string]struct{}, len(snapshot))
	for _, info := range snapshot {
		if _, dup := seen[info.Identity]; dup {
			continue
		}
		seen[info.Identity] = struct{}{}
		if r.rule.Classify(info) == domain.ClassViewer {
			n++
		}
	}
	return n
}

func (r *Registry) ViewerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.viewers
}

func (r *Registry) Get(identity string) (*domain.RemoteParticipant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[identity]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

func (r *Registry) Participants() []*domain.RemoteParticipant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.RemoteParticipant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, p.Clone())
	}
	return out
}

// AddPublication records a track announced by identity. A publication for an
// unknown participant creates the participant without a join notice.
func (r *Registry) AddPublication(info domain.ParticipantInfo, pub domain.TrackPublication) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[info.Identity]
	if !ok {
		p = domain.NewRemoteParticipant(info, r.rule.Classify(info))
		r.participants[info.Identity] = p
	}
	cp := pub
	cp.Participant = info.Identity
	p.Publications[pub.SID] = &cp
}

func (r *Registry) RemovePublication(identity, sid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.participants[identity]; ok {
		delete(p.Publications, sid)
	}
}

func (r *Registry) SetMuted(identity, sid string, muted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.participants[identity]; ok {
		if pub, ok := p.Publications[sid]; ok {
			pub.Muted = muted
		}
	}
}

// SetStatus mirrors the subscription status owned by the track manager.
func (r *Registry) SetStatus(identity, sid string, status domain.SubscriptionStatus, attached bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.participants[identity]; ok {
		if pub, ok := p.Publications[sid]; ok {
			pub.Status = status
			pub.Attached = attached
		}
	}
}

func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.participants)
	r.viewers = 0
}

func withIdentity(snapshot []domain.ParticipantInfo, info domain.ParticipantInfo) []domain.ParticipantInfo {
	for _, s := range snapshot {
		if s.Identity == info.Identity {
			return snapshot
		}
	}
	out := make([]domain.ParticipantInfo, 0, len(snapshot)+1)
	out = append(out, snapshot...)
	return append(out, info)
}

func withoutIdentity(snapshot []domain.ParticipantInfo, identity string) []domain.ParticipantInfo {
	out := make([]domain.ParticipantInfo, 0, len(snapshot))
	for _, s := range snapshot {
		if s.Identity != identity {
			out = append(out, s)
		}
	}
	return out
}
