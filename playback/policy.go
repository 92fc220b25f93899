package playback

import (
	"errors"
	"fmt"
	"strings"
)

// Preference is the user's standing choice between singing and reading.
type Preference int

const (
	// PreferenceAuto sings when a recording exists and reads otherwise.
	PreferenceAuto Preference = iota
	// PreferenceForceSing sings whenever a recording exists.
	PreferenceForceSing
	// PreferenceForceRead always reads.
	PreferenceForceRead
)

// String returns the string representation of the preference.
func (p Preference) String() string {
	switch p {
	case PreferenceAuto:
		return "auto"
	case PreferenceForceSing:
		return "sing"
	case PreferenceForceRead:
		return "read"
	default:
		return "unknown"
	}
}

// ParsePreference accepts auto, sing or read, case-insensitively, with an
// optional force_ prefix.
func ParsePreference(s string) (Preference, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimPrefix(strings.TrimPrefix(v, "force_"), "force")
	switch v {
	case "", "auto":
		return PreferenceAuto, nil
	case "sing", "sung":
		return PreferenceForceSing, nil
	case "read":
		return PreferenceForceRead, nil
	}
	return PreferenceAuto, fmt.Errorf("unknown preference %q: must be auto, sing or read", s)
}

// Target is the engine a screen renders with.
type Target int

const (
	// TargetSung plays the recording through the Coordinator.
	TargetSung Target = iota
	// TargetRead renders through the screen's NarrationController.
	TargetRead
)

// String returns the string representation of the target.
func (t Target) String() string {
	if t == TargetSung {
		return "sung"
	}
	return "read"
}

// ResolveTarget picks the target for a preference and a resolved source.
func ResolveTarget(pref Preference, src AudioSource) Target {
	if pref == PreferenceForceRead {
		return TargetRead
	}
	if src.Playable() {
		return TargetSung
	}
	return TargetRead
}

// Content is what a screen binds to: identity, display data, audio fields
// and narration text of one content item.
type Content struct {
	Type          string
	ID            string
	Title         string
	Subtitle      string
	Language      string
	DurationMs    int64
	Fields        ContentAudioFields
	NarrationText string
}

// PolicyState is an immutable snapshot of a TargetPolicy.
type PolicyState struct {
	HasContent      bool
	Source          AudioSource
	Preference      Preference
	Target          Target
	Active          bool // the target engine is playing for this screen
	FallbackOffered bool // a recording failed and narration text exists
	Err             error
}

// TargetPolicy decides, per screen, whether content is sung by the
// Coordinator or read by the screen's NarrationController, and keeps at
// most one of them active. It shares the Coordinator's loop.
type TargetPolicy struct {
	loop      *Loop
	coord     *Coordinator
	narration *NarrationController
	cfg       Config
	state     *Observable[PolicyState]
	scope     Scope

	// Owned by the loop.
	content         *Content
	source          AudioSource
	track           Track
	pref            Preference
	target          Target
	engaged         bool
	fallback        bool
	fallbackOffered bool
	err             error
	released        bool
}

// NewTargetPolicy creates the policy of one screen and takes a
// Coordinator reference for it. narration must run on the Coordinator's
// loop and belongs to the policy from now on.
func NewTargetPolicy(coord *Coordinator, narration *NarrationController, cfg Config) (*TargetPolicy, error) {
	if coord.loop != narration.loop {
		return nil, errors.New("narration controller and coordinator must share a loop")
	}
	pref, err := ParsePreference(cfg.Preference)
	if err != nil {
		return nil, err
	}

	p := &TargetPolicy{
		loop:      coord.loop,
		coord:     coord,
		narration: narration,
		cfg:       cfg,
		pref:      pref,
	}
	p.state = newObservable(p.loop, p.snapshot())

	coord.Acquire()
	p.loop.Post(func() { coord.attach(narration) })
	p.scope.Add(coord.Subscribe(func(PlaybackState) { p.loop.Post(p.reconcile) }))
	p.scope.Add(narration.Subscribe(func(NarrationState) { p.loop.Post(p.reconcile) }))
	return p, nil
}

// Coordinator returns the shared coordinator.
func (p *TargetPolicy) Coordinator() *Coordinator {
	return p.coord
}

// Narration returns the screen's narration controller.
func (p *TargetPolicy) Narration() *NarrationController {
	return p.narration
}

// State returns the latest snapshot.
func (p *TargetPolicy) State() PolicyState {
	return p.state.Get()
}

// Subscribe registers fn for every published snapshot.
func (p *TargetPolicy) Subscribe(fn func(PolicyState)) *Subscription {
	return p.state.Subscribe(fn)
}

// Bind attaches the screen to a content item. Binding a refreshed copy of
// the same item keeps playback going.
func (p *TargetPolicy) Bind(c Content) {
	p.loop.Post(func() { p.bind(c) })
}

// OnToggleRequested handles the screen's play/pause control.
func (p *TargetPolicy) OnToggleRequested() {
	p.loop.Post(p.toggle)
}

// SetPreference changes the sing/read preference. An active screen
// switches engines immediately.
func (p *TargetPolicy) SetPreference(pref Preference) {
	p.loop.Post(func() { p.setPreference(pref) })
}

// FallbackToRead abandons the recording and reads the narration text.
func (p *TargetPolicy) FallbackToRead() {
	p.loop.Post(p.fallbackToRead)
}

// Stop halts whichever engine the screen is using.
func (p *TargetPolicy) Stop() {
	p.loop.Post(func() {
		if p.released {
			return
		}
		p.disengage()
		p.reconcile()
	})
}

// Release stops the screen's engines, releases its narration controller
// and its Coordinator reference. Release is idempotent.
func (p *TargetPolicy) Release() {
	p.loop.Post(p.release)
}

func (p *TargetPolicy) bind(c Content) {
	if p.released {
		return
	}
	same := p.content != nil && p.content.ID == c.ID && p.content.Type == c.Type
	if !same {
		p.disengage()
		p.fallback = false
		p.fallbackOffered = false
		p.err = nil
	}
	textChanged := p.content == nil || p.content.NarrationText != c.NarrationText

	p.content = &c
	p.source = Resolve(c.Fields)
	id := p.track.ID
	p.track = NewTrack(c.Type, c.ID, c.Title, p.source)
	p.track.Subtitle = c.Subtitle
	p.track.Language = c.Language
	p.track.DurationMs = c.DurationMs
	if same && id != "" {
		p.track.ID = id
	}

	if textChanged {
		p.narration.setText(c.NarrationText)
	}
	if p.fallback {
		p.narration.setSource(NarrationSource())
	} else {
		p.narration.setSource(p.source)
	}

	if p.engaged && p.resolve() != p.target {
		p.disengage()
	}
	LogPlaybackEvent("policy", "bind", "content", c.ID, "source", p.source.DisplayLabel)
	p.reconcile()
}

func (p *TargetPolicy) resolve() Target {
	if p.fallback {
		return TargetRead
	}
	return ResolveTarget(p.pref, p.source)
}

func (p *TargetPolicy) toggle() {
	if p.released {
		return
	}
	if p.content == nil {
		logger.Debug("toggle requested before content was bound")
		return
	}

	target := p.resolve()
	if !p.engaged || target != p.target {
		p.switchTo(target)
		p.reconcile()
		return
	}

	switch target {
	case TargetSung:
		if p.coord.State().IsTrack(p.track.ContentType, p.track.ContentID) {
			p.coord.toggle()
		} else {
			p.startSung()
		}
	case TargetRead:
		if !p.narration.isPlaying() {
			p.yieldCoordinator()
		}
		p.narration.toggle()
	}
	p.reconcile()
}

// switchTo stops the current target before starting the new one, inside
// one loop turn.
func (p *TargetPolicy) switchTo(target Target) {
	p.disengage()
	p.target = target
	p.engaged = true
	LogPlaybackEvent("policy", "target", "content", p.track.ContentID, "target", target)

	if target == TargetSung {
		p.startSung()
		return
	}
	p.yieldCoordinator()
	p.narration.play()
}

func (p *TargetPolicy) startSung() {
	if !p.source.Playable() {
		// ResolveTarget never picks Sung without a locator.
		p.err = NewError(ErrSourceUnavailable, "policy", "sing", nil)
		return
	}
	p.narration.stop()
	ps := p.coord.State()
	if ps.IsTrack(p.track.ContentType, p.track.ContentID) && (ps.IsPlaying || ps.Status == StatusLoading) {
		return
	}
	p.coord.play(p.track)
}

// yieldCoordinator silences the Coordinator before narration starts: this
// screen's track is stopped, another screen's track is paused.
func (p *TargetPolicy) yieldCoordinator() {
	ps := p.coord.State()
	if !ps.HasTrack() {
		return
	}
	if ps.IsTrack(p.track.ContentType, p.track.ContentID) {
		p.coord.unload()
		return
	}
	p.coord.pause()
}

func (p *TargetPolicy) disengage() {
	if !p.engaged {
		return
	}
	switch p.target {
	case TargetSung:
		if p.coord.State().IsTrack(p.track.ContentType, p.track.ContentID) {
			p.coord.unload()
		}
	case TargetRead:
		p.narration.stop()
	}
	p.engaged = false
}

func (p *TargetPolicy) setPreference(pref Preference) {
	if p.released || pref == p.pref {
		return
	}
	p.pref = pref
	LogPlaybackEvent("policy", "preference", "preference", pref)

	if p.engaged && p.content != nil {
		if target := p.resolve(); target != p.target {
			if p.isActive() {
				p.switchTo(target)
			} else {
				p.disengage()
			}
		}
	}
	p.reconcile()
}

func (p *TargetPolicy) fallbackToRead() {
	if p.released || p.content == nil {
		return
	}
	if strings.TrimSpace(p.content.NarrationText) == "" {
		p.err = NewError(ErrSourceUnavailable, "policy", "fallback to read", errors.New("no narration text"))
		p.fallbackOffered = false
		LogPlaybackError("policy", p.err)
		p.publish()
		return
	}

	p.disengage()
	p.fallback = true
	p.fallbackOffered = false
	p.err = nil
	p.narration.setSource(NarrationSource())
	p.switchTo(TargetRead)
	LogPlaybackEvent("policy", "fallback", "content", p.track.ContentID)
	p.reconcile()
}

func (p *TargetPolicy) release() {
	if p.released {
		return
	}
	p.disengage()
	p.released = true
	p.scope.Close()
	p.coord.detach(p.narration)
	p.narration.release()
	p.coord.release()
	LogPlaybackEvent("policy", "release", "content", p.track.ContentID)
	p.publish()
}

func (p *TargetPolicy) isActive() bool {
	if !p.engaged {
		return false
	}
	if p.target == TargetRead {
		return p.narration.isPlaying()
	}
	ps := p.coord.State()
	return ps.IsTrack(p.track.ContentType, p.track.ContentID) &&
		(ps.IsPlaying || ps.Status == StatusLoading)
}

// reconcile folds engine state into the policy snapshot and applies the
// automatic fallback.
func (p *TargetPolicy) reconcile() {
	if p.released {
		return
	}
	var failure error
	if p.engaged && p.content != nil {
		switch p.target {
		case TargetSung:
			ps := p.coord.State()
			if ps.Status == StatusError && ps.IsTrack(p.track.ContentType, p.track.ContentID) {
				failure = ps.Err
			}
		case TargetRead:
			if ns := p.narration.State(); ns.Status == StatusError {
				failure = ns.Err
				if !ns.IsStreamingMode {
					p.err = failure
					p.publish()
					return
				}
			}
		}
	}

	if failure != nil {
		p.err = failure
		if !p.fallback && strings.TrimSpace(p.content.NarrationText) != "" {
			if p.cfg.AutoFallback {
				p.fallbackToRead()
				return
			}
			p.fallbackOffered = true
		}
	} else if p.err != nil && p.engaged && !errors.Is(p.err, ErrSourceUnavailable) {
		p.err = nil
	}
	p.publish()
}

func (p *TargetPolicy) snapshot() PolicyState {
	s := PolicyState{
		HasContent:      p.content != nil,
		Source:          p.source,
		Preference:      p.pref,
		Target:          p.target,
		FallbackOffered: p.fallbackOffered,
		Err:             p.err,
	}
	if p.content != nil && !p.engaged {
		s.Target = p.resolve()
	}
	if !p.released {
		s.Active = p.isActive()
	}
	return s
}

func (p *TargetPolicy) publish() {
	p.state.set(p.snapshot())
}
