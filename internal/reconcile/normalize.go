package reconcile

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sydlexius/confluence/internal/catalog"
)

// DefaultDurationBucketMS is the width of the duration buckets used in
// recording keys.
const DefaultDurationBucketMS = 2000

// unknownCreditOrder sorts contributions without a credit order last.
const unknownCreditOrder = 10_000

// normalizationLevels orders entity types so every type is keyed after the
// types its keys depend on.
var normalizationLevels = [][]catalog.EntityType{
	{catalog.TypeArtist, catalog.TypeLabel},
	{catalog.TypeReleaseSet, catalog.TypeRecording, catalog.TypeUser},
	{catalog.TypeRelease},
	{catalog.TypeReleaseTrack},
	{catalog.TypePlayEvent, catalog.TypeLibraryItem},
}

// orderedClaims returns the claims of g level by level, each type in graph
// order.
func orderedClaims(g *ClaimGraph) []*EntityClaim {
	out := make([]*EntityClaim, 0, g.Len())
	for _, level := range normalizationLevels {
		for _, t := range level {
			out = append(out, g.ClaimsFor(t)...)
		}
	}
	return out
}

// Normalizer derives deterministic matching keys for claims.
type Normalizer struct {
	bucketMS int
	logger   *slog.Logger
}

// NewNormalizer creates a normalizer. A non-positive bucketMS selects
// DefaultDurationBucketMS.
func NewNormalizer(logger *slog.Logger, bucketMS int) *Normalizer {
	if bucketMS <= 0 {
		bucketMS = DefaultDurationBucketMS
	}
	return &Normalizer{bucketMS: bucketMS, logger: logger.With("component", "normalizer")}
}

// Normalize returns the keys of every claim in g. It does not modify g and
// returns identical keys for an unchanged graph.
func (n *Normalizer) Normalize(g *ClaimGraph) (KeysByClaim, error) {
	s := n.Session(g)
	for _, c := range orderedClaims(g) {
		if _, err := s.NormalizeClaim(c); err != nil {
			return nil, err
		}
	}
	return s.Keys(), nil
}

// Session holds the per-run state of normalizing one graph: the keys and
// normalized names computed so far, and the provisional representative of
// each key.
type Session struct {
	n           *Normalizer
	g           *ClaimGraph
	keys        KeysByClaim
	names       map[string]string
	provisional map[catalog.EntityType]keyIndex
}

// Session starts a normalization session over g. Claims must be normalized
// after the claims they depend on.
func (n *Normalizer) Session(g *ClaimGraph) *Session {
	s := &Session{
		n:           n,
		g:           g,
		keys:        make(KeysByClaim, g.Len()),
		names:       make(map[string]string),
		provisional: make(map[catalog.EntityType]keyIndex, len(catalog.EntityTypes)),
	}
	for _, t := range catalog.EntityTypes {
		s.provisional[t] = keyIndex{}
	}
	return s
}

// Keys returns the keys computed so far.
func (s *Session) Keys() KeysByClaim {
	return s.keys
}

// NormalizeClaim computes and records the keys of c.
func (s *Session) NormalizeClaim(c *EntityClaim) ([]Key, error) {
	if keys, ok := s.keys[c.ID]; ok {
		return keys, nil
	}
	ops, ok := registry[c.EntityType()]
	if !ok {
		return nil, invariantf("claim %s wraps unsupported entity type %s", c.ID, c.EntityType())
	}
	keys, err := ops.keys(s, c)
	if err != nil {
		return nil, err
	}
	s.keys[c.ID] = keys
	ix := s.provisional[c.EntityType()]
	if _, matched := ix.match(keys); !matched {
		ix.register(keys, c.Entity.Base().ResolvedID())
	}
	if len(keys) == 0 {
		s.n.logger.Warn("claim produced no normalization keys",
			"claim_id", c.ID,
			"entity_type", string(c.EntityType()),
		)
	}
	return keys, nil
}

// resolvedRef returns the id a foreign reference resolves to within this
// run: the referenced claim's redirect, else the entity id of the first
// claim sharing a key with it. References outside the graph resolve to
// themselves.
func (s *Session) resolvedRef(from *EntityClaim, ref catalog.Reference) (string, error) {
	if ref.ID == "" {
		return "", nil
	}
	dep := s.g.ClaimByEntity(ref.ID)
	if dep == nil {
		return ref.ID, nil
	}
	if dep.EntityType() != ref.Type {
		return "", invariantf("claim %s references %s %s but claim %s wraps a %s",
			from.ID, ref.Type, ref.ID, dep.ID, dep.EntityType())
	}
	keys, done := s.keys[dep.ID]
	if !done {
		return "", &DependencyOrderError{
			ClaimID:           from.ID,
			EntityType:        from.EntityType(),
			DependencyClaimID: dep.ID,
			DependencyType:    dep.EntityType(),
		}
	}
	if redirect := dep.Entity.Base().Redirect; redirect != "" {
		return redirect, nil
	}
	if id, ok := s.provisional[ref.Type].match(keys); ok {
		return id, nil
	}
	return dep.Entity.Base().ID, nil
}

// ownerEntityID returns the entity id of the claim owning c through kind,
// falling back to the id already carried on the entity.
func (s *Session) ownerEntityID(c *EntityClaim, kind RelationshipKind, fallback string) string {
	for _, rel := range s.g.RelationshipsTo(kind, c.ID) {
		if owner := s.g.Claim(rel.SourceID); owner != nil {
			return owner.Entity.Base().ID
		}
	}
	return fallback
}

func primarySource(c *EntityClaim) string {
	if p := c.Entity.Base().PrimarySource(); p != "" {
		return string(p)
	}
	return string(c.Metadata.Source)
}

func mbid(c *EntityClaim) string {
	ns, ok := catalog.MBIDNamespace(c.EntityType())
	if !ok {
		return ""
	}
	v, _ := c.Entity.Base().ExternalID(ns)
	return v
}

// credit is one artist credit considered when picking the primary artist.
type credit struct {
	role   catalog.ArtistRole
	order  int
	artist *EntityClaim
}

// creditsFor gathers the artist credits of an owner claim from its
// contribution relationships and from contributions already on its entity.
func (s *Session) creditsFor(owner *EntityClaim, kind RelationshipKind) []credit {
	var credits []credit
	for _, rel := range s.g.RelationshipsFrom(kind, owner.ID) {
		cr := credit{order: unknownCreditOrder, artist: s.g.Claim(rel.TargetID)}
		if p, ok := rel.Payload.(ContributionPayload); ok {
			cr.role = p.Role
			if p.CreditOrder != nil {
				cr.order = *p.CreditOrder
			}
		}
		credits = append(credits, cr)
	}
	add := func(artistID string, role catalog.ArtistRole, order *int) {
		cr := credit{role: role, order: unknownCreditOrder, artist: s.g.ClaimByEntity(artistID)}
		if order != nil {
			cr.order = *order
		}
		credits = append(credits, cr)
	}
	switch e := owner.Entity.(type) {
	case *catalog.ReleaseSet:
		for _, c := range e.Contributions {
			add(c.ArtistID, c.Role, c.CreditOrder)
		}
	case *catalog.Recording:
		for _, c := range e.Contributions {
			add(c.ArtistID, c.Role, c.CreditOrder)
		}
	}
	sort.SliceStable(credits, func(i, j int) bool {
		pi, pj := credits[i].role.Priority(), credits[j].role.Priority()
		if pi != pj {
			return pi < pj
		}
		return credits[i].order < credits[j].order
	})
	return credits
}

// primaryArtistName picks the most significant credit that yields a name,
// preferring the artist's normalized name over normalizing its raw name.
func (s *Session) primaryArtistName(owner *EntityClaim, kind RelationshipKind) string {
	for _, cr := range s.creditsFor(owner, kind) {
		if cr.artist == nil {
			continue
		}
		if name := s.names[cr.artist.ID]; name != "" {
			return name
		}
		if a, ok := cr.artist.Entity.(*catalog.Artist); ok {
			if name := NormalizeText(a.Name); name != "" {
				return name
			}
		}
	}
	return ""
}

// recordingArtistName returns the recording's computed primary artist name,
// computing it when the recording has not been normalized.
func (s *Session) recordingArtistName(rec *EntityClaim) string {
	if name, ok := s.names[rec.ID]; ok && name != "" {
		return name
	}
	return s.primaryArtistName(rec, RelRecordingContribution)
}

func (s *Session) releaseArtistName(c *EntityClaim, release *catalog.Release) string {
	setID := s.ownerEntityID(c, RelReleaseSetRelease, release.ReleaseSetID)
	if set := s.g.ClaimByEntity(setID); set != nil && set.EntityType() == catalog.TypeReleaseSet {
		if name := s.names[set.ID]; name != "" {
			return name
		}
		if name := s.primaryArtistName(set, RelReleaseSetContribution); name != "" {
			return name
		}
	}
	for _, rel := range s.g.RelationshipsFrom(RelReleaseTrack, c.ID) {
		track := s.g.Claim(rel.TargetID)
		if track == nil {
			continue
		}
		t, ok := track.Entity.(*catalog.ReleaseTrack)
		if !ok {
			continue
		}
		if rec := s.g.ClaimByEntity(t.RecordingID); rec != nil && rec.EntityType() == catalog.TypeRecording {
			if name := s.recordingArtistName(rec); name != "" {
				return name
			}
		}
	}
	return ""
}

func artistKeys(s *Session, c *EntityClaim) ([]Key, error) {
	a := c.Entity.(*catalog.Artist)
	name := NormalizeText(a.Name)
	s.names[c.ID] = name
	var l keyList
	l.add("artist:mbid", mbid(c))
	l.add("artist:source-name", primarySource(c), name)
	l.add("artist:name", name)
	return l.keys, nil
}

func labelKeys(s *Session, c *EntityClaim) ([]Key, error) {
	lb := c.Entity.(*catalog.Label)
	name := NormalizeText(lb.Name)
	s.names[c.ID] = name
	var l keyList
	l.add("label:mbid", mbid(c))
	l.add("label:source-name", primarySource(c), name)
	l.add("label:name", name)
	return l.keys, nil
}

func releaseSetKeys(s *Session, c *EntityClaim) ([]Key, error) {
	rs := c.Entity.(*catalog.ReleaseSet)
	title := NormalizeText(rs.Title)
	artist := s.primaryArtistName(c, RelReleaseSetContribution)
	s.names[c.ID] = artist
	var l keyList
	l.add("release_set:mbid", mbid(c))
	l.add("release_set:source-artist-title", primarySource(c), artist, title)
	l.add("release_set:artist-title", artist, title)
	return l.keys, nil
}

func recordingKeys(s *Session, c *EntityClaim) ([]Key, error) {
	rec := c.Entity.(*catalog.Recording)
	title := NormalizeText(rec.Title)
	artist := s.primaryArtistName(c, RelRecordingContribution)
	s.names[c.ID] = artist
	bucket := ""
	// Integer division floors only for non-negative durations.
	if rec.DurationMS != nil && *rec.DurationMS >= 0 {
		bucket = strconv.Itoa(*rec.DurationMS / s.n.bucketMS)
	}
	var l keyList
	l.add("recording:mbid", mbid(c))
	l.add("recording:artist-title-duration", artist, title, bucket)
	l.add("recording:source-artist-title", primarySource(c), artist, title)
	l.add("recording:artist-title", artist, title)
	return l.keys, nil
}

func releaseKeys(s *Session, c *EntityClaim) ([]Key, error) {
	r := c.Entity.(*catalog.Release)
	title := NormalizeText(r.Title)
	artist := s.releaseArtistName(c, r)
	s.names[c.ID] = artist
	var l keyList
	l.add("release:mbid", mbid(c))
	l.add("release:source-artist-title", primarySource(c), artist, title)
	l.add("release:artist-title", artist, title)
	return l.keys, nil
}

func userKeys(_ *Session, c *EntityClaim) ([]Key, error) {
	u := c.Entity.(*catalog.User)
	var l keyList
	l.add("user:lastfm", deref(u.LastFMUser))
	l.add("user:spotify", deref(u.SpotifyUserID))
	l.add("user:email", strings.ToLower(strings.TrimSpace(deref(u.Email))))
	l.add("user:display_name", NormalizeText(u.DisplayName))
	return l.keys, nil
}

func releaseTrackKeys(s *Session, c *EntityClaim) ([]Key, error) {
	t := c.Entity.(*catalog.ReleaseTrack)
	release, err := s.resolvedRef(c, catalog.Reference{
		Type: catalog.TypeRelease,
		ID:   s.ownerEntityID(c, RelReleaseTrack, t.ReleaseID),
	})
	if err != nil {
		return nil, err
	}
	recording, err := s.resolvedRef(c, catalog.Reference{Type: catalog.TypeRecording, ID: t.RecordingID})
	if err != nil {
		return nil, err
	}
	var l keyList
	l.add("release_track:release-recording", release, recording)
	l.add("release_track:release-position", release, itoa(t.DiscNumber), itoa(t.TrackNumber))
	return l.keys, nil
}

func playEventKeys(s *Session, c *EntityClaim) ([]Key, error) {
	p := c.Entity.(*catalog.PlayEvent)
	user, err := s.resolvedRef(c, catalog.Reference{
		Type: catalog.TypeUser,
		ID:   s.ownerEntityID(c, RelUserPlayEvent, p.UserID),
	})
	if err != nil {
		return nil, err
	}
	recording, err := s.resolvedRef(c, catalog.Reference{Type: catalog.TypeRecording, ID: p.RecordingID})
	if err != nil {
		return nil, err
	}
	source := string(p.Source)
	if source == "" {
		source = string(c.Metadata.Source)
	}
	playedAt := formatTime(p.PlayedAt)
	var l keyList
	l.add("play_event:user-source-played_at", user, source, playedAt)
	l.add("play_event:recording-played_at", recording, playedAt)
	if p.TrackID != nil {
		track, err := s.resolvedRef(c, catalog.Reference{Type: catalog.TypeReleaseTrack, ID: *p.TrackID})
		if err != nil {
			return nil, err
		}
		l.add("play_event:track-played_at", track, playedAt)
	}
	return l.keys, nil
}

func libraryItemKeys(s *Session, c *EntityClaim) ([]Key, error) {
	li := c.Entity.(*catalog.LibraryItem)
	user, err := s.resolvedRef(c, catalog.Reference{
		Type: catalog.TypeUser,
		ID:   s.ownerEntityID(c, RelUserLibraryItem, li.UserID),
	})
	if err != nil {
		return nil, err
	}
	target, err := s.resolvedRef(c, catalog.Reference{Type: li.TargetType, ID: li.TargetID})
	if err != nil {
		return nil, err
	}
	source := string(li.Source)
	if source == "" {
		source = string(c.Metadata.Source)
	}
	var l keyList
	l.add("library_item:user-target", user, string(li.TargetType), target)
	l.add("library_item:user-source-target", user, source, string(li.TargetType), target)
	return l.keys, nil
}

// RelationshipKey identifies an edge for collapsing: kind and endpoints,
// followed by the payload's parts when a payload is present.
func RelationshipKey(rel *RelationshipClaim) string {
	parts := []string{string(rel.Kind), rel.SourceID, rel.TargetID}
	if rel.Payload != nil {
		parts = append(parts, rel.Payload.KeyParts()...)
	}
	return Key(parts).String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func itoa(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
