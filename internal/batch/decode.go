package batch

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"go.uber.org/multierr"

	"github.com/sydlexius/confluence/internal/catalog"
	"github.com/sydlexius/confluence/internal/reconcile"
)

// MaxDocumentSize bounds the size of a batch file read from disk.
const MaxDocumentSize = 32 << 20

// ErrDocumentTooLarge is returned for files larger than MaxDocumentSize.
var ErrDocumentTooLarge = errors.New("batch document too large")

// Decoder turns batch documents into claim graphs.
type Decoder struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewDecoder creates a decoder with the catalog validations registered.
func NewDecoder(logger *slog.Logger) *Decoder {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("provider", func(fl validator.FieldLevel) bool {
		return catalog.Provider(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("namespace", func(fl validator.FieldLevel) bool {
		return catalog.Namespace(fl.Field().String()).Known()
	})
	_ = v.RegisterValidation("entity_type", func(fl validator.FieldLevel) bool {
		_, err := newBody(catalog.EntityType(fl.Field().String()))
		return err == nil
	})
	_ = v.RegisterValidation("artist_role", func(fl validator.FieldLevel) bool {
		return catalog.ArtistRole(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("relationship_kind", func(fl validator.FieldLevel) bool {
		return reconcile.RelationshipKind(fl.Field().String()).Valid()
	})
	return &Decoder{validate: v, logger: logger.With("component", "batch")}
}

// DecodeFile reads and decodes the document at path.
func (d *Decoder) DecodeFile(path string) (*Batch, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the inbox or the command line
	if err != nil {
		return nil, fmt.Errorf("opening batch: %w", err)
	}
	defer f.Close() //nolint:errcheck
	return d.Decode(f)
}

// Decode reads one document from r and builds its claim graph. Every
// problem found in the document is reported; the returned error combines
// them with multierr.
func (d *Decoder) Decode(r io.Reader) (*Batch, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading batch: %w", err)
	}
	if len(data) > MaxDocumentSize {
		return nil, ErrDocumentTooLarge
	}

	var doc Document
	if err := decodeStrict(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding batch: %w", err)
	}
	if err := d.check(&doc, "document"); err != nil {
		return nil, err
	}

	b := &Batch{
		ID:         doc.BatchID,
		Source:     doc.Source,
		ObservedAt: doc.ObservedAt.UTC(),
		Graph:      reconcile.NewClaimGraph(),
		Claims:     make(map[string]*reconcile.EntityClaim, len(doc.Claims)),
	}

	var errs error
	decoded := make([]*decodedClaim, 0, len(doc.Claims))
	for i, raw := range doc.Claims {
		dc, err := d.buildClaim(&doc, raw)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("claim %d: %w", i, err))
			continue
		}
		if _, dup := b.Claims[dc.ref]; dup {
			errs = multierr.Append(errs, fmt.Errorf("claim %d: duplicate ref %q", i, dc.ref))
			continue
		}
		b.Claims[dc.ref] = dc.claim
		decoded = append(decoded, dc)
	}

	for _, dc := range decoded {
		for _, r := range dc.refs {
			target, ok := b.Claims[r.ref]
			switch {
			case !ok:
				errs = multierr.Append(errs, fmt.Errorf("claim %q: %s refers to unknown claim %q", dc.ref, r.field, r.ref))
			case target.EntityType() != r.want:
				errs = multierr.Append(errs, fmt.Errorf("claim %q: %s refers to %s claim %q, want %s",
					dc.ref, r.field, target.EntityType(), r.ref, r.want))
			default:
				r.set(target.Entity.Base().ID)
			}
		}
	}
	if errs != nil {
		return nil, errs
	}

	for _, dc := range decoded {
		b.Graph.Add(dc.claim, dc.root)
	}

	for i, rd := range doc.Relationships {
		rel, err := d.buildRelationship(b, &doc, rd)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("relationship %d: %w", i, err))
			continue
		}
		if err := b.Graph.AddRelationship(rel); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("relationship %d: %w", i, err))
		}
	}
	if errs != nil {
		return nil, errs
	}

	d.logger.Debug("batch decoded",
		"batch_id", b.ID,
		"claims", b.Graph.Len(),
		"relationships", len(doc.Relationships))
	return b, nil
}

type decodedClaim struct {
	ref   string
	root  bool
	claim *reconcile.EntityClaim
	refs  []claimRef
}

func (d *Decoder) buildClaim(doc *Document, raw json.RawMessage) (*decodedClaim, error) {
	var cd ClaimDoc
	if err := decodeStrict(raw, &cd); err != nil {
		return nil, fmt.Errorf("decoding claim: %w", err)
	}
	if err := d.check(&cd, "claim"); err != nil {
		return nil, err
	}
	body, err := decodeBody(cd.Type, cd.Entity)
	if err != nil {
		return nil, fmt.Errorf("claim %q: %w", cd.Ref, err)
	}
	if err := d.check(body, string(cd.Type)); err != nil {
		return nil, fmt.Errorf("claim %q: %w", cd.Ref, err)
	}

	source := cd.Source
	if source == "" {
		source = doc.Source
	}
	e, refs, err := body.build(source)
	if err != nil {
		return nil, fmt.Errorf("claim %q: %w", cd.Ref, err)
	}

	observed := doc.ObservedAt
	if cd.ObservedAt != nil {
		observed = *cd.ObservedAt
	}
	c := reconcile.NewEntityClaim(e, reconcile.ClaimMetadata{
		Source:        source,
		Confidence:    cd.Confidence,
		ObservedAt:    observed.UTC(),
		IngestEventID: doc.BatchID,
		PayloadHash:   PayloadHash(raw),
		Notes:         cd.Notes,
	})
	if len(cd.Evidence) > 0 {
		c.Evidence = reconcile.Evidence(cd.Evidence)
	}
	return &decodedClaim{ref: cd.Ref, root: cd.Root, claim: c, refs: refs}, nil
}

func (d *Decoder) buildRelationship(b *Batch, doc *Document, rd RelationshipDoc) (*reconcile.RelationshipClaim, error) {
	src, ok := b.Claims[rd.Source]
	if !ok {
		return nil, fmt.Errorf("%s source refers to unknown claim %q", rd.Kind, rd.Source)
	}
	dst, ok := b.Claims[rd.Target]
	if !ok {
		return nil, fmt.Errorf("%s target refers to unknown claim %q", rd.Kind, rd.Target)
	}
	wantSrc, wantDst := rd.Kind.Endpoints()
	if src.EntityType() != wantSrc || dst.EntityType() != wantDst {
		return nil, fmt.Errorf("%s links %s to %s, want %s to %s",
			rd.Kind, src.EntityType(), dst.EntityType(), wantSrc, wantDst)
	}

	var payload reconcile.RelationshipPayload
	if p := rd.Payload; p != nil {
		switch rd.Kind {
		case reconcile.RelReleaseSetContribution, reconcile.RelRecordingContribution:
			payload = reconcile.ContributionPayload{
				Role:        p.Role,
				CreditOrder: p.CreditOrder,
				CreditedAs:  p.CreditedAs,
				JoinPhrase:  p.JoinPhrase,
				Instrument:  p.Instrument,
			}
		case reconcile.RelReleaseLabel:
			payload = reconcile.LabelPayload{CatalogNumber: p.CatalogNumber}
		}
	}
	md := reconcile.ClaimMetadata{
		Source:        src.Metadata.Source,
		ObservedAt:    doc.ObservedAt.UTC(),
		IngestEventID: doc.BatchID,
	}
	if rd.Ref != "" {
		md.Notes = []string{rd.Ref}
	}
	return reconcile.NewRelationshipClaim(rd.Kind, src.ID, dst.ID, md, payload), nil
}

// check validates v and converts field failures into one combined error.
func (d *Decoder) check(v any, what string) error {
	err := d.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating %s: %w", what, err)
	}
	var errs error
	for _, fe := range verrs {
		errs = multierr.Append(errs, fmt.Errorf("%s: field %s failed rule %q (got %v)",
			what, fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return errs
}

// decodeStrict decodes one JSON value from data into v, rejecting fields v
// does not declare.
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// PayloadHash returns the hex sha256 of a raw claim body.
func PayloadHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
