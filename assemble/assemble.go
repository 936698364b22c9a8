// Package assemble expands reconciled metadata groups into trainable
// instances.
//
// Each group is resolved against the annotation payload files its members
// reference, then fanned out: one instance per caption, then one per QA
// pair, preserving payload order. A group with neither kind of text yields a
// single textless instance, which must carry at least one non-text
// annotation.
package assemble

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/corpusloom/loom/codec"
	"github.com/corpusloom/loom/db"
	"github.com/corpusloom/loom/model"
)

// ErrNoAnnotations reports a metadata group that carries no annotations of
// any kind. Such a group cannot produce a meaningful instance, and dropping
// it silently would lose the entity.
var ErrNoAnnotations = errors.New("metadata group carries no annotations")

// MissingPolicy decides what happens when a declared annotation payload file
// does not exist on disk.
type MissingPolicy int

const (
	// MissingFatal aborts assembly of the group.
	MissingFatal MissingPolicy = iota
	// MissingEmpty treats the payload as empty and carries on.
	MissingEmpty
)

// String returns a string representation of the MissingPolicy.
func (p MissingPolicy) String() string {
	switch p {
	case MissingFatal:
		return "fatal"
	case MissingEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// DefaultMissingPolicies returns the per-category policies applied when none
// are configured: an absent QA-pair payload is tolerated as empty, every
// other category is fatal. QA pairs are sparse in their source dataset, so
// entities without one are expected rather than exceptional.
func DefaultMissingPolicies() map[model.AnnotationType]MissingPolicy {
	return map[model.AnnotationType]MissingPolicy{
		model.AnnotationCaption:    MissingFatal,
		model.AnnotationQAPair:     MissingEmpty,
		model.AnnotationRegion:     MissingFatal,
		model.AnnotationSceneGraph: MissingFatal,
		model.AnnotationTrajectory: MissingFatal,
	}
}

// Options configures an Assembler.
type Options struct {
	// Missing overrides the policy applied when a category's payload file
	// is absent. Categories not listed keep their DefaultMissingPolicies
	// entry.
	Missing map[model.AnnotationType]MissingPolicy

	// Codec decodes annotation payload files. If nil, the default JSON
	// codec is used.
	Codec codec.Codec

	// Storage serializes instances for Compressed. If nil, JSON storage
	// over Codec is used.
	Storage db.Storage

	// Logger receives structured progress output. If nil, logging is
	// disabled.
	Logger *slog.Logger
}

// Assembler turns metadata groups into instances by reading the annotation
// payload files the group members reference. It holds no mutable state and
// is safe for concurrent use.
type Assembler struct {
	missing map[model.AnnotationType]MissingPolicy
	codec   codec.Codec
	storage db.Storage
	logger  *slog.Logger
}

// New creates an Assembler. Policy overrides are validated against the
// closed sets of annotation categories and policies.
func New(optFns ...func(o *Options)) (*Assembler, error) {
	opts := Options{}

	for _, fn := range optFns {
		fn(&opts)
	}

	missing := DefaultMissingPolicies()

	for at, policy := range opts.Missing {
		if _, ok := missing[at]; !ok {
			return nil, fmt.Errorf("missing-file policy for unknown annotation category %q", at)
		}

		switch policy {
		case MissingFatal, MissingEmpty:
		default:
			return nil, fmt.Errorf("unknown missing-file policy %d for category %q", policy, at)
		}

		missing[at] = policy
	}

	c := opts.Codec
	if c == nil {
		c = codec.Default
	}

	storage := opts.Storage
	if storage == nil {
		storage = db.NewJSONStorage(c)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Assembler{missing: missing, codec: c, storage: storage, logger: logger}, nil
}

// StorageName returns the name of the storage strategy behind Compressed.
func (a *Assembler) StorageName() string {
	return a.storage.Name()
}

// Instances expands one group into its trainable instances.
//
// Captions and QA pairs each fan out into one instance per entry, captions
// first. The non-text annotations of the group are shared unexpanded by
// every instance. A group without any text yields exactly one textless
// instance; a group without any annotation at all fails with
// ErrNoAnnotations.
func (a *Assembler) Instances(group model.MetadataGroup) ([]model.Instance, error) {
	if err := group.Validate(); err != nil {
		return nil, err
	}

	p, err := a.load(group)
	if err != nil {
		return nil, err
	}

	if p.empty() {
		return nil, fmt.Errorf("%w: group spans %v", ErrNoAnnotations, group.Datasets())
	}

	base := model.NewInstance(group)
	base.Regions = p.regions
	base.SceneGraph = p.sceneGraph
	base.Trajectory = p.trajectory

	if p.textless() {
		return []model.Instance{base}, nil
	}

	instances := make([]model.Instance, 0, len(p.captions)+len(p.qaPairs))

	for i := range p.captions {
		inst := base
		inst.Caption = &p.captions[i]
		instances = append(instances, inst)
	}

	for i := range p.qaPairs {
		inst := base
		inst.QA = &p.qaPairs[i]
		instances = append(instances, inst)
	}

	return instances, nil
}

// Compressed expands the group and serializes every instance with the
// configured storage, returning rows ready for the instance store. Callers
// streaming into the store use this to skip a second serialization pass.
func (a *Assembler) Compressed(group model.MetadataGroup) ([][]byte, error) {
	instances, err := a.Instances(group)
	if err != nil {
		return nil, err
	}

	rows := make([][]byte, len(instances))

	for i := range instances {
		data, err := a.storage.Compress(instances[i])
		if err != nil {
			return nil, fmt.Errorf("compress instance %d: %w", i, err)
		}

		rows[i] = data
	}

	return rows, nil
}

// payloads holds the decoded annotations of one group, merged across its
// members. The list categories accumulate in member order; the single-object
// categories keep the first member that declares them.
type payloads struct {
	captions   []model.Caption
	qaPairs    []model.QAPair
	regions    []model.Region
	sceneGraph *model.SceneGraph
	trajectory *model.ActionTrajectory
}

func (p payloads) textless() bool {
	return len(p.captions) == 0 && len(p.qaPairs) == 0
}

func (p payloads) empty() bool {
	return p.textless() && len(p.regions) == 0 && p.sceneGraph == nil && p.trajectory == nil
}

func (a *Assembler) load(group model.MetadataGroup) (payloads, error) {
	var p payloads

	for _, em := range group {
		for _, at := range model.AnnotationTypes {
			path := em.AnnotationPath(at)
			if path == "" {
				continue
			}

			switch at {
			case model.AnnotationCaption:
				captions, err := readPayload[[]model.Caption](a, at, path)
				if err != nil {
					return payloads{}, err
				}

				if captions != nil {
					p.captions = append(p.captions, *captions...)
				}

			case model.AnnotationQAPair:
				qaPairs, err := readPayload[[]model.QAPair](a, at, path)
				if err != nil {
					return payloads{}, err
				}

				if qaPairs != nil {
					p.qaPairs = append(p.qaPairs, *qaPairs...)
				}

			case model.AnnotationRegion:
				regions, err := readPayload[[]model.Region](a, at, path)
				if err != nil {
					return payloads{}, err
				}

				if regions != nil {
					p.regions = append(p.regions, *regions...)
				}

			case model.AnnotationSceneGraph:
				if p.sceneGraph != nil {
					continue
				}

				sg, err := readPayload[model.SceneGraph](a, at, path)
				if err != nil {
					return payloads{}, err
				}

				p.sceneGraph = sg

			case model.AnnotationTrajectory:
				if p.trajectory != nil {
					continue
				}

				tr, err := readPayload[model.ActionTrajectory](a, at, path)
				if err != nil {
					return payloads{}, err
				}

				p.trajectory = tr
			}
		}
	}

	return p, nil
}

// readPayload decodes one payload file. A nil result with a nil error means
// the file is absent and the category's policy tolerates that.
func readPayload[T any](a *Assembler, at model.AnnotationType, path string) (*T, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && a.missing[at] == MissingEmpty {
			a.logger.Debug("tolerating absent annotation payload", "category", at, "path", path)
			return nil, nil
		}

		return nil, fmt.Errorf("read %s payload: %w", at, err)
	}

	v := new(T)
	if err := a.codec.Unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("decode %s payload %s: %w", at, path, err)
	}

	return v, nil
}
