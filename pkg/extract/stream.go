package extract

import (
	"github.com/ajitpratap0/shopsync/pkg/errors"
)

// New builds the stream declared by desc.
func New(desc Descriptor, deps Deps) (Stream, error) {
	if desc.Name == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "stream descriptor has no name")
	}
	if deps.Client == nil {
		return nil, errors.Newf(errors.ErrorTypeConfig, "stream %s: no client", desc.Name)
	}

	switch desc.Mode {
	case ModeREST:
		if desc.PathTemplate != "" && desc.Parent == nil {
			return nil, errors.Newf(errors.ErrorTypeConfig, "stream %s: path template without parent", desc.Name)
		}
		if desc.Parent != nil && desc.PathTemplate == "" {
			return nil, errors.Newf(errors.ErrorTypeConfig, "stream %s: parent without path template", desc.Name)
		}
		return &restStream{desc: desc, deps: deps}, nil
	case ModeNested:
		if desc.Parent == nil {
			return nil, errors.Newf(errors.ErrorTypeConfig, "nested stream %s has no parent", desc.Name)
		}
		if desc.nestedField() == "" {
			return nil, errors.Newf(errors.ErrorTypeConfig, "nested stream %s has no field", desc.Name)
		}
		return &nestedStream{desc: desc, deps: deps}, nil
	case ModeBulk:
		if desc.Bulk == nil || desc.Bulk.Query == nil {
			return nil, errors.Newf(errors.ErrorTypeConfig, "bulk stream %s has no query", desc.Name)
		}
		if deps.Bulk == nil {
			return nil, errors.Newf(errors.ErrorTypeConfig, "bulk stream %s: no bulk engine", desc.Name)
		}
		return deps.Bulk.NewStream(desc, deps), nil
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "stream %s: unknown mode %d", desc.Name, int(desc.Mode))
	}
}
