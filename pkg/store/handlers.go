package store

import (
	"fmt"

	"github.com/gadgetlabs/Gaffer/pkg/element"
	"github.com/gadgetlabs/Gaffer/pkg/jobs"
	"github.com/gadgetlabs/Gaffer/pkg/operation"
	"github.com/gadgetlabs/Gaffer/pkg/view"
)

// ============================================================================
// Built-in handlers
// ============================================================================

func handleToSet(op *operation.ToSet, _ *Context, _ *Store) (any, error) {
	seen := make(map[string]struct{}, len(op.Input))
	out := make([]any, 0, len(op.Input))
	for _, item := range op.Input {
		key := dedupKey(item)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out, nil
}

// dedupKey identifies equal items. Elements compare on identity and
// properties, seeds on identity and scalars on their normalized value.
func dedupKey(item any) string {
	switch v := item.(type) {
	case element.Element:
		return "el|" + v.Key() + "|" + v.Properties().String()
	case element.ID:
		return "id|" + v.Key()
	case nil, string, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return "v|" + element.VertexKey(v)
	}
	return fmt.Sprintf("%T|%v", item, item)
}

func handleLimit(op *operation.Limit, _ *Context, _ *Store) (any, error) {
	if len(op.Input) <= op.ResultLimit {
		return op.Input, nil
	}
	return op.Input[:op.ResultLimit], nil
}

func handleExportToResultCache(op *operation.ExportToResultCache, ctx *Context, s *Store) (any, error) {
	items, err := operation.ToSlice(op.Input)
	if err != nil {
		items = []any{op.Input}
	}
	if err := s.cache.Put(ctx.Context(), ctx.JobID(), op.ExportKey(), items); err != nil {
		return nil, err
	}
	ctx.Logger().Debug("Exported results.", "key", op.ExportKey(), "count", len(items))
	return op.Input, nil
}

func handleGetResultCacheExport(op *operation.GetResultCacheExport, ctx *Context, s *Store) (any, error) {
	jobID := op.JobID
	if jobID == "" {
		jobID = ctx.JobID()
	}
	items, ok, err := s.cache.Get(ctx.Context(), jobID, op.ExportKey())
	if err != nil {
		return nil, err
	}
	if !ok {
		return []any{}, nil
	}
	return items, nil
}

func handleGetJobDetails(op *operation.GetJobDetails, ctx *Context, s *Store) (any, error) {
	if s.tracker == nil {
		return nil, ErrJobTrackerDisabled
	}
	jobID := op.JobID
	if jobID == "" {
		jobID = ctx.JobID()
	}
	return s.tracker.Get(jobID)
}

func handleGetAllJobDetails(_ *operation.GetAllJobDetails, _ *Context, s *Store) (any, error) {
	if s.tracker == nil {
		return nil, ErrJobTrackerDisabled
	}
	all, err := s.tracker.All()
	if err != nil {
		return nil, err
	}
	if all == nil {
		all = []*jobs.JobDetail{}
	}
	return all, nil
}

// handleChain runs a nested chain in the caller's context.
func handleChain(op *operation.Chain, ctx *Context, s *Store) (any, error) {
	return s.execute(op, ctx)
}

// ============================================================================
// Generic wrappers around backend handlers
// ============================================================================

// getElementsHandler runs the backend's GetElements handler, then applies
// the generic pipeline and matched-vertex annotation.
func (s *Store) getElementsHandler(backend Handler) Handler {
	return TypedHandler(func(op *operation.GetElements, ctx *Context, st *Store) (any, error) {
		if err := op.View.Validate(s.schema); err != nil {
			return nil, err
		}
		raw, err := backend.Handle(op, ctx, st)
		if err != nil {
			return nil, err
		}
		els, err := operation.ToElements(raw)
		if err != nil {
			return nil, err
		}
		els = FilterDirected(els, op.DirectedType)
		if !s.traits.Has(MatchedVertex) {
			annotateMatchedVertex(els, op.Input, SeedOptionsOf(op))
		}
		return s.ElementPipeline(op.View, ctx).Run(els)
	})
}

func (s *Store) getAllElementsHandler(backend Handler) Handler {
	return TypedHandler(func(op *operation.GetAllElements, ctx *Context, st *Store) (any, error) {
		if err := op.View.Validate(s.schema); err != nil {
			return nil, err
		}
		raw, err := backend.Handle(op, ctx, st)
		if err != nil {
			return nil, err
		}
		els, err := operation.ToElements(raw)
		if err != nil {
			return nil, err
		}
		return s.ElementPipeline(op.View, ctx).Run(FilterDirected(els, op.DirectedType))
	})
}

func (s *Store) getAdjacentIdsHandler(backend Handler) Handler {
	return TypedHandler(func(op *operation.GetAdjacentIds, ctx *Context, st *Store) (any, error) {
		if err := op.View.Validate(s.schema); err != nil {
			return nil, err
		}
		raw, err := backend.Handle(op, ctx, st)
		if err != nil {
			return nil, err
		}
		ids, err := operation.ToIDs(raw)
		if err != nil {
			return nil, err
		}
		return ids, nil
	})
}

// addElementsHandler validates input against the schema unless the backend
// declares STORE_VALIDATION.
func (s *Store) addElementsHandler(backend Handler) Handler {
	return TypedHandler(func(op *operation.AddElements, ctx *Context, st *Store) (any, error) {
		if !s.traits.Has(StoreValidation) && op.ShouldValidate() {
			valid := make(element.Elements, 0, len(op.Input))
			for i, el := range op.Input {
				if err := s.schema.Validate(el); err != nil {
					if op.SkipInvalidElements {
						ctx.Logger().Debug("Skipping invalid element.", "index", i, "error", err)
						continue
					}
					return nil, fmt.Errorf("element %d: %w", i, err)
				}
				valid = append(valid, el)
			}
			op.Input = valid
		}
		return backend.Handle(op, ctx, st)
	})
}

// ElementPipeline returns the generic pipeline for v and ctx's user.
// Backends use it to post-process edges before computing adjacency.
func (s *Store) ElementPipeline(v *view.View, ctx *Context) Pipeline {
	return Pipeline{Schema: s.schema, Traits: s.traits, View: v, User: ctx.User()}
}
