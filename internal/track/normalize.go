package track

import (
	"fmt"

	"github.com/tunecraft/api/internal/model"
)

// NormalizeResults converts a completion payload into an ordered result
// list. Completion shapes vary per kind: a variant array under one of the
// kind's known keys, or a single flat object. Variants with no usable audio
// reference are dropped; an empty return means the job must be failed with
// EmptyResultError rather than completed with zero results.
func NormalizeResults(spec KindSpec, ev *model.ChannelEvent) []model.Result {
	if variants, ok := variantArray(spec, ev); ok {
		return normalizeVariants(spec, variants)
	}

	// Single-object shape: the completion fields themselves are the result.
	if r, ok := normalizeOne(spec, ev.Fields, 1); ok {
		return []model.Result{r}
	}
	return nil
}

func variantArray(spec KindSpec, ev *model.ChannelEvent) ([]map[string]interface{}, bool) {
	for _, key := range spec.VariantFields {
		raw, ok := ev.Fields[key].([]interface{})
		if !ok {
			continue
		}
		variants := make([]map[string]interface{}, 0, len(raw))
		for _, item := range raw {
			if obj, ok := item.(map[string]interface{}); ok {
				variants = append(variants, obj)
			}
		}
		return variants, true
	}
	return nil, false
}

func normalizeVariants(spec KindSpec, variants []map[string]interface{}) []model.Result {
	var results []model.Result
	for i, variant := range variants {
		if r, ok := normalizeOne(spec, variant, i+1); ok {
			results = append(results, r)
		}
	}
	return results
}

func normalizeOne(spec KindSpec, fields map[string]interface{}, ordinal int) (model.Result, bool) {
	audio := firstString(fields, spec.AudioFields)
	if audio == "" {
		return model.Result{}, false
	}

	name := firstString(fields, nameFields)
	if name == "" {
		name = fmt.Sprintf("%s Version %d", spec.Kind.Label(), ordinal)
	}

	return model.Result{
		AudioURL:      audio,
		DisplayName:   name,
		CoverImageURL: firstString(fields, coverFields),
	}, true
}

func firstString(fields map[string]interface{}, keys []string) string {
	for _, key := range keys {
		if s, ok := fields[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
