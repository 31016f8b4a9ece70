package query

import (
	"fmt"
	"maps"
	"math"
	"reflect"
	"slices"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Encode renders q as a generic map in canonical tagged form: every step and
// filter carries a "type" key, set fields are sorted and de-duplicated, and
// fields holding their default value are omitted.
func (q *Query) Encode() map[string]any {
	out := make(map[string]any)
	if start := encodeStart(q.Start); len(start) > 0 {
		out["start"] = start
	}
	if len(q.Steps) > 0 {
		steps := make([]any, 0, len(q.Steps))
		for _, s := range q.Steps {
			steps = append(steps, encodeStep(s))
		}
		out["steps"] = steps
	}
	if q.Goal.Limit != nil {
		out["goal"] = map[string]any{"limit": *q.Goal.Limit}
	}
	return out
}

func encodeStart(s Start) map[string]any {
	out := make(map[string]any)
	if s.IDs != nil {
		ids := canonicalSet(s.IDs, nil)
		if ids == nil {
			ids = []string{}
		}
		out["ids"] = ids
	}
	if s.Prefix != "" {
		out["prefix"] = s.Prefix
	}
	if s.Term != "" {
		out["term"] = s.Term
	}
	return out
}

func encodeStep(step Step) map[string]any {
	switch s := step.(type) {
	case *WalkStep:
		out := map[string]any{"type": TypeWalk}
		if tags := s.TagList(); !isAny(tags) {
			out["tags"] = tags
		}
		if !s.Incoming {
			out["incoming"] = false
		}
		if s.MaxHops != nil {
			out["max_hops"] = *s.MaxHops
		}
		if s.Passthru {
			out["passthru"] = true
		}
		return out
	case *FilterStep:
		filters := make([]any, 0, len(s.Filters))
		for _, f := range s.Filters {
			filters = append(filters, encodeFilter(f))
		}
		out := map[string]any{"type": TypeFilter, "filters": filters}
		if s.IsOr() {
			out["join"] = string(JoinOr)
		}
		if s.Exclude {
			out["exclude"] = true
		}
		return out
	default:
		return map[string]any{}
	}
}

func encodeFilter(filter Filter) map[string]any {
	switch f := filter.(type) {
	case *LabelFilter:
		labels := canonicalSet(f.Labels, nil)
		if labels == nil {
			labels = []string{}
		}
		return map[string]any{"type": TypeLabel, "labels": labels}
	case *RelationshipFilter:
		entities := canonicalSet(f.Entities, nil)
		if entities == nil {
			entities = []string{}
		}
		out := map[string]any{"type": TypeRelationship, "entities": entities}
		if tags := f.TagList(); !isAny(tags) {
			out["tags"] = tags
		}
		if !f.Incoming {
			out["incoming"] = false
		}
		if f.SelfOK {
			out["self_ok"] = true
		}
		return out
	default:
		return map[string]any{}
	}
}

func isAny(tags []string) bool {
	return len(tags) == 1 && tags[0] == "*"
}

// Decode builds a Query from a generic map such as one produced by a JSON,
// YAML or TOML decoder. Steps and filters are selected by their "type" key;
// when it is absent the variant is inferred from the key set.
func Decode(raw map[string]any) (*Query, error) {
	var top struct {
		Start map[string]any   `mapstructure:"start"`
		Steps []map[string]any `mapstructure:"steps"`
		Goal  map[string]any   `mapstructure:"goal"`
	}
	if err := decodeFields(raw, &top); err != nil {
		return nil, fmt.Errorf("decode query: %w", err)
	}

	q := &Query{}
	start, err := decodeStart(top.Start)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	q.Start = start

	if len(top.Steps) > 0 {
		q.Steps = make([]Step, 0, len(top.Steps))
	}
	for i, rawStep := range top.Steps {
		step, err := decodeStep(rawStep)
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		q.Steps = append(q.Steps, step)
	}

	if top.Goal != nil {
		var goal struct {
			Limit *int `mapstructure:"limit"`
		}
		if err := decodeFields(top.Goal, &goal); err != nil {
			return nil, fmt.Errorf("goal: %w", err)
		}
		q.Goal.Limit = goal.Limit
	}

	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

func decodeStart(raw map[string]any) (Start, error) {
	if raw == nil {
		return Start{}, nil
	}
	var fields struct {
		IDs    []string `mapstructure:"ids"`
		Prefix string   `mapstructure:"prefix"`
		Term   string   `mapstructure:"term"`
	}
	if err := decodeFields(raw, &fields); err != nil {
		return Start{}, err
	}
	s := Start{Prefix: fields.Prefix, Term: fields.Term}
	if present(raw, "ids") {
		s.IDs = canonicalSet(fields.IDs, nil)
		if s.IDs == nil {
			s.IDs = []string{}
		}
	}
	return s, s.Validate()
}

var walkKeys = []string{"incoming", "max_hops", "passthru", "tags"}

func decodeStep(raw map[string]any) (Step, error) {
	typ, body, err := splitType(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognizedStepShape, err)
	}
	if typ == "" {
		typ = TypeFilter
		if slices.Equal(sortedKeys(body), walkKeys) {
			typ = TypeWalk
		}
	}

	switch typ {
	case TypeWalk:
		return decodeWalk(body)
	case TypeFilter:
		return decodeFilterStep(body)
	default:
		return nil, fmt.Errorf("%w: type %q", ErrUnrecognizedStepShape, typ)
	}
}

func decodeWalk(raw map[string]any) (*WalkStep, error) {
	var fields struct {
		Tags     []string `mapstructure:"tags"`
		Incoming *bool    `mapstructure:"incoming"`
		MaxHops  *int     `mapstructure:"max_hops"`
		Passthru bool     `mapstructure:"passthru"`
	}
	if err := decodeFields(raw, &fields); err != nil {
		return nil, fmt.Errorf("walk: %w", err)
	}
	if fields.MaxHops != nil && *fields.MaxHops < 0 {
		return nil, fmt.Errorf("walk: %w: max_hops %d", ErrInvalidValue, *fields.MaxHops)
	}
	step := NewWalkStep(fields.Tags...)
	if fields.Incoming != nil {
		step.Incoming = *fields.Incoming
	}
	step.MaxHops = fields.MaxHops
	step.Passthru = fields.Passthru
	return step, nil
}

func decodeFilterStep(raw map[string]any) (*FilterStep, error) {
	var fields struct {
		Filters []map[string]any `mapstructure:"filters"`
		Join    string           `mapstructure:"join"`
		Exclude bool             `mapstructure:"exclude"`
	}
	if !present(raw, "filters") {
		return nil, fmt.Errorf("filter: %w: filters", ErrMissingField)
	}
	if err := decodeFields(raw, &fields); err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	join, err := ParseJoin(fields.Join)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	step := &FilterStep{Join: join, Exclude: fields.Exclude}
	for i, rawFilter := range fields.Filters {
		f, err := decodeFilter(rawFilter)
		if err != nil {
			return nil, fmt.Errorf("filters[%d]: %w", i, err)
		}
		step.Filters = append(step.Filters, f)
	}
	return step, nil
}

var relationshipKeys = []string{"entities", "incoming", "self_ok", "tags"}

func decodeFilter(raw map[string]any) (Filter, error) {
	typ, body, err := splitType(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognizedFilterShape, err)
	}
	if typ == "" {
		typ = inferFilterType(sortedKeys(body))
	}

	switch typ {
	case TypeLabel:
		var fields struct {
			Label  []string `mapstructure:"label"`
			Labels []string `mapstructure:"labels"`
		}
		if err := decodeFields(body, &fields); err != nil {
			return nil, fmt.Errorf("label: %w", err)
		}
		if !present(body, "label") && !present(body, "labels") {
			return nil, fmt.Errorf("label: %w: labels", ErrMissingField)
		}
		return NewLabelFilter(append(fields.Labels, fields.Label...)...), nil
	case TypeRelationship:
		var fields struct {
			Entities []string `mapstructure:"entities"`
			Tags     []string `mapstructure:"tags"`
			Incoming *bool    `mapstructure:"incoming"`
			SelfOK   bool     `mapstructure:"self_ok"`
		}
		if err := decodeFields(body, &fields); err != nil {
			return nil, fmt.Errorf("relationship: %w", err)
		}
		if !present(body, "entities") {
			return nil, fmt.Errorf("relationship: %w: entities", ErrMissingField)
		}
		f := NewRelationshipFilter(fields.Entities, fields.Tags...)
		if fields.Incoming != nil {
			f.Incoming = *fields.Incoming
		}
		f.SelfOK = fields.SelfOK
		return f, nil
	default:
		return nil, fmt.Errorf("%w: keys %s", ErrUnrecognizedFilterShape, strings.Join(sortedKeys(body), ","))
	}
}

// inferFilterType maps a legacy untagged key set to its variant. A single
// label or labels key is a label filter; any subset of the relationship keys
// is a relationship filter, which then fails on a missing entities key.
// Anything else is unknown.
func inferFilterType(keys []string) string {
	if len(keys) == 1 && (keys[0] == "label" || keys[0] == "labels") {
		return TypeLabel
	}
	for _, k := range keys {
		if !slices.Contains(relationshipKeys, k) {
			return ""
		}
	}
	return TypeRelationship
}

// splitType returns the lowercased "type" value and the remaining keys.
func splitType(raw map[string]any) (string, map[string]any, error) {
	body := maps.Clone(raw)
	if body == nil {
		body = map[string]any{}
	}
	v, ok := body["type"]
	if !ok {
		return "", body, nil
	}
	delete(body, "type")
	s, ok := v.(string)
	if !ok {
		return "", nil, fmt.Errorf("type must be a string, got %T", v)
	}
	return strings.ToLower(strings.TrimSpace(s)), body, nil
}

func decodeFields(input any, out any) error {
	var hookErr error
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
		DecodeHook: mapstructure.DecodeHookFuncType(func(_, to reflect.Type, data any) (any, error) {
			data, err := wholeNumber(to, data)
			if err != nil && hookErr == nil {
				hookErr = err
			}
			return data, err
		}),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(input); err != nil {
		if hookErr != nil {
			return hookErr
		}
		return err
	}
	return nil
}

// wholeNumber rejects fractional floats headed for an integer field. JSON
// numbers arrive as float64, so weak typing alone would truncate 1.5 to 1.
func wholeNumber(to reflect.Type, data any) (any, error) {
	if to.Kind() == reflect.Pointer {
		to = to.Elem()
	}
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return data, nil
	}
	var v float64
	switch n := data.(type) {
	case float64:
		v = n
	case float32:
		v = float64(n)
	default:
		return data, nil
	}
	if v != math.Trunc(v) {
		return nil, fmt.Errorf("%w: %v is not a whole number", ErrInvalidValue, v)
	}
	return data, nil
}

func present(raw map[string]any, key string) bool {
	v, ok := raw[key]
	return ok && v != nil
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
