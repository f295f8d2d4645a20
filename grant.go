package goSession

import "context"

// Grant is a typed unit of session state keyed by a stable ID, fetched from
// application code and embedded in the session's grants payload. Payload
// transforms are pure: they return a new payload and leave their input
// untouched.
type Grant interface {
	// ID is the key the grant's value lives under in the grants payload.
	ID() string

	// FetchValue loads the grant's current value for the user. Returning
	// (nil, nil) means "no update": the payload stays as it is.
	FetchValue(ctx context.Context, userID string, userContext JSONObject) (any, error)

	// ShouldRefetch reports whether the stored value is stale and FetchValue
	// should run again.
	ShouldRefetch(grantsPayload JSONObject, userContext JSONObject) bool

	// IsValid reports whether the grants payload satisfies this grant.
	IsValid(grantsPayload JSONObject, userContext JSONObject) bool

	// AddToPayload returns a new payload with the grant's value set.
	AddToPayload(grantsPayload JSONObject, value any, userContext JSONObject) JSONObject

	// RemoveFromPayload returns a new payload without the grant.
	RemoveFromPayload(grantsPayload JSONObject, userContext JSONObject) JSONObject
}

// PrimitiveGrant implements Grant for the common case of one scalar value
// stored directly under the grant ID. Fetch supplies the value; IsValid
// accepts any present, non-nil value unless Validate is set.
type PrimitiveGrant struct {
	GrantID  string
	Fetch    func(ctx context.Context, userID string, userContext JSONObject) (any, error)
	Refetch  func(value any, userContext JSONObject) bool
	Validate func(value any, userContext JSONObject) bool
}

func (g *PrimitiveGrant) ID() string {
	return g.GrantID
}

func (g *PrimitiveGrant) FetchValue(ctx context.Context, userID string, userContext JSONObject) (any, error) {
	if g.Fetch == nil {
		return nil, nil
	}
	return g.Fetch(ctx, userID, userContext)
}

func (g *PrimitiveGrant) ShouldRefetch(grantsPayload JSONObject, userContext JSONObject) bool {
	value, present := grantsPayload[g.GrantID]
	if !present {
		return true
	}
	if g.Refetch != nil {
		return g.Refetch(value, userContext)
	}
	return false
}

func (g *PrimitiveGrant) IsValid(grantsPayload JSONObject, userContext JSONObject) bool {
	value, present := grantsPayload[g.GrantID]
	if !present || value == nil {
		return false
	}
	if g.Validate != nil {
		return g.Validate(value, userContext)
	}
	return true
}

func (g *PrimitiveGrant) AddToPayload(grantsPayload JSONObject, value any, userContext JSONObject) JSONObject {
	out := CloneJSON(grantsPayload)
	out[g.GrantID] = value
	return out
}

func (g *PrimitiveGrant) RemoveFromPayload(grantsPayload JSONObject, userContext JSONObject) JSONObject {
	out := CloneJSON(grantsPayload)
	delete(out, g.GrantID)
	return out
}

// BooleanGrant is a PrimitiveGrant whose value must be exactly true.
func BooleanGrant(id string, fetch func(ctx context.Context, userID string, userContext JSONObject) (any, error)) *PrimitiveGrant {
	return &PrimitiveGrant{
		GrantID: id,
		Fetch:   fetch,
		Validate: func(value any, _ JSONObject) bool {
			b, ok := value.(bool)
			return ok && b
		},
	}
}

// grantEvalResult is what evaluateGrants reports back to the verify path.
type grantEvalResult struct {
	payload JSONObject
	changed bool
}

// evaluateGrants runs the grant engine over the session's grants payload:
// refetch stale values, merge non-nil results, then validate. The first
// invalid grant fails the whole evaluation with MissingGrant.
func evaluateGrants(
	ctx context.Context,
	userID string,
	payload JSONObject,
	required []Grant,
	userContext JSONObject,
) (grantEvalResult, error) {
	result := grantEvalResult{payload: payload}

	for _, grant := range required {
		if grant == nil {
			continue
		}
		if grant.ShouldRefetch(result.payload, userContext) {
			value, err := grant.FetchValue(ctx, userID, userContext)
			if err != nil {
				return result, err
			}
			if value != nil {
				result.payload = grant.AddToPayload(result.payload, value, userContext)
				result.changed = true
			}
		}
		if !grant.IsValid(result.payload, userContext) {
			return result, newMissingGrant(grant.ID())
		}
	}
	return result, nil
}

// mergeRequiredGrants combines the configured defaults with per-call grants,
// de-duplicated by ID with the per-call entry winning.
func mergeRequiredGrants(defaults, perCall []Grant) []Grant {
	if len(perCall) == 0 {
		return defaults
	}
	byID := make(map[string]int, len(defaults))
	merged := make([]Grant, 0, len(defaults)+len(perCall))
	for _, g := range defaults {
		if g == nil {
			continue
		}
		byID[g.ID()] = len(merged)
		merged = append(merged, g)
	}
	for _, g := range perCall {
		if g == nil {
			continue
		}
		if i, ok := byID[g.ID()]; ok {
			merged[i] = g
			continue
		}
		byID[g.ID()] = len(merged)
		merged = append(merged, g)
	}
	return merged
}
