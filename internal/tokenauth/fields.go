package tokenauth

import "vocacore/internal/models"

// Field redaction is a property of the (token, model) pair, not of any
// particular handler: restricted fields never cross the boundary in either
// direction, readonly fields are dropped from write payloads only.

// StripRestricted removes restricted fields from a decoded JSON object
// in place. Safe to call with a nil entry (no-op).
func StripRestricted(payload map[string]any, entry *models.TokenModelPermission) {
	if entry == nil || payload == nil {
		return
	}
	for _, f := range entry.RestrictedFields {
		delete(payload, f)
	}
}

// StripForWrite removes both restricted and readonly fields from an inbound
// write payload in place.
func StripForWrite(payload map[string]any, entry *models.TokenModelPermission) {
	if entry == nil || payload == nil {
		return
	}
	for _, f := range entry.RestrictedFields {
		delete(payload, f)
	}
	for _, f := range entry.ReadonlyFields {
		delete(payload, f)
	}
}

// RedactValue applies StripRestricted through arbitrary JSON shapes: single
// objects, arrays of objects, and nested values inside them are all covered.
func RedactValue(v any, entry *models.TokenModelPermission) any {
	if entry == nil || len(entry.RestrictedFields) == 0 {
		return v
	}
	switch vv := v.(type) {
	case map[string]any:
		StripRestricted(vv, entry)
		for k, inner := range vv {
			vv[k] = RedactValue(inner, entry)
		}
		return vv
	case []any:
		for i, inner := range vv {
			vv[i] = RedactValue(inner, entry)
		}
		return vv
	default:
		return v
	}
}

// RedactRows is the list-response variant of RedactValue.
func RedactRows(rows []map[string]any, entry *models.TokenModelPermission) []map[string]any {
	if entry == nil || len(entry.RestrictedFields) == 0 {
		return rows
	}
	for _, row := range rows {
		StripRestricted(row, entry)
	}
	return rows
}
