package relay

// Location field names.
const (
	FieldLat            = "lat"
	FieldLng            = "lng"
	FieldDeviceLat      = "deviceLat"
	FieldDeviceLng      = "deviceLng"
	FieldBaseStationLat = "baseStationLat"
	FieldBaseStationLng = "baseStationLng"
)

// FieldRenamer rewrites the location fields of a message body.
//
// A non-empty incoming lat/lng (base station position) is renamed to
// baseStationLat/baseStationLng; a zero or empty one is left in place. Then the first configured field pair that
// is present in the body is copied into lat/lng.
type FieldRenamer struct {
	latFields []string
	lngFields []string
}

// NewFieldRenamer creates a renamer for the given pair lists, in priority
// order. Pairs are formed by position; extra entries in the longer list are
// ignored.
func NewFieldRenamer(latFields, lngFields []string) *FieldRenamer {
	return &FieldRenamer{latFields: latFields, lngFields: lngFields}
}

// Transform returns the rewritten body. body itself is not modified.
func (r *FieldRenamer) Transform(body map[string]any) map[string]any {
	out := copyBody(body)

	if v := out[FieldLat]; truthy(v) {
		out[FieldBaseStationLat] = v
		delete(out, FieldLat)
	}
	if v := out[FieldLng]; truthy(v) {
		out[FieldBaseStationLng] = v
		delete(out, FieldLng)
	}

	n := min(len(r.latFields), len(r.lngFields))
	for i := 0; i < n; i++ {
		lat, lng := out[r.latFields[i]], out[r.lngFields[i]]
		if !truthy(lat) || !truthy(lng) {
			continue
		}
		out[FieldLat] = lat
		out[FieldLng] = lng
		break
	}
	return out
}
