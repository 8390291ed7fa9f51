package flowgraph

import "reflect"

// cloneValue deep-copies the reference-like kinds (slice, map, pointer) that
// would otherwise let a Copy share mutable backing storage with its
// original, and passes everything else through unchanged — a plain struct,
// number, or string stored in an any already got an independent copy the
// moment it was boxed into the interface, and an opaque user object (a
// *sql.DB, a channel, a function value) has no generic notion of "copy" so
// it's left shared: this module only promises structural independence for
// the kinds it actually understands.
func cloneValue(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	// valueOf wraps a cloned element for reflect's setters; a nil element
	// becomes the zero value of t, since reflect.ValueOf(nil) can be neither
	// Set nor stored as a map value.
	valueOf := func(c any, t reflect.Type) reflect.Value {
		if c == nil {
			return reflect.Zero(t)
		}
		return reflect.ValueOf(c)
	}
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(valueOf(cloneValue(rv.Index(i).Interface()), rv.Type().Elem()))
		}
		return out.Interface()
	case reflect.Map:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		for _, k := range rv.MapKeys() {
			out.SetMapIndex(k, valueOf(cloneValue(rv.MapIndex(k).Interface()), rv.Type().Elem()))
		}
		return out.Interface()
	case reflect.Ptr:
		if rv.IsNil() {
			return v
		}
		elemCopy := cloneValue(rv.Elem().Interface())
		out := reflect.New(rv.Type().Elem())
		out.Elem().Set(valueOf(elemCopy, rv.Type().Elem()))
		return out.Interface()
	default:
		return v
	}
}
