package dag

import "reflect"

// WalkT applies post to every settable value of type T reachable from v,
// children before parents, replacing each with the result.
func WalkT[T any](v reflect.Value, post func(T) T) {
	switch v.Kind() {
	case reflect.Array, reflect.Slice:
		for i := range v.Len() {
			WalkT(v.Index(i), post)
		}
	case reflect.Interface, reflect.Pointer:
		WalkT(v.Elem(), post)
	case reflect.Struct:
		for i := range v.NumField() {
			WalkT(v.Field(i), post)
		}
	}
	if v.CanSet() {
		if t, ok := v.Interface().(T); ok {
			v.Set(reflect.ValueOf(post(t)))
		}
	}
}
