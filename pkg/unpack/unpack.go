// Package unpack decodes JSON into Go values whose interface-typed fields
// are resolved by a "kind" key naming one of a registered set of concrete
// struct types.
package unpack

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

type Reflector map[string]reflect.Type

// New returns a Reflector that recognizes the types of the template
// values by their Go type names.
func New(templates ...any) Reflector {
	r := make(Reflector)
	for _, t := range templates {
		typ := reflect.TypeOf(t)
		if typ.Kind() == reflect.Pointer {
			typ = typ.Elem()
		}
		r[typ.Name()] = typ
	}
	return r
}

// Unmarshal decodes the JSON in b into result, which must be a non-nil
// pointer.
func (r Reflector) Unmarshal(b []byte, result any) error {
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return err
	}
	return r.UnmarshalObject(generic, result)
}

// UnmarshalObject is like Unmarshal but takes an already decoded
// generic JSON value.
func (r Reflector) UnmarshalObject(from any, result any) error {
	v := reflect.ValueOf(result)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return errors.New("unpack: result must be a non-nil pointer")
	}
	return r.decode(from, v.Elem())
}

func (r Reflector) decode(from any, to reflect.Value) error {
	if from == nil {
		to.Set(reflect.Zero(to.Type()))
		return nil
	}
	switch to.Kind() {
	case reflect.Interface:
		obj, ok := from.(map[string]any)
		if !ok {
			return fmt.Errorf("unpack: %s: expected object, got %T", to.Type(), from)
		}
		kind, _ := obj["kind"].(string)
		typ, ok := r[kind]
		if !ok {
			return fmt.Errorf("unpack: %s: unknown kind %q", to.Type(), kind)
		}
		ptr := reflect.New(typ)
		if !ptr.Type().Implements(to.Type()) {
			return fmt.Errorf("unpack: kind %q is not a %s", kind, to.Type())
		}
		if err := r.decode(from, ptr.Elem()); err != nil {
			return err
		}
		to.Set(ptr)
	case reflect.Pointer:
		ptr := reflect.New(to.Type().Elem())
		if err := r.decode(from, ptr.Elem()); err != nil {
			return err
		}
		to.Set(ptr)
	case reflect.Struct:
		obj, ok := from.(map[string]any)
		if !ok {
			return fmt.Errorf("unpack: %s: expected object, got %T", to.Type(), from)
		}
		typ := to.Type()
		for i := range typ.NumField() {
			f := typ.Field(i)
			name := fieldName(f)
			if name == "" {
				continue
			}
			val, ok := obj[name]
			if !ok {
				if _, isKind := f.Tag.Lookup("unpack"); isKind && f.Type.Kind() == reflect.String {
					to.Field(i).SetString(typ.Name())
				}
				continue
			}
			if err := r.decode(val, to.Field(i)); err != nil {
				return fmt.Errorf("%s.%s: %w", typ.Name(), name, err)
			}
		}
	case reflect.Slice:
		arr, ok := from.([]any)
		if !ok {
			return fmt.Errorf("unpack: %s: expected array, got %T", to.Type(), from)
		}
		s := reflect.MakeSlice(to.Type(), len(arr), len(arr))
		for i, elem := range arr {
			if err := r.decode(elem, s.Index(i)); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		to.Set(s)
	case reflect.Map:
		obj, ok := from.(map[string]any)
		if !ok || to.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("unpack: %s: expected object with string keys", to.Type())
		}
		m := reflect.MakeMapWithSize(to.Type(), len(obj))
		for k, val := range obj {
			elem := reflect.New(to.Type().Elem()).Elem()
			if err := r.decode(val, elem); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			m.SetMapIndex(reflect.ValueOf(k).Convert(to.Type().Key()), elem)
		}
		to.Set(m)
	default:
		b, err := json.Marshal(from)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, to.Addr().Interface())
	}
	return nil
}

func fieldName(f reflect.StructField) string {
	if !f.IsExported() {
		return ""
	}
	tag := f.Tag.Get("json")
	if tag == "-" {
		return ""
	}
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name
	}
	return f.Name
}
