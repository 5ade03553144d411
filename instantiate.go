package fabrica

import (
	"context"
	"fmt"
	"reflect"
)

func (f *Factory) instantiate(ctx context.Context, in Instantiation) (any, error) {
	if f.meta.instantiate != nil {
		return f.meta.instantiate(ctx, in)
	}
	model := f.modelPrototype()
	if model == nil {
		return nil, AbstractFactoryError{Factory: f.Name()}
	}
	obj, err := constructFromPrototype(model, in.Kwargs)
	if err != nil {
		return nil, fmt.Errorf("instantiate %s: %w", f.Name(), err)
	}
	return obj, nil
}

// constructFromPrototype copies the model prototype and overwrites the
// fields named by the resolved attributes. Prototype field values survive as
// defaults for attributes no declaration covers.
func constructFromPrototype(model any, kwargs map[string]any) (any, error) {
	t := reflect.TypeOf(model)
	wantPtr := t.Kind() == reflect.Pointer
	if wantPtr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("model %T is not a struct", model)
	}

	obj := reflect.New(t)
	proto := reflect.ValueOf(model)
	if wantPtr {
		if !proto.IsNil() {
			obj.Elem().Set(proto.Elem())
		}
	} else {
		obj.Elem().Set(proto)
	}

	for name, v := range kwargs {
		fv := obj.Elem().FieldByName(name)
		if !fv.IsValid() {
			return nil, fmt.Errorf("model %s has no field %q", t.Name(), name)
		}
		if !fv.CanSet() {
			return nil, fmt.Errorf("model %s field %q is not settable", t.Name(), name)
		}
		rv, err := coerceValue(v, fv.Type())
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		fv.Set(rv)
	}

	if wantPtr {
		return obj.Interface(), nil
	}
	return obj.Elem().Interface(), nil
}

// coerceValue adapts a resolved value to a target type, allowing numeric
// widening but refusing surprising conversions like int to string.
func coerceValue(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	if t.Kind() == reflect.String && rv.Kind() != reflect.String {
		return reflect.Value{}, fmt.Errorf("cannot assign %T to %s", v, t)
	}
	if rv.Type().ConvertibleTo(t) {
		return rv.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot assign %T to %s", v, t)
}

func (f *Factory) persist(ctx context.Context, obj any) error {
	if f.meta.persist != nil {
		return f.meta.persist(ctx, obj)
	}
	switch s := obj.(type) {
	case interface{ Save(context.Context) error }:
		return s.Save(ctx)
	case interface{ Save() error }:
		return s.Save()
	}
	return nil
}
