package tokens

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// assignByABI writes decoded values into dst fields matched by `abi:"name"`
// tag, or by field name when the tag is missing.
func assignByABI(dst any, args abi.Arguments, values map[string]any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return ErrNonNilRequired
	}

	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return ErrStructRequired
	}

	plan := getPlan(rv.Type())

	for _, arg := range args {
		name := strings.ToLower(arg.Name)

		val, ok := values[name]
		if !ok {
			continue
		}

		path, ok := plan.index[name]
		if !ok {
			continue
		}

		field := rv.FieldByIndex(path)
		if !field.IsValid() || !field.CanSet() {
			continue
		}

		src := reflect.ValueOf(val)

		switch {
		case src.Type().AssignableTo(field.Type()):
			field.Set(src)
		case src.Type().ConvertibleTo(field.Type()):
			field.Set(src.Convert(field.Type()))
		default:
			return fmt.Errorf("%w for %q: have %v want %v",
				ErrABIPlanTypeMismatched, arg.Name, src.Type(), field.Type())
		}
	}

	return nil
}

func indexed(arguments abi.Arguments) abi.Arguments {
	var ret abi.Arguments

	for _, arg := range arguments {
		if arg.Indexed {
			ret = append(ret, arg)
		}
	}

	return ret
}
