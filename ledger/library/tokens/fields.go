package tokens

import (
	"reflect"
	"strings"
	"sync"
)

type fieldPlan struct {
	// lowercased abi name -> reflect index path, embedded structs included
	index map[string][]int
}

//nolint:gochecknoglobals // memoized per destination type, safe for concurrent use
var planCache sync.Map // map[reflect.Type]*fieldPlan

func getPlan(t reflect.Type) *fieldPlan {
	if v, ok := planCache.Load(t); ok {
		if p, ok := v.(*fieldPlan); ok {
			return p
		}
	}

	p := &fieldPlan{index: make(map[string][]int)}
	buildPlan(t, nil, p)

	if actual, loaded := planCache.LoadOrStore(t, p); loaded {
		if stored, ok := actual.(*fieldPlan); ok {
			return stored
		}
	}

	return p
}

func buildPlan(t reflect.Type, prefix []int, p *fieldPlan) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if t.Kind() != reflect.Struct {
		return
	}

	for i := range t.NumField() {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}

		path := append(append([]int(nil), prefix...), i)

		if sf.Anonymous && isStructLike(sf.Type) {
			buildPlan(sf.Type, path, p)

			continue
		}

		name := sf.Tag.Get("abi")
		if name == "" {
			name = sf.Name
		}

		p.index[strings.ToLower(name)] = path
	}
}

func isStructLike(t reflect.Type) bool {
	return t.Kind() == reflect.Struct ||
		(t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct)
}
