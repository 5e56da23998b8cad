package engine

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/rungalileo/gcache/cache"
)

// Options configures one cached function registration. Exactly one of
// IDArg or IDArgFunc must identify the argument struct field (or
// computed value) used as the cache key's id, mirroring the original
// decorator's `id_arg: str | tuple[str, Callable[[Any], str]]`.
//
// Grounded on gcache.py's `cached(...)` decorator parameters and on the
// teacher's reflection helpers in cache/key_serializer.go and
// repositorycache/decorator.go (extractID/structValue/valueToString),
// generalized here from whole-call key stringification to per-field
// cache-key argument binding.
type Options struct {
	KeyType string
	// IDArg names the exported field of the argument struct that holds
	// the entity id. Required unless IDArgFunc is set.
	IDArg string
	// IDArgFunc, if set, computes the id string directly from the bound
	// argument instead of reading a named field.
	IDArgFunc func(arg any) string
	// UseCase defaults to the fnName passed to NewCached if left empty;
	// the name is used as given, without qualifying it by package.
	UseCase string
	// ArgAdapters maps an argument struct field name to a function that
	// renders its value into the cache key. A field named by IDArg is
	// only included in the key's query args if it has an adapter here
	// (matching the original's should_skip_id_arg_in_args rule).
	ArgAdapters map[string]func(value any) string
	// IgnoreArgs lists struct field names excluded from the cache key.
	IgnoreArgs           []string
	TrackForInvalidation bool
	DefaultConfig        *cache.KeyConfig
}

func (o Options) ignored(name string) bool {
	for _, n := range o.IgnoreArgs {
		if n == name {
			return true
		}
	}
	return false
}

// bindKey reflects over arg (expected to be a struct or pointer to one)
// and builds a cache.Key using opts and builder. Returns
// cache.ErrKeyArgMissing when IDArg names a field the struct does not
// declare — a programmer error raised synchronously from the call site,
// never degraded to the fallback path.
func bindKey(builder *cache.KeyBuilder, opts Options, useCase string, arg any) (cache.Key, error) {
	rv, err := structValue(arg)
	if err != nil {
		return cache.Key{}, err
	}
	rt := rv.Type()

	var idStr string
	if opts.IDArgFunc != nil {
		idStr = opts.IDArgFunc(arg)
	} else {
		if opts.IDArg == "" {
			return cache.Key{}, cache.ErrKeyArgMissing("")
		}
		field, ok := rt.FieldByName(opts.IDArg)
		if !ok || !field.IsExported() {
			return cache.Key{}, cache.ErrKeyArgMissing(opts.IDArg)
		}
		val := rv.FieldByIndex(field.Index).Interface()
		if adapter, ok := opts.ArgAdapters[opts.IDArg]; ok {
			idStr = adapter(val)
		} else {
			idStr = stringifyArg(val)
		}
	}

	_, idHasAdapter := opts.ArgAdapters[opts.IDArg]
	skipIDInArgs := !idHasAdapter

	var args []cache.Arg
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		if skipIDInArgs && field.Name == opts.IDArg {
			continue
		}
		if opts.ignored(field.Name) {
			continue
		}
		val := rv.Field(i).Interface()
		var str string
		if adapter, ok := opts.ArgAdapters[field.Name]; ok {
			str = adapter(val)
		} else {
			str = stringifyArg(val)
		}
		args = append(args, cache.Arg{Name: field.Name, Value: str})
	}
	sort.Slice(args, func(i, j int) bool { return args[i].Name < args[j].Name })

	key := builder.Build(opts.KeyType, idStr, useCase, args, opts.TrackForInvalidation, opts.DefaultConfig)
	return key, nil
}

// structValue dereferences pointer/interface chains down to the
// underlying struct value, the same walk repositorycache/decorator.go's
// structValue performs before reading identifier fields.
func structValue(v any) (reflect.Value, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return reflect.Value{}, cache.ErrKeyConstructionFailed(fmt.Errorf("nil argument"))
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return reflect.Value{}, cache.ErrKeyConstructionFailed(fmt.Errorf("cached argument must be a struct, got %s", rv.Kind()))
	}
	return rv, nil
}

// stringifyArg renders a bound argument value into its cache-key
// fragment. Adapted from the teacher's defaultKeySerializer.serializeValue
// (cache/key_serializer.go): same dispatch by reflect.Kind, same
// deterministic sorted-map/struct handling, same JSON fallback for
// everything else. Function and channel values fall through to the JSON
// branch, which cannot encode them and renders them as
// "unsupported:<type>", so every value of such a type yields the same
// key fragment.
func stringifyArg(v any) string {
	if v == nil {
		return "nil"
	}
	rv := reflect.ValueOf(v)
	rt := rv.Type()

	switch rt.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return "nil"
		}
		return stringifyArg(rv.Elem().Interface())
	case reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return stringifyArg(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil"
		}
		return stringifySequence(rv)
	case reflect.Array:
		return stringifySequence(rv)
	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		return stringifyMap(rv)
	case reflect.Struct:
		return stringifyStruct(rv, rt)
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.String:
		return fmt.Sprintf("%v", v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("unsupported:%s", rt.String())
		}
		return string(data)
	}
}

func stringifySequence(rv reflect.Value) string {
	n := rv.Len()
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = stringifyArg(rv.Index(i).Interface())
	}
	return fmt.Sprintf("[%s]", strings.Join(parts, ","))
}

func stringifyMap(rv reflect.Value) string {
	keys := rv.MapKeys()
	rendered := make([]string, len(keys))
	for i, k := range keys {
		rendered[i] = fmt.Sprintf("%s=%s", stringifyArg(k.Interface()), stringifyArg(rv.MapIndex(k).Interface()))
	}
	sort.Strings(rendered)
	return fmt.Sprintf("{%s}", strings.Join(rendered, ","))
}

func stringifyStruct(rv reflect.Value, rt reflect.Type) string {
	var parts []string
	for i := 0; i < rv.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s:%s", f.Name, stringifyArg(rv.Field(i).Interface())))
	}
	return fmt.Sprintf("{%s}", strings.Join(parts, ","))
}
