// MODUL: optionsdict
// ZWECK: Typisierte, geordnete Options-Sammlung fuer Backend-Konfiguration
// INPUT: Schluessel/Wert-Paare, verschachtelte Sub-Dicts (z.B. aus --backend-opts)
// OUTPUT: Typisierte Werte via Get[T], Fehler mit Schluesselname
// NEBENEFFEKTE: Merkt sich gelesene Schluessel fuer CheckAllOptionsRead
// ABHAENGIGKEITEN: wk8/go-ordered-map (Reihenfolge), agnivade/levenshtein (Vorschlaege)
// HINWEISE: Nicht thread-sicher, ein Dict gehoert einem Create-Aufruf

// Package optionsdict holds the configuration object handed to backend
// factories. Values keep their insertion order and may be nested in named
// sub-dicts, which is how backend-opts strings like "threads=2,gpu(id=1)"
// are represented.
package optionsdict

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ============================================================================
// Fehler-Definitionen
// ============================================================================

var (
	// ErrKeyNotFound wenn ein benoetigter Schluessel fehlt
	ErrKeyNotFound = errors.New("key not found")

	// ErrWrongType wenn der gespeicherte Wert einen anderen Typ hat
	ErrWrongType = errors.New("wrong type")

	// ErrUnusedOption wenn ein gesetzter Schluessel nie gelesen wurde
	ErrUnusedOption = errors.New("unused option")
)

// KeyError is returned by Get and Subdict. It names the offending key and
// the dict it was looked up in.
type KeyError struct {
	Dict string
	Key  string
	Err  error
}

func (e *KeyError) Error() string {
	if e.Dict == "" {
		return fmt.Sprintf("option %q: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("option %q in %q: %v", e.Key, e.Dict, e.Err)
}

func (e *KeyError) Unwrap() error {
	return e.Err
}

// ============================================================================
// Dict
// ============================================================================

type entry struct {
	value any
	read  bool
}

// Dict is an ordered set of typed options with named sub-dicts.
type Dict struct {
	name     string
	parent   *Dict
	read     bool
	values   *orderedmap.OrderedMap[string, *entry]
	subdicts *orderedmap.OrderedMap[string, *Dict]
}

// New erstellt ein leeres Wurzel-Dict.
func New() *Dict {
	return newDict("", nil)
}

func newDict(name string, parent *Dict) *Dict {
	return &Dict{
		name:     name,
		parent:   parent,
		values:   orderedmap.New[string, *entry](),
		subdicts: orderedmap.New[string, *Dict](),
	}
}

// Name returns the sub-dict name, empty for the root.
func (d *Dict) Name() string {
	return d.name
}

// Path returns the dotted path from the root, e.g. "demux.child".
func (d *Dict) Path() string {
	if d.parent == nil {
		return d.name
	}
	if p := d.parent.Path(); p != "" {
		return p + "." + d.name
	}
	return d.name
}

// Set speichert einen Wert. Erlaubt sind int, float64, bool und string.
// Ein vorhandener Wert wird ersetzt.
func (d *Dict) Set(key string, value any) {
	switch v := value.(type) {
	case int, float64, bool, string:
	case int64:
		value = int(v)
	case float32:
		value = float64(v)
	default:
		panic(fmt.Sprintf("optionsdict: unsupported value type %T for %q", value, key))
	}
	d.values.Set(key, &entry{value: value})
}

// MarkRead marks the named values as read where they exist, for keys that
// belong to a caller further up rather than to whoever checks d.
func (d *Dict) MarkRead(keys ...string) {
	for _, key := range keys {
		if e, ok := d.values.Get(key); ok {
			e.read = true
		}
	}
}

// Exists reports whether key holds a value. It does not mark the key read.
func (d *Dict) Exists(key string) bool {
	_, ok := d.values.Get(key)
	return ok
}

// Keys returns the value keys in insertion order.
func (d *Dict) Keys() []string {
	keys := make([]string, 0, d.values.Len())
	for p := d.values.Oldest(); p != nil; p = p.Next() {
		keys = append(keys, p.Key)
	}
	return keys
}

// Len returns the number of values, sub-dicts not included.
func (d *Dict) Len() int {
	return d.values.Len()
}

// ============================================================================
// Sub-Dicts
// ============================================================================

// AddSubdict gibt das Sub-Dict mit dem Namen zurueck und legt es bei Bedarf an.
func (d *Dict) AddSubdict(name string) *Dict {
	if sub, ok := d.subdicts.Get(name); ok {
		return sub
	}
	sub := newDict(name, d)
	d.subdicts.Set(name, sub)
	return sub
}

// HasSubdict reports whether a sub-dict with that name exists.
func (d *Dict) HasSubdict(name string) bool {
	_, ok := d.subdicts.Get(name)
	return ok
}

// Subdict returns the named sub-dict and marks it as read.
func (d *Dict) Subdict(name string) (*Dict, error) {
	sub, ok := d.subdicts.Get(name)
	if !ok {
		return nil, &KeyError{Dict: d.Path(), Key: name, Err: ErrKeyNotFound}
	}
	sub.read = true
	return sub, nil
}

// Subdicts returns the sub-dict names in insertion order.
func (d *Dict) Subdicts() []string {
	names := make([]string, 0, d.subdicts.Len())
	for p := d.subdicts.Oldest(); p != nil; p = p.Next() {
		names = append(names, p.Key)
	}
	return names
}

// ============================================================================
// Typisierter Zugriff
// ============================================================================

// Get returns the value stored under key as T. A missing key yields a
// *KeyError wrapping ErrKeyNotFound, a value of another type one wrapping
// ErrWrongType. Integer values satisfy float64 requests.
func Get[T any](d *Dict, key string) (T, error) {
	var zero T
	e, ok := d.values.Get(key)
	if !ok {
		return zero, &KeyError{Dict: d.Path(), Key: key, Err: ErrKeyNotFound}
	}
	e.read = true

	if v, ok := e.value.(T); ok {
		return v, nil
	}
	if i, ok := e.value.(int); ok {
		if v, ok := any(float64(i)).(T); ok {
			return v, nil
		}
	}

	return zero, &KeyError{
		Dict: d.Path(),
		Key:  key,
		Err:  fmt.Errorf("%w: have %T, want %T", ErrWrongType, e.value, zero),
	}
}

// GetOrDefault liefert den Wert oder def wenn der Schluessel fehlt.
// Ein falscher Typ wird ebenfalls durch def ersetzt.
func GetOrDefault[T any](d *Dict, key string, def T) T {
	v, err := Get[T](d, key)
	if err != nil {
		return def
	}
	return v
}

// Optional returns def when key is missing and the value otherwise. Unlike
// GetOrDefault a value of the wrong type is an error.
func Optional[T any](d *Dict, key string, def T) (T, error) {
	if !d.Exists(key) {
		return def, nil
	}
	return Get[T](d, key)
}

// ============================================================================
// Pruefung ungenutzter Optionen
// ============================================================================

// CheckAllOptionsRead returns an error naming every value or sub-dict that
// was set but never read. Unread keys get a suggestion among the keys that
// were read in the same dict, which catches misspelt backend options.
func (d *Dict) CheckAllOptionsRead() error {
	var unused []string
	d.collectUnused(&unused)
	if len(unused) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnusedOption, strings.Join(unused, "; "))
}

func (d *Dict) collectUnused(out *[]string) {
	var readKeys []string
	for p := d.values.Oldest(); p != nil; p = p.Next() {
		if p.Value.read {
			readKeys = append(readKeys, p.Key)
		}
	}

	for p := d.values.Oldest(); p != nil; p = p.Next() {
		if p.Value.read {
			continue
		}
		msg := strconv.Quote(qualify(d.Path(), p.Key))
		if s := closest(p.Key, readKeys); s != "" {
			msg += fmt.Sprintf(" (did you mean %q?)", s)
		}
		*out = append(*out, msg)
	}

	for p := d.subdicts.Oldest(); p != nil; p = p.Next() {
		if !p.Value.read {
			*out = append(*out, strconv.Quote(qualify(d.Path(), p.Key)+"(...)"))
			continue
		}
		p.Value.collectUnused(out)
	}
}

func qualify(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func closest(key string, candidates []string) string {
	best, bestDist := "", 3
	sort.Strings(candidates)
	for _, c := range candidates {
		if d := levenshtein.ComputeDistance(key, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
