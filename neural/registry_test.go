// MODUL: registry_test
// ZWECK: Tests fuer Registrierung, Sortierung, Default-Rotation und Erstellung
// INPUT: Test-Factories mit festen Prioritaeten
// OUTPUT: Testresultate
// NEBENEFFEKTE: keine (jede Test-Funktion nutzt eine eigene Registry)
// ABHAENGIGKEITEN: testing, go-cmp
// HINWEISE: Gleiche Prioritaeten werden absteigend nach Namen sortiert

package neural

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/lczero/lc0go/optionsdict"
)

type testBackend struct {
	attrs  Attributes
	closed bool
	opts   *optionsdict.Dict
}

func (b *testBackend) Attributes() Attributes { return b.attrs }
func (b *testBackend) Close()                 { b.closed = true }

func (b *testBackend) Evaluate(_ context.Context, bufs *BatchBuffers, n int) error {
	for i := range n {
		b.writeOutputs(bufs, i)
	}
	return nil
}

func (b *testBackend) writeOutputs(bufs *BatchBuffers, pos int) {
	bufs.Policy(pos)[0] = 1
	v := bufs.Value(pos)
	v[len(v)-1] = 0.5
	if bufs.HasMovesLeft() {
		bufs.MovesLeftOutput[pos] = 42
	}
}

type testFactory struct {
	name     string
	priority int
	err      error
	created  []*testBackend
}

func (f *testFactory) Name() string  { return f.name }
func (f *testFactory) Priority() int { return f.priority }

func (f *testFactory) Create(opts *optionsdict.Dict) (Backend, error) {
	b := &testBackend{attrs: Attributes{HasWDL: true, HasMovesLeft: true}, opts: opts}
	f.created = append(f.created, b)
	if f.err != nil {
		return b, f.err
	}
	return b, nil
}

func newTestRegistry(t *testing.T, factories map[string]int, opts ...RegistryOption) (*Registry, map[string]Token) {
	t.Helper()
	r := NewRegistry(opts...)
	tokens := make(map[string]Token)
	for name, prio := range factories {
		tok, err := r.Register(&testFactory{name: name, priority: prio})
		if err != nil {
			t.Fatalf("Register(%s): %v", name, err)
		}
		tokens[name] = tok
	}
	return r, tokens
}

// ============================================================================
// ListNames
// ============================================================================

func TestListNamesOrder(t *testing.T) {
	tests := []struct {
		name       string
		factories  map[string]int
		defaultBkd string
		want       []string
	}{
		{
			name:      "leer",
			factories: map[string]int{},
			want:      []string{},
		},
		{
			name:      "nach Prioritaet",
			factories: map[string]int{"cpu": 1, "gpu": 100, "slow": -10},
			want:      []string{"gpu", "cpu", "slow"},
		},
		{
			name:      "Gleichstand absteigend nach Name",
			factories: map[string]int{"A": 5, "B": 10, "C": 10},
			want:      []string{"C", "B", "A"},
		},
		{
			name:       "Default wird nach vorne rotiert",
			factories:  map[string]int{"A": 5, "B": 10, "C": 10},
			defaultBkd: "A",
			want:       []string{"A", "C", "B"},
		},
		{
			name:       "Default aus der Mitte",
			factories:  map[string]int{"a": 4, "b": 3, "c": 2, "d": 1},
			defaultBkd: "c",
			want:       []string{"c", "a", "b", "d"},
		},
		{
			name:       "Default ist schon vorne",
			factories:  map[string]int{"a": 4, "b": 3},
			defaultBkd: "a",
			want:       []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRegistry(t, tt.factories, WithDefaultBackend(tt.defaultBkd))

			got, err := r.ListNames()
			if err != nil {
				t.Fatalf("ListNames: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ListNames mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestListNamesUnknownDefault(t *testing.T) {
	r, _ := newTestRegistry(t, map[string]int{"blas": 50, "random": -900}, WithDefaultBackend("blsa"))

	names, err := r.ListNames()
	if !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("ListNames: erwartet ErrUnknownBackend, bekommen %v (%v)", err, names)
	}
	if !strings.Contains(err.Error(), `"blsa"`) {
		t.Errorf("Fehler sollte den Default-Namen nennen: %v", err)
	}
	if err := r.Validate(); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("Validate: erwartet ErrUnknownBackend, bekommen %v", err)
	}

	r.SetDefaultBackend("blas")
	if err := r.Validate(); err != nil {
		t.Errorf("Validate nach SetDefaultBackend: %v", err)
	}
}

func TestFactoriesMarksDefault(t *testing.T) {
	r, _ := newTestRegistry(t, map[string]int{"x": 1, "y": 2}, WithDefaultBackend("x"))

	got, err := r.Factories()
	if err != nil {
		t.Fatal(err)
	}
	want := []FactoryInfo{
		{Name: "x", Priority: 1, Default: true},
		{Name: "y", Priority: 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Factories mismatch (-want +got):\n%s", diff)
	}
}

// ============================================================================
// Register / Remove
// ============================================================================

func TestRegisterDuplicate(t *testing.T) {
	r, _ := newTestRegistry(t, map[string]int{"blas": 50})

	_, err := r.Register(&testFactory{name: "blas", priority: 1})
	if !errors.Is(err, ErrDuplicateBackend) {
		t.Fatalf("erwartet ErrDuplicateBackend, bekommen %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, erwartet 1", r.Len())
	}

	if _, err := r.Register(nil); err == nil {
		t.Error("Register(nil) sollte fehlschlagen")
	}
}

func TestMustRegisterPanics(t *testing.T) {
	r, _ := newTestRegistry(t, map[string]int{"blas": 50})

	defer func() {
		if recover() == nil {
			t.Error("MustRegister mit doppeltem Namen sollte panicen")
		}
	}()
	r.MustRegister(&testFactory{name: "blas"})
}

func TestRemove(t *testing.T) {
	r, tokens := newTestRegistry(t, map[string]int{"X": 1, "Y": 2})

	if _, err := r.CreateFromName("X", nil); err != nil {
		t.Fatalf("CreateFromName(X): %v", err)
	}
	if err := r.Remove(tokens["X"]); err != nil {
		t.Fatalf("Remove(X): %v", err)
	}

	b, err := r.CreateFromName("X", nil)
	if !errors.Is(err, ErrUnknownBackend) || b != nil {
		t.Fatalf("CreateFromName nach Remove = %v, %v; erwartet ErrUnknownBackend", b, err)
	}

	// doppeltes Entfernen und fremde Tokens
	for _, tok := range []Token{tokens["X"], 0, 999} {
		if err := r.Remove(tok); !errors.Is(err, ErrUnregisteredBackend) {
			t.Errorf("Remove(%d): erwartet ErrUnregisteredBackend, bekommen %v", tok, err)
		}
	}

	names, _ := r.ListNames()
	if diff := cmp.Diff([]string{"Y"}, names); diff != "" {
		t.Errorf("Registry nach fehlgeschlagenem Remove veraendert (-want +got):\n%s", diff)
	}
}

func TestRemoveThenRegisterSameName(t *testing.T) {
	r := NewRegistry()
	first := r.MustRegister(&testFactory{name: "x"})
	if err := r.Remove(first); err != nil {
		t.Fatal(err)
	}

	second, err := r.Register(&testFactory{name: "x"})
	if err != nil {
		t.Fatalf("Register nach Remove: %v", err)
	}
	if second == first {
		t.Error("neue Registrierung sollte ein neues Token bekommen")
	}
	if err := r.Remove(first); !errors.Is(err, ErrUnregisteredBackend) {
		t.Errorf("altes Token darf die neue Registrierung nicht entfernen: %v", err)
	}
}

// ============================================================================
// FindByName / Create
// ============================================================================

func TestFindByName(t *testing.T) {
	r, _ := newTestRegistry(t, map[string]int{"blas": 50})

	f, ok := r.FindByName("blas")
	if !ok || f.Name() != "blas" {
		t.Errorf("FindByName(blas) = %v, %v", f, ok)
	}
	if f, ok := r.FindByName("BLAS"); ok || f != nil {
		t.Errorf("FindByName ist exakt, bekommen %v", f)
	}
}

func TestCreateFromNameUnknown(t *testing.T) {
	r, _ := newTestRegistry(t, map[string]int{"blas": 50, "random": -900})

	b, err := r.CreateFromName("rnadom", nil)
	if b != nil {
		t.Error("unbekanntes Backend darf keine Instanz liefern")
	}

	var regErr *RegistryError
	if !errors.As(err, &regErr) || !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("erwartet RegistryError/ErrUnknownBackend, bekommen %v", err)
	}
	if regErr.Name != "rnadom" {
		t.Errorf("RegistryError.Name = %q", regErr.Name)
	}
	if diff := cmp.Diff([]string{"random"}, regErr.Suggestions); diff != "" {
		t.Errorf("Suggestions mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(err.Error(), `did you mean "random"`) {
		t.Errorf("Fehlertext ohne Vorschlag: %v", err)
	}
}

func TestCreateFromNameFactoryError(t *testing.T) {
	boom := errors.New("boom")
	f := &testFactory{name: "bad", err: boom}
	r := NewRegistry()
	r.MustRegister(f)

	b, err := r.CreateFromName("bad", nil)
	if b != nil || !errors.Is(err, boom) {
		t.Fatalf("CreateFromName = %v, %v", b, err)
	}
	if len(f.created) != 1 || !f.created[0].closed {
		t.Error("teilweise erstelltes Backend muss geschlossen werden")
	}
}

func TestCreateFromConfig(t *testing.T) {
	f := &testFactory{name: "blas", priority: 50}
	r := NewRegistry()
	r.MustRegister(f)

	lastOpts := func(t *testing.T) *optionsdict.Dict {
		t.Helper()
		if len(f.created) == 0 {
			t.Fatal("Factory wurde nicht aufgerufen")
		}
		return f.created[len(f.created)-1].opts
	}

	t.Run("weights und backend-opts", func(t *testing.T) {
		cfg, err := NewConfig("blas", "threads=2")
		if err != nil {
			t.Fatal(err)
		}
		cfg.Set(WeightsID, "net.pb.gz")
		if _, err := r.CreateFromConfig(cfg); err != nil {
			t.Fatalf("CreateFromConfig: %v", err)
		}

		got := lastOpts(t)
		if got != cfg {
			t.Fatal("Factory sollte die ganze Konfiguration bekommen")
		}
		if w, err := Weights(got); err != nil || w != "net.pb.gz" {
			t.Errorf("Weights = %q, %v, erwartet net.pb.gz", w, err)
		}
		opts, err := BackendOptions(got)
		if err != nil {
			t.Fatal(err)
		}
		if v, _ := optionsdict.Get[int](opts, "threads"); v != 2 {
			t.Errorf("threads = %d, erwartet 2", v)
		}
		if err := opts.CheckAllOptionsRead(); err != nil {
			t.Errorf("CheckAllOptionsRead: %v", err)
		}
	})

	t.Run("flache Konfiguration", func(t *testing.T) {
		cfg := optionsdict.New()
		cfg.Set(BackendID, "blas")
		cfg.Set(WeightsID, "net.pb.gz")
		cfg.Set("threads", 3)
		if _, err := r.CreateFromConfig(cfg); err != nil {
			t.Fatalf("CreateFromConfig: %v", err)
		}

		opts, err := BackendOptions(lastOpts(t))
		if err != nil {
			t.Fatal(err)
		}
		if opts != cfg {
			t.Error("ohne backend-opts sind die Optionen die Konfiguration selbst")
		}
		if v, _ := optionsdict.Get[int](opts, "threads"); v != 3 {
			t.Errorf("threads = %d, erwartet 3", v)
		}
		// backend und weights gehoeren der Registry bzw. dem Aufrufer
		if err := opts.CheckAllOptionsRead(); err != nil {
			t.Errorf("CheckAllOptionsRead: %v", err)
		}
	})

	t.Run("backend-opts als String", func(t *testing.T) {
		cfg := optionsdict.New()
		cfg.Set(BackendID, "blas")
		cfg.Set(BackendOptionsID, "seed=9")
		if _, err := r.CreateFromConfig(cfg); err != nil {
			t.Fatalf("CreateFromConfig: %v", err)
		}

		opts, err := BackendOptions(lastOpts(t))
		if err != nil {
			t.Fatal(err)
		}
		if v, _ := optionsdict.Get[int](opts, "seed"); v != 9 {
			t.Errorf("seed = %d, erwartet 9", v)
		}
		if cfg.HasSubdict(BackendOptionsID) {
			t.Error("BackendOptions darf die Konfiguration nicht veraendern")
		}
	})

	t.Run("ungueltiger backend-opts String", func(t *testing.T) {
		cfg := optionsdict.New()
		cfg.Set(BackendOptionsID, "a=(")
		var perr *optionsdict.ParseError
		if _, err := BackendOptions(cfg); !errors.As(err, &perr) {
			t.Errorf("erwartet ParseError, bekommen %v", err)
		}
	})

	t.Run("ohne backend", func(t *testing.T) {
		_, err := r.CreateFromConfig(optionsdict.New())
		var keyErr *optionsdict.KeyError
		if !errors.As(err, &keyErr) || keyErr.Key != BackendID || !errors.Is(err, optionsdict.ErrKeyNotFound) {
			t.Errorf("erwartet KeyError fuer %q, bekommen %v", BackendID, err)
		}
	})

	t.Run("backend falscher Typ", func(t *testing.T) {
		cfg := optionsdict.New()
		cfg.Set(BackendID, 3)
		if _, err := r.CreateFromConfig(cfg); !errors.Is(err, optionsdict.ErrWrongType) {
			t.Errorf("erwartet ErrWrongType, bekommen %v", err)
		}
	})

	t.Run("unbekannt", func(t *testing.T) {
		cfg, _ := NewConfig("cudnn", "")
		if _, err := r.CreateFromConfig(cfg); !errors.Is(err, ErrUnknownBackend) {
			t.Errorf("erwartet ErrUnknownBackend, bekommen %v", err)
		}
	})
}

func TestWeights(t *testing.T) {
	cfg := optionsdict.New()
	if w, err := Weights(cfg); err != nil || w != "" {
		t.Errorf("Weights ohne Schluessel = %q, %v", w, err)
	}

	cfg.Set(WeightsID, 7)
	if _, err := Weights(cfg); !errors.Is(err, optionsdict.ErrWrongType) {
		t.Errorf("erwartet ErrWrongType, bekommen %v", err)
	}
}

func TestCreateOrDefault(t *testing.T) {
	tests := []struct {
		name    string
		opts    []RegistryOption
		backend string
		want    string
	}{
		{name: "hoechste Prioritaet", want: "high"},
		{name: "Default", opts: []RegistryOption{WithDefaultBackend("low")}, want: "low"},
		{name: "expliziter Name", opts: []RegistryOption{WithDefaultBackend("low")}, backend: "high", want: "high"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factories := map[string]*testFactory{
				"low":  {name: "low", priority: 1},
				"high": {name: "high", priority: 2},
			}
			r := NewRegistry(tt.opts...)
			for _, f := range factories {
				r.MustRegister(f)
			}

			b, err := r.CreateOrDefault(tt.backend, nil)
			if err != nil {
				t.Fatalf("CreateOrDefault: %v", err)
			}

			for name, f := range factories {
				want := 0
				if name == tt.want {
					want = 1
				}
				if len(f.created) != want {
					t.Errorf("%s: %d Backends erstellt, erwartet %d", name, len(f.created), want)
				}
			}
			if got := factories[tt.want].created; len(got) == 1 && Backend(got[0]) != b {
				t.Error("zurueckgegebenes Backend stammt nicht von der erwarteten Factory")
			}
		})
	}

	empty := NewRegistry()
	if _, err := empty.CreateOrDefault("", nil); !errors.Is(err, ErrNoBackends) {
		t.Errorf("leere Registry: erwartet ErrNoBackends, bekommen %v", err)
	}
}

// Register, ListNames, CreateFromName und Remove laufen parallel; mit -race
// zeigt das fehlende Sperren.
func TestRegistryConcurrent(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(NewFactory("shared", 0, func(opts *optionsdict.Dict) (Backend, error) {
		return &testBackend{opts: opts}, nil
	}))

	const workers = 16
	const rounds = 50

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := fmt.Sprintf("worker-%02d", w)
			for range rounds {
				tok, err := r.Register(NewFactory(name, w, func(opts *optionsdict.Dict) (Backend, error) {
					return &testBackend{opts: opts}, nil
				}))
				if err != nil {
					errs <- err
					return
				}
				names, err := r.ListNames()
				if err != nil || !slices.Contains(names, name) {
					errs <- fmt.Errorf("%s fehlt in %v (%v)", name, names, err)
					return
				}
				for _, n := range []string{name, "shared"} {
					b, err := r.CreateFromName(n, nil)
					if err != nil {
						errs <- err
						return
					}
					b.Close()
				}
				if err := r.Remove(tok); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	if diff := cmp.Diff([]string{"shared"}, mustList(t, r)); diff != "" {
		t.Errorf("Registry nach dem Lauf (-want +got):\n%s", diff)
	}
}

func mustList(t *testing.T, r *Registry) []string {
	t.Helper()
	names, err := r.ListNames()
	if err != nil {
		t.Fatal(err)
	}
	return names
}
