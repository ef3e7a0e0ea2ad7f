package serializer

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"persistence-engine/internal/logging"
)

// Constructor builds a codec. It returns ErrCodecUnavailable when the codec's
// runtime support is missing.
type Constructor func(Options) (Serializer, error)

type candidate struct {
	name string
	ctor Constructor
}

// builtins is populated at init time by codec files that survive the build
// tags (nocbor, noprotobuf).
var builtins []struct {
	format Format
	candidate
}

func registerBuiltin(format Format, name string, ctor Constructor) {
	builtins = append(builtins, struct {
		format Format
		candidate
	}{format, candidate{name, ctor}})
}

// Registry resolves a Format to a Serializer, degrading to the baseline when
// no registered codec for the format can be built. Results are cached per
// format until Reset.
type Registry struct {
	mu     sync.RWMutex
	chains map[Format][]candidate
	opts   Options
	sink   logging.Sink
	cache  sync.Map // Format -> Serializer
}

// NewRegistry returns a registry with no optional codecs. Every request for
// HighPerfBinaryA/B degrades until Register is called.
func NewRegistry(sink logging.Sink, opts Options) *Registry {
	if sink == nil {
		sink = logging.Nop()
	}
	return &Registry{
		chains: make(map[Format][]candidate),
		opts:   opts,
		sink:   sink,
	}
}

// DefaultRegistry returns a registry holding every codec compiled into the binary.
func DefaultRegistry(sink logging.Sink, opts Options) *Registry {
	r := NewRegistry(sink, opts)
	for _, b := range builtins {
		r.Register(b.format, b.name, b.ctor)
	}
	return r
}

// Register appends ctor to the chain tried for format.
func (r *Registry) Register(format Format, name string, ctor Constructor) {
	r.mu.Lock()
	r.chains[format] = append(r.chains[format], candidate{name: name, ctor: ctor})
	r.mu.Unlock()
	r.cache.Delete(format)
}

// Available reports the codec names registered for format.
func (r *Registry) Available(format Format) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.chains[format]))
	for _, c := range r.chains[format] {
		names = append(names, c.name)
	}
	return names
}

// Get never fails: JSON and Binary are served by the baseline, the optional
// formats by the first constructor that succeeds, else by the baseline.
func (r *Registry) Get(format Format) Serializer {
	if s, ok := r.cache.Load(format); ok {
		return s.(Serializer)
	}

	s := r.resolve(format)
	actual, _ := r.cache.LoadOrStore(format, s)
	return actual.(Serializer)
}

// Reset drops every cached resolution.
func (r *Registry) Reset() {
	r.cache.Clear()
}

func (r *Registry) resolve(format Format) Serializer {
	switch format {
	case JSON, Binary:
		return NewBaseline(format, r.opts)
	}

	r.mu.RLock()
	chain := make([]Constructor, 0, len(r.chains[format]))
	for _, c := range r.chains[format] {
		chain = append(chain, r.logged(format, c))
	}
	r.mu.RUnlock()

	s, degraded := Resolve(r.opts, chain, func(opts Options) Serializer {
		return NewBaseline(Binary, opts)
	})
	if degraded {
		r.sink.Log(context.Background(), slog.LevelWarn, logging.CategorySerializer, "serializer degraded",
			"requested", format.String(),
			"using", s.Format().String(),
		)
	}
	return s
}

func (r *Registry) logged(format Format, c candidate) Constructor {
	return func(opts Options) (Serializer, error) {
		s, err := c.ctor(opts)
		if err != nil {
			level := slog.LevelError
			if errors.Is(err, ErrCodecUnavailable) {
				level = slog.LevelDebug
			}
			r.sink.LogException(context.Background(), level, logging.CategorySerializer, "codec constructor failed", err,
				"format", format.String(),
				"codec", c.name,
			)
		}
		return s, err
	}
}

// Resolve tries chain in order and returns the first serializer built
// successfully. When every entry fails it returns fallback(opts) and reports
// degraded.
func Resolve(opts Options, chain []Constructor, fallback func(Options) Serializer) (s Serializer, degraded bool) {
	for _, ctor := range chain {
		s, err := ctor(opts)
		if err == nil && s != nil {
			return s, false
		}
	}
	return fallback(opts), true
}
