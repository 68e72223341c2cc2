package scan

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/tendant/simple-blog/pkg/mediastore"
)

// ObjectProcessor defines the interface for processing objects during a scan.
// Implementations can perform safety checks, re-sniffing, reporting, etc.
type ObjectProcessor interface {
	// Process is called for each object matching the scan filters.
	// Returning an error records the object as failed; the scan continues.
	Process(ctx context.Context, obj *mediastore.Object) error
}

// ProcessorFunc adapts a function to the ObjectProcessor interface.
type ProcessorFunc func(context.Context, *mediastore.Object) error

func (f ProcessorFunc) Process(ctx context.Context, obj *mediastore.Object) error {
	return f(ctx, obj)
}

// ErrUnsafe is returned by SafetyMarker when the checker rejects an object.
var ErrUnsafe = errors.New("object rejected by safety check")

// CheckFunc inspects the bytes of an object and reports whether it is safe.
type CheckFunc func(ctx context.Context, obj *mediastore.Object, r io.Reader) (bool, error)

// SafetyMarker streams each object through a CheckFunc and records a
// positive verdict with SetSafetyChecked. Rejected objects stay unchecked
// and are reported as failures.
type SafetyMarker struct {
	store mediastore.Service
	check CheckFunc
}

// NewSafetyMarker creates a processor that marks objects approved by check.
func NewSafetyMarker(store mediastore.Service, check CheckFunc) *SafetyMarker {
	return &SafetyMarker{store: store, check: check}
}

func (m *SafetyMarker) Process(ctx context.Context, obj *mediastore.Object) error {
	rc, current, err := m.store.Open(ctx, obj.Name)
	if err != nil {
		return err
	}
	defer rc.Close()

	safe, err := m.check(ctx, current, rc)
	if err != nil {
		return fmt.Errorf("check %q: %w", obj.Name, err)
	}
	if !safe {
		return fmt.Errorf("%q: %w", obj.Name, ErrUnsafe)
	}
	_, err = m.store.SetSafetyChecked(ctx, obj.Name, true)
	return err
}
