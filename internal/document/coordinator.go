// Package document turns a captured document image into structured,
// citizen-correctable fields with a confidence score and a validation gate.
//
// The document-processing collaborator (real OCR or the local stand-in)
// owns confidence synthesis and any simulated scan noise; this package only
// surfaces whatever fields and confidence it receives, then gates
// confirmation on the active schema's required fields.
package document

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Extraction is what the document-processing collaborator returns for one
// captured image.
type Extraction struct {
	// Confidence is the overall OCR confidence in [0, 1].
	Confidence float64

	// Fields maps schema field names to extracted values.
	Fields map[string]string

	// Warnings are collaborator remarks shown alongside the review form
	// (e.g. "imagen con poco contraste").
	Warnings []string
}

// Processor is the collaborator slice this package depends on.
type Processor interface {
	// ProcessDocument extracts structured fields from a captured image.
	ProcessDocument(ctx context.Context, image []byte, documentType string) (Extraction, error)
}

// Record is a captured document under citizen review. Extracted values are
// kept immutable so confirmation can report whether the citizen corrected
// anything.
type Record struct {
	DocumentType string
	Confidence   float64
	Warnings     []string

	extracted map[string]string // as received, never mutated
	fields    map[string]string // current values, citizen-editable
}

// Field returns the current value of name.
func (r *Record) Field(name string) string {
	return r.fields[name]
}

// Fields returns a copy of the current field values.
func (r *Record) Fields() map[string]string {
	out := make(map[string]string, len(r.fields))
	for k, v := range r.fields {
		out[k] = v
	}
	return out
}

// ValidationError reports the required fields that were empty at
// confirmation time.
type ValidationError struct {
	Missing []string // field labels, sorted for stable messages
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("document: campos requeridos vacíos: %s", strings.Join(e.Missing, ", "))
}

// ErrNoActiveRecord is returned when Confirm or Retry is called without a
// capture in progress.
var ErrNoActiveRecord = errors.New("document: no hay captura activa")

// ConfirmResult is the outcome of a successful confirmation.
type ConfirmResult struct {
	// Fields are the confirmed values that flow into the legal-review
	// transition. The Record itself is discarded after confirmation.
	Fields map[string]string

	// WasEdited reports whether any confirmed value differs from the
	// originally extracted one, so downstream messaging can acknowledge
	// the correction.
	WasEdited bool
}

// ReleaseFunc releases the underlying capture device (camera). It is
// invoked when a capture is cancelled or retried so the device is never
// left acquired.
type ReleaseFunc func()

// Coordinator drives one document capture/review cycle at a time. It is
// safe for concurrent use.
type Coordinator struct {
	proc Processor

	mu      sync.Mutex
	current *Record
	release ReleaseFunc
}

// NewCoordinator creates a Coordinator backed by proc.
func NewCoordinator(proc Processor) *Coordinator {
	return &Coordinator{proc: proc}
}

// Begin processes the captured image and opens a review cycle. release may
// be nil; when set it is called if the cycle ends without confirmation.
// An already-open cycle is discarded first (its device released).
func (c *Coordinator) Begin(ctx context.Context, image []byte, documentType string, release ReleaseFunc) (*Record, error) {
	ext, err := c.proc.ProcessDocument(ctx, image, documentType)
	if err != nil {
		if release != nil {
			release()
		}
		return nil, fmt.Errorf("document: process: %w", err)
	}

	fields := make(map[string]string, len(ext.Fields))
	extracted := make(map[string]string, len(ext.Fields))
	for k, v := range ext.Fields {
		fields[k] = v
		extracted[k] = v
	}
	rec := &Record{
		DocumentType: documentType,
		Confidence:   ext.Confidence,
		Warnings:     append([]string(nil), ext.Warnings...),
		extracted:    extracted,
		fields:       fields,
	}

	c.mu.Lock()
	prevRelease := c.release
	c.current = rec
	c.release = release
	c.mu.Unlock()

	if prevRelease != nil {
		prevRelease()
	}
	return rec, nil
}

// EditField replaces the current value of name on the active record.
// Unknown field names are rejected so typos in the UI layer surface early.
func (c *Coordinator) EditField(name, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return ErrNoActiveRecord
	}
	if _, ok := c.current.fields[name]; !ok {
		// Allow filling a schema field the extraction missed entirely.
		known := false
		for _, f := range SchemaFor(c.current.DocumentType).Fields {
			if f.Name == name {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("document: campo desconocido %q", name)
		}
	}
	c.current.fields[name] = value
	return nil
}

// Confirm validates the active record against its schema. Every required
// field must be non-empty (after trimming); otherwise Confirm fails with a
// *ValidationError naming the missing fields and performs no state change.
// On success the record is discarded and its confirmed values returned.
func (c *Coordinator) Confirm() (ConfirmResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return ConfirmResult{}, ErrNoActiveRecord
	}

	schema := SchemaFor(c.current.DocumentType)
	var missing []string
	for _, f := range schema.Fields {
		if f.Required && strings.TrimSpace(c.current.fields[f.Name]) == "" {
			missing = append(missing, f.Label)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return ConfirmResult{}, &ValidationError{Missing: missing}
	}

	edited := false
	for k, v := range c.current.fields {
		if c.current.extracted[k] != v {
			edited = true
			break
		}
	}

	res := ConfirmResult{Fields: c.current.Fields(), WasEdited: edited}
	c.current = nil
	c.release = nil // confirmation path: device already closed by the UI
	return res, nil
}

// Retry discards the active record unconditionally, releases the capture
// device, and reports whether there was a cycle to discard. The caller
// re-opens capture on true.
func (c *Coordinator) Retry() bool {
	c.mu.Lock()
	rec := c.current
	release := c.release
	c.current = nil
	c.release = nil
	c.mu.Unlock()

	if release != nil {
		release()
	}
	return rec != nil
}

// Cancel is Retry without the re-capture signal: the citizen closed the
// camera or backed out of the review.
func (c *Coordinator) Cancel() {
	c.Retry()
}

// Active returns the record under review, or nil.
func (c *Coordinator) Active() *Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}
