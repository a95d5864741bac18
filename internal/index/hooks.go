package index

import (
	"context"
	"time"
)

// Resource is a concrete, indexable thing produced by a Resolver.
type Resource interface {
	// Name returns the resource's identifier as submitted to the pipeline.
	Name() string
	// Exists reports whether the resource can still be read.
	Exists() bool
}

// LastIndexedSetter is implemented by resources that record when they were last indexed.
type LastIndexedSetter interface {
	SetLastIndexed(t time.Time)
}

// Resolver turns the part of an identifier after "prefix:" into a Resource.
// A nil Resource with a nil error means "not found".
type Resolver interface {
	Resolve(ctx context.Context, remainder string) (Resource, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, remainder string) (Resource, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(ctx context.Context, remainder string) (Resource, error) {
	return f(ctx, remainder)
}

// Preprocessor converts a resource into its indexable document.
// Returning a nil Document with a nil error skips the item (e.g. unsupported content type).
type Preprocessor interface {
	Preprocess(ctx context.Context, id string, r Resource) (Document, error)
}

// PreprocessorFunc adapts a function to the Preprocessor interface.
type PreprocessorFunc func(ctx context.Context, id string, r Resource) (Document, error)

// Preprocess implements Preprocessor.
func (f PreprocessorFunc) Preprocess(ctx context.Context, id string, r Resource) (Document, error) {
	return f(ctx, id, r)
}

// passthroughPreprocessor indexes every resource with an empty document.
type passthroughPreprocessor struct{}

func (passthroughPreprocessor) Preprocess(context.Context, string, Resource) (Document, error) {
	return Document{}, nil
}

// Engine is the index-maintenance hook set implemented by the concrete index.
// The service never calls an Engine concurrently: every call happens under the commit lock.
type Engine interface {
	// Index writes a preprocessed document.
	Index(ctx context.Context, id string, r Resource, doc Document) error
	// DeleteDocument removes the document for id.
	DeleteDocument(ctx context.Context, id string) error
	// Commit durably flushes pending writes.
	Commit(ctx context.Context) error
	// DeleteContainer removes every document belonging to a container.
	DeleteContainer(ctx context.Context, containerID string) error
	// Clear removes every document.
	Clear(ctx context.Context) error
	// Shutdown releases the engine. It is the last call the service makes.
	Shutdown(ctx context.Context) error
}

// Crawler discovers paths and feeds them back into the service.
type Crawler interface {
	AddPathToCrawl(path string)
	StartContinuous(path string)
}

// IdleHook runs on the run stage each time the run queue drains.
type IdleHook interface {
	OnIdle(ctx context.Context) error
}

// IdleHookFunc adapts a function to the IdleHook interface.
type IdleHookFunc func(ctx context.Context) error

// OnIdle implements IdleHook.
func (f IdleHookFunc) OnIdle(ctx context.Context) error { return f(ctx) }

// Participant is one (container, participant id) observation.
type Participant struct {
	Container     string
	ParticipantID string
}

// ParticipantSink persists participant observations in bulk.
type ParticipantSink interface {
	Upsert(ctx context.Context, participants []Participant) error
}
