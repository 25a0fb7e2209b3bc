package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dunamismax/pixelcache/internal/storage"
	"github.com/dunamismax/pixelcache/internal/style"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// BlobStore reads and writes whole objects. Get returns an error wrapping
// storage.ErrNotFound when the key is absent.
type BlobStore interface {
	Get(ctx context.Context, bucket, key string) (storage.Object, error)
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
}

type Config struct {
	OriginBucket string
	CacheBucket  string
	OriginPrefix string
	CachePrefix  string
}

type Pipeline struct {
	cfg         Config
	store       BlobStore
	transformer Transformer
	logger      zerolog.Logger
	tracer      trace.Tracer
}

type Option func(*Pipeline)

func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(p *Pipeline) {
		p.tracer = tracer
	}
}

func New(cfg Config, store BlobStore, transformer Transformer, opts ...Option) (*Pipeline, error) {
	if strings.TrimSpace(cfg.OriginBucket) == "" {
		return nil, errors.New("origin bucket is required")
	}
	if strings.TrimSpace(cfg.CacheBucket) == "" {
		return nil, errors.New("cache bucket is required")
	}
	if store == nil {
		return nil, errors.New("blob store is required")
	}
	if transformer == nil {
		return nil, errors.New("transformer is required")
	}

	p := &Pipeline{
		cfg:         cfg,
		store:       store,
		transformer: transformer,
		logger:      zerolog.Nop(),
		tracer:      otel.Tracer("pixelcache/pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// CacheKey is the cache bucket key holding the result for req.
func (p *Pipeline) CacheKey(req Request) string {
	return p.cfg.CachePrefix + req.Filename + "_" + req.Spec.CacheKeySuffix()
}

func (p *Pipeline) OriginKey(req Request) string {
	return p.cfg.OriginPrefix + req.Filename
}

// run carries the state of one request between stages.
type run struct {
	req      Request
	cacheKey string
	source   storage.Object
	result   []byte
	logger   zerolog.Logger
}

// stage performs one step. It returns either the next stage or a terminal
// outcome, never both.
type stage func(ctx context.Context, r *run) (stage, *Outcome)

// Run drives req through the stages until one terminates it. External calls
// are attempted once; their errors are folded into the returned Outcome.
func (p *Pipeline) Run(ctx context.Context, req Request) Outcome {
	startedAt := time.Now()
	r := &run{
		req:      req,
		cacheKey: p.CacheKey(req),
		logger: p.logger.With().
			Str("filename", req.Filename).
			Str("style", req.Spec.CacheKeySuffix()).
			Logger(),
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("image.filename", req.Filename),
		attribute.String("image.style", req.Spec.CacheKeySuffix()),
		attribute.String("cache.key", r.cacheKey),
	))
	defer span.End()

	var out *Outcome
	for next := stage(p.lookupCache); out == nil; {
		next, out = next(ctx, r)
	}
	out.Key = r.cacheKey

	span.SetAttributes(attribute.String("pipeline.outcome", out.Kind.String()))
	if out.Success() {
		span.SetStatus(codes.Ok, out.Kind.String())
		r.logger.Info().
			Str("outcome", out.Kind.String()).
			Int("bytes", len(out.Data)).
			Dur("duration", time.Since(startedAt)).
			Msg("request served")
	} else {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, out.Kind.String())
		level := zerolog.ErrorLevel
		if out.Kind == KindNotFound || out.Kind == KindDeleted {
			level = zerolog.WarnLevel
		}
		r.logger.WithLevel(level).
			Err(out.Err).
			Str("outcome", out.Kind.String()).
			Dur("duration", time.Since(startedAt)).
			Msg("request failed")
	}
	return *out
}

func (p *Pipeline) lookupCache(ctx context.Context, r *run) (stage, *Outcome) {
	obj, err := p.store.Get(ctx, p.cfg.CacheBucket, r.cacheKey)
	switch {
	case err == nil:
		return nil, &Outcome{
			Kind:        KindCacheHit,
			Data:        obj.Data,
			ContentType: contentTypeOf(obj),
		}
	case errors.Is(err, storage.ErrNotFound):
	case ctx.Err() != nil:
		return nil, fail(ctx, KindCanceled, fmt.Errorf("cache lookup: %w", err))
	default:
		r.logger.Warn().Err(err).Str("key", r.cacheKey).Msg("cache lookup failed, treating as miss")
	}
	return p.fetchOrigin, nil
}

func (p *Pipeline) fetchOrigin(ctx context.Context, r *run) (stage, *Outcome) {
	obj, err := p.store.Get(ctx, p.cfg.OriginBucket, p.OriginKey(r.req))
	if err != nil {
		err = fmt.Errorf("origin fetch: %w", err)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fail(ctx, KindNotFound, err)
		}
		return nil, fail(ctx, KindFetchFailed, err)
	}
	if obj.Deleted() {
		return nil, fail(ctx, KindDeleted, fmt.Errorf("origin %s is marked deleted", p.OriginKey(r.req)))
	}

	r.source = obj
	return p.validate, nil
}

func (p *Pipeline) validate(_ context.Context, r *run) (stage, *Outcome) {
	if !r.req.Spec.Valid() {
		return p.storeFull, nil
	}
	return p.transform, nil
}

func (p *Pipeline) storeFull(ctx context.Context, r *run) (stage, *Outcome) {
	contentType := contentTypeOf(r.source)
	if err := p.store.Put(ctx, p.cfg.CacheBucket, r.cacheKey, r.source.Data, contentType); err != nil {
		return nil, fail(ctx, KindUploadFailed, fmt.Errorf("cache store: %w", err))
	}
	return nil, &Outcome{
		Kind:        KindPassThrough,
		Data:        r.source.Data,
		ContentType: contentType,
	}
}

func (p *Pipeline) transform(ctx context.Context, r *run) (stage, *Outcome) {
	spec := r.req.Spec

	if spec.KeepAspect() {
		data, err := p.transformer.Resize(ctx, r.source.Data, spec.Width(), spec.Height(), spec.Format())
		if err != nil {
			return nil, fail(ctx, KindResizeFailed, fmt.Errorf("resize: %w", err))
		}
		r.result = data
		return p.storeResult, nil
	}

	data, err := p.composite(ctx, r.source.Data, spec)
	if err != nil {
		return nil, fail(ctx, KindConvertFailed, err)
	}
	r.result = data
	return p.storeResult, nil
}

// composite resizes src into the target box and centers it on a canvas of the
// exact target size.
func (p *Pipeline) composite(ctx context.Context, src []byte, spec style.Spec) ([]byte, error) {
	srcWidth, srcHeight, err := p.transformer.Identify(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("identify: %w", err)
	}

	width, height := style.Resolve(spec, srcWidth, srcHeight)
	resized, err := p.transformer.Resize(ctx, src, width, height, spec.Format())
	if err != nil {
		return nil, fmt.Errorf("resize to %dx%d: %w", width, height, err)
	}

	canvas, err := p.transformer.MakeCanvas(ctx, spec.Width(), spec.Height(), spec.Background(), spec.Format())
	if err != nil {
		return nil, fmt.Errorf("make canvas: %w", err)
	}

	out, err := p.transformer.Composite(ctx, canvas, resized, GravityCenter)
	if err != nil {
		return nil, fmt.Errorf("composite: %w", err)
	}
	return out, nil
}

func (p *Pipeline) storeResult(ctx context.Context, r *run) (stage, *Outcome) {
	contentType := r.req.Spec.Format().ContentType()
	if err := p.store.Put(ctx, p.cfg.CacheBucket, r.cacheKey, r.result, contentType); err != nil {
		return nil, fail(ctx, KindUploadFailed, fmt.Errorf("cache store: %w", err))
	}
	return nil, &Outcome{
		Kind:        KindFreshResult,
		Data:        r.result,
		ContentType: contentType,
	}
}

// fail builds a failure outcome. A canceled context overrides kind so callers
// can tell aborted requests from broken collaborators.
func fail(ctx context.Context, kind Kind, err error) *Outcome {
	if ctx.Err() != nil {
		kind = KindCanceled
	}
	return &Outcome{Kind: kind, Err: err}
}

func contentTypeOf(obj storage.Object) string {
	if obj.ContentType != "" {
		return obj.ContentType
	}
	return http.DetectContentType(obj.Data)
}
