package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dunamismax/pixelcache/internal/storage"
	"github.com/dunamismax/pixelcache/internal/style"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	originBucket = "origin"
	cacheBucket  = "cache"
)

func TestPipelineScenarios(t *testing.T) {
	t.Run("keep aspect resizes directly", func(t *testing.T) {
		h := newHarness(t, 800, 400)
		h.seedOrigin("cat.png", storage.Object{Data: []byte("source"), ContentType: "image/png"})

		out := h.run("cat.png/fit.200x.jpg.fff")

		require.Equal(t, KindFreshResult, out.Kind, out.Err)
		assert.Equal(t, []byte("resized"), out.Data)
		assert.Equal(t, "image/jpeg", out.ContentType)
		assert.Equal(t, "cat.png_fit.200x.jpg.fff", out.Key)
		assert.Equal(t, []string{"resize 200x0 jpg"}, h.transformer.calls)
		assert.Equal(t, []string{"cat.png_fit.200x.jpg.fff"}, h.store.Keys(cacheBucket))
	})

	t.Run("fill composites on canvas", func(t *testing.T) {
		h := newHarness(t, 800, 400)
		h.seedOrigin("cat.png", storage.Object{Data: []byte("source"), ContentType: "image/png"})

		out := h.run("cat.png/fill.200x100..000")

		require.Equal(t, KindFreshResult, out.Kind, out.Err)
		assert.Equal(t, []byte("composited"), out.Data)
		assert.Equal(t, []string{
			"identify",
			"resize 0x100 jpg",
			"canvas 200x100 000 jpg",
			"composite center",
		}, h.transformer.calls)

		cached, err := h.store.Get(context.Background(), cacheBucket, "cat.png_fill.200x100.jpg.000")
		require.NoError(t, err)
		assert.Equal(t, []byte("composited"), cached.Data)
		assert.Equal(t, "image/jpeg", cached.ContentType)
	})

	t.Run("portrait fit constrains height", func(t *testing.T) {
		h := newHarness(t, 300, 900)
		h.seedOrigin("tall.jpg", storage.Object{Data: []byte("source")})

		out := h.run("tall.jpg/fit.100x100.png")

		require.Equal(t, KindFreshResult, out.Kind, out.Err)
		assert.Equal(t, "image/png", out.ContentType)
		assert.Equal(t, "resize 0x100 png", h.transformer.calls[1])
		assert.Equal(t, "canvas 100x100 none png", h.transformer.calls[2])
	})

	t.Run("missing style token passes the original through", func(t *testing.T) {
		h := newHarness(t, 10, 10)
		h.seedOrigin("doc.gif", storage.Object{Data: []byte("original"), ContentType: "image/gif"})

		out := h.run("doc.gif")

		require.Equal(t, KindPassThrough, out.Kind, out.Err)
		assert.Equal(t, []byte("original"), out.Data)
		assert.Equal(t, "image/gif", out.ContentType)
		assert.Empty(t, h.transformer.calls)

		cached, err := h.store.Get(context.Background(), cacheBucket, "doc.gif_full")
		require.NoError(t, err)
		assert.Equal(t, []byte("original"), cached.Data)
		assert.Equal(t, "image/gif", cached.ContentType)
	})

	t.Run("invalid style token passes the original through", func(t *testing.T) {
		h := newHarness(t, 10, 10)
		h.seedOrigin("doc.gif", storage.Object{Data: []byte("original"), ContentType: "image/gif"})

		out := h.run("doc.gif/fit.5000x")

		require.Equal(t, KindPassThrough, out.Kind, out.Err)
		assert.Equal(t, "doc.gif_full", out.Key)
	})

	t.Run("cache hit skips origin and transformer", func(t *testing.T) {
		h := newHarness(t, 10, 10)
		require.NoError(t, h.store.PutObject(context.Background(), cacheBucket, "cat.png_fit.200x.jpg.none", storage.Object{
			Data:        []byte("cached"),
			ContentType: "image/jpeg",
		}))

		out := h.run("cat.png/FIT.200x")

		require.Equal(t, KindCacheHit, out.Kind, out.Err)
		assert.Equal(t, []byte("cached"), out.Data)
		assert.Equal(t, "image/jpeg", out.ContentType)
		assert.Empty(t, h.transformer.calls)
		assert.Equal(t, []string{"get cache/cat.png_fit.200x.jpg.none"}, h.store.ops)
	})

	t.Run("missing origin is not found", func(t *testing.T) {
		h := newHarness(t, 10, 10)

		out := h.run("ghost.png/fit.10x")

		assert.Equal(t, KindNotFound, out.Kind)
		assert.ErrorIs(t, out.Err, storage.ErrNotFound)
		assert.Empty(t, out.Data)
		assert.Empty(t, h.store.Keys(cacheBucket))
	})

	t.Run("deleted origin leaves the cache untouched", func(t *testing.T) {
		h := newHarness(t, 10, 10)
		h.seedOrigin("gone.png", storage.Object{
			Data:     []byte("source"),
			Metadata: map[string]string{"Deleted": "true"},
		})

		out := h.run("gone.png/fill.10x10")

		assert.Equal(t, KindDeleted, out.Kind)
		assert.Empty(t, h.transformer.calls)
		assert.Empty(t, h.store.Keys(cacheBucket))
	})

	t.Run("origin read error is a fetch failure", func(t *testing.T) {
		h := newHarness(t, 10, 10)
		h.store.getErr[originBucket] = errors.New("connection reset")

		out := h.run("cat.png/fit.10x")

		assert.Equal(t, KindFetchFailed, out.Kind)
	})

	t.Run("cache read error is treated as a miss", func(t *testing.T) {
		h := newHarness(t, 10, 10)
		h.seedOrigin("cat.png", storage.Object{Data: []byte("source")})
		h.store.getErr[cacheBucket] = errors.New("timeout")

		out := h.run("cat.png/fit.10x")

		assert.Equal(t, KindFreshResult, out.Kind)
	})

	t.Run("failed upload of the original", func(t *testing.T) {
		h := newHarness(t, 10, 10)
		h.seedOrigin("cat.png", storage.Object{Data: []byte("source")})
		h.store.putErr = errors.New("denied")

		out := h.run("cat.png")

		assert.Equal(t, KindUploadFailed, out.Kind)
		assert.Empty(t, out.Data)
	})

	t.Run("failed upload of the result", func(t *testing.T) {
		h := newHarness(t, 10, 10)
		h.seedOrigin("cat.png", storage.Object{Data: []byte("source")})
		h.store.putErr = errors.New("denied")

		out := h.run("cat.png/fill.10x10")

		assert.Equal(t, KindUploadFailed, out.Kind)
		assert.Len(t, h.transformer.calls, 4)
	})

	t.Run("keep aspect resize error", func(t *testing.T) {
		h := newHarness(t, 10, 10)
		h.seedOrigin("cat.png", storage.Object{Data: []byte("source")})
		h.transformer.failOn = "resize"

		out := h.run("cat.png/fit.x10")

		assert.Equal(t, KindResizeFailed, out.Kind)
		assert.Empty(t, h.store.Keys(cacheBucket))
	})

	for _, step := range []string{"identify", "resize", "canvas", "composite"} {
		t.Run("composite path "+step+" error", func(t *testing.T) {
			h := newHarness(t, 10, 10)
			h.seedOrigin("cat.png", storage.Object{Data: []byte("source")})
			h.transformer.failOn = step

			out := h.run("cat.png/fill.10x10")

			assert.Equal(t, KindConvertFailed, out.Kind)
			assert.ErrorIs(t, out.Err, errTransform)
			assert.Empty(t, h.store.Keys(cacheBucket))
		})
	}

	t.Run("canceled context", func(t *testing.T) {
		h := newHarness(t, 10, 10)
		h.seedOrigin("cat.png", storage.Object{Data: []byte("source")})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		req, err := ParsePath("cat.png/fit.10x")
		require.NoError(t, err)

		out := h.pipeline.Run(ctx, req)

		assert.Equal(t, KindCanceled, out.Kind)
		assert.ErrorIs(t, out.Err, context.Canceled)
	})
}

func TestPipelineKeysUsePrefixes(t *testing.T) {
	store := newRecordingStore()
	p, err := New(Config{
		OriginBucket: originBucket,
		CacheBucket:  cacheBucket,
		OriginPrefix: "uploads/",
		CachePrefix:  "resized/",
	}, store, &recordingTransformer{srcWidth: 10, srcHeight: 10})
	require.NoError(t, err)

	require.NoError(t, store.PutObject(context.Background(), originBucket, "uploads/a.png", storage.Object{Data: []byte("x")}))

	out := p.Run(context.Background(), NewRequest("a.png", "fit.5x"))

	require.Equal(t, KindFreshResult, out.Kind, out.Err)
	assert.Equal(t, "resized/a.png_fit.5x.jpg.none", out.Key)
	assert.Equal(t, []string{"resized/a.png_fit.5x.jpg.none"}, store.Keys(cacheBucket))
}

func TestNewValidatesCollaborators(t *testing.T) {
	cfg := Config{OriginBucket: originBucket, CacheBucket: cacheBucket}
	store := storage.NewMemoryStore()
	transformer := &recordingTransformer{}

	_, err := New(Config{CacheBucket: cacheBucket}, store, transformer)
	assert.Error(t, err)
	_, err = New(Config{OriginBucket: originBucket}, store, transformer)
	assert.Error(t, err)
	_, err = New(cfg, nil, transformer)
	assert.Error(t, err)
	_, err = New(cfg, store, nil)
	assert.Error(t, err)
	_, err = New(cfg, store, transformer)
	assert.NoError(t, err)
}

func TestKindSuccess(t *testing.T) {
	for _, k := range []Kind{KindCacheHit, KindFreshResult, KindPassThrough} {
		assert.True(t, k.Success(), k.String())
	}
	for _, k := range []Kind{KindNotFound, KindDeleted, KindFetchFailed, KindUploadFailed, KindResizeFailed, KindConvertFailed, KindCanceled} {
		assert.False(t, k.Success(), k.String())
	}
	assert.Equal(t, "unknown", Kind(0).String())
}

type harness struct {
	t           *testing.T
	store       *recordingStore
	transformer *recordingTransformer
	pipeline    *Pipeline
}

func newHarness(t *testing.T, srcWidth, srcHeight int) *harness {
	t.Helper()

	store := newRecordingStore()
	transformer := &recordingTransformer{srcWidth: srcWidth, srcHeight: srcHeight}
	p, err := New(Config{OriginBucket: originBucket, CacheBucket: cacheBucket}, store, transformer)
	require.NoError(t, err)

	return &harness{t: t, store: store, transformer: transformer, pipeline: p}
}

func (h *harness) seedOrigin(key string, obj storage.Object) {
	h.t.Helper()
	require.NoError(h.t, h.store.PutObject(context.Background(), originBucket, key, obj))
	h.store.ops = nil
}

func (h *harness) run(path string) Outcome {
	h.t.Helper()
	req, err := ParsePath(path)
	require.NoError(h.t, err)
	return h.pipeline.Run(context.Background(), req)
}

type recordingStore struct {
	*storage.MemoryStore
	ops    []string
	getErr map[string]error
	putErr error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		MemoryStore: storage.NewMemoryStore(),
		getErr:      make(map[string]error),
	}
}

func (s *recordingStore) Get(ctx context.Context, bucket, key string) (storage.Object, error) {
	s.ops = append(s.ops, "get "+bucket+"/"+key)
	if err := s.getErr[bucket]; err != nil {
		return storage.Object{}, err
	}
	return s.MemoryStore.Get(ctx, bucket, key)
}

func (s *recordingStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	s.ops = append(s.ops, "put "+bucket+"/"+key)
	if s.putErr != nil {
		return s.putErr
	}
	return s.MemoryStore.Put(ctx, bucket, key, data, contentType)
}

var errTransform = errors.New("transform failed")

type recordingTransformer struct {
	srcWidth  int
	srcHeight int
	failOn    string
	calls     []string
}

func (t *recordingTransformer) Identify(_ context.Context, _ []byte) (int, int, error) {
	t.calls = append(t.calls, "identify")
	if t.failOn == "identify" {
		return 0, 0, errTransform
	}
	return t.srcWidth, t.srcHeight, nil
}

func (t *recordingTransformer) Resize(_ context.Context, _ []byte, width, height int, format style.Format) ([]byte, error) {
	t.calls = append(t.calls, fmt.Sprintf("resize %dx%d %s", width, height, format))
	if t.failOn == "resize" {
		return nil, errTransform
	}
	return []byte("resized"), nil
}

func (t *recordingTransformer) MakeCanvas(_ context.Context, width, height int, background string, format style.Format) ([]byte, error) {
	t.calls = append(t.calls, fmt.Sprintf("canvas %dx%d %s %s", width, height, background, format))
	if t.failOn == "canvas" {
		return nil, errTransform
	}
	return []byte("canvas"), nil
}

func (t *recordingTransformer) Composite(_ context.Context, _, _ []byte, gravity Gravity) ([]byte, error) {
	t.calls = append(t.calls, "composite "+string(gravity))
	if t.failOn == "composite" {
		return nil, errTransform
	}
	return []byte("composited"), nil
}
