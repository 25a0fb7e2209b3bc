package pipeline

// Kind tags how a pipeline run terminated.
type Kind int

const (
	KindCacheHit Kind = iota + 1
	KindFreshResult
	KindPassThrough
	KindNotFound
	KindDeleted
	KindFetchFailed
	KindUploadFailed
	KindResizeFailed
	KindConvertFailed
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindCacheHit:
		return "cache_hit"
	case KindFreshResult:
		return "fresh_result"
	case KindPassThrough:
		return "pass_through"
	case KindNotFound:
		return "not_found"
	case KindDeleted:
		return "deleted"
	case KindFetchFailed:
		return "fetch_failed"
	case KindUploadFailed:
		return "upload_failed"
	case KindResizeFailed:
		return "resize_failed"
	case KindConvertFailed:
		return "convert_failed"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Success reports whether the kind carries an image payload.
func (k Kind) Success() bool {
	return k == KindCacheHit || k == KindFreshResult || k == KindPassThrough
}

// Outcome is the single terminal result of a pipeline run. Data and
// ContentType are set for successful kinds only; Err is set for failures.
type Outcome struct {
	Kind        Kind
	Data        []byte
	ContentType string
	Key         string
	Err         error
}

func (o Outcome) Success() bool {
	return o.Kind.Success()
}
