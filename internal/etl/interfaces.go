package etl

import (
	"context"
	"encoding/json"
)

// Payload is the decoded API response: one raw JSON object per brewery.
// Records are kept as raw JSON so re-serializing preserves their key order.
type Payload []json.RawMessage

type Extractor interface {
	Fetch(ctx context.Context) (*FetchResult, error)
}

type Loader interface {
	Load(ctx context.Context, payload Payload) (*LoadResult, error)
}

type Transformer interface {
	Transform(ctx context.Context) error
}
