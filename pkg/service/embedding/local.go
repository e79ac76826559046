package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/metroplan-lab/civitas/pkg/domain/interfaces"
	"github.com/metroplan-lab/civitas/pkg/domain/types"
)

// localEmbedder is a deterministic token-hash embedder. It has no semantic
// quality but preserves the property that texts sharing tokens score higher
// than unrelated texts, which is enough for tests and offline development.
type localEmbedder struct {
	dimension int
}

var _ interfaces.Embedder = &localEmbedder{}

// NewLocal creates a deterministic embedder with the given dimension.
func NewLocal(dimension int) interfaces.Embedder {
	return &localEmbedder{dimension: dimension}
}

func (e *localEmbedder) Dimensions() int {
	return e.dimension
}

func (e *localEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, goerr.Wrap(types.ErrInvalidArgument, "embedding input must not be empty")
	}

	vec := make([]float32, e.dimension)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[int(h.Sum32())%e.dimension]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}
