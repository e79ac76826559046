package embedding_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"

	"github.com/metroplan-lab/civitas/pkg/domain/types"
	"github.com/metroplan-lab/civitas/pkg/service/embedding"
)

type mockLLMClient struct {
	generateEmbeddingFn func(ctx context.Context, dimension int, input []string) ([][]float64, error)
}

func (m *mockLLMClient) NewSession(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
	return nil, nil
}

func (m *mockLLMClient) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	if m.generateEmbeddingFn != nil {
		return m.generateEmbeddingFn(ctx, dimension, input)
	}
	vec := make([]float64, dimension)
	for i := range vec {
		vec[i] = 0.5
	}
	return [][]float64{vec}, nil
}

func TestEmbed(t *testing.T) {
	t.Run("converts provider vector to float32", func(t *testing.T) {
		e := embedding.New(&mockLLMClient{}, 8)
		vec, err := e.Embed(context.Background(), "zoning variance request")
		gt.NoError(t, err)
		gt.Array(t, vec).Length(8)
		gt.Value(t, vec[0]).Equal(0.5)
	})

	t.Run("rejects empty input", func(t *testing.T) {
		e := embedding.New(&mockLLMClient{}, 8)
		_, err := e.Embed(context.Background(), "")
		gt.Error(t, err)
		gt.True(t, errors.Is(err, types.ErrInvalidArgument))
	})

	t.Run("wraps provider failure as embedding failure", func(t *testing.T) {
		client := &mockLLMClient{
			generateEmbeddingFn: func(ctx context.Context, dimension int, input []string) ([][]float64, error) {
				return nil, errors.New("quota exceeded")
			},
		}
		e := embedding.New(client, 8)
		_, err := e.Embed(context.Background(), "bike lane budget")
		gt.Error(t, err)
		gt.True(t, errors.Is(err, types.ErrEmbeddingFailure))
	})

	t.Run("rejects dimension mismatch from provider", func(t *testing.T) {
		client := &mockLLMClient{
			generateEmbeddingFn: func(ctx context.Context, dimension int, input []string) ([][]float64, error) {
				return [][]float64{{0.1, 0.2}}, nil
			},
		}
		e := embedding.New(client, 8)
		_, err := e.Embed(context.Background(), "park maintenance")
		gt.Error(t, err)
		gt.True(t, errors.Is(err, types.ErrEmbeddingFailure))
	})

	t.Run("rejects empty provider result", func(t *testing.T) {
		client := &mockLLMClient{
			generateEmbeddingFn: func(ctx context.Context, dimension int, input []string) ([][]float64, error) {
				return [][]float64{}, nil
			},
		}
		e := embedding.New(client, 8)
		_, err := e.Embed(context.Background(), "transit schedule")
		gt.Error(t, err)
		gt.True(t, errors.Is(err, types.ErrEmbeddingFailure))
	})
}

func TestLocalEmbedder(t *testing.T) {
	t.Run("deterministic for identical input", func(t *testing.T) {
		e := embedding.NewLocal(32)
		a, err := e.Embed(context.Background(), "flood zone map update")
		gt.NoError(t, err)
		b, err := e.Embed(context.Background(), "flood zone map update")
		gt.NoError(t, err)
		gt.Value(t, a).Equal(b)
	})

	t.Run("shared tokens score higher than unrelated text", func(t *testing.T) {
		e := embedding.NewLocal(64)
		base, err := e.Embed(context.Background(), "bus route frequency downtown")
		gt.NoError(t, err)
		related, err := e.Embed(context.Background(), "bus route schedule downtown")
		gt.NoError(t, err)
		unrelated, err := e.Embed(context.Background(), "sewer pipe replacement estimate")
		gt.NoError(t, err)

		gt.True(t, dot(base, related) > dot(base, unrelated))
	})

	t.Run("output is unit length", func(t *testing.T) {
		e := embedding.NewLocal(16)
		vec, err := e.Embed(context.Background(), "permit application status")
		gt.NoError(t, err)

		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		gt.True(t, norm > 0.999 && norm < 1.001)
	})
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
