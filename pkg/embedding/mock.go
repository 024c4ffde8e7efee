package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/theapemachine/memoria/pkg/utils"
)

/*
Mock embeds text as a normalised bag of hashed words. It needs no network,
is deterministic, and texts sharing words come out similar, which is enough
for tests and offline use.
*/
type Mock struct {
	dimension int
}

func NewMock(dimension int) *Mock {
	if dimension <= 0 {
		dimension = 64
	}

	return &Mock{dimension: dimension}
}

func (m *Mock) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Provider: "mock", Model: m.Model(), Err: err}
	}

	vector := make([]float32, m.dimension)

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	for _, word := range words {
		h := fnv.New32a()
		h.Write([]byte(word))
		vector[h.Sum32()%uint32(m.dimension)]++
	}

	if !utils.Normalize(vector) {
		vector[0] = 1
	}

	return vector, nil
}

func (m *Mock) Dimension() int {
	return m.dimension
}

func (m *Mock) Model() string {
	return "mock"
}
