package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTags(t *testing.T) {
	t.Parallel()

	r := testResolver(t)

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "aliases fold and casing drops",
			in:   []string{"Golang", "Back-End", "React.JS"},
			want: []string{"go", "backend", "react"},
		},
		{
			name: "duplicates collapse to first seen",
			in:   []string{"nodejs", "Node JS", "node", "python"},
			want: []string{"node.js", "python"},
		},
		{
			name: "empties and whitespace drop",
			in:   []string{"", "   ", "k8s"},
			want: []string{"kubernetes"},
		},
		{
			name: "unknown tags pass through lower-cased",
			in:   []string{"Terraform", "gRPC"},
			want: []string{"terraform", "grpc"},
		},
		{
			name: "inner whitespace collapses",
			in:   []string{"machine   learning"},
			want: []string{"machine learning"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, NormalizeTags(r, tc.in))
		})
	}
}

func TestNormalizeTags_Idempotent(t *testing.T) {
	t.Parallel()

	r := testResolver(t)
	once := NormalizeTags(r, []string{"ML", "back end", "vuejs"})
	assert.Equal(t, once, NormalizeTags(r, once))
}
