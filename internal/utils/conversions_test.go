package utils_test

import (
	"testing"

	"github.com/jrsteele09/go-opportuci/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestToStringSlice(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []string
	}{
		{name: "nil", in: nil, want: nil},
		{name: "string", in: "required", want: []string{"required"}},
		{name: "list", in: []any{"a", "b"}, want: []string{"a", "b"}},
		{name: "nested list", in: []any{"a", []any{"b", "c"}}, want: []string{"a", "b", "c"}},
		{name: "object", in: map[string]any{"b": "two", "a": []any{"one"}}, want: []string{"one", "two"}},
		{name: "number", in: 42.0, want: []string{"42"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, utils.ToStringSlice(tt.in))
		})
	}
}

func TestPtrValue(t *testing.T) {
	p := utils.Ptr("x")
	require.Equal(t, "x", utils.Value(p))

	var nilPtr *int
	require.Equal(t, 0, utils.Value(nilPtr))
}
