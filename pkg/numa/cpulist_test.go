package numa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCPUList(t *testing.T) {
	tests := []struct {
		in   string
		want []int
	}{
		{"", nil},
		{"0", []int{0}},
		{"0-3", []int{0, 1, 2, 3}},
		{"0-1,8,10-11\n", []int{0, 1, 8, 10, 11}},
		{"3,1,2,1", []int{1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCPUList(tt.in)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCPUListInvalid(t *testing.T) {
	for _, in := range []string{"a", "3-1", "-1", "1-x"} {
		_, err := ParseCPUList(in)
		assert.Error(t, err, in)
	}
}

func TestFormatCPUList(t *testing.T) {
	assert.Equal(t, "", FormatCPUList(nil))
	assert.Equal(t, "4", FormatCPUList([]int{4}))
	assert.Equal(t, "0-3,8,10-11", FormatCPUList([]int{0, 1, 2, 3, 8, 10, 11}))
}

func TestCoresLabel(t *testing.T) {
	assert.Equal(t, "N/A", CoresLabel(nil))
	assert.Equal(t, "7", CoresLabel([]int{7}))
	assert.Equal(t, "3,67", CoresLabel([]int{3, 67}))
	assert.Equal(t, "0", CoresLabel([]int{0, 1, 2, 3}))
}
