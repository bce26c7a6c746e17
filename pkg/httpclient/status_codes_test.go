package httpclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatusCodes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains []int
		excludes []int
		wantErr  bool
		wantNil  bool
	}{
		{
			name:    "empty string",
			input:   "",
			wantNil: true,
		},
		{
			name:     "single code",
			input:    "200",
			contains: []int{200},
			excludes: []int{201, 404},
		},
		{
			name:     "multiple codes",
			input:    "200,404",
			contains: []int{200, 404},
			excludes: []int{201, 500},
		},
		{
			name:     "range",
			input:    "200-299",
			contains: []int{200, 250, 299},
			excludes: []int{199, 300},
		},
		{
			name:     "mixed range and code",
			input:    "200-299,500",
			contains: []int{200, 299, 500},
			excludes: []int{300, 501},
		},
		{
			name:     "whitespace tolerated",
			input:    " 200 - 299 , 500 ",
			contains: []int{250, 500},
		},
		{
			name:    "invalid range order",
			input:   "299-200",
			wantErr: true,
		},
		{
			name:    "code out of bounds",
			input:   "99",
			wantErr: true,
		},
		{
			name:    "range out of bounds",
			input:   "200-700",
			wantErr: true,
		},
		{
			name:    "not a number",
			input:   "abc",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := ParseStatusCodes(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, set)
				return
			}
			for _, code := range tt.contains {
				assert.True(t, set.Contains(code), "expected set to contain %d", code)
			}
			for _, code := range tt.excludes {
				assert.False(t, set.Contains(code), "expected set to exclude %d", code)
			}
		})
	}
}

func TestStatusCodeSet_NilSafety(t *testing.T) {
	var set *StatusCodeSet

	assert.True(t, set.IsEmpty())
	assert.False(t, set.Contains(200))
	assert.Equal(t, "", set.String())
}

func TestStatusCodesFromSlice(t *testing.T) {
	assert.Nil(t, StatusCodesFromSlice(nil))

	set := StatusCodesFromSlice([]int{200, 404})
	assert.True(t, set.Contains(200))
	assert.True(t, set.Contains(404))
	assert.False(t, set.Contains(500))
}

func TestStatusCodeSet_AddAndString(t *testing.T) {
	set := NewStatusCodeSet()
	set.AddRange(200, 299)
	set.Add(500)

	assert.True(t, set.Contains(204))
	assert.True(t, set.Contains(500))

	s := set.String()
	assert.Contains(t, s, "200-299")
	assert.Contains(t, s, "500")
}

func TestMustParseStatusCodes_PanicsOnError(t *testing.T) {
	assert.Panics(t, func() {
		MustParseStatusCodes("bogus")
	})

	assert.NotPanics(t, func() {
		set := MustParseStatusCodes("200-299,500")
		assert.True(t, set.Contains(500))
	})
}
