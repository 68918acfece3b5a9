package main

import (
	"testing"

	"feedback-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilters(t *testing.T) {
	got, err := parseFilters([]string{"Department=CSE", " Department = ECE ", "Name of Faculty=Dr. Rao"})
	require.NoError(t, err)
	assert.Equal(t, models.FilterState{
		"Department":      {"CSE", "ECE"},
		"Name of Faculty": {"Dr. Rao"},
	}, got)

	for _, bad := range []string{"Department", "=CSE", "Department="} {
		_, err := parseFilters([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestSample(t *testing.T) {
	assert.Equal(t, "a, b", sample([]string{"a", "b"}, 5))
	assert.Equal(t, "a, b, ...", sample([]string{"a", "b", "c"}, 2))
}
