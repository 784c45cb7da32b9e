package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBracketDepth(t *testing.T) {
	tests := []struct {
		src  string
		want int
	}{
		{"1 + 2", 0},
		{"function f() {", 1},
		{"function f() {\n  return [1, (2", 3},
		{"var s = '{[(';", 0},
		{`var s = "\"{";`, 0},
		{"// {\n", 0},
		{"/* { */ {", 1},
		{"/* unterminated", 1},
		{"})", -2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, bracketDepth(tt.src), tt.src)
	}
}
