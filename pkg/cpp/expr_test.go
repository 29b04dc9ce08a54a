package cpp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpr_Arithmetic(t *testing.T) {
	tests := []struct {
		expr string
		want int64
	}{
		{"0", 0},
		{"1", 1},
		{"1+2*3", 7},
		{"(1+2)*3", 9},
		{"10/3", 3},
		{"10%3", 1},
		{"7-10", -3},
		{"-3", -3},
		{"~0", -1},
		{"!0", 1},
		{"!5", 0},
		{"1<<4", 16},
		{"256>>4", 16},
		{"1<2", 1},
		{"2<=2", 1},
		{"3>4", 0},
		{"4>=4", 1},
		{"5==5", 1},
		{"5!=5", 0},
		{"6&3", 2},
		{"6|3", 7},
		{"6^3", 5},
		{"1&&0", 0},
		{"1&&2", 1},
		{"0||0", 0},
		{"0||2", 1},
		{"1 ? 2 : 3", 2},
		{"0 ? 2 : 3", 3},
		{"0x10", 16},
		{"010", 8},
		{"'A'", 65},
		{"'\\n'", 10},
		{"1 + 2 == 3 ? 10 : 20", 10},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			pp, _ := newTestPP("")
			defer pp.Close()
			got, err := pp.Expr(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpr_UndefinedIdentifierIsZero(t *testing.T) {
	pp, _ := newTestPP("")
	defer pp.Close()
	got, err := pp.Expr("WHAT + 1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestExpr_MacroExpansion(t *testing.T) {
	pp, _ := newTestPP("")
	defer pp.Close()
	require.NoError(t, pp.AddMacroDefinition("FOUR", "4"))

	got, err := pp.Expr("FOUR * FOUR")
	require.NoError(t, err)
	assert.Equal(t, int64(16), got)
}

func TestExpr_DivisionByZeroWithoutListener(t *testing.T) {
	pp := NewPreprocessor()
	defer pp.Close()
	_, err := pp.Expr("1/0")
	assert.Error(t, err)
}

func TestExpr_DivisionByZeroWithListener(t *testing.T) {
	pp, listener := newTestPP("")
	defer pp.Close()
	got, err := pp.Expr("1/0")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
	assert.Equal(t, 1, listener.Errors())
}

func TestExpr_MissingParen(t *testing.T) {
	pp, listener := newTestPP("")
	defer pp.Close()
	_, err := pp.Expr("(1+2")
	require.NoError(t, err)
	assert.Equal(t, 1, listener.Errors())
}

func TestExpr_MissingColon(t *testing.T) {
	pp, listener := newTestPP("")
	defer pp.Close()
	_, err := pp.Expr("1 ? 2")
	require.NoError(t, err)
	assert.Equal(t, 1, listener.Errors())
}
