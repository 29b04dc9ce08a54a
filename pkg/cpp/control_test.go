package cpp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControl_DeclinedIfPreservesDirectives(t *testing.T) {
	pp, _ := newTestPP("#if 0\nA\n#else\nB\n#endif\n")
	pp.SetControlListener(NewOnlyExpandMacrosInIfs())
	defer pp.Close()
	got := collectText(t, pp)
	assert.Equal(t, "#if 0 A #else B #endif", normalize(got))
	// Nesting is still tracked.
	assert.Equal(t, 1, pp.StateDepth())
}

func TestControl_OnlyExpandMacrosInIfs(t *testing.T) {
	input := "#define N 2\n#if N > 1\nA\n#endif\n"
	pp, _ := newTestPP(input)
	pp.SetControlListener(NewOnlyExpandMacrosInIfs())
	defer pp.Close()
	got := collectText(t, pp)
	assert.Equal(t, "#define N 2 #if 2 > 1 A #endif", normalize(got))
}

func TestControl_OnlyExpandKeepsDefinedOperand(t *testing.T) {
	input := "#define N 2\n#if defined(N) && N > 1\nA\n#endif\n"
	pp, _ := newTestPP(input)
	pp.SetControlListener(NewOnlyExpandMacrosInIfs())
	defer pp.Close()
	got := collectText(t, pp)
	assert.Equal(t, "#define N 2 #if defined(N) && 2 > 1 A #endif", normalize(got))
}

func TestControl_OnlyExpandKeepsIncludes(t *testing.T) {
	pp := NewPreprocessor()
	pp.SetListener(discardListener())
	pp.SetFileSystem(NewMemoryFileSystem(map[string]string{
		"/src/main.c": "#include \"a.h\"\nmain\n",
		"/src/a.h":    "alpha\n",
	}))
	pp.SetControlListener(NewOnlyExpandMacrosInIfs())
	require.NoError(t, pp.AddInputFile("/src/main.c"))
	defer pp.Close()
	got := collectText(t, pp)
	assert.Equal(t, "#include \"a.h\" main", normalize(got))
}

func TestControl_DeclinedDefineStillRecorded(t *testing.T) {
	// A kept #define is still tracked so later conditions evaluate.
	input := "#define FLAG 1\n#if FLAG\nyes\n#endif\n"
	pp, _ := newTestPP(input)
	pp.SetControlListener(NewOnlyExpandMacrosInIfs())
	defer pp.Close()
	got := collectText(t, pp)
	assert.Equal(t, "#define FLAG 1 #if 1 yes #endif", normalize(got))
	assert.True(t, pp.IsDefined("FLAG"))
}

func TestControl_ElifChainPreserved(t *testing.T) {
	input := "#if 0\nA\n#elif 1\nB\n#else\nC\n#endif\n"
	pp, _ := newTestPP(input)
	pp.SetControlListener(NewOnlyExpandMacrosInIfs())
	defer pp.Close()
	got := collectText(t, pp)
	assert.Equal(t, "#if 0 A #elif 1 B #else C #endif", normalize(got))
}

func TestControl_IfdefPreserved(t *testing.T) {
	input := "#ifdef FOO\nA\n#endif\n"
	pp, _ := newTestPP(input)
	pp.SetControlListener(NewOnlyExpandMacrosInIfs())
	defer pp.Close()
	got := collectText(t, pp)
	assert.Equal(t, "#ifdef FOO A #endif", normalize(got))
}

func TestControl_ReduceToExternalFeatures(t *testing.T) {
	input := `#define LOCAL 1
#if LOCAL
a
#endif
#ifdef FEAT
b
#endif
`
	pp, _ := newTestPP(input)
	pp.SetControlListener(NewReduceToExternalFeatures("FEAT"))
	defer pp.Close()
	got := collectText(t, pp)
	assert.Equal(t, "a #ifdef FEAT b #endif", normalize(got))
}

func TestControl_ReduceKeepsExternalDefine(t *testing.T) {
	input := "#define FEAT 1\nx\n"
	pp, _ := newTestPP(input)
	pp.SetControlListener(NewReduceToExternalFeatures("FEAT"))
	defer pp.Close()
	got := collectText(t, pp)
	assert.Equal(t, "#define FEAT 1 x", normalize(got))
}

func TestControl_ReduceResolvesLocalConditions(t *testing.T) {
	input := "#define LOCAL 0\n#if LOCAL\ndead\n#else\nlive\n#endif\n"
	pp, _ := newTestPP(input)
	pp.SetControlListener(NewReduceToExternalFeatures("FEAT"))
	defer pp.Close()
	got := collectText(t, pp)
	assert.Equal(t, "live", normalize(got))
}

// denyExpansion processes every directive but blocks every macro
// expansion, inside conditions as well.
type denyExpansion struct {
	OnlyExpandMacrosInIfs
}

func (denyExpansion) ProcessIf(condition []Token, source Source, kind IfKind) bool { return true }

func (denyExpansion) AddMacro(m *Macro, source Source) bool { return true }

func (denyExpansion) ExpandMacro(m *Macro, source Source, line, column int, inCondition bool) bool {
	return false
}

func TestControl_ExpandMacroVeto(t *testing.T) {
	input := "#define A 1\nA\n"
	pp, _ := newTestPP(input)
	pp.SetControlListener(&denyExpansion{})
	defer pp.Close()
	got := collectText(t, pp)
	assert.Equal(t, "A", normalize(got))
}
