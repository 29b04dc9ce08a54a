package cpp

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestExpand_SelfRecursionGuard(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"direct", "#define X X\nX\n", "X"},
		{"functionLike", "#define F(x) F(x)\nF(1)\n", "F(1)"},
		{"mutual", "#define A B\n#define B A\nA\n", "A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalize(preprocessText(t, tt.input)))
		})
	}
}

func TestExpand_NestedInvocation(t *testing.T) {
	got := preprocessText(t, "#define SQ(x) ((x)*(x))\nSQ(SQ(2))\n")
	assert.Equal(t, "((((2)*(2)))*(((2)*(2))))", normalize(got))
}

func TestExpand_ZeroArgMacro(t *testing.T) {
	got := preprocessText(t, "#define M() ok\nM()\n")
	assert.Equal(t, "ok", normalize(got))
}

func TestExpand_FunctionLikeWithoutParens(t *testing.T) {
	// No parenthesis follows, so this is not an invocation.
	got := preprocessText(t, "#define F(x) (x)\nF;\n")
	assert.Equal(t, "F;", normalize(got))
}

func TestExpand_InvocationAcrossLines(t *testing.T) {
	got := preprocessText(t, "#define ADD(a,b) (a+b)\nADD(1,\n2)\n")
	assert.Equal(t, "(1+2)", normalize(got))
}

func TestExpand_VariadicEmptyTrailing(t *testing.T) {
	got := preprocessText(t, "#define LOG(fmt, ...) log(fmt, __VA_ARGS__)\nLOG(\"x\")\n")
	assert.Equal(t, "log(\"x\", )", normalize(got))
}

func TestExpand_VariadicNamed(t *testing.T) {
	got := preprocessText(t, "#define V(head, ...) g(head; __VA_ARGS__)\nV(1, 2, 3)\n")
	assert.Equal(t, "g(1; 2, 3)", normalize(got))
}

func TestExpand_ArityMismatch(t *testing.T) {
	pp, listener := newTestPP("#define F(a,b) a\nF(1)\n")
	defer pp.Close()
	got := collectText(t, pp)
	assert.Equal(t, 1, listener.Errors())
	// The macro name is emitted and the arguments are chewed.
	assert.Equal(t, "F", normalize(got))
}

func TestExpand_ArgumentPreExpansion(t *testing.T) {
	got := preprocessText(t, "#define ONE 1\n#define ID(x) x\nID(ONE)\n")
	assert.Equal(t, "1", normalize(got))
}

func TestExpand_StringifyUsesRawArgument(t *testing.T) {
	got := preprocessText(t, "#define ONE 1\n#define STR(x) #x\nSTR(ONE)\n")
	assert.Equal(t, "\"ONE\"", normalize(got))
}

func TestExpand_StringifyEscapes(t *testing.T) {
	got := preprocessText(t, "#define STR(x) #x\nSTR(\"a\")\n")
	assert.Equal(t, `"\"a\""`, normalize(got))
}

func TestExpand_StringifyCollapsesWhitespace(t *testing.T) {
	got := preprocessText(t, "#define STR(x) #x\nSTR(a   +    b)\n")
	assert.Equal(t, `"a + b"`, normalize(got))
}

func TestExpand_PasteUsesRawArgument(t *testing.T) {
	got := preprocessText(t, "#define ONE 1\n#define GLUE(a,b) a##b\nGLUE(ONE, 2)\n")
	assert.Equal(t, "ONE2", normalize(got))
}

func TestExpand_PasteChain(t *testing.T) {
	got := preprocessText(t, "#define CAT3(a,b,c) a##b##c\nCAT3(x,y,z)\n")
	assert.Equal(t, "xyz", normalize(got))
}

func TestExpand_PasteFormsSingleToken(t *testing.T) {
	pp, _ := newTestPP("#define CAT(a,b) a##b\nCAT(12,34)\n")
	defer pp.Close()

	var tokens []Token
	for {
		tok, err := pp.Token()
		if err != nil {
			t.Fatal(err)
		}
		if tok.Type == EOF {
			break
		}
		if tok.Type != NL && tok.Type != WHITESPACE {
			tokens = append(tokens, tok)
		}
	}
	if len(tokens) != 1 {
		t.Fatalf("expected one token, got %v", tokens)
	}
	assert.Equal(t, NUMBER, tokens[0].Type)
	assert.Equal(t, "1234", tokens[0].Text)
}

func TestExpand_WhitespaceInArguments(t *testing.T) {
	got := preprocessText(t, "#define ID(x) x\nID(  a   b  )\n")
	// Leading and trailing whitespace is stripped, inner runs collapse.
	assert.Equal(t, "a b", normalize(got))
}

func TestExpand_NestedParensInArgument(t *testing.T) {
	got := preprocessText(t, "#define ID(x) x\nID(f(a,b))\n")
	assert.Equal(t, "f(a,b)", normalize(got))
}

func TestExpand_TokenStream(t *testing.T) {
	pp, _ := newTestPP("#define PAIR 1, 2\nPAIR\n")
	defer pp.Close()

	var types []TokenType
	for {
		tok, err := pp.Token()
		if err != nil {
			t.Fatal(err)
		}
		if tok.Type == EOF {
			break
		}
		if tok.Type == NL || tok.Type == WHITESPACE {
			continue
		}
		types = append(types, tok.Type)
	}
	want := []TokenType{NUMBER, TokenType(','), NUMBER}
	if diff := cmp.Diff(want, types); diff != "" {
		t.Errorf("token types mismatch (-want +got):\n%s", diff)
	}
}
