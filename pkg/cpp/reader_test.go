package cpp

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_ReconstructsText(t *testing.T) {
	pp, _ := newTestPP("#define GREETING \"hi\"\nsay(GREETING);\n")
	r := NewReader(pp)
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "say(\"hi\");", normalize(string(out)))
}

func TestReader_SmallBuffers(t *testing.T) {
	pp, _ := newTestPP("abcdef ghijkl\n")
	r := NewReader(pp)
	defer r.Close()

	var out []byte
	buf := make([]byte, 3)
	for {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, "abcdef ghijkl\n", string(out))
}

func TestReader_ErrorWithoutListener(t *testing.T) {
	pp := NewPreprocessor()
	pp.AddInput(NewStringLexerSource("#if 1/0\n#endif\n"))
	r := NewReader(pp)
	defer r.Close()
	_, err := io.ReadAll(r)
	assert.Error(t, err)
}
