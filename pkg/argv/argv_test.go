package argv

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeQuotedWhitespace(t *testing.T) {
	got := Tokenize(`-Dfoo=bar -Dbaz="a b c"`)
	assert.Equal(t, []string{"-Dfoo=bar", `-Dbaz="a b c"`}, got)
}

func TestTokenizeJSONArray(t *testing.T) {
	got := Tokenize(`["x","y z"]`)
	assert.Equal(t, []string{"x", "y z"}, got)
}

func TestTokenizeEmptyTokensDiscarded(t *testing.T) {
	got := Tokenize("  -Dfoo=bar    -Dbaz=qux  ")
	assert.Equal(t, []string{"-Dfoo=bar", "-Dbaz=qux"}, got)
}

func TestTokenizeEmptyString(t *testing.T) {
	assert.Empty(t, Tokenize(""))
	assert.Empty(t, Tokenize("   "))
}

func TestTokenizeRoundTripNoQuotesOrSpaces(t *testing.T) {
	argvIn := []string{"-Dfoo=bar", "-Dbaz=qux", "internal", "peon"}
	joined := ""
	for i, a := range argvIn {
		if i > 0 {
			joined += " "
		}
		joined += a
	}
	assert.Equal(t, argvIn, Tokenize(joined))
}

func TestTokenizeRoundTripJSONEncode(t *testing.T) {
	argvIn := []string{"x", "y z", `has"quote`, ""}
	b, err := json.Marshal(argvIn)
	require.NoError(t, err)

	got := Tokenize(string(b))
	assert.Equal(t, argvIn, got)
}

func TestTokenizeRetainsQuoteCharacters(t *testing.T) {
	got := Tokenize(`"quoted value"`)
	require.Len(t, got, 1)
	assert.Equal(t, `"quoted value"`, got[0])
}
