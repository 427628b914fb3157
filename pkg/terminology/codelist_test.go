package terminology

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodelistExactMembership(t *testing.T) {
	cl := MustCodelist("diabetes", SystemSNOMEDCT, "73211009", "44054006")

	assert.True(t, cl.Contains("44054006"))
	assert.False(t, cl.Contains("4405400"))
	assert.False(t, cl.Contains("440540060"))
	assert.False(t, cl.Contains(" 44054006"))
}

func TestCodelistOrderAndDuplicatesIrrelevant(t *testing.T) {
	a := MustCodelist("a", SystemSNOMEDCT, "73211009", "44054006")
	b := MustCodelist("b", SystemSNOMEDCT, "44054006", "73211009", "44054006")

	assert.Equal(t, a.Codes(), b.Codes())
	assert.Equal(t, 2, b.Len())
}

func TestNewCodelistRejectsMalformedCodes(t *testing.T) {
	for _, code := range []string{"", "12345", "0123456", "12345a7", "1234567890123456789"} {
		_, err := NewCodelist("bad", SystemSNOMEDCT, code)
		if !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("expected ErrInvalidCode for %q, got %v", code, err)
		}
	}
}

func TestNewCodelistRejectsUnknownSystem(t *testing.T) {
	_, err := NewCodelist("x", "ctv3", "XaBcD")
	require.ErrorIs(t, err, ErrUnknownSystem)
}

func TestNewCodelistRequiresCodes(t *testing.T) {
	_, err := NewCodelist("empty", SystemSNOMEDCT)
	require.ErrorIs(t, err, ErrEmptyCodelist)
}

func TestFromCSV(t *testing.T) {
	input := "code,term\n195967001,Asthma\n,blank\n195967001,Asthma again\n"
	cl, err := FromCSV("asthma", SystemSNOMEDCT, strings.NewReader(input), "Code")
	require.NoError(t, err)

	assert.Equal(t, []string{"195967001"}, cl.Codes())
	assert.Equal(t, "asthma", cl.Name)
}

func TestFromCSVMissingColumn(t *testing.T) {
	_, err := FromCSV("x", SystemSNOMEDCT, strings.NewReader("term\nAsthma\n"), "code")
	if err == nil {
		t.Fatal("expected error for missing column")
	}
}
