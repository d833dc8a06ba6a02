package mcpclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitToolName_Valid(t *testing.T) {
	server, tool, err := SplitToolName("billing-server.get_invoices")
	require.NoError(t, err)
	assert.Equal(t, "billing-server", server)
	assert.Equal(t, "get_invoices", tool)
}

func TestSplitToolName_Invalid(t *testing.T) {
	_, _, err := SplitToolName("not-a-qualified-name")
	require.Error(t, err)
}

func TestQualifiedName(t *testing.T) {
	assert.Equal(t, "billing-server.get_invoices", QualifiedName("billing-server", "get_invoices"))
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, NoRetry, ClassifyError(nil))
	assert.Equal(t, NoRetry, ClassifyError(assertErr("invalid argument: limit")))
	assert.Equal(t, RetryNewSession, ClassifyError(assertErr("read tcp: connection reset by peer")))
	assert.Equal(t, RetryNewSession, ClassifyError(assertErr("unexpected EOF")))
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func assertErr(msg string) error { return simpleErr(msg) }
