package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun_Version(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"aigosd", "version"}, &out, &errOut)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "aigosd")
}

func TestRun_Help(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"aigosd", "help"}, &out, &errOut)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "Usage")
}

func TestRun_UnknownCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"aigosd", "bogus"}, &out, &errOut)
	assert.Equal(t, 2, code)
	assert.True(t, strings.Contains(errOut.String(), "Unknown command"))
}

func TestStaticTokensFromEnv(t *testing.T) {
	t.Setenv("AIGOS_STATIC_TOKENS", "tok-a:org-1, tok-b:org-2,malformed")
	tokens := staticTokensFromEnv()
	assert.Equal(t, "org-1", tokens["tok-a"])
	assert.Equal(t, "org-2", tokens["tok-b"])
	assert.Len(t, tokens, 2)
}
