package linking

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedirectURL_EncodesMultilineMessage(t *testing.T) {
	d := RedirectWith(ReasonUnverifiedEmail, "line one\nline two")

	raw := d.RedirectURL()
	require.True(t, strings.HasPrefix(raw, LinkAccountPath+"?"))

	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "line one\nline two", u.Query().Get("error"))
	require.Empty(t, u.Query().Get("message"))
}

func TestMessageURL_UsesMessageParam(t *testing.T) {
	raw := MessageURL("Account linked.")
	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "Account linked.", u.Query().Get("message"))
	require.Empty(t, u.Query().Get("error"))
}

func TestOutcomeString(t *testing.T) {
	require.Equal(t, "allow", OutcomeAllow.String())
	require.Equal(t, "deny", OutcomeDeny.String())
	require.Equal(t, "redirect", OutcomeRedirect.String())
}
