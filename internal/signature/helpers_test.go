package signature

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func tokenFrom(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Query().Get("token")
}
