package passphrase

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func testSource(env map[string]string, terminal bool, typed string) *Source {
	s := NewSource("FUND_PASS", "pass: ")
	s.lookupEnv = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	s.isTerminal = func() bool { return terminal }
	s.readSecret = func() ([]byte, error) { return []byte(typed), nil }
	s.out = &bytes.Buffer{}
	return s
}

func TestSourcePrefersEnvironment(t *testing.T) {
	s := testSource(map[string]string{"FUND_PASS": " hunter2 "}, true, "typed")
	got, err := s.Get()
	require.NoError(t, err)
	require.Equal(t, " hunter2 ", got)
}

func TestSourceRejectsBlankEnvironment(t *testing.T) {
	s := testSource(map[string]string{"FUND_PASS": "  "}, true, "typed")
	_, err := s.Get()
	require.ErrorContains(t, err, "FUND_PASS is set but empty")
}

func TestSourcePromptsAndCaches(t *testing.T) {
	s := testSource(nil, true, "typed")
	got, err := s.Get()
	require.NoError(t, err)
	require.Equal(t, "typed", got)
	require.Equal(t, "pass: \n", s.out.(*bytes.Buffer).String())

	s.readSecret = func() ([]byte, error) { return []byte("other"), nil }
	again, _ := s.Get()
	require.Equal(t, "typed", again)
}

func TestSourceWithoutTerminal(t *testing.T) {
	_, err := testSource(nil, false, "").Get()
	require.ErrorContains(t, err, "set FUND_PASS")

	_, err = testSource(nil, true, "   ").Get()
	require.ErrorContains(t, err, "cannot be empty")
}
