package main

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sonroyaalmerol/mutt-ldap/internal/config"
	"github.com/sonroyaalmerol/mutt-ldap/internal/directory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	entries []directory.Entry
	err     error
	filters []string
	closed  int
}

func (s *fakeSession) Search(ctx context.Context, baseDN, filter string, scope int) iter.Seq2[directory.Entry, error] {
	s.filters = append(s.filters, filter)
	return func(yield func(directory.Entry, error) bool) {
		for _, e := range s.entries {
			if !yield(e, nil) {
				return
			}
		}
		if s.err != nil {
			yield(directory.Entry{}, s.err)
		}
	}
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

type cliTestEnv struct {
	configPath string
	cachePath  string
	sess       *fakeSession
	opened     int
	openErr    error
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	base := t.TempDir()
	t.Setenv("HOME", base)

	env := &cliTestEnv{
		configPath: filepath.Join(base, "mutt-ldap.toml"),
		cachePath:  filepath.Join(base, "mutt-ldap.cache"),
		sess: &fakeSession{entries: []directory.Entry{
			{DN: "uid=ann,dc=x", Attributes: map[string][]string{
				"mail":        {"a@x.com", "b@x.com"},
				"displayName": {"Ann B"},
			}},
		}},
	}
	body := "[connection]\nserver = \"ldap.example.net\"\nbasedn = \"dc=x\"\n\n" +
		"[query]\nsearch_fields = \"cn mail\"\n\n" +
		"[cache]\npath = \"" + env.cachePath + "\"\n"
	require.NoError(t, os.WriteFile(env.configPath, []byte(body), 0o600))

	prev := openSession
	openSession = func(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (session, error) {
		env.opened++
		if env.openErr != nil {
			return nil, env.openErr
		}
		return env.sess, nil
	}
	t.Cleanup(func() { openSession = prev })
	return env
}

func (env *cliTestEnv) execute(args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := newRootCommand(&stdout, &stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestNoQueryGiven(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.execute()
	assert.ErrorIs(t, err, errNoQuery)
	assert.Empty(t, out)
	assert.Equal(t, 0, env.opened)
}

func TestQueryWordsJoined(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.execute("ann", "b")
	require.NoError(t, err)
	assert.Equal(t, "2 addresses found:\na@x.com\tAnn B\nb@x.com\tAnn B\n", out)
	assert.Equal(t, []string{"(|(cn=*ann b*)(mail=*ann b*))"}, env.sess.filters)
	assert.Equal(t, 1, env.sess.closed)
}

func TestFlagLikeQueryWords(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := env.execute("ann", "--no-cache")
	require.NoError(t, err)
	assert.Equal(t, []string{"(|(cn=*ann --no-cache*)(mail=*ann --no-cache*))"}, env.sess.filters)
}

func TestLeadingDashQuery(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want string
	}{
		{name: "unknown long flag", args: []string{"--ann"}, want: "(|(cn=*--ann*)(mail=*--ann*))"},
		{name: "unknown shorthand", args: []string{"-ann", "b"}, want: "(|(cn=*-ann b*)(mail=*-ann b*))"},
		{name: "double dash ends flags", args: []string{"--", "--no-cache"}, want: "(|(cn=*--no-cache*)(mail=*--no-cache*))"},
		{name: "known flags then query", args: []string{"--log-level=debug", "--no-cache", "-x"}, want: "(|(cn=*-x*)(mail=*-x*))"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := setupCLITestEnv(t)

			out, _, err := env.execute(tc.args...)
			require.NoError(t, err)
			assert.Contains(t, out, "2 addresses found:")
			assert.Equal(t, []string{tc.want}, env.sess.filters)
		})
	}
}

func TestHelpFlag(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.execute("--help")
	require.NoError(t, err)
	assert.Contains(t, out, "query_command")
	assert.Equal(t, 0, env.opened)
}

func TestMissingFlagValue(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := env.execute("--log-level")
	require.Error(t, err)
	assert.Equal(t, 0, env.opened)
}

func TestLeadingFlags(t *testing.T) {
	flags := newRootCommand(&bytes.Buffer{}, &bytes.Buffer{}).Flags()

	cases := []struct {
		args []string
		want int
	}{
		{args: nil, want: 0},
		{args: []string{"ann"}, want: 0},
		{args: []string{"-c", "x.toml", "ann"}, want: 2},
		{args: []string{"--config=x.toml", "ann"}, want: 1},
		{args: []string{"--no-cache", "--log-level", "debug", "ann"}, want: 3},
		{args: []string{"--no-cache", "-ann"}, want: 1},
		{args: []string{"-", "ann"}, want: 0},
		{args: []string{"--", "ann"}, want: 0},
		{args: []string{"--config"}, want: 1},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, leadingFlags(flags, tc.args), "%q", tc.args)
	}
}

func TestSecondRunServedFromCache(t *testing.T) {
	env := setupCLITestEnv(t)

	first, _, err := env.execute("ann")
	require.NoError(t, err)
	_, err = os.Stat(env.cachePath)
	require.NoError(t, err, "cache saved at teardown")

	second, _, err := env.execute("ann")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, env.sess.filters, 1)
	assert.Equal(t, 2, env.sess.closed)
}

func TestNoCacheFlag(t *testing.T) {
	env := setupCLITestEnv(t)

	for range 2 {
		_, _, err := env.execute("--no-cache", "ann")
		require.NoError(t, err)
	}
	assert.Len(t, env.sess.filters, 2)
	_, err := os.Stat(env.cachePath)
	assert.True(t, os.IsNotExist(err))
}

func TestZeroResults(t *testing.T) {
	env := setupCLITestEnv(t)
	env.sess.entries = nil

	out, _, err := env.execute("nobody")
	require.NoError(t, err)
	assert.Equal(t, "0 addresses found:\n\n", out)
}

func TestConnectionErrorIsFatal(t *testing.T) {
	env := setupCLITestEnv(t)
	env.openErr = &directory.ConnectionError{Op: "bind", URL: "ldap://ldap.example.net:389", Err: errors.New("invalid credentials")}

	out, _, err := env.execute("ann")
	var ce *directory.ConnectionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "bind", ce.Op)
	assert.Empty(t, out)
}

func TestSearchErrorClosesSessionAndSkipsCache(t *testing.T) {
	env := setupCLITestEnv(t)
	env.sess.err = &directory.SearchError{Filter: "(cn=*)", Err: errors.New("operations error")}

	out, _, err := env.execute("ann")
	require.Error(t, err)
	assert.Empty(t, out)
	assert.Equal(t, 1, env.sess.closed)
	_, statErr := os.Stat(env.cachePath)
	assert.True(t, os.IsNotExist(statErr), "nothing to save after a failed search")
}

func TestCorruptCacheFallsBackToSearch(t *testing.T) {
	env := setupCLITestEnv(t)
	require.NoError(t, os.WriteFile(env.cachePath, []byte("garbage bytes"), 0o600))

	out, _, err := env.execute("ann")
	require.NoError(t, err)
	assert.Contains(t, out, "2 addresses found:")
	assert.Len(t, env.sess.filters, 1)
}

func TestBadConfigIsFatal(t *testing.T) {
	env := setupCLITestEnv(t)
	require.NoError(t, os.WriteFile(env.configPath, []byte("[connection\n"), 0o600))

	_, _, err := env.execute("ann")
	require.Error(t, err)
	assert.Equal(t, 0, env.opened)
}
