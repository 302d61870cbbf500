package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/weatherdash/internal/config"
	"github.com/nfrund/weatherdash/internal/domain"
	"github.com/nfrund/weatherdash/internal/stream"
	"github.com/nfrund/weatherdash/internal/testutils"
)

const waitFor = 5 * time.Second

// syncBuffer lets a test read output while a command is still writing it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type cli struct {
	fb        *testutils.FakeBackend
	tokenFile string
}

func setupCLI(t *testing.T, filesystem afero.Fs) *cli {
	t.Helper()
	fb := testutils.NewFakeBackend(t)
	fb.AddUser(t, "alice", "password123")

	tokenFile := filepath.Join(t.TempDir(), "weatherdash", "session.json")
	c := testutils.ConfigForTests(t, map[string]string{
		"BACKEND_URL":    fb.URL(),
		"BACKEND_WS_URL": fb.WSURL(),
		"TOKEN_FILE":     tokenFile,
	})

	oldLoad, oldFs := loadConfig, fs
	loadConfig = func(context.Context) (*config.Config, error) { return c, nil }
	fs = filesystem
	t.Cleanup(func() {
		loadConfig, fs = oldLoad, oldFs
	})
	return &cli{fb: fb, tokenFile: tokenFile}
}

// resetFlags puts every flag back to its default between executions.
func resetFlags(c *cobra.Command) {
	c.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// resetContexts drops the context an earlier execution left on each
// subcommand; cobra only hands the new one down to commands without one.
func resetContexts(ctx context.Context, c *cobra.Command) {
	c.SetContext(ctx)
	for _, sub := range c.Commands() {
		resetContexts(ctx, sub)
	}
}

func (c *cli) run(ctx context.Context, stdin string, out, errOut *syncBuffer, args ...string) error {
	resetFlags(rootCmd)
	resetContexts(ctx, rootCmd)
	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)
	return rootCmd.ExecuteContext(ctx)
}

func (c *cli) exec(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut syncBuffer
	err := c.run(context.Background(), "", &out, &errOut, args...)
	return out.String(), err
}

func (c *cli) login(t *testing.T) {
	t.Helper()
	out, err := c.exec(t, "login", "-u", "alice", "-p", "password123")
	require.NoError(t, err)
	require.Equal(t, "Logged in as alice\n", out)
}

func TestVersion(t *testing.T) {
	c := setupCLI(t, afero.NewMemMapFs())
	out, err := c.exec(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "weatherdash v"+version+"\n", out)
}

func TestSessionCommands(t *testing.T) {
	c := setupCLI(t, afero.NewMemMapFs())

	_, err := c.exec(t, "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)

	c.login(t)
	exists, err := afero.Exists(fs, c.tokenFile)
	require.NoError(t, err)
	assert.True(t, exists)

	out, err := c.exec(t, "whoami")
	require.NoError(t, err)
	assert.Equal(t, "alice\n", out)

	out, err = c.exec(t, "logout")
	require.NoError(t, err)
	assert.Equal(t, "Logged out\n", out)

	exists, err = afero.Exists(fs, c.tokenFile)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = c.exec(t, "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestLoginFailures(t *testing.T) {
	c := setupCLI(t, afero.NewMemMapFs())

	_, err := c.exec(t, "login", "-u", "alice", "-p", "wrong-password")
	assert.EqualError(t, err, "Invalid credentials")

	_, err = c.exec(t, "login", "-u", "a", "-p", "short")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least")

	_, err = c.exec(t, "login")
	assert.ErrorContains(t, err, "username")

	_, err = c.exec(t, "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestLoginReadsPasswordFromStdin(t *testing.T) {
	c := setupCLI(t, afero.NewMemMapFs())

	var out, errOut syncBuffer
	require.NoError(t, c.run(context.Background(), "password123\n", &out, &errOut, "login", "-u", "alice"))
	assert.Equal(t, "Logged in as alice\n", out.String())
	assert.Contains(t, errOut.String(), "Password: ")
}

func TestSignup(t *testing.T) {
	c := setupCLI(t, afero.NewMemMapFs())

	out, err := c.exec(t, "signup", "-u", "bob", "-p", "password456")
	require.NoError(t, err)
	assert.Equal(t, "Account created, logged in as bob\n", out)

	_, err = c.exec(t, "signup", "-u", "bob", "-p", "password456")
	assert.EqualError(t, err, "User already exists")
}

func TestRecordsCommands(t *testing.T) {
	c := setupCLI(t, afero.NewMemMapFs())

	_, err := c.exec(t, "records", "list")
	assert.ErrorIs(t, err, errNotLoggedIn)

	c.login(t)

	out, err := c.exec(t, "records", "create", "--city", "new york", "--temperature", "21.5",
		"--feels-like", "20", "--humidity", "40", "--pressure", "1012", "--description", "clear")
	require.NoError(t, err)
	assert.Equal(t, "Created reading #1 for New York\n", out)

	_, err = c.exec(t, "records", "create", "--city", "Gotham", "--temperature", "1",
		"--feels-like", "1", "--humidity", "1", "--pressure", "1")
	assert.ErrorContains(t, err, "not a known city")

	out, err = c.exec(t, "records", "list", "--city", "New York", "--format", "json")
	require.NoError(t, err)
	var snap recordsSnapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.Equal(t, "New York", snap.City)
	require.Len(t, snap.Records, 1)
	assert.Equal(t, 21.5, snap.Records[0].Temperature)

	out, err = c.exec(t, "records", "edit", "1", "--city", "New York", "--temperature", "23",
		"--feels-like", "22", "--humidity", "38", "--pressure", "1010", "--description", "warmer")
	require.NoError(t, err)
	assert.Equal(t, "Updated reading #1\n", out)

	out, err = c.exec(t, "records", "list", "--city", "New York")
	require.NoError(t, err)
	assert.Contains(t, out, "warmer")
	assert.Contains(t, out, "DESCRIPTION")

	_, err = c.exec(t, "records", "delete", "abc")
	assert.Error(t, err)

	out, err = c.exec(t, "records", "delete", "1")
	require.NoError(t, err)
	assert.Equal(t, "Deleted reading #1\n", out)

	out, err = c.exec(t, "records", "list", "--city", "New York")
	require.NoError(t, err)
	assert.Contains(t, out, "No readings found")

	_, err = c.exec(t, "records", "list", "--since", "last tuesday")
	assert.ErrorContains(t, err, "--since")
}

func TestRecordsExpiredSession(t *testing.T) {
	c := setupCLI(t, afero.NewMemMapFs())
	c.login(t)

	c.fb.FailNext(http.StatusUnauthorized, "Token has expired")
	_, err := c.exec(t, "records", "list")
	assert.ErrorIs(t, err, errSessionExpired)

	_, err = c.exec(t, "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn, "an expired session is forgotten")
}

func TestBuildFilter(t *testing.T) {
	f, err := buildFilter("", "", "")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultFilter(), f)

	f, err = buildFilter("Cape Town", "2024-03-01", "2024-03-02T12:00:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, "Cape Town", f.City)
	assert.True(t, f.Start.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, f.End.Equal(time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)))

	_, err = buildFilter("Atlantis", "", "")
	assert.ErrorContains(t, err, "Paris")
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "abcdefg...", truncateString("abcdefghijklmnop", 10))
}

func startWatch(t *testing.T, c *cli, args ...string) (*syncBuffer, *syncBuffer, <-chan error, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	var out, errOut syncBuffer
	done := make(chan error, 1)
	go func() {
		done <- c.run(ctx, "", &out, &errOut, append([]string{"watch"}, args...)...)
	}()
	t.Cleanup(cancel)
	return &out, &errOut, done, cancel
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(waitFor):
		t.Fatal("watch did not return")
		return nil
	}
}

func TestWatch(t *testing.T) {
	c := setupCLI(t, afero.NewOsFs())
	c.fb.Seed(
		domain.WeatherRecord{CityName: "Tokyo", Temperature: 25, Description: "humid evening"},
		domain.WeatherRecord{CityName: "Paris", Temperature: 18, Description: "drizzle"},
	)
	c.login(t)

	out, _, done, cancel := startWatch(t, c, "--city", "Tokyo")

	ctx, stop := context.WithTimeout(context.Background(), waitFor)
	defer stop()
	require.NoError(t, c.fb.WaitForConns(ctx, 1))
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "humid evening")
	}, waitFor, 10*time.Millisecond)
	assert.NotContains(t, out.String(), "drizzle")
	assert.Contains(t, out.String(), "== Tokyo: 1 readings")

	require.NoError(t, c.fb.Push(stream.WireCreated, domain.WeatherRecord{ID: 50, CityName: "Tokyo", Description: "typhoon warning"}))
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "typhoon warning")
	}, waitFor, 10*time.Millisecond)

	cancel()
	assert.NoError(t, waitDone(t, done))
	require.NoError(t, c.fb.WaitForConns(ctx, 0))
}

func TestWatch_EndsWhenLoggedOutElsewhere(t *testing.T) {
	c := setupCLI(t, afero.NewOsFs())
	c.login(t)

	_, _, done, _ := startWatch(t, c)
	ctx, stop := context.WithTimeout(context.Background(), waitFor)
	defer stop()
	require.NoError(t, c.fb.WaitForConns(ctx, 1))

	require.NoError(t, os.Remove(c.tokenFile))
	err := waitDone(t, done)
	assert.True(t, errors.Is(err, errLoggedOutElsewhere), "got %v", err)
	require.NoError(t, c.fb.WaitForConns(ctx, 0))
}

func TestWatch_SessionExpired(t *testing.T) {
	c := setupCLI(t, afero.NewOsFs())
	c.login(t)

	c.fb.FailNext(http.StatusUnauthorized, "Token has expired")
	_, _, done, _ := startWatch(t, c)
	assert.ErrorIs(t, waitDone(t, done), errSessionExpired)

	_, err := c.exec(t, "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestWatch_RequiresLogin(t *testing.T) {
	c := setupCLI(t, afero.NewMemMapFs())
	_, _, done, _ := startWatch(t, c)
	assert.ErrorIs(t, waitDone(t, done), errNotLoggedIn)
}

func TestWatch_SecondRunGetsFreshContext(t *testing.T) {
	c := setupCLI(t, afero.NewOsFs())
	c.login(t)

	_, _, done, cancel := startWatch(t, c)
	ctx, stop := context.WithTimeout(context.Background(), waitFor)
	defer stop()
	require.NoError(t, c.fb.WaitForConns(ctx, 1))
	cancel()
	require.NoError(t, waitDone(t, done))
	require.NoError(t, c.fb.WaitForConns(ctx, 0))

	_, _, done, _ = startWatch(t, c)
	require.NoError(t, c.fb.WaitForConns(ctx, 1), "the second run connects instead of ending at once")
	require.NoError(t, os.Remove(c.tokenFile))
	assert.ErrorIs(t, waitDone(t, done), errLoggedOutElsewhere)
}
