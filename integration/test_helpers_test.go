package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const cliTimeout = 30 * time.Second

// freeAddr reserves a loopback port and releases it for the CLI to take
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

// writeConfig writes a config pointing every endpoint at provider and the
// redirect at callbackAddr
func writeConfig(t *testing.T, provider *FakeProvider, callbackAddr string) string {
	t.Helper()
	cfg := map[string]any{
		"clientId":              provider.ClientID,
		"redirectUri":           "http://" + callbackAddr + "/callback",
		"authorizationEndpoint": provider.AuthorizeURL(),
		"revocationEndpoint":    provider.URL + "/oauth2/revoke",
		"apiBaseUrl":            provider.URL + "/helix",
		"redirectTimeout":       "20s",
		"httpTimeout":           "5s",
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "streamauth.json")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

// cliRun is a running streamauth process
type cliRun struct {
	cmd      *exec.Cmd
	stdout   bytes.Buffer
	authURL  chan string
	scanDone chan struct{}

	mu     sync.Mutex
	stderr strings.Builder
}

// startCLI runs the binary in an empty directory so no .env file is picked up
func startCLI(t *testing.T, args ...string) *cliRun {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	t.Cleanup(cancel)

	r := &cliRun{
		authURL:  make(chan string, 1),
		scanDone: make(chan struct{}),
	}
	r.cmd = exec.CommandContext(ctx, binaryPath, args...)
	r.cmd.Dir = t.TempDir()
	r.cmd.Env = append(os.Environ(), "LOG_LEVEL=debug")
	r.cmd.Stdout = &r.stdout

	stderr, err := r.cmd.StderrPipe()
	require.NoError(t, err)
	require.NoError(t, r.cmd.Start())

	go r.scan(stderr)

	t.Cleanup(func() {
		if t.Failed() {
			t.Logf("streamauth stderr:\n%s", r.Stderr())
		}
	})
	return r
}

func (r *cliRun) scan(stderr io.Reader) {
	defer close(r.scanDone)
	sent := false
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		r.mu.Lock()
		r.stderr.WriteString(line + "\n")
		r.mu.Unlock()

		trimmed := strings.TrimSpace(line)
		if !sent && strings.HasPrefix(trimmed, "http") && strings.Contains(trimmed, "/oauth2/authorize?") {
			r.authURL <- trimmed
			sent = true
		}
	}
}

// waitForAuthURL returns the authorization URL the CLI printed
func (r *cliRun) waitForAuthURL(t *testing.T) string {
	t.Helper()
	select {
	case u := <-r.authURL:
		return u
	case <-time.After(10 * time.Second):
		t.Fatalf("CLI did not print an authorization URL; stderr:\n%s", r.Stderr())
		return ""
	}
}

// wait blocks until the process exits and returns its exit code
func (r *cliRun) wait(t *testing.T) int {
	t.Helper()
	<-r.scanDone
	err := r.cmd.Wait()
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr), "unexpected wait error: %v", err)
	return exitErr.ExitCode()
}

// Stdout returns everything the process wrote to stdout. Only valid after wait.
func (r *cliRun) Stdout() string {
	return r.stdout.String()
}

// Stderr returns the log output seen so far
func (r *cliRun) Stderr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stderr.String()
}

// browse walks through the consent page and the loopback callback the way a
// browser would. Fragments never reach servers, so the relay page's script
// is replayed by hand. tamper, when set, edits the redirect parameters.
func browse(t *testing.T, authURL string, tamper func(url.Values)) (int, string) {
	t.Helper()

	client := &http.Client{
		Timeout: 10 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Get(authURL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	redirectURL, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	params, err := url.ParseQuery(redirectURL.EscapedFragment())
	require.NoError(t, err)
	redirectURL.Fragment = ""

	relay, err := client.Get(redirectURL.String())
	require.NoError(t, err)
	relayBody, _ := io.ReadAll(relay.Body)
	relay.Body.Close()
	require.Equal(t, http.StatusOK, relay.StatusCode)
	require.Contains(t, string(relayBody), "location.hash")

	if tamper != nil {
		tamper(params)
	}
	complete := *redirectURL
	complete.Path = strings.TrimSuffix(redirectURL.Path, "/") + "/complete"
	complete.RawQuery = params.Encode()

	done, err := client.Get(complete.String())
	require.NoError(t, err)
	defer done.Body.Close()
	body, _ := io.ReadAll(done.Body)
	return done.StatusCode, string(body)
}
