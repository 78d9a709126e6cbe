package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"
)

const (
	vaultlinkBinary = "../cmd/vaultlink/vaultlink"
	vaultlinkURL    = "http://localhost:8080"

	testEncryptionKey = "integration-encryption-key-32-b!"
	testStateKey      = "integration-state-key-at-least-32-bytes"
)

// testEnv is the environment every vaultlink process is started with
func testEnv() []string {
	return []string{
		"VAULTLINK_ENV=development",
		"TEST_ENCRYPTION_KEY=" + testEncryptionKey,
		"TEST_STATE_KEY=" + testStateKey,
	}
}

// configOption adjusts the generated config map
type configOption func(cfg map[string]any)

// withBoltStorage keeps sessions in a bbolt file at path
func withBoltStorage(path string) configOption {
	return func(cfg map[string]any) {
		session := cfg["session"].(map[string]any)
		session["storage"] = "bbolt"
		session["path"] = path
	}
}

// buildTestConfig builds a complete vaultlink config pointed at the fakes
func buildTestConfig(opts ...configOption) map[string]any {
	idp := "http://localhost:" + fakeIdPPort
	cfg := map[string]any{
		"version": "vaultlink/v1",
		"server": map[string]any{
			"baseURL": vaultlinkURL,
			"addr":    ":8080",
			"name":    "vaultlink-test",
			"title":   "Integration download",
		},
		"identity": map[string]any{
			"provider":         "oidc",
			"authorizationUrl": idp + "/login",
			"tokenUrl":         idp + "/oauth2/token",
			"clientId":         testClientID,
			"redirectUri":      vaultlinkURL + "/",
		},
		"federation": map[string]any{
			"region":         "eu-west-1",
			"identityPoolId": testPoolID,
			"loginProvider":  testLoginProvider,
			"endpoint":       "http://localhost:" + fakeCognitoPort,
		},
		"object": map[string]any{
			"bucket": "private-files",
			"key":    "docs/cv.pdf",
			"region": "eu-west-1",
			"ttl":    "60s",
		},
		"session": map[string]any{
			"storage":       "memory",
			"encryptionKey": map[string]string{"$env": "TEST_ENCRYPTION_KEY"},
			"stateKey":      map[string]string{"$env": "TEST_STATE_KEY"},
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func writeTestConfig(t *testing.T, cfg map[string]any) string {
	t.Helper()
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		t.Fatalf("Failed to marshal test config: %v", err)
	}
	f, err := os.CreateTemp(t.TempDir(), "config-*.json")
	if err != nil {
		t.Fatalf("Failed to create temp config file: %v", err)
	}
	if _, err := f.Write(data); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Failed to close temp config: %v", err)
	}
	return f.Name()
}

// trace logs a message if TRACE environment variable is set
func trace(t *testing.T, format string, args ...any) {
	if os.Getenv("TRACE") == "1" {
		t.Logf("TRACE: "+format, args...)
	}
}

// startVaultlink starts the server with the given config and waits until it
// answers health checks. The process is stopped when the test ends unless
// the caller stops it first.
func startVaultlink(t *testing.T, configPath string, extraEnv ...string) *exec.Cmd {
	t.Helper()
	cmd := exec.Command(vaultlinkBinary, "-config", configPath)

	cmd.Env = append(os.Environ(), testEnv()...)
	cmd.Env = append(cmd.Env, extraEnv...)

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cmd.Env = append(cmd.Env, "LOG_LEVEL="+logLevel)
	}
	if logFormat := os.Getenv("LOG_FORMAT"); logFormat != "" {
		cmd.Env = append(cmd.Env, "LOG_FORMAT="+logFormat)
	}

	if logFile := os.Getenv("VAULTLINK_LOG_FILE"); logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			cmd.Stderr = f
			cmd.Stdout = f
			t.Cleanup(func() { f.Close() })
		}
	}

	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start vaultlink: %v", err)
	}
	t.Cleanup(func() {
		stopVaultlink(cmd)
	})

	waitForVaultlink(t)
	return cmd
}

// stopVaultlink stops the server gracefully
func stopVaultlink(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil || cmd.ProcessState != nil {
		return
	}

	if err := cmd.Process.Signal(syscall.SIGINT); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-done:
		return
	case <-time.After(5 * time.Second):
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}
}

// waitForVaultlink waits for the server to be ready
func waitForVaultlink(t *testing.T) {
	t.Helper()
	for range 20 {
		resp, err := http.Get(vaultlinkURL + "/health")
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			return
		}
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatal("vaultlink failed to become ready after 5 seconds")
}

// newBrowser returns a client that keeps cookies and follows redirects
// between vaultlink and the fake provider, stopping at any other host so
// the signed storage URL is observed rather than fetched
func newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("Failed to create cookie jar: %v", err)
	}
	return &http.Client{
		Jar:     jar,
		Timeout: 10 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			trace(t, "redirect to %s", req.URL.Redacted())
			if req.URL.Hostname() != "localhost" {
				return http.ErrUseLastResponse
			}
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}
}

// sessionCookie returns the browser's session id cookie, if any
func sessionCookie(client *http.Client) *http.Cookie {
	u, _ := url.Parse(vaultlinkURL)
	for _, c := range client.Jar.Cookies(u) {
		if c.Name == "vaultlink_sid" {
			return c
		}
	}
	return nil
}
