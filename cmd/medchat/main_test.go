/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package main

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mikeb26/medchat/internal/config"
	"github.com/mikeb26/medchat/internal/devserver"
	"github.com/mikeb26/medchat/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "cli-test-secret"

var envKeys = []string{
	"MEDCHAT_BASE_URL", "MEDCHAT_TOKEN", "MEDCHAT_LOG_FILE", "MEDCHAT_VERBOSE",
	"MEDCHAT_DEV_ADDR", "MEDCHAT_JWT_SECRET", "MEDCHAT_REDIS_URL",
}

// isolate clears MEDCHAT_* variables for the test and returns a config path
// in a fresh temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	dir := t.TempDir()
	t.Setenv("MEDCHAT_LOG_FILE", filepath.Join(dir, "medchat.log"))
	return filepath.Join(dir, "config.yaml")
}

func run(t *testing.T, cfgPath string, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cli := &cliContext{logger: logging.Nop(), in: strings.NewReader(stdin)}
	root := newRootCmd(cli)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func startDevServer(t *testing.T) (string, string) {
	t.Helper()
	srv := devserver.New(devserver.Options{
		JWTSecret:         testSecret,
		PollInterval:      time.Millisecond,
		KeepaliveInterval: -1,
	})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.App().Listener(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	token, err := devserver.IssueToken(testSecret, "cli", time.Hour)
	require.NoError(t, err)
	return "http://" + ln.Addr().String() + devserver.APIPrefix, token
}

func TestVersionCmd(t *testing.T) {
	cfgPath := isolate(t)
	out, _, err := run(t, cfgPath, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "medchat-"+versionText+"\n", out)
	assert.True(t, strings.HasPrefix(versionText, "v"))
}

func TestTokenCmd(t *testing.T) {
	cfgPath := isolate(t)
	t.Setenv("MEDCHAT_JWT_SECRET", testSecret)

	out, _, err := run(t, cfgPath, "", "token", "--subject", "alice", "--ttl", "1h")
	require.NoError(t, err)

	tok, err := jwt.Parse(strings.TrimSpace(out), func(*jwt.Token) (any, error) {
		return []byte(testSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	require.NoError(t, err)
	sub, err := tok.Claims.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, "alice", sub)
}

func TestReplayCmd(t *testing.T) {
	cfgPath := isolate(t)
	capture := filepath.Join(t.TempDir(), "capture.sse")
	body := strings.Join([]string{
		`data: {"type":"token","content":"Hello "}`,
		`data: not json`,
		`data: {"type":"mystery"}`,
		`data: {"type":"token","content":"world"}`,
		`data: {"type":"done"}`,
	}, "\n\n") + "\n\n"
	require.NoError(t, os.WriteFile(capture, []byte(body), 0600))

	out, errOut, err := run(t, cfgPath, "", "replay", "--stats", "-f", "text", capture)
	require.NoError(t, err)
	assert.Equal(t, "Hello world\n", out)
	assert.Contains(t, errOut, "malformed=1")
	assert.Contains(t, errOut, "unknown=1")

	out, _, err = run(t, cfgPath, body, "replay", "-f", "json")
	require.NoError(t, err)
	assert.Contains(t, out, "Hello world")

	_, _, err = run(t, cfgPath, "", "replay", "--mode", "bogus", capture)
	assert.Error(t, err)
}

func TestConfigCmdSaves(t *testing.T) {
	cfgPath := isolate(t)

	out, _, err := run(t, cfgPath, "http://chat.example/api/v1\nsecret-token\n3\n", "config")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved "+cfgPath)

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "http://chat.example/api/v1", cfg.Server.BaseURL)
	assert.Equal(t, "secret-token", cfg.Server.Token)
	assert.Equal(t, "light", cfg.UI.Style)

	out, _, err = run(t, cfgPath, "", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "http://chat.example/api/v1")
	assert.NotContains(t, out, "secret-token")
	assert.NotContains(t, out, config.DefaultJWTSecret)
}

func TestLogsCmdEmpty(t *testing.T) {
	cfgPath := isolate(t)
	out, _, err := run(t, cfgPath, "", "logs")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestAskAndListAgainstDevServer(t *testing.T) {
	cfgPath := isolate(t)
	baseURL, token := startDevServer(t)
	conn := []string{"--base-url", baseURL, "--token", token}

	out, errOut, err := run(t, cfgPath, "", append(conn, "ask", "-f", "text", "阿司匹林的不良反应")...)
	require.NoError(t, err)
	assert.Contains(t, out, "阿司匹林的不良反应")
	assert.Contains(t, errOut, "conversation ")
	assert.Contains(t, errOut, ": 阿司匹林的不良反应")

	out, _, err = run(t, cfgPath, "", append(conn, "conversations")...)
	require.NoError(t, err)
	assert.Contains(t, out, "阿司匹林的不良反应")

	out, _, err = run(t, cfgPath, "", append(conn, "conversations", "new", "随访")...)
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	assert.NotEmpty(t, id)

	out, _, err = run(t, cfgPath, "", append(conn, "ask", "-c", id, "-m", "multi_source", "-f", "md", "房颤抗凝")...)
	require.NoError(t, err)
	assert.Contains(t, out, "## ")

	_, errOut, err = run(t, cfgPath, "", append(conn, "resume", id)...)
	require.NoError(t, err)
	assert.Contains(t, errOut, "Nothing is generating")

	_, _, err = run(t, cfgPath, "", append(conn, "ask", "-m", "bogus", "hi")...)
	assert.Error(t, err)
}

func TestAskRejectsBadToken(t *testing.T) {
	cfgPath := isolate(t)
	baseURL, _ := startDevServer(t)

	_, _, err := run(t, cfgPath, "", "--base-url", baseURL, "--token", "nope", "ask", "-f", "text", "hi")
	assert.Error(t, err)
}
