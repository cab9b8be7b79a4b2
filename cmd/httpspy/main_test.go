package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shhac/httpspy/internal/domain"
	apperrors "github.com/shhac/httpspy/internal/errors"
	"github.com/shhac/httpspy/internal/logging"
	"github.com/shhac/httpspy/internal/storage"
)

type cli struct {
	t    *testing.T
	root string
	log  string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	return &cli{t: t, root: filepath.Join(dir, "shared"), log: filepath.Join(dir, "httpspy.log")}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--root", c.root, "--log-file", c.log}, args...)
	err := runApp(full, &stdout, &stderr)
	return stdout.String(), err
}

func (c *cli) seed(id, method, rawURL string, status int) {
	c.t.Helper()
	store := storage.NewCollection[domain.Exchange](c.root, storage.RequestsCollection, logging.NewNopLogger())
	ex := domain.NewExchange(id, domain.RequestSnapshot{URL: rawURL, Method: method, Headers: map[string]string{}}, time.Now())
	if status > 0 {
		resp := domain.ResponseSnapshot{URL: rawURL, StatusCode: status, Headers: map[string]string{}}
		require.NoError(c.t, ex.Complete(&resp, nil, nil, time.Now()))
	}
	require.NoError(c.t, store.Store(id, ex))
}

func TestRunApp_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := runApp(nil, &stdout, &stderr)
	assert.True(t, errors.Is(err, pflag.ErrHelp))
	assert.Contains(t, stderr.String(), "Commands:")

	err = runApp([]string{"explode"}, &stdout, &stderr)
	var ve apperrors.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "command", ve.Field)
}

func TestRunApp_List(t *testing.T) {
	c := newCLI(t)

	out, err := c.run("list")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.NotContains(t, out, "http://")

	c.seed("one", "GET", "http://api.test/items", 200)
	c.seed("two", "POST", "http://api.test/items", 0)

	out, err = c.run("list", "-X", "GET")
	require.NoError(t, err)
	assert.Contains(t, out, "one")
	assert.NotContains(t, out, "two")

	out, err = c.run("list")
	require.NoError(t, err)
	assert.Contains(t, out, "pending")
	assert.Contains(t, out, "200")

	out, err = c.run("list", "--json", "--path", "/items", "--asc")
	require.NoError(t, err)
	var list []domain.Exchange
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	assert.Len(t, list, 2)

	_, err = c.run("list", "--pattern", "(")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidCriteria))
}

func TestRunApp_Get(t *testing.T) {
	c := newCLI(t)
	c.seed("abc", "GET", "http://api.test/", 204)

	out, err := c.run("get", "abc")
	require.NoError(t, err)
	var ex domain.Exchange
	require.NoError(t, json.Unmarshal([]byte(out), &ex))
	assert.Equal(t, 204, ex.Response.StatusCode)

	_, err = c.run("get", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, err = c.run("get")
	assert.Error(t, err)
}

func TestRunApp_Wait(t *testing.T) {
	c := newCLI(t)
	c.seed("w1", "GET", "http://api.test/items?a=1", 200)

	out, err := c.run("wait", "-X", "GET", "-q", "a=1", "--completed", "-t", "1s")
	require.NoError(t, err)
	assert.Contains(t, out, `"w1"`)

	out, err = c.run("wait", "--full-body", "--path", "/items", "-t", "1s")
	require.NoError(t, err)
	assert.Contains(t, out, `"w1"`)

	out, err = c.run("wait", "--absent", "-X", "DELETE", "-t", "50ms")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "no request matching"))

	_, err = c.run("wait", "-X", "PUT", "-t", "50ms")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrTimeout))
	assert.Equal(t, "Expectation Failed", apperrors.Classify(err).Title)
}

func TestRunApp_Clear(t *testing.T) {
	c := newCLI(t)
	c.seed("gone", "GET", "http://api.test/", 200)

	out, err := c.run("clear", "--context")
	require.NoError(t, err)
	assert.Contains(t, out, "cleared")

	out, err = c.run("list")
	require.NoError(t, err)
	assert.NotContains(t, out, "gone")
}
