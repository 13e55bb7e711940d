package main

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mastercactapus/grblhc/device/devicetest"
	"github.com/mastercactapus/grblhc/grbl"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAPI(t *testing.T) (*api, *devicetest.Device, string) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	dev := devicetest.New(nil)
	c := grbl.NewController(grbl.Config{
		Open:           dev.Opener(),
		Logger:         logger,
		PollInterval:   time.Millisecond,
		StallThreshold: 20 * time.Millisecond,
		ReadTimeout:    5 * time.Millisecond,
	})
	dir := t.TempDir()
	return newAPI(c, "/dev/ttyUSB0", dir, logger), dev, dir
}

func do(a *api, method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	a.ServeHTTP(rec, req)
	return rec
}

func TestAPI_Lifecycle(t *testing.T) {
	a, dev, _ := newTestAPI(t)

	assert.Equal(t, http.StatusConflict, do(a, "POST", "/api/status", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(a, "GET", "/api/connect", "").Code)

	require.Equal(t, http.StatusNoContent, do(a, "POST", "/api/connect", "").Code)
	assert.Equal(t, []string{"\r\n\r\n"}, dev.Writes())
	assert.Equal(t, http.StatusConflict, do(a, "POST", "/api/connect", "").Code)

	for _, p := range []string{"status", "home", "unlock", "stop", "resume", "cleanup", "abort"} {
		assert.Equal(t, http.StatusNoContent, do(a, "POST", "/api/"+p, "").Code, p)
	}

	rec := do(a, "GET", "/api/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st struct {
		State string
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "Idle", st.State)

	assert.Equal(t, http.StatusNoContent, do(a, "POST", "/api/reset", "").Code)
	assert.Equal(t, 1, dev.Count("\x18"))
}

func TestAPI_Command(t *testing.T) {
	a, _, _ := newTestAPI(t)
	assert.Equal(t, http.StatusConflict, do(a, "POST", "/api/command", "G0 X1").Code)

	require.Equal(t, http.StatusNoContent, do(a, "POST", "/api/connect", "").Code)
	assert.Equal(t, http.StatusNoContent, do(a, "POST", "/api/command", "G0 X1").Code)
	assert.Equal(t, http.StatusBadRequest, do(a, "POST", "/api/command", "").Code)
}

func TestAPI_Stream(t *testing.T) {
	a, _, _ := newTestAPI(t)
	require.Equal(t, http.StatusNoContent, do(a, "POST", "/api/connect", "").Code)

	rec := do(a, "POST", "/api/stream?name=bad", "G21\n$H\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "system command not allowed")

	assert.Equal(t, http.StatusAccepted, do(a, "POST", "/api/stream?name=square", "G21\nG0 X1\n").Code)
	assert.Equal(t, http.StatusAccepted, do(a, "POST", "/api/stream", "G21\n").Code)

	rec = do(a, "GET", "/api/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"jobs":[{"position":1,"name":"square"},{"position":2,"name":"job-2"}]}`, rec.Body.String())
}

func TestAPI_Files(t *testing.T) {
	a, _, dir := newTestAPI(t)
	require.Equal(t, http.StatusNoContent, do(a, "POST", "/api/connect", "").Code)

	assert.Equal(t, http.StatusOK, do(a, "PUT", "/data/parts/square.nc", "G21\nG0 X1\n").Code)
	data, err := ioutil.ReadFile(filepath.Join(dir, "parts", "square.nc"))
	require.NoError(t, err)
	assert.Equal(t, "G21\nG0 X1\n", string(data))

	rec := do(a, "GET", "/data/parts/square.nc", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "G21\nG0 X1\n", rec.Body.String())

	assert.Equal(t, http.StatusAccepted, do(a, "POST", "/api/stream/parts/square.nc", "").Code)
	assert.Equal(t, http.StatusNotFound, do(a, "POST", "/api/stream/missing.nc", "").Code)

	rec = do(a, "GET", "/api/jobs", "")
	assert.JSONEq(t, `{"jobs":[{"position":1,"name":"square.nc"}]}`, rec.Body.String())

	assert.Equal(t, http.StatusOK, do(a, "DELETE", "/data/parts/square.nc", "").Code)
	_, err = os.Stat(filepath.Join(dir, "parts", "square.nc"))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, http.StatusNotFound, do(a, "DELETE", "/data/parts/square.nc", "").Code)
}

func TestSafePath(t *testing.T) {
	ok, name := safePath("data", "../../etc/passwd")
	assert.True(t, ok)
	assert.Equal(t, filepath.Join("data", "etc", "passwd"), name)

	ok, name = safePath("", "/a/b.nc")
	assert.True(t, ok)
	assert.Equal(t, filepath.Join("a", "b.nc"), name)
}

func TestAPI_PutFileMkdirError(t *testing.T) {
	a, _, dir := newTestAPI(t)
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "parts"), []byte("not a dir"), 0644))

	rec := do(a, "PUT", "/data/parts/square.nc", "G21\n")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWaitDisconnected(t *testing.T) {
	a, dev, _ := newTestAPI(t)
	assert.True(t, waitDisconnected(a.c, 0))

	require.Equal(t, http.StatusNoContent, do(a, "POST", "/api/connect", "").Code)
	assert.False(t, waitDisconnected(a.c, 20*time.Millisecond))

	require.Equal(t, http.StatusNoContent, do(a, "POST", "/api/disconnect", "").Code)
	assert.True(t, waitDisconnected(a.c, time.Second))
	assert.True(t, dev.Closed())
}
