// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed ins the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


package rest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mlnoga/lacosmic/internal/fits"
	"github.com/mlnoga/lacosmic/internal/synth"
	"github.com/rs/zerolog"
)

func testRouter(requestLog *bytes.Buffer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(zerolog.New(requestLog))
}

func post(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

// Runs the test in a temporary working directory, as file patterns must be relative
func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestPing(t *testing.T) {
	var log bytes.Buffer
	r := testRouter(&log)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	if w.Code != http.StatusOK {
		t.Errorf("code=%d; want 200", w.Code)
	}
	var res map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil || res["message"] != "pong" {
		t.Errorf("body=%q err=%v; want pong", w.Body.String(), err)
	}
	var entry map[string]interface{}
	if err := json.Unmarshal(log.Bytes(), &entry); err != nil {
		t.Fatalf("request log %q: %v", log.String(), err)
	}
	if entry["path"] != "/api/v1/ping" || entry["method"] != "GET" || entry["status"] != float64(200) {
		t.Errorf("request log=%v; want GET /api/v1/ping 200", entry)
	}
}

func TestCosmicsBadRequest(t *testing.T) {
	var log bytes.Buffer
	r := testRouter(&log)
	tests := []string{
		`{"filePatterns":`,
		`{"filePatterns":[]}`,
		`{"filePatterns":["*.fits"],"cosmic":{"type":"cosmic","sigFrac":2}}`,
	}
	for _, body := range tests {
		if w := post(r, "/api/v1/cosmics", body); w.Code != http.StatusBadRequest {
			t.Errorf("body %s: code=%d; want 400", body, w.Code)
		}
	}
	if !strings.Contains(log.String(), `"level":"warn"`) {
		t.Errorf("request log=%q; want warnings", log.String())
	}
}

func TestCosmicsRun(t *testing.T) {
	chdirTemp(t)
	e := synth.New(21).FlatSky(40, 32, 1000, 1, 5)
	e.AddSpike(12, 9, 15*e.Sigma())
	f := fits.NewImageFromNaxisn([]int32{int32(e.Width), int32(e.Height)}, e.Data)
	if err := f.WriteFile("in.fits"); err != nil {
		t.Fatal(err)
	}

	var log bytes.Buffer
	r := testRouter(&log)
	body := `{"filePatterns":["in.fits"],"cosmic":{"gain":1,"readNoise":5,"mask":{"filePattern":"mask%d.fits"}},"clean":"clean%d.fits"}`
	w := post(r, "/api/v1/cosmics", body)
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s; want 200", w.Code, w.Body.String())
	}
	out := w.Body.String()
	for _, want := range []string{"Arguments:", "0: Pass 1:", "Done."} {
		if !strings.Contains(out, want) {
			t.Errorf("response missing %q:\n%s", want, out)
		}
	}
	for _, name := range []string{"clean0.fits", "mask0.fits"} {
		if _, err := os.Stat(name); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
	clean, err := fits.NewImageFromFile("clean0.fits", 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if v := clean.Data[9*e.Width+12]; v > e.Sky+3*e.Sigma() {
		t.Errorf("spike not removed: %f", v)
	}
}

func TestCosmicsRejectsAbsolutePaths(t *testing.T) {
	chdirTemp(t)
	var log bytes.Buffer
	r := testRouter(&log)
	w := post(r, "/api/v1/cosmics", `{"filePatterns":["/etc/*.fits"]}`)
	if !strings.Contains(w.Body.String(), "Error:") {
		t.Errorf("response=%q; want error", w.Body.String())
	}
}
