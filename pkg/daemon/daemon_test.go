package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/slmcal/pkg/calibration"
	"github.com/charlie0129/slmcal/pkg/config"
	"github.com/charlie0129/slmcal/pkg/events"
	"github.com/charlie0129/slmcal/pkg/instrument/fake"
)

func testCalibration() *config.Calibration {
	return &config.Calibration{
		Standard:              calibration.Standard61672_3,
		LinearOperatingRange:  config.Range{Min: 85, Max: 100},
		LevelRanges:           []config.LevelRange{{Upper: 140, Lower: 25}},
		Frequencies:           []float64{1000},
		CaseCorrections:       map[float64]float64{1000: 0},
		WindshieldCorrections: map[float64]float64{1000: 0},
		Calibrator:            config.Calibrator{SPL: 94, SPLTolerance: 0.3},
		SLMType:               1,
	}
}

func newTestServer(t *testing.T) (*Server, *gin.Engine) {
	t.Helper()
	st, _, _, _ := fake.NewStation()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s := NewServer(ctx, testCalibration(), st)
	s.Sleep = func(context.Context, time.Duration) error { return nil }
	return s, s.Router()
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func status(t *testing.T, router http.Handler) calibration.Status {
	t.Helper()
	w := do(router, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	var st calibration.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	return st
}

func TestRunWithRemoteOperator(t *testing.T) {
	s, router := newTestServer(t)

	w := do(router, http.MethodGet, "/prompt", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(router, http.MethodPost, "/run", `{"procedures":["acoustic-test"]}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var run RunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	assert.Equal(t, []calibration.Procedure{calibration.ProcedureAcousticTest}, run.Procedures)

	w = do(router, http.MethodPost, "/run", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	var asked []string
	require.Eventually(t, func() bool {
		if answerPending(router, &asked) {
			return false
		}
		return !s.Running()
	}, 5*time.Second, time.Millisecond)
	s.Wait()

	assert.Contains(t, asked, "Please connect customer SLM and EIM reference calibrator.")
	st := status(t, router)
	assert.Equal(t, []calibration.Procedure{calibration.ProcedureAcousticTest}, st.Completed)
	assert.Equal(t, 1, st.Tables)

	w = do(router, http.MethodGet, "/results", "")
	require.Equal(t, http.StatusOK, w.Code)
	var tables []calibration.Table
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tables))
	require.Len(t, tables, 1)
	assert.Equal(t, calibration.ProcedureAcousticTest, tables[0].Procedure)
}

// answerPending answers the pending prompt, if any: numbers get 94 and
// acknowledgements an empty answer.
func answerPending(router http.Handler, asked *[]string) bool {
	w := do(router, http.MethodGet, "/prompt", "")
	if w.Code != http.StatusOK {
		return false
	}
	var p calibration.Prompt
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		return false
	}
	*asked = append(*asked, p.Text)
	answer := ""
	if !p.Acknowledge {
		answer = "94"
	}
	body, _ := json.Marshal(AnswerRequest{ID: p.ID, Answer: answer})
	return do(router, http.MethodPut, "/prompt", string(body)).Code == http.StatusCreated
}

func TestRunRejectsUnknownProcedure(t *testing.T) {
	_, router := newTestServer(t)
	w := do(router, http.MethodPost, "/run", `{"procedures":["time-averaging"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "not part of standard")
}

func TestAnswerWithoutPrompt(t *testing.T) {
	_, router := newTestServer(t)
	w := do(router, http.MethodPut, "/prompt", `{"answer":"94"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(router, http.MethodPut, "/prompt", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancel(t *testing.T) {
	s, router := newTestServer(t)
	assert.Equal(t, http.StatusConflict, do(router, http.MethodPost, "/cancel", "").Code)

	require.Equal(t, http.StatusAccepted, do(router, http.MethodPost, "/run", "").Code)
	require.Eventually(t, func() bool {
		return do(router, http.MethodGet, "/prompt", "").Code == http.StatusOK
	}, 2*time.Second, time.Millisecond)

	assert.Equal(t, http.StatusAccepted, do(router, http.MethodPost, "/cancel", "").Code)
	s.Wait()
	assert.Equal(t, calibration.PhaseCancelled, status(t, router).Phase)
	assert.NoError(t, s.Reload(testCalibration()))
}

func TestReloadWhileRunning(t *testing.T) {
	s, router := newTestServer(t)
	require.Equal(t, http.StatusAccepted, do(router, http.MethodPost, "/run", "").Code)
	assert.Error(t, s.Reload(testCalibration()))
	s.Cancel()
	s.Wait()
}

func TestProceduresAndVersion(t *testing.T) {
	_, router := newTestServer(t)

	w := do(router, http.MethodGet, "/procedures", "")
	require.Equal(t, http.StatusOK, w.Code)
	var ids []calibration.Procedure
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ids))
	assert.Len(t, ids, 8)

	w = do(router, http.MethodGet, "/version", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gitCommit")

	w = do(router, http.MethodGet, "/config", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "61672-3")
}

func TestEvents(t *testing.T) {
	s, router := newTestServer(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// headers are only flushed with the first event, so keep publishing
	go func() {
		tick := time.NewTicker(10 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				s.hub.Publish(events.OperatorNotice, events.NoticeEvent{Message: "hello"})
			}
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	var name string
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "event:") {
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}
		if strings.HasPrefix(line, "data:") {
			assert.Contains(t, line, "hello")
			break
		}
	}
	assert.Equal(t, events.OperatorNotice, name)
}
