package daemon

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/slmcal/pkg/calibration"
	"github.com/charlie0129/slmcal/pkg/operator"
	"github.com/charlie0129/slmcal/pkg/procedure"
	"github.com/charlie0129/slmcal/pkg/version"
)

// RunRequest selects the procedures of a run. Empty runs the whole standard.
type RunRequest struct {
	Procedures []calibration.Procedure `json:"procedures"`
}

// RunResponse is returned when a run is accepted.
type RunResponse struct {
	Procedures []calibration.Procedure `json:"procedures"`
}

// AnswerRequest answers prompt ID, or whatever is pending when ID is 0.
type AnswerRequest struct {
	ID     int64  `json:"id"`
	Answer string `json:"answer"`
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Get())
}

// getConfig serves the calibration in its file format; the correction maps
// have float keys, which JSON cannot carry.
func (s *Server) getConfig(c *gin.Context) {
	_, cfg := s.current()
	c.YAML(http.StatusOK, cfg)
}

func (s *Server) getProcedures(c *gin.Context) {
	r, _ := s.current()
	plan, err := r.Plan(nil)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, plan)
}

func (s *Server) getStatus(c *gin.Context) {
	r, _ := s.current()
	c.IndentedJSON(http.StatusOK, r.Status())
}

func (s *Server) postRun(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	plan, err := s.Start(req.Procedures)
	if err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, procedure.ErrRunInProgress) {
			code = http.StatusConflict
		}
		abortWithError(c, code, err)
		return
	}

	logrus.WithField("procedures", plan).Info("calibration run accepted")
	c.IndentedJSON(http.StatusAccepted, RunResponse{Procedures: plan})
}

func (s *Server) postCancel(c *gin.Context) {
	if !s.Cancel() {
		abortWithError(c, http.StatusConflict, errors.New("no calibration run in progress"))
		return
	}
	c.IndentedJSON(http.StatusAccepted, "cancelling")
}

func (s *Server) getPrompt(c *gin.Context) {
	p := s.remote.Pending()
	if p == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.IndentedJSON(http.StatusOK, p)
}

func (s *Server) putPrompt(c *gin.Context) {
	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	if err := s.remote.Answer(req.ID, req.Answer); err != nil {
		code := http.StatusInternalServerError
		switch {
		case errors.Is(err, operator.ErrNoPendingPrompt):
			code = http.StatusNotFound
		case errors.Is(err, operator.ErrStalePrompt):
			code = http.StatusConflict
		}
		abortWithError(c, code, err)
		return
	}

	c.IndentedJSON(http.StatusCreated, "ok")
}

func (s *Server) getNotices(c *gin.Context) {
	notices := s.remote.Notices()
	if notices == nil {
		notices = []string{}
	}
	c.IndentedJSON(http.StatusOK, notices)
}

func (s *Server) getResults(c *gin.Context) {
	r, _ := s.current()
	tables := r.Tables()
	if tables == nil {
		tables = []calibration.Table{}
	}
	c.IndentedJSON(http.StatusOK, tables)
}

// getEvents streams hub events as server-sent events until the client
// goes away.
func (s *Server) getEvents(c *gin.Context) {
	ch := s.hub.Subscribe()
	defer s.hub.Unsubscribe(ch)

	c.Header("Cache-Control", "no-cache")
	c.Stream(func(io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, json.RawMessage(ev.Data))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
