package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/health"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/pipeline"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/plan"
)

// ReviewRequest is the body of POST /v1/reviews. Exactly one of Plan (the
// "terraform show -json" document) or PlanURI (s3://bucket/key) is required.
type ReviewRequest struct {
	RunID      string `json:"run_id"`
	Repo       string `json:"repo"`
	SHA        string `json:"sha"`
	BundleHash string `json:"bundle_hash"`

	Plan    json.RawMessage `json:"plan,omitempty"`
	PlanURI string          `json:"plan_uri,omitempty"`

	Policy        json.RawMessage `json:"policy,omitempty"`
	Trust         json.RawMessage `json:"trust,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	SpokeAccounts []string        `json:"spoke_accounts,omitempty"`
}

type errorResponse struct {
	Code        string   `json:"code"`
	Kind        string   `json:"kind,omitempty"`
	Message     string   `json:"message"`
	Retryable   bool     `json:"retryable"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// handleReview returns 200 with the outcome whenever the pipeline produced
// one, including a rejected bundle. Errors without an outcome map by kind.
func (s *Server) handleReview(c *gin.Context) {
	if s.runner == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "NOT_READY", "review pipeline not configured")
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBodyBytes)
	var body ReviewRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}

	ctx := c.Request.Context()
	var (
		changePlan plan.ChangePlan
		err        error
	)
	switch {
	case len(body.Plan) > 0 && body.PlanURI != "":
		writeErrorCode(c, http.StatusBadRequest, "PLAN_AMBIGUOUS", "set either plan or plan_uri, not both")
		return
	case len(body.Plan) > 0:
		changePlan, err = plan.Parse(body.Plan)
		if err != nil {
			err = errors.NewPlanInvalidError("request body", err)
		}
	case strings.HasPrefix(body.PlanURI, "s3://"):
		changePlan, err = plan.Load(ctx, body.PlanURI, s.fetcher)
	default:
		writeErrorCode(c, http.StatusBadRequest, "PLAN_REQUIRED", "plan or an s3:// plan_uri is required")
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	out, err := s.runner.Run(ctx, pipeline.Request{
		RunID:         body.RunID,
		Repo:          body.Repo,
		SHA:           body.SHA,
		BundleHash:    body.BundleHash,
		Plan:          changePlan,
		Policy:        body.Policy,
		Trust:         body.Trust,
		Metadata:      body.Metadata,
		SpokeAccounts: body.SpokeAccounts,
	})
	if out != nil {
		if err != nil {
			c.Header("X-Iamgate-Error-Code", string(errors.CodeOf(err)))
		}
		c.JSON(http.StatusOK, out)
		return
	}
	s.logger.WithError(err).Error("review failed", "repo", body.Repo, "sha", body.SHA)
	writeError(c, err)
}

func (s *Server) handleLiveness(c *gin.Context) {
	writeProbe(c, s.probes.CheckLiveness(c.Request.Context()))
}

func (s *Server) handleReadiness(c *gin.Context) {
	writeProbe(c, s.probes.CheckReadiness(c.Request.Context()))
}

func (s *Server) handleStartup(c *gin.Context) {
	writeProbe(c, s.probes.CheckStartup(c.Request.Context()))
}

func writeProbe(c *gin.Context, res *health.ProbeResult) {
	status := http.StatusOK
	if res.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, res)
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch errors.KindOf(err) {
	case errors.KindInput:
		status = http.StatusBadRequest
	case errors.KindUpstreamTransient:
		status = http.StatusServiceUnavailable
		c.Header("Retry-After", "5")
	case errors.KindPolicyFailClosed:
		status = http.StatusUnprocessableEntity
	}

	resp := errorResponse{
		Code:      string(errors.CodeOf(err)),
		Kind:      string(errors.KindOf(err)),
		Message:   err.Error(),
		Retryable: errors.IsRetryable(err),
	}
	var ge *errors.GateError
	if errors.As(err, &ge) {
		resp.Suggestions = ge.Suggestions
	}
	if resp.Code == "" {
		resp.Code = "INTERNAL"
	}
	c.JSON(status, resp)
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{Code: code, Message: message})
}
