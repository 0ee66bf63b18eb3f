package server

import (
	"github.com/ppiankov/lemmata/internal/model"
	"github.com/ppiankov/lemmata/internal/research"
)

// ResearchRequest is the body of POST /v1/research
type ResearchRequest struct {
	Seeds []string `json:"seeds" binding:"required,min=1,dive,required"`
}

// ProveRequest is the body of POST /v1/prove
type ProveRequest struct {
	Statement string `json:"statement" binding:"required"`
}

// SolveRequest is the body of POST /v1/solve
type SolveRequest struct {
	Problem       string `json:"problem" binding:"required"`
	MaxIterations int    `json:"max_iterations" binding:"omitempty,min=1,max=20"`
}

// StageView is the wire form of one stage status
type StageView struct {
	Stage  string `json:"stage"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ResearchResponse is the reply to POST /v1/research
type ResearchResponse struct {
	RunID      string               `json:"run_id"`
	Literature model.Literature     `json:"literature"`
	Candidates []model.Statement    `json:"candidates"`
	Novel      []model.Statement    `json:"novel"`
	Results    []model.ProvenResult `json:"results"`
	Report     string               `json:"report_markdown"`
	Degraded   bool                 `json:"degraded"`
	Stages     []StageView          `json:"stages"`
}

// ProveResponse is the reply to POST /v1/prove
type ProveResponse struct {
	Accepted bool   `json:"accepted"`
	Proof    string `json:"proof_markdown,omitempty"`
	Feedback string `json:"feedback,omitempty"`
	Rounds   int    `json:"rounds"`
}

// SolveResponse is the reply to POST /v1/solve
type SolveResponse struct {
	Status        string                 `json:"status"` // solved or failed
	Proof         string                 `json:"proof_markdown,omitempty"`
	Feedback      string                 `json:"feedback,omitempty"`
	Annotations   string                 `json:"annotations"`
	Related       []model.LiteratureItem `json:"related_results"`
	MaxIterations int                    `json:"max_iterations"`
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func researchResponse(r *research.Result) ResearchResponse {
	stages := make([]StageView, 0, len(r.Stages))
	for _, s := range r.Stages {
		v := StageView{Stage: s.Stage, Status: s.Status.String()}
		if s.Err != nil {
			v.Error = s.Err.Error()
		}
		stages = append(stages, v)
	}
	return ResearchResponse{
		RunID:      r.RunID,
		Literature: r.Literature,
		Candidates: nonNil(r.Candidates),
		Novel:      nonNil(r.Novel),
		Results:    nonNil(r.Results),
		Report:     r.Report,
		Degraded:   r.Degraded(),
		Stages:     stages,
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
