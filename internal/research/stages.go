package research

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/lemmata/internal/completion"
	"github.com/ppiankov/lemmata/internal/config"
	"github.com/ppiankov/lemmata/internal/llm"
	"github.com/ppiankov/lemmata/internal/metrics"
	"github.com/ppiankov/lemmata/internal/model"
	"github.com/ppiankov/lemmata/internal/prompts"
	"github.com/ppiankov/lemmata/internal/tools"
	"github.com/ppiankov/lemmata/internal/worker"
)

// PlaceholderReport is returned when no report could be generated at all
const PlaceholderReport = "# Research Report\n\n_No content due to upstream model failures._"

type literatureEntry struct {
	Statement string `json:"statement"`
	URL       string `json:"url"`
}

type literatureResponse struct {
	Annotations string            `json:"annotations"`
	Results     []literatureEntry `json:"results"`
}

func (r literatureResponse) literature() model.Literature {
	lit := model.Literature{Notation: r.Annotations}
	for _, e := range r.Results {
		s := strings.TrimSpace(e.Statement)
		if s == "" {
			continue
		}
		lit.Items = append(lit.Items, model.LiteratureItem{Statement: s, Source: strings.TrimSpace(e.URL)})
	}
	return lit
}

type predictionResponse struct {
	Annotations      string   `json:"annotations"`
	PredictedResults []string `json:"predicted_results"`
}

// NoveltyVerdict is the novelty reviewer's decision on one candidate
type NoveltyVerdict struct {
	IsNovel          bool   `json:"is_novel"`
	MatchedStatement string `json:"matched_statement,omitempty"`
	MatchedURL       string `json:"matched_url,omitempty"`
}

type reportResponse struct {
	ReportMarkdown string `json:"report_markdown" validate:"required"`
}

// Prediction is the candidate list produced from one literature set
type Prediction struct {
	Notation   string
	Candidates []model.Statement
}

// Filtered is the outcome of the novelty filter. Literature includes every
// known result the reviewer matched against a dropped candidate.
type Filtered struct {
	Novel      []model.Statement
	Literature model.Literature
}

// Literature reviews known results around seeds. The seeds always lead the
// returned literature, followed by at most LiteratureCap reviewed results; on
// failure the seeds are all it contains.
func (o *Orchestrator) Literature(ctx context.Context, seeds []model.Statement) StageResult[model.Literature] {
	seeds = model.DedupeStatements(seeds)
	limit := o.cfg.Research.LiteratureCap
	conv := llm.NewConversation(
		llm.System(prompts.LiteratureSystem),
		llm.User(prompts.Literature(seeds, limit)),
	)
	return o.review(ctx, conv, seeds, model.SourceSeed, limit)
}

// ProblemLiterature collects results relevant to an open problem, which is
// listed first.
func (o *Orchestrator) ProblemLiterature(ctx context.Context, problem model.Statement) StageResult[model.Literature] {
	conv := llm.NewConversation(
		llm.System(prompts.OpenProblemSystem),
		llm.User(prompts.OpenProblem(problem, ProblemLiteratureCap)),
	)
	return o.review(ctx, conv, []model.Statement{problem}, model.SourceProblem, ProblemLiteratureCap)
}

func (o *Orchestrator) review(ctx context.Context, conv llm.Conversation, seeds []model.Statement, source string,
	limit int) StageResult[model.Literature] {
	o.logger.Info("literature review: start", zap.Int("seeds", len(seeds)))

	req := completion.ForStage(o.cfg.Pipeline.Literature, conv)
	req.SchemaName = "literature"

	var resp literatureResponse
	if _, err := o.completer.Complete(ctx, req, &resp); err != nil {
		o.logger.Warn("literature review failed, continuing with seeds only", zap.Error(err))
		lit := model.Literature{}.WithSeedsFirst(seeds, source)
		return Degraded(config.StageLiterature, lit, err)
	}

	// The cap bounds reviewed results only; every seed is kept.
	lit := resp.literature().WithSeedsFirst(seeds, source)
	if limit > 0 {
		lit = lit.Cap(len(model.DedupeStatements(seeds)) + limit)
	}
	if o.sources != nil {
		lit = o.sources.Annotate(ctx, lit)
	}
	o.logger.Info("literature review: done", zap.Int("results", len(lit.Items)))
	return Ok(config.StageLiterature, lit)
}

// Predict proposes candidate results from lit. Scratch tools are offered so
// the backend can test small cases. Output that never parses is retried a
// few times before the stage gives up with zero candidates.
func (o *Orchestrator) Predict(ctx context.Context, lit model.Literature) StageResult[Prediction] {
	scratch := o.tools.Subset(tools.RunPythonTool, tools.RunGoTool)
	conv := llm.NewConversation(
		llm.System(prompts.PredictSystem),
		llm.User(prompts.Predict(lit, o.cfg.Research.Guideline, tools.ScratchTools(scratch))),
	)
	req := completion.ForStage(o.cfg.Pipeline.Prediction, conv)
	req.Tools = scratch
	req.SchemaName = "prediction"

	o.logger.Info("prediction: start", zap.Int("literature", len(lit.Items)))
	empty := Prediction{Notation: lit.Notation}
	attempts := o.cfg.Research.PredictionRetries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		var resp predictionResponse
		_, err := o.completer.Complete(ctx, req, &resp)
		if err == nil {
			pred := Prediction{Notation: resp.Annotations, Candidates: candidates(resp.PredictedResults, lit)}
			if pred.Notation == "" {
				pred.Notation = lit.Notation
			}
			o.logger.Info("prediction: done", zap.Int("candidates", len(pred.Candidates)))
			return Ok(config.StagePrediction, pred)
		}
		lastErr = err
		if llm.KindOf(err) != llm.KindValidation || ctx.Err() != nil {
			break
		}
		o.logger.Warn("prediction output unusable, retrying",
			zap.Int("attempt", attempt),
			zap.Int("attempts", attempts),
			zap.Error(err))
	}

	o.logger.Warn("prediction failed, no new candidates", zap.Error(lastErr))
	return Degraded(config.StagePrediction, empty, lastErr)
}

// candidates trims and dedupes predictions and drops restatements of known results
func candidates(predicted []string, lit model.Literature) []model.Statement {
	known := make(map[model.Statement]bool, len(lit.Items))
	for _, s := range lit.Statements() {
		known[s] = true
	}
	out := make([]model.Statement, 0, len(predicted))
	for _, p := range predicted {
		p = strings.TrimSpace(p)
		if !known[p] {
			out = append(out, p)
		}
	}
	return model.DedupeStatements(out)
}

// FilterNovel checks every candidate concurrently. A candidate survives only
// on an explicit novel verdict: any failure drops it. Known matches are
// folded into the returned literature.
func (o *Orchestrator) FilterNovel(ctx context.Context, lit model.Literature, candidates []model.Statement) StageResult[Filtered] {
	tasks := make([]worker.Task[model.Statement, NoveltyVerdict], len(candidates))
	for i, c := range candidates {
		tasks[i] = worker.Task[model.Statement, NoveltyVerdict]{Key: c, Run: func(ctx context.Context) (NoveltyVerdict, error) {
			return o.checkNovelty(ctx, lit, c)
		}}
	}

	verdicts := make(map[model.Statement]NoveltyVerdict, len(candidates))
	worker.Stream(ctx, o.noveltyPool, tasks, func(r worker.Result[model.Statement, NoveltyVerdict]) {
		if r.Err != nil {
			metrics.NoveltyVerdicts.WithLabelValues("failed").Inc()
			o.logger.Warn("novelty check failed, dropping candidate",
				zap.String("statement", model.Truncate(r.Key, 80)),
				zap.Error(r.Err))
			return
		}
		verdicts[r.Key] = r.Value
	})

	out := Filtered{Literature: lit}
	seen := make(map[model.Statement]bool, len(lit.Items))
	for _, s := range lit.Statements() {
		seen[s] = true
	}
	folded := 0
	for _, c := range candidates {
		v, ok := verdicts[c]
		switch {
		case !ok:
		case v.IsNovel:
			metrics.NoveltyVerdicts.WithLabelValues("novel").Inc()
			out.Novel = append(out.Novel, c)
		default:
			metrics.NoveltyVerdicts.WithLabelValues("known").Inc()
			matched := strings.TrimSpace(v.MatchedStatement)
			if matched == "" || strings.TrimSpace(v.MatchedURL) == "" || seen[matched] {
				continue
			}
			seen[matched] = true
			out.Literature = out.Literature.Append(model.LiteratureItem{Statement: matched, Source: strings.TrimSpace(v.MatchedURL)})
			folded++
		}
	}

	o.logger.Info("novelty check: done",
		zap.Int("kept", len(out.Novel)),
		zap.Int("candidates", len(candidates)),
		zap.Int("folded_known", folded))
	return Ok(config.StageNovelty, out)
}

func (o *Orchestrator) checkNovelty(ctx context.Context, lit model.Literature, candidate model.Statement) (NoveltyVerdict, error) {
	if v, ok := o.verdicts.Get(candidate); ok {
		metrics.NoveltyVerdicts.WithLabelValues("cached").Inc()
		return v, nil
	}

	conv := llm.NewConversation(
		llm.System(prompts.NoveltySystem),
		llm.User(prompts.Novelty(lit.Notation, candidate, lit.Items)),
	)
	req := completion.ForStage(o.cfg.Pipeline.Novelty, conv)
	req.SchemaName = "novelty"

	var v NoveltyVerdict
	if _, err := o.completer.Complete(ctx, req, &v); err != nil {
		return NoveltyVerdict{}, err
	}
	if err := o.verdicts.Put(candidate, v); err != nil {
		o.logger.Debug("could not cache novelty verdict", zap.Error(err))
	}
	return v, nil
}

// Report compiles the final document. Validation errors are fed back for a
// bounded number of rounds, after which the last attempt is returned.
func (o *Orchestrator) Report(ctx context.Context, lit model.Literature, results []model.ProvenResult) StageResult[string] {
	rounds := o.cfg.Research.ReportRounds
	if rounds < 1 {
		rounds = 1
	}
	conv := llm.NewConversation(
		llm.System(prompts.ReportSystem),
		llm.User(prompts.Report(lit, results)),
	)
	validator := o.tools.Subset(tools.ValidateMarkdownTool)

	o.logger.Info("report: start", zap.Int("literature", len(lit.Items)), zap.Int("results", len(results)))

	var last string
	var lastErrs []string
	for round := 1; round <= rounds; round++ {
		req := completion.ForStage(o.cfg.Pipeline.Reporting, conv)
		req.Tools = validator
		req.SchemaName = "report"

		var resp reportResponse
		raw, err := o.completer.Complete(ctx, req, &resp)
		if err != nil {
			if last != "" {
				o.logger.Warn("report generation failed, returning last attempt", zap.Error(err))
				return Degraded(config.StageReporting, last, err)
			}
			o.logger.Warn("report generation failed, returning placeholder", zap.Error(err))
			return Degraded(config.StageReporting, PlaceholderReport, err)
		}

		last = resp.ReportMarkdown
		check := tools.ValidateMarkdown(last)
		if check.OK {
			o.logger.Info("report: valid markdown", zap.Int("length", len(last)), zap.Int("round", round))
			return Ok(config.StageReporting, last)
		}

		lastErrs = check.Errors
		o.logger.Info("report failed validation",
			zap.Int("round", round),
			zap.Int("rounds", rounds),
			zap.Int("errors", len(check.Errors)))
		conv = conv.With(llm.Assistant(raw), llm.User(prompts.ReportFix(check.Errors)))
	}

	err := fmt.Errorf("report still invalid after %d rounds: %w", rounds, errors.New(strings.Join(lastErrs, "; ")))
	o.logger.Info("report: returning best effort", zap.Int("rounds", rounds))
	return Degraded(config.StageReporting, last, err)
}
