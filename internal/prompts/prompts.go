// Package prompts builds the instructions sent to backends at each stage.
// Wording is free to change; callers rely only on the JSON shapes named here.
package prompts

import (
	"fmt"
	"strings"

	"github.com/ppiankov/lemmata/internal/model"
)

const mathFormatting = `Formatting:
- Markdown with LaTeX math: inline $...$, display $$...$$ on separate lines.
- Standard macros only (\mathbb{}, \pmod{}, \sum, \prod, \forall, \exists).
- Optionally open with a bold "Proof." and close with ∎.
- Keep the argument self-contained, rigorous and concise.`

// ProverSystem instructs a prover that answers with {"proof_markdown"}
const ProverSystem = `You are a rigorous mathematician who writes complete, correct proofs.
Reply with a JSON object holding one field, "proof_markdown": the proof body in Markdown.
The proof text starts at the first character of that field.

` + mathFormatting + `

For Euclidean geometry, a complex-number argument is welcome but not required.
Reply with the JSON object only.`

// JudgeSystem instructs a judge that answers with {"correctness","feedback"}
const JudgeSystem = `You are a strict referee of mathematical proofs. Assess conservatively.
A proof is correct only if every step is justified.
Reply with a JSON object with fields:
- "correctness": true only when the proof is complete and rigorous
- "feedback": when incorrect, the first logical flaw and why it is a flaw; when correct, "No flaws found."
Do not suggest fixes. Do not penalize a correct proof for its choice of method.
Reply with the JSON object only.`

// FinalJudgeSystem instructs the selector of the least incorrect attempt
const FinalJudgeSystem = `You are a referee choosing among several flawed proof attempts.
Pick the attempt that is closest to correct, the one needing the smallest repair.
Reply with a JSON object with one field, "chosen_index": the 0-based index of that attempt.`

// RefineSystem instructs the statement/proof editor
const RefineSystem = `You are a careful mathematical editor. Given a statement and its proof:
1. Drop hypotheses of the statement the proof never uses.
2. If the proof actually refutes the statement, replace the statement with the corrected
   version and rewrite the proof as an argument by contradiction.
3. Remove provisional markers from the statement such as "(Conjecture)" or "(Conjecture 3)".
Reply with a JSON object with fields:
- "new_statement": the refined statement
- "new_proof_markdown": the proof of the refined statement in Markdown
- "changed": whether anything was changed
Keep LaTeX in Markdown. Reply with the JSON object only.`

// TightenSystem instructs the statement tightener
const TightenSystem = `You are a careful mathematical editor. Given a statement with a valid proof,
decide whether the proof supports a strictly tighter statement: weaker hypotheses or a
stronger conclusion that the same argument, lightly adapted, still proves.
Reply with a JSON object with fields:
- "can_tighten": true only when you are confident
- "updated_statement": the tighter statement, empty otherwise
- "updated_proof": the adapted proof in Markdown, empty otherwise
When unsure, set "can_tighten" to false. Reply with the JSON object only.`

// LiteratureSystem instructs the literature reviewer
const LiteratureSystem = `You are a research assistant surveying known mathematics around given seed results.
Reply with a JSON object with fields:
- "annotations": Markdown fixing the notation and conventions every statement below uses
- "results": an array of objects {"statement": ..., "url": ...}; each statement is a clean LaTeX
  result in that notation and each url points to a reliable source
List the seeds first, tagged with the url "seed://input" when they have no source.
Prefer surveys, peer-reviewed papers, reputable preprints and textbooks.`

// PredictSystem instructs the conjecture generator
const PredictSystem = `You are a bold but careful research mathematician. From trusted known results
and shared notation, propose likely-new results that extend or combine them.
Reply with a JSON object with fields:
- "annotations": the notation your statements use (refine the given one if needed)
- "predicted_results": an array of self-contained LaTeX statements
Avoid trivial corollaries, renamings, constant tweaks and obvious special cases.
Prefer a few sharp statements over many weak ones.`

// NoveltySystem instructs the novelty reviewer
const NoveltySystem = `You are a reviewer deciding whether a proposed result is already known.
If the same statement (up to renaming or obvious equivalence) or a strictly stronger one is
known, it is not novel. Weaker or special cases alone do not make it known.
Reply with a JSON object with fields:
- "is_novel": boolean
- "matched_statement": the known statement when not novel, empty otherwise
- "matched_url": a source for it when not novel, empty otherwise`

// ReportSystem instructs the report editor
const ReportSystem = `You are a mathematical editor compiling a research report in Markdown with KaTeX-safe LaTeX.
Structure: a short preface, a table of contents, an "Annotations" section, a "Known Results"
section with sources, then one subsection per new result with its statement and a proof that
opens with a bold "Proof." and ends with ∎.
KaTeX safety: only $...$ and $$...$$ math; no \begin/\end environments, \label, \ref, \tag,
\newcommand or \def; balanced (), [] and {}; no code fences anywhere.
Check your draft with the validate_markdown tool when it is available.
Reply with a JSON object with one field, "report_markdown".`

// OpenProblemSystem instructs the literature reviewer in open-problem mode
const OpenProblemSystem = `You are a research assistant preparing to attack an open problem.
Reply with a JSON object with fields:
- "annotations": Markdown fixing notation for the problem
- "results": an array of objects {"statement": ..., "url": ...} with known partial results,
  reductions and tools relevant to the problem, each with a reliable source
List the problem itself first with the url "problem://input".`

// Prove builds the first prover turn. Literature items may be cited without proof.
func Prove(statement model.Statement, lit *model.Literature) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Prove the following statement.\n\nStatement:\n%s\n", statement)
	writeTrusted(&b, lit)
	b.WriteString("\nReply with the JSON object only.")
	return b.String()
}

// Reprove builds a revision turn from the previous attempt and the referee's feedback
func Reprove(statement model.Statement, previous model.Proof, feedback string, lit *model.Literature) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Revise your proof of the statement below to fix the flaw the referee found.
Keep the approach when the flaw is local; switch approach when it is fundamental.

Statement:
%s

Previous proof:
%s

Referee feedback:
%s
`, statement, previous, feedback)
	writeTrusted(&b, lit)
	b.WriteString("\nReply with the JSON object {\"proof_markdown\": ...} only.")
	return b.String()
}

// Judge builds a judging turn. Literature items are trusted and their use is not a gap.
func Judge(statement model.Statement, proof model.Proof, lit *model.Literature) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Assess whether the proof below establishes the statement.\n\nStatement:\n%s\n\nProof:\n%s\n", statement, proof)
	if lit != nil && len(lit.Items) > 0 {
		b.WriteString("\nThese results are trusted; citing them is not a gap:\n")
		writeLiterature(&b, *lit)
	}
	return b.String()
}

// FinalJudge builds the selection turn over several attempts
func FinalJudge(statement model.Statement, proofs []model.Proof) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Statement:\n%s\n\n", statement)
	for i, p := range proofs {
		fmt.Fprintf(&b, "Attempt %d:\n%s\n\n", i, p)
	}
	b.WriteString("Reply with {\"chosen_index\": N} only.")
	return b.String()
}

// Refine builds the refinement turn
func Refine(statement model.Statement, proof model.Proof) string {
	return fmt.Sprintf("Statement:\n%s\n\nProof:\n%s\n\nApply the editing rules and reply with the JSON object only.", statement, proof)
}

// Tighten builds the tightening turn
func Tighten(statement model.Statement, proof model.Proof) string {
	return fmt.Sprintf("Statement:\n%s\n\nProof:\n%s\n\nCan the statement be tightened? Reply with the JSON object only.", statement, proof)
}

// Literature builds the literature review turn for the given seeds
func Literature(seeds []model.Statement, limit int) string {
	var b strings.Builder
	b.WriteString("Seed results:\n")
	for _, s := range seeds {
		fmt.Fprintf(&b, "- %s\n", s)
	}
	fmt.Fprintf(&b, "\nList at most %d related known results, seeds included, in one shared notation.", limit)
	return b.String()
}

// OpenProblem builds the literature turn for open-problem mode
func OpenProblem(problem model.Statement, limit int) string {
	return fmt.Sprintf("Open problem:\n%s\n\nList at most %d relevant known results, the problem included.", problem, limit)
}

// Predict builds the conjecture turn. tools names the scratch tools on offer.
func Predict(lit model.Literature, guideline string, tools []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Notation (trusted):\n%s\n\nKnown results (trusted):\n", lit.Notation)
	writeLiterature(&b, lit)
	if guideline != "" {
		fmt.Fprintf(&b, "\nResearch guideline, steer every proposal toward it:\n%s\n", guideline)
	}
	if len(tools) > 0 {
		fmt.Fprintf(&b, "\nUse %s to test small cases and hunt for counterexamples; drop candidates that fail.\n",
			strings.Join(tools, " or "))
	}
	b.WriteString("\nPropose 5 to 15 likely-new, non-trivial results. Reply with the JSON object only.")
	return b.String()
}

// Novelty builds the novelty review turn for one candidate
func Novelty(notation string, candidate model.Statement, known []model.LiteratureItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Notation:\n%s\n\nProposed result:\n%s\n", notation, candidate)
	if len(known) > 0 {
		b.WriteString("\nAlready collected literature:\n")
		writeLiterature(&b, model.Literature{Items: known})
	}
	b.WriteString("\nIs the proposed result novel? Reply with the JSON object only.")
	return b.String()
}

// Report builds the report turn
func Report(lit model.Literature, results []model.ProvenResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Notation:\n%s\n\nKnown results:\n", lit.Notation)
	writeLiterature(&b, lit)
	b.WriteString("\nNew results with proofs:\n")
	for i, r := range results {
		fmt.Fprintf(&b, "\nResult %d:\n%s\n\nProof:\n%s\n", i+1, r.Statement, r.Proof)
	}
	b.WriteString("\nCompile the report and reply with {\"report_markdown\": ...} only.")
	return b.String()
}

// ReportFix asks for a corrected report after validation errors
func ReportFix(errs []string) string {
	var b strings.Builder
	b.WriteString("The report failed Markdown validation:\n")
	for _, e := range errs {
		fmt.Fprintf(&b, "- %s\n", e)
	}
	b.WriteString("\nFix every error and reply with the full corrected {\"report_markdown\": ...} only.")
	return b.String()
}

func writeTrusted(b *strings.Builder, lit *model.Literature) {
	if lit == nil || len(lit.Items) == 0 {
		return
	}
	if lit.Notation != "" {
		fmt.Fprintf(b, "\nNotation:\n%s\n", lit.Notation)
	}
	b.WriteString("\nYou may use without proof:\n")
	writeLiterature(b, *lit)
}

func writeLiterature(b *strings.Builder, lit model.Literature) {
	for i, it := range lit.Items {
		fmt.Fprintf(b, "%d. %s\n", i+1, it)
	}
}
