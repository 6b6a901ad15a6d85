package service

import (
	"fmt"
	"strings"

	"github.com/cloo-solutions/attestai/internal/domain"
)

// promptTemplate carries the framework-specific instruction wording for one
// template family. The verdict schema is shared; only the auditor framing
// changes per family.
type promptTemplate struct {
	system       string
	instructions string
}

const verdictSchema = `Respond with a single JSON object and nothing else:
{
  "status": "compliant" | "partial" | "missing",
  "confidence": <0-100>,
  "reasoning": "<why the evidence does or does not satisfy the control>",
  "evidence": [
    {
      "text": "<verbatim quote from the evidence corpus>",
      "documentHint": "<source document name if identifiable>",
      "pageHint": <page number if identifiable, else 0>,
      "confidence": <0-100>,
      "relevance": <0-100>
    }
  ]
}
Quote evidence text verbatim from the corpus. If no evidence addresses the control, return status "missing" with confidence 0 and an empty evidence array.`

var genericTemplate = promptTemplate{
	system: "You are a compliance analyst. You assess whether an organization's evidence corpus satisfies a specific regulatory control. Be conservative: claim compliance only when the evidence directly supports it.",
	instructions: "Assess whether the evidence corpus above satisfies the control. " +
		"Mark it compliant only when the evidence clearly covers the full requirement, partial when it covers some but not all of it, and missing when no relevant evidence exists.",
}

var promptTemplates = map[domain.FrameworkFamily]promptTemplate{
	domain.FamilyGeneric: genericTemplate,
	domain.FamilySOC2: {
		system: "You are a SOC 2 auditor evaluating evidence against the Trust Services Criteria. Judge both the design of each control and the evidence that it operates as described.",
		instructions: "Assess whether the evidence corpus above satisfies this Trust Services criterion. " +
			"Compliant requires evidence of both control design and operation; documented intent without operational evidence is at most partial.",
	},
	domain.FamilyISO27001: {
		system: "You are an ISO/IEC 27001 lead auditor evaluating an organization's ISMS evidence against Annex A controls. Look for documented policies, defined responsibilities, and records of execution.",
		instructions: "Assess whether the evidence corpus above satisfies this Annex A control. " +
			"Compliant requires a documented policy or procedure plus evidence it is applied; a policy with no supporting records is at most partial.",
	},
}

// templateFor never fails: unknown families fall back to the generic template
func templateFor(family domain.FrameworkFamily) promptTemplate {
	if t, ok := promptTemplates[family]; ok {
		return t
	}
	return genericTemplate
}

// buildEvaluationPrompt renders the system and user prompt for evaluating one
// control against the organized corpus.
func buildEvaluationPrompt(framework *domain.Framework, control *domain.Control, corpus *domain.OrganizedCorpus) (string, string) {
	tpl := templateFor(framework.Family())

	var b strings.Builder
	fmt.Fprintf(&b, "# Framework\n%s", framework.Name)
	if framework.Version != "" {
		fmt.Fprintf(&b, " (%s)", framework.Version)
	}
	fmt.Fprintf(&b, "\n\n# Control %s: %s\n", control.Code, control.Title)
	fmt.Fprintf(&b, "Requirement: %s\n", control.Requirement)
	if control.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", control.Category)
	}
	fmt.Fprintf(&b, "\n# Evidence Corpus\n%s\n", corpus.Content)
	fmt.Fprintf(&b, "\n# Task\n%s\n\n%s", tpl.instructions, verdictSchema)

	return tpl.system, b.String()
}
