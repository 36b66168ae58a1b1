package semanticscorer

// singlePageTemplate is rendered with {{url}}, {{title}}, {{description}},
// {{page_text}} and asks for the six narrative fields spec §4.4 requires.
const singlePageTemplate = `Analyze the following web page for a business audience.

URL: {{url}}
Title: {{title}}
Description: {{description}}

Page text (truncated):
{{page_text}}

Respond with a single JSON object with exactly these keys:
{
  "what_it_does": "...",
  "products_services": "...",
  "target_audience": "...",
  "unique_value": "...",
  "clarity_score": <integer 1-10>,
  "overall_impression": "...",
  "suggestions": [{"category": "...", "priority": "critical|high|medium|low", "title": "...", "description": "...", "impact": "..."}]
}

Return JSON only, no commentary.`

// batchCompareTemplate is rendered with {{#competitors}}...{{/competitors}}
// sections, one per CompetitorSummary, for the Aggregator's narrative call.
const batchCompareTemplate = `Compare the following competing web pages.

{{#competitors}}
- {{label}} ({{url}}): {{description}}
  rule_score={{rule_score}} semantic_score={{semantic_score}}
  top_issues: {{#top_issues}}{{.}}; {{/top_issues}}
  top_strengths: {{#top_strengths}}{{.}}; {{/top_strengths}}
{{/competitors}}

Respond with a single JSON object with exactly these keys:
{
  "insights": "...",
  "opportunities": ["...", "..."],
  "threats": ["...", "..."],
  "overall_winner": {"url": "...", "label": "...", "reason": "..."}
}

Return JSON only, no commentary.`
