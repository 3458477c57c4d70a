package sessioncache

import (
	"github.com/mptyl/thoth-sqlcore/internal/agentpkg"
	"github.com/mptyl/thoth-sqlcore/internal/workspace"
)

// DefaultTemplates builds the built-in prompt set, one entry per
// workspace.AgentKind, that an AgentConfig.TemplateKey conventionally names.
// Cache.build uses this set for every workspace; there is no per-workspace
// or on-disk override.
func DefaultTemplates() (*agentpkg.TemplateLoader, error) {
	return agentpkg.NewTemplateLoader(map[string]agentpkg.Template{
		string(workspace.KindValidator): {
			SystemTemplate: "You check whether a natural-language question can plausibly be answered by a SQL query over a relational database. Respond with exactly `true` or `false`.",
			UserTemplate:   "Question: {{.Question}}",
		},
		string(workspace.KindTranslator): {
			SystemTemplate: "Translate the user's question into {{.TargetLanguage}}, preserving every named entity and number exactly. Respond with the translated question only.",
			UserTemplate:   "Question: {{.Question}}\nTarget language: {{.TargetLanguage}}",
		},
		string(workspace.KindKeywordExtract): {
			SystemTemplate: "Extract the ordered list of keyword tokens from the question that are most likely to name schema entities (tables, columns) or filter values. Respond with a JSON array of strings.",
			UserTemplate:   "Question: {{.Question}}",
		},
		string(workspace.KindSQLBasic): {
			SystemTemplate: "You write a single {{.Dialect}} SQL query answering the question, using only the schema and evidence below. Respond with the SQL statement only, no commentary.\n\nSchema:\n{{.MSchema}}\n\nEvidence:\n{{.Evidence}}\n\nExamples:\n{{.Examples}}",
			UserTemplate:   "Question: {{.Question}}",
		},
		string(workspace.KindSQLAdvanced): {
			SystemTemplate: "You write a single {{.Dialect}} SQL query answering the question. Think step by step about joins and aggregation before producing the final statement, using only the schema and evidence below. Respond with the SQL statement only.\n\nSchema:\n{{.MSchema}}\n\nEvidence:\n{{.Evidence}}\n\nExamples:\n{{.Examples}}",
			UserTemplate:   "Question: {{.Question}}",
		},
		string(workspace.KindSQLExpert): {
			SystemTemplate: "You are an expert {{.Dialect}} query author. Decompose the question into sub-questions, solve each against the schema and evidence below, then compose the final single SQL statement. Respond with the SQL statement only.\n\nSchema:\n{{.MSchema}}\n\nEvidence:\n{{.Evidence}}\n\nExamples:\n{{.Examples}}",
			UserTemplate:   "Question: {{.Question}}",
		},
		string(workspace.KindTestGen): {
			SystemTemplate: "Generate test assertions that check whether a candidate SQL query correctly answers the question. Each assertion's expected_behavior field is itself {{.Dialect}} SQL containing a candidate-SQL placeholder token (substituted with the candidate statement before execution), returning a single boolean/0-1 value when run. Mark evidence_critical true only for assertions that directly encode a fact pulled from the evidence below. Respond with a JSON array of objects: [{\"text\": ..., \"expected_behavior\": ..., \"evidence_critical\": ...}].\n\nSchema:\n{{.MSchema}}\n\nEvidence:\n{{.Evidence}}",
			UserTemplate:   "Question: {{.Question}}",
		},
		string(workspace.KindSelectorAgent): {
			SystemTemplate: "Exactly one of the tied candidate SQL statements below is the best answer to the question; the rest are equally-scoring but wrong in some subtle way you must judge. Respond with the index only.",
			UserTemplate:   "Question: {{.Question}}",
		},
		string(workspace.KindSupervisorAgent): {
			SystemTemplate: "A candidate SQL query scored {{.PassRate}} against the test suite, below this workspace's {{.Threshold}} acceptance threshold. Decide whether it is still an acceptable answer to the question. Respond with exactly `true` or `false`.\n\nSQL:\n{{.SQL}}",
			UserTemplate:   "Question: {{.Question}}",
		},
		string(workspace.KindExplainer): {
			SystemTemplate: "Explain, in {{.Language}}, in plain language a non-technical reader can follow, what the SQL query below computes and why it answers the question. Do not mention SQL syntax.\n\nSchema:\n{{.MSchema}}\n\nEvidence:\n{{.Evidence}}\n\nSQL:\n{{.SQL}}",
			UserTemplate:   "Question: {{.Question}}",
		},
	})
}
