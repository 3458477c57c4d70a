// Package wire implements the line-oriented stream frame grammar
// PipelineController emits over /generate-sql (spec §6), grounded on
// sse/server.go's flusher-based write loop adapted from SSE's "event:
// data:\n\n" framing to the flat "prefix:payload\n" grammar this protocol
// uses instead.
package wire

import (
	"encoding/json"
	"fmt"
)

// Prefix is one of the nine frame kinds the grammar allows.
type Prefix string

const (
	PrefixLog          Prefix = "THOTHLOG"
	PrefixSQLFormatted Prefix = "SQL_FORMATTED"
	PrefixSQLReady     Prefix = "SQL_READY"
	PrefixSQLExplain   Prefix = "SQL_EXPLANATION"
	PrefixQueryError   Prefix = "QUERY_ERROR"
	PrefixCritical     Prefix = "CRITICAL_ERROR"
	PrefixWarning      Prefix = "SYSTEM_WARNING"
	PrefixResult       Prefix = "RESULT"
	PrefixCancelled    Prefix = "CANCELLED"
)

// Frame is one emitted line, pre-serialization.
type Frame struct {
	Prefix  Prefix
	Payload any // string for free-text prefixes, a struct for JSON ones
}

// SQLReadyPayload backs SQL_READY (spec §4.1).
type SQLReadyPayload struct {
	SQL         string `json:"sql"`
	WorkspaceID int64  `json:"workspace_id"`
	SQLStatus   string `json:"sql_status"`
}

// SQLExplanationPayload backs SQL_EXPLANATION.
type SQLExplanationPayload struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// ErrorPayload backs QUERY_ERROR and CRITICAL_ERROR (spec §7's structured
// { type, component, message, impact, action } shape).
type ErrorPayload struct {
	Type      string `json:"type"`
	Component string `json:"component"`
	Message   string `json:"message"`
	Impact    string `json:"impact"`
	Action    string `json:"action"`
}

// ResultPayload backs RESULT, the terminal marker for the selection phase.
type ResultPayload struct {
	Success     bool   `json:"success"`
	SelectedSQL string `json:"selected_sql,omitempty"`
}

var freeText = map[Prefix]bool{
	PrefixLog:       true,
	PrefixWarning:   true,
	PrefixCancelled: true,
}

// Encode renders f as one grammar line including the trailing newline.
func Encode(f Frame) (string, error) {
	if freeText[f.Prefix] {
		text, ok := f.Payload.(string)
		if !ok {
			return "", fmt.Errorf("wire: %s payload must be a string, got %T", f.Prefix, f.Payload)
		}
		return string(f.Prefix) + ":" + text + "\n", nil
	}

	payload, err := json.Marshal(f.Payload)
	if err != nil {
		return "", fmt.Errorf("wire: marshal %s payload: %w", f.Prefix, err)
	}
	return string(f.Prefix) + ":" + string(payload) + "\n", nil
}

// Log builds a THOTHLOG frame.
func Log(text string) Frame { return Frame{Prefix: PrefixLog, Payload: text} }

// Warning builds a SYSTEM_WARNING frame.
func Warning(text string) Frame { return Frame{Prefix: PrefixWarning, Payload: text} }

// Cancelled builds a CANCELLED frame.
func Cancelled() Frame { return Frame{Prefix: PrefixCancelled, Payload: "cancelled"} }

// SQLFormatted builds a SQL_FORMATTED frame from dialect-corrected,
// pretty-printed SQL text.
func SQLFormatted(sql string) Frame {
	return Frame{Prefix: PrefixSQLFormatted, Payload: struct {
		SQL string `json:"sql"`
	}{SQL: sql}}
}

// SQLReady builds a SQL_READY frame.
func SQLReady(p SQLReadyPayload) Frame { return Frame{Prefix: PrefixSQLReady, Payload: p} }

// SQLExplanation builds a SQL_EXPLANATION frame.
func SQLExplanation(p SQLExplanationPayload) Frame {
	return Frame{Prefix: PrefixSQLExplain, Payload: p}
}

// QueryError builds a QUERY_ERROR frame.
func QueryError(p ErrorPayload) Frame { return Frame{Prefix: PrefixQueryError, Payload: p} }

// CriticalError builds a CRITICAL_ERROR frame, always terminal.
func CriticalError(p ErrorPayload) Frame { return Frame{Prefix: PrefixCritical, Payload: p} }

// Result builds the terminal RESULT frame.
func Result(p ResultPayload) Frame { return Frame{Prefix: PrefixResult, Payload: p} }
