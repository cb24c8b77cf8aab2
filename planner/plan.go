package planner

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Plan is the model's structured strategy for one question. Either
// SolutionCode holds a program whose stdout is the answer, or FinalAnswer
// holds the answer directly. A degraded plan carries the unparseable model
// output in Solution so the chain can still attempt a submission.
type Plan struct {
	Analysis     string   `json:"analysis"`
	DataNeeded   []string `json:"data_needed"`
	Steps        []string `json:"steps"`
	AnswerType   string   `json:"answer_type"`
	SolutionCode string   `json:"solution_code"`
	FinalAnswer  any      `json:"final_answer"`

	// Solution carries raw model text when JSON salvage failed.
	Solution string `json:"solution,omitempty"`
	Degraded bool   `json:"-"`
}

// Answer type labels the model chooses among.
const (
	AnswerNumber  = "number"
	AnswerString  = "string"
	AnswerBoolean = "boolean"
	AnswerObject  = "object"
)

// CoerceAnswer converts a raw textual answer into the declared type. The
// conversion is forgiving: anything that does not parse falls back to the raw
// string rather than failing the question.
func CoerceAnswer(answerType, raw string) any {
	switch answerType {
	case AnswerNumber:
		s := strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
		if strings.Contains(s, ".") {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f
			}
		} else if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		return raw
	case AnswerBoolean:
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "true", "yes", "1":
			return true
		}
		return false
	case AnswerObject:
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err == nil {
			return v
		}
		return raw
	default:
		return raw
	}
}
