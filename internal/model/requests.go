package model

// ProgressRequest is the partial update body. Every field is optional; absent
// fields leave stored values untouched.
type ProgressRequest struct {
	Section   *string                `json:"section" binding:"omitempty,max=128"`
	Question  *string                `json:"question" binding:"omitempty,max=128"`
	CursorSeq *int64                 `json:"cursor_seq" binding:"omitempty,min=1"`
	Answers   map[string]AnswerValue `json:"answers" binding:"omitempty,dive,keys,min=1,max=128,endkeys"`
	Codes     map[string]string      `json:"codes" binding:"omitempty,dive,keys,min=1,max=128,endkeys,max=65536"`
	Notes     *string                `json:"notes" binding:"omitempty,max=20000"`
}

// Empty reports whether the update carries nothing to merge. CursorSeq only
// orders a cursor move and is not content on its own.
func (r *ProgressRequest) Empty() bool {
	return r.Section == nil && r.Question == nil &&
		len(r.Answers) == 0 && len(r.Codes) == 0 && r.Notes == nil
}

// MovesCursor reports whether the update carries a section or question.
func (r *ProgressRequest) MovesCursor() bool {
	return r.Section != nil || r.Question != nil
}

// ViolationKind enumerates client-detected integrity events.
type ViolationKind string

const (
	ViolationTabSwitch      ViolationKind = "tab_switch"
	ViolationBlur           ViolationKind = "blur"
	ViolationHidden         ViolationKind = "visibility_hidden"
	ViolationFullscreenExit ViolationKind = "fullscreen_exit"
)

// ViolationRequest reports exactly one event.
type ViolationRequest struct {
	Kind   ViolationKind `json:"kind" binding:"omitempty,oneof=tab_switch blur visibility_hidden fullscreen_exit"`
	Detail string        `json:"detail" binding:"omitempty,max=512"`
}

// SubmitCodeRequest is the body of a judged code submission.
type SubmitCodeRequest struct {
	QuestionKey string `json:"question_key" binding:"required,max=128,question_key"`
	Code        string `json:"code" binding:"required,max=65536"`
	Language    string `json:"language" binding:"required,max=32,language"`
}

// CompleteRequest carries optional final payloads merged before completion.
type CompleteRequest struct {
	Answers map[string]AnswerValue `json:"answers" binding:"omitempty,dive,keys,min=1,max=128,endkeys"`
	Codes   map[string]string      `json:"codes" binding:"omitempty,dive,keys,min=1,max=128,endkeys,max=65536"`
}
