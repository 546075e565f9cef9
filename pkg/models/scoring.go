package models

// SubmittedAnswer is one answer in a scoring submission.
type SubmittedAnswer struct {
	TaskID          string `json:"task_id"`
	SubmittedAnswer string `json:"submitted_answer"`
}

// Submission is the payload posted to the scoring API.
type Submission struct {
	Username  string            `json:"username"`
	AgentCode string            `json:"agent_code"`
	Answers   []SubmittedAnswer `json:"answers"`
}

// SubmissionResult is the scoring API's verdict.
type SubmissionResult struct {
	Username       string  `json:"username"`
	Score          float64 `json:"score"`
	CorrectCount   int     `json:"correct_count"`
	TotalAttempted int     `json:"total_attempted"`
	Message        string  `json:"message"`
}
