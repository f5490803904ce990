package dify

// chatRequest is the body of POST /chat-messages.
type chatRequest struct {
	Inputs         map[string]any `json:"inputs"`
	Query          string         `json:"query"`
	ResponseMode   string         `json:"response_mode"`
	ConversationID string         `json:"conversation_id,omitempty"`
	User           string         `json:"user"`
}

// chatResponse is the blocking response of POST /chat-messages.
type chatResponse struct {
	Event          string `json:"event"`
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	Mode           string `json:"mode"`
	Answer         string `json:"answer"`
}

// workflowRequest is the body of POST /workflows/run.
type workflowRequest struct {
	Inputs       map[string]any `json:"inputs"`
	ResponseMode string         `json:"response_mode"`
	User         string         `json:"user"`
}

// workflowResponse is the blocking response of POST /workflows/run.
type workflowResponse struct {
	WorkflowRunID string `json:"workflow_run_id"`
	TaskID        string `json:"task_id"`
	Data          struct {
		ID      string         `json:"id"`
		Status  string         `json:"status"`
		Outputs map[string]any `json:"outputs"`
		Error   string         `json:"error"`
	} `json:"data"`
}

// errorResponse is the body Dify returns with non-2xx statuses.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}
