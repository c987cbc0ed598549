package dto

// SetOperatorStatusRequest changes operator availability.
type SetOperatorStatusRequest struct {
	Status string `json:"status"`
}

// OperatorResponse is an operator with its derived load.
type OperatorResponse struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	ActiveChats int    `json:"activeChats"`
}
