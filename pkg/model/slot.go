package model

// AvailableSlot is one candidate appointment window proposed by a slot
// search. Derived, never persisted.
type AvailableSlot struct {
	EmployeeID   string `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	Available    bool   `json:"available"`
}

// SlotSuggestion names the nearest open window when a requested slot is
// rejected, so callers can offer a fallback instead of a bare failure.
type SlotSuggestion struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// AvailabilityCheck is the structured answer to "is this employee free for
// this window?". Reason and Suggestion are only set when Available is false.
type AvailabilityCheck struct {
	Available  bool            `json:"available"`
	Reason     string          `json:"reason,omitempty"`
	Suggestion *SlotSuggestion `json:"suggestion,omitempty"`
}
