package audit

// SendSessionWarned records a warning.
func (a *FileAppender) SendSessionWarned(sessionID, userID, round, cause string, count int, message string) error {
	return a.Append(Record{
		Event:     EventSessionWarned,
		SessionID: sessionID,
		UserID:    userID,
		Round:     round,
		Details:   map[string]any{"cause": cause, "count": count, "message": message},
	})
}

// SendSessionTerminated records a termination and whether its policy
// action failed.
func (a *FileAppender) SendSessionTerminated(sessionID, userID, round, cause, message string, resetErr error) error {
	details := map[string]any{"cause": cause, "message": message}
	if resetErr != nil {
		details["error"] = resetErr.Error()
	}
	return a.Append(Record{
		Event:     EventSessionTerminated,
		SessionID: sessionID,
		UserID:    userID,
		Round:     round,
		Details:   details,
	})
}

// SendFlowReset records that a user's rounds were cleared.
func (a *FileAppender) SendFlowReset(userID, reason string) error {
	return a.Append(Record{
		Event:   EventFlowReset,
		UserID:  userID,
		Details: map[string]any{"reason": reason},
	})
}
