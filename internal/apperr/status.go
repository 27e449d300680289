package apperr

// Status is the tagged outcome of a mutating operation as rendered to the
// presentation layer: either a success payload or a structured error.
type Status struct {
	Status  string `json:"status"`
	ID      *int64 `json:"id,omitempty"`
	Kind    Kind   `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

// Success builds a success status carrying the id of the affected record.
func Success(id int64, message string) Status {
	return Status{Status: "success", ID: &id, Message: message}
}

// Failure builds an error status from err. Errors that are not domain errors
// are reported as "internal" without leaking their text.
func Failure(err error) Status {
	if kind := KindOf(err); kind != "" {
		return Status{Status: "error", Kind: kind, Message: err.Error()}
	}
	return Status{Status: "error", Kind: "internal", Message: "internal error"}
}

// IsSuccess reports whether s carries a success payload.
func (s Status) IsSuccess() bool {
	return s.Status == "success"
}
