package validation

// RouteRequest is the input of the primary unit taken from the route path.
type RouteRequest struct {
	Date string `validate:"required,route_date"`
}

// RecordInput is the shape a success payload must have to be persisted.
type RecordInput struct {
	EmployeeID          string `validate:"required,max=256"`
	EmployeeName        string `validate:"required,max=256"`
	EmployeeAge         string `validate:"omitempty,max=256"`
	EmployeeDesignation string `validate:"omitempty,max=256"`
}

// ValidationError is returned when an input fails validation.
type ValidationError struct {
	Msg    string
	Fields map[string]string
}

func (e *ValidationError) Error() string { return e.Msg }
