package employees

import "time"

// Record is the item stored in the employees table.
// Primary key is (employeeid, employeename); the secondary index is keyed
// (employeeage, employeedesignation) with every attribute projected.
type Record struct {
	EmployeeID          string    `dynamodbav:"employeeid" json:"employee_id"`     // PK
	EmployeeName        string    `dynamodbav:"employeename" json:"employee_name"` // SK
	EmployeeAge         string    `dynamodbav:"employeeage,omitempty" json:"employee_age,omitempty"`
	EmployeeDesignation string    `dynamodbav:"employeedesignation,omitempty" json:"employee_designation,omitempty"`
	RequestID           string    `dynamodbav:"request_id,omitempty" json:"request_id,omitempty"`
	RequestDate         string    `dynamodbav:"request_date,omitempty" json:"request_date,omitempty"`
	Payload             string    `dynamodbav:"payload,omitempty" json:"payload,omitempty"` // raw success payload
	RecordedAt          time.Time `dynamodbav:"recorded_at" json:"recorded_at"`             // outcome timestamp, stable across redeliveries
}

// Attribute names used in key conditions.
const (
	attrEmployeeID          = "employeeid"
	attrEmployeeName        = "employeename"
	attrEmployeeAge         = "employeeage"
	attrEmployeeDesignation = "employeedesignation"
)
