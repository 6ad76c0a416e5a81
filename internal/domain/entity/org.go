package entity

// Employee is a node of the organisational hierarchy
type Employee struct {
	EmployeeID     string `json:"employee_id" yaml:"employee_id"`
	EmployeeName   string `json:"employee_name" yaml:"employee_name"`
	ManagerID      string `json:"manager_id,omitempty" yaml:"manager_id,omitempty"`
	PositionTitle  string `json:"position_title,omitempty" yaml:"position_title,omitempty"`
	DepartmentCode string `json:"department_code,omitempty" yaml:"department_code,omitempty"`
	PlantCode      string `json:"plant_code,omitempty" yaml:"plant_code,omitempty"`
	IsActive       bool   `json:"is_active" yaml:"is_active"`
}

// RoleAssignment grants a role to an employee, optionally limited to a scope
// value such as a plant or department code
type RoleAssignment struct {
	EmployeeID   string `json:"employee_id" yaml:"employee_id"`
	EmployeeName string `json:"employee_name,omitempty" yaml:"-"`
	RoleCode     string `json:"role_code" yaml:"role_code"`
	ScopeValue   string `json:"scope_value,omitempty" yaml:"scope_value,omitempty"`
	IsActive     bool   `json:"is_active" yaml:"is_active"`
}

// ResponsibilityAssignment makes an employee responsible for a named area
type ResponsibilityAssignment struct {
	EmployeeID         string `json:"employee_id" yaml:"employee_id"`
	EmployeeName       string `json:"employee_name,omitempty" yaml:"-"`
	ResponsibilityCode string `json:"responsibility_code" yaml:"responsibility_code"`
	IsActive           bool   `json:"is_active" yaml:"is_active"`
}

// ResolvedAgent is a concrete person who must act at a step
type ResolvedAgent struct {
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
	AgentRole string `json:"agent_role"`
}
