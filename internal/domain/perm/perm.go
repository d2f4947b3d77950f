// Package perm holds the permission keys and module names shared by the
// console and the auth backend. Keys are dotted literals matched exactly;
// there are no wildcards.
package perm

const (
	UsersView         = "core.users.view"
	UsersCreate       = "core.users.create"
	UsersEdit         = "core.users.edit"
	UsersDelete       = "core.users.delete"
	RolesView         = "core.roles.view"
	RolesCreate       = "core.roles.create"
	RolesEdit         = "core.roles.edit"
	RolesDelete       = "core.roles.delete"
	DepartmentsView   = "core.departments.view"
	DepartmentsCreate = "core.departments.create"
	DepartmentsEdit   = "core.departments.edit"
	DepartmentsDelete = "core.departments.delete"
	PositionsView     = "core.positions.view"
	PositionsCreate   = "core.positions.create"
	PositionsEdit     = "core.positions.edit"
	PositionsDelete   = "core.positions.delete"
	EmployeesView     = "hr.employees.view"
	EmployeesCreate   = "hr.employees.create"
	EmployeesEdit     = "hr.employees.edit"
	EmployeesDelete   = "hr.employees.delete"
	LeaveRead         = "leave.read"
	LeaveWrite        = "leave.write"
	LeaveApprove      = "leave.approve"
	PayrollRead       = "payroll.read"
	PayrollRun        = "payroll.run"
	ReportsRead       = "reports.read"
	SystemAdmin       = "admin.system"
)

// Modules a role can be scoped to. Roles without a module apply everywhere.
const (
	ModuleCore    = "core"
	ModuleHR      = "hr"
	ModulePayroll = "payroll"
)

// All lists every known permission key.
var All = []string{
	UsersView,
	UsersCreate,
	UsersEdit,
	UsersDelete,
	RolesView,
	RolesCreate,
	RolesEdit,
	RolesDelete,
	DepartmentsView,
	DepartmentsCreate,
	DepartmentsEdit,
	DepartmentsDelete,
	PositionsView,
	PositionsCreate,
	PositionsEdit,
	PositionsDelete,
	EmployeesView,
	EmployeesCreate,
	EmployeesEdit,
	EmployeesDelete,
	LeaveRead,
	LeaveWrite,
	LeaveApprove,
	PayrollRead,
	PayrollRun,
	ReportsRead,
	SystemAdmin,
}
