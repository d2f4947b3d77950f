package auth

import "erpadmin/internal/domain/perm"

const (
	RoleAdmin          = "admin"
	RoleHRManager      = "hr_manager"
	RoleManager        = "manager"
	RoleEmployee       = "employee"
	RolePayrollOfficer = "payroll_officer"
)

// RoleDefinition is a seeded role.
type RoleDefinition struct {
	Name        string
	DisplayName string
	Module      string
	Permissions []string
}

var DefaultRoles = []RoleDefinition{
	{
		Name:        RoleAdmin,
		DisplayName: "Administrator",
		Module:      perm.ModuleCore,
		Permissions: []string{
			perm.UsersView, perm.UsersCreate, perm.UsersEdit, perm.UsersDelete,
			perm.RolesView, perm.RolesCreate, perm.RolesEdit, perm.RolesDelete,
			perm.DepartmentsView, perm.DepartmentsCreate, perm.DepartmentsEdit, perm.DepartmentsDelete,
			perm.PositionsView, perm.PositionsCreate, perm.PositionsEdit, perm.PositionsDelete,
			perm.SystemAdmin,
		},
	},
	{
		Name:        RoleHRManager,
		DisplayName: "HR manager",
		Module:      perm.ModuleHR,
		Permissions: []string{
			perm.DepartmentsView,
			perm.PositionsView,
			perm.EmployeesView, perm.EmployeesCreate, perm.EmployeesEdit, perm.EmployeesDelete,
			perm.LeaveRead, perm.LeaveWrite, perm.LeaveApprove,
			perm.ReportsRead,
		},
	},
	{
		Name:        RolePayrollOfficer,
		DisplayName: "Payroll officer",
		Module:      perm.ModulePayroll,
		Permissions: []string{
			perm.EmployeesView,
			perm.PayrollRead, perm.PayrollRun,
			perm.ReportsRead,
		},
	},
	{
		Name:        RoleManager,
		DisplayName: "Manager",
		Permissions: []string{
			perm.EmployeesView,
			perm.LeaveRead, perm.LeaveWrite, perm.LeaveApprove,
			perm.ReportsRead,
		},
	},
	{
		Name:        RoleEmployee,
		DisplayName: "Employee",
		Permissions: []string{
			perm.LeaveRead,
			perm.LeaveWrite,
			perm.PayrollRead,
		},
	},
}
