package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/civicgrid/request-service/internal/api/http/handlers"
	"github.com/civicgrid/request-service/internal/auth"
	"github.com/civicgrid/request-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Citizens       *handlers.CitizensHandler
	Staff          *handlers.StaffHandler
	Departments    *handlers.DepartmentsHandler
	Requests       *handlers.RequestsHandler
	StaffRequests  *handlers.StaffRequestsHandler
	WorkOrders     *handlers.WorkOrdersHandler
	Performance    *handlers.PerformanceHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Get("/departments", cfg.Departments.ListActive)

	authGroup := app.Group("/auth")
	authGroup.Post("/citizens/register", cfg.Citizens.Register)
	authGroup.Post("/citizens/login", cfg.Citizens.Login)
	authGroup.Post("/staff/login", cfg.Staff.Login)

	// Citizen surface.
	requests := app.Group("/requests", cfg.AuthMiddleware.Handle)
	requests.Post("", auth.RequireCitizen(), cfg.Requests.Create)
	requests.Get("", auth.RequireCitizen(), cfg.Requests.List)
	requests.Get("/:id", auth.RequireAnyRole(), cfg.Requests.Get)
	requests.Post("/:id/submit", auth.RequireCitizen(), cfg.Requests.SubmitDraft)
	requests.Post("/:id/close", auth.RequireCitizen(), cfg.Requests.Close)
	requests.Post("/:id/reopen", auth.RequireCitizen(), cfg.Requests.Reopen)
	requests.Post("/:id/cancel", auth.RequireCitizen(), cfg.Requests.Cancel)
	requests.Post("/:id/comments", auth.RequireAnyRole(), cfg.Requests.AddComment)
	requests.Get("/:id/comments", auth.RequireAnyRole(), cfg.Requests.ListComments)
	requests.Get("/:id/history", auth.RequireAnyRole(), cfg.Requests.ListHistory)

	// Staff workflow surface.
	staff := app.Group("/staff", cfg.AuthMiddleware.Handle, auth.RequireStaffRole())
	staff.Get("/directory", auth.RequireStaffRole(domain.RoleClerk, domain.RoleSupervisor), cfg.Staff.List)

	staffRequests := staff.Group("/requests")
	staffRequests.Get("", cfg.StaffRequests.List)
	staffRequests.Get("/breached", cfg.StaffRequests.ListBreached)
	staffRequests.Post("/:id/triage", auth.RequireStaffRole(domain.RoleClerk, domain.RoleSupervisor), cfg.StaffRequests.Triage)
	staffRequests.Post("/:id/review/start", auth.RequireStaffRole(domain.RoleClerk, domain.RoleSupervisor), cfg.StaffRequests.StartReview)
	staffRequests.Post("/:id/approve", auth.RequireStaffRole(domain.RoleSupervisor), cfg.StaffRequests.Approve)
	staffRequests.Post("/:id/reject", auth.RequireStaffRole(domain.RoleSupervisor), cfg.StaffRequests.Reject)
	staffRequests.Post("/:id/start", cfg.StaffRequests.StartWork)
	staffRequests.Post("/:id/resolve", cfg.StaffRequests.Resolve)
	staffRequests.Post("/:id/close", auth.RequireStaffRole(domain.RoleClerk, domain.RoleSupervisor), cfg.StaffRequests.Close)
	staffRequests.Post("/:id/cancel", auth.RequireStaffRole(domain.RoleSupervisor), cfg.StaffRequests.Cancel)
	staffRequests.Patch("/:id/priority", auth.RequireStaffRole(domain.RoleClerk, domain.RoleSupervisor), cfg.StaffRequests.UpdatePriority)
	staffRequests.Post("/:id/assign", auth.RequireStaffRole(domain.RoleSupervisor), cfg.StaffRequests.Assign)
	staffRequests.Get("/:id/assignment", cfg.StaffRequests.ActiveAssignment)
	staffRequests.Get("/:id/assignments", cfg.StaffRequests.Ledger)
	staffRequests.Post("/:id/review", auth.RequireStaffRole(domain.RoleSupervisor), cfg.Performance.RecordReview)
	staffRequests.Get("/:id/review", auth.RequireStaffRole(domain.RoleClerk, domain.RoleSupervisor), cfg.Performance.GetReview)

	performance := staff.Group("/performance")
	performance.Get("/:staffID/rollup", auth.RequireStaffRole(domain.RoleSupervisor), cfg.Performance.Rollup)
	performance.Get("/:staffID/goals", cfg.Performance.ListGoals)
	performance.Post("/goals", auth.RequireStaffRole(domain.RoleSupervisor), cfg.Performance.SetGoal)
	performance.Post("/goals/:id/progress", cfg.Performance.UpdateGoalProgress)
	performance.Post("/goals/:id/cancel", auth.RequireStaffRole(domain.RoleSupervisor), cfg.Performance.CancelGoal)

	// Field execution surface.
	workOrders := app.Group("/workorders", cfg.AuthMiddleware.Handle, auth.RequireStaffRole())
	workOrders.Get("", auth.RequireStaffRole(domain.RoleFieldAgent), cfg.WorkOrders.List)
	workOrders.Post("/segments/stop", auth.RequireStaffRole(domain.RoleFieldAgent), cfg.WorkOrders.StopSegment)
	workOrders.Get("/:id", cfg.WorkOrders.Get)
	workOrders.Post("/:id/enroute", auth.RequireStaffRole(domain.RoleFieldAgent), cfg.WorkOrders.MarkEnRoute)
	workOrders.Post("/:id/checkin", auth.RequireStaffRole(domain.RoleFieldAgent), cfg.WorkOrders.CheckIn)
	workOrders.Post("/:id/start", auth.RequireStaffRole(domain.RoleFieldAgent), cfg.WorkOrders.StartWork)
	workOrders.Post("/:id/checkout", auth.RequireStaffRole(domain.RoleFieldAgent), cfg.WorkOrders.CheckOut)
	workOrders.Post("/:id/cancel", auth.RequireStaffRole(domain.RoleSupervisor), cfg.WorkOrders.Cancel)
	workOrders.Post("/:id/segments", auth.RequireStaffRole(domain.RoleFieldAgent), cfg.WorkOrders.StartSegment)
	workOrders.Get("/:id/segments", cfg.WorkOrders.ListSegments)
}
