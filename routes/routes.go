package routes

import (
	"ptaportal_go/controllers"
	"ptaportal_go/middleware"
	"ptaportal_go/services/websocket"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
)

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, wsHub *websocket.Hub) {
	// Initialize controllers
	authController := &controllers.AuthController{}
	userController := &controllers.UserController{}
	contributionController := &controllers.ContributionController{}
	schoolYearController := &controllers.SchoolYearController{}
	studentController := &controllers.StudentController{}
	guardianController := &controllers.GuardianController{}
	enrollmentController := &controllers.EnrollmentController{}
	paymentController := &controllers.PaymentController{}
	importController := &controllers.StudentImportController{}
	fundController := &controllers.FundController{}
	reportController := &controllers.ReportController{}
	announcementController := &controllers.AnnouncementController{}
	notificationController := &controllers.NotificationController{}
	dashboardController := &controllers.DashboardController{}
	logController := &controllers.LogController{}
	healthController := &controllers.HealthController{}
	wsController := controllers.NewWebSocketController(wsHub)

	// API group
	api := app.Group("/api")

	// Health check (no authentication)
	api.Get("/health", healthController.GetHealthStatus)

	// Authentication routes (no middleware)
	auth := api.Group("/auth")
	auth.Post("/login", authController.Login)

	// Protected routes (require authentication)
	protected := api.Group("/", middleware.JWTMiddleware())

	// Profile routes (authenticated users)
	protected.Get("/profile", authController.GetProfile)
	protected.Put("/profile/password", authController.ChangePassword)
	protected.Post("/auth/logout", authController.Logout)

	// User management routes (admin only)
	users := protected.Group("/users", middleware.RequireAdmin())
	users.Get("/", userController.GetUsers)
	users.Get("/:id", userController.GetUser)
	users.Post("/", authController.Register) // Use register from auth controller
	users.Put("/:id", userController.UpdateUser)
	users.Delete("/:id", userController.DeleteUser)
	users.Post("/:id/reset-password", authController.ResetPasswordByAdmin)

	// Contribution catalog routes
	contributions := protected.Group("/contributions")
	contributions.Get("/", middleware.RequireStaff(), contributionController.GetContributions)
	contributions.Get("/:id", middleware.RequireStaff(), contributionController.GetContribution)
	contributions.Post("/", middleware.RequireAdmin(), contributionController.CreateContribution)
	contributions.Put("/:id", middleware.RequireAdmin(), contributionController.UpdateContribution)
	contributions.Delete("/:id", middleware.RequireAdmin(), contributionController.DeleteContribution)

	// School year routes
	schoolYears := protected.Group("/school-years")
	schoolYears.Get("/", schoolYearController.GetSchoolYears)
	schoolYears.Get("/active", schoolYearController.GetActiveSchoolYear)
	schoolYears.Post("/", middleware.RequireAdmin(), schoolYearController.CreateSchoolYear)
	schoolYears.Put("/:id", middleware.RequireAdmin(), schoolYearController.UpdateSchoolYear)
	schoolYears.Post("/:id/activate", middleware.RequireAdmin(), schoolYearController.ActivateSchoolYear)
	schoolYears.Delete("/:id", middleware.RequireAdmin(), schoolYearController.DeleteSchoolYear)

	// Per-year fee schedule
	schoolYears.Get("/:id/fee-schedule", middleware.RequireStaff(), contributionController.GetYearSchedule)
	schoolYears.Put("/:id/fee-schedule/:row_id", middleware.RequireAdmin(), contributionController.UpdateYearSchedule)

	// Student management routes
	students := protected.Group("/students")
	students.Get("/", middleware.RequireStaff(), studentController.GetStudents)
	students.Get("/:id", middleware.RequireStaff(), studentController.GetStudent)
	students.Get("/:id/ledger", middleware.RequireStaff(), studentController.GetStudentLedger)
	students.Post("/", middleware.RequireTreasurerOrAdmin(), studentController.CreateStudent)
	students.Put("/:id", middleware.RequireTreasurerOrAdmin(), studentController.UpdateStudent)
	students.Patch("/:id/archive", middleware.RequireTreasurerOrAdmin(), studentController.ArchiveStudent)
	students.Delete("/:id", middleware.RequireAdmin(), studentController.DeleteStudent)

	// Guardian management routes
	guardians := protected.Group("/guardians")
	guardians.Get("/my-family", guardianController.GetMyFamily) // Guardians see their own learners
	guardians.Get("/", middleware.RequireStaff(), guardianController.GetGuardians)
	guardians.Get("/:id", middleware.RequireStaff(), guardianController.GetGuardian)
	guardians.Post("/", middleware.RequireTreasurerOrAdmin(), guardianController.CreateGuardian)
	guardians.Put("/:id", middleware.RequireTreasurerOrAdmin(), guardianController.UpdateGuardian)
	guardians.Delete("/:id", middleware.RequireAdmin(), guardianController.DeleteGuardian)

	// Enrollment finalization (new school year intake)
	enrollment := protected.Group("/enrollment", middleware.RequireTreasurerOrAdmin())
	enrollment.Post("/preview", enrollmentController.PreviewEnrollment)
	enrollment.Post("/finalize", enrollmentController.FinalizeEnrollment)

	// Masterlist import
	importGroup := protected.Group("/import", middleware.RequireTreasurerOrAdmin())
	importGroup.Post("/students", importController.Import)

	// Payment routes
	payments := protected.Group("/payments")
	payments.Get("/", middleware.RequireStaff(), paymentController.GetPayments)
	payments.Get("/:id", middleware.RequireStaff(), paymentController.GetPayment)
	payments.Post("/", middleware.RequireTreasurerOrAdmin(), paymentController.PostPayment)
	payments.Get("/student/:student_id/history", middleware.RequireStaff(), paymentController.GetPaymentHistory)

	// Fund routes (donations, expenses, monthly buckets)
	funds := protected.Group("/funds")
	funds.Get("/", middleware.RequireStaff(), fundController.GetFunds)
	funds.Post("/recompute", middleware.RequireAdmin(), fundController.RecomputeFunds)
	funds.Get("/donations", middleware.RequireStaff(), fundController.GetDonations)
	funds.Post("/donations", middleware.RequireTreasurerOrAdmin(), fundController.CreateDonation)
	funds.Delete("/donations/:id", middleware.RequireAdmin(), fundController.DeleteDonation)
	funds.Get("/expenses", middleware.RequireStaff(), fundController.GetExpenses)
	funds.Post("/expenses", middleware.RequireTreasurerOrAdmin(), fundController.CreateExpense)
	funds.Delete("/expenses/:id", middleware.RequireAdmin(), fundController.DeleteExpense)

	// Report routes
	reports := protected.Group("/reports", middleware.RequireStaff())
	reports.Get("/outstanding", reportController.GetOutstandingBalances)
	reports.Get("/outstanding/export", reportController.ExportOutstandingBalances)
	reports.Get("/collection-summary", reportController.GetCollectionSummary)

	// Dashboard summary
	protected.Get("/dashboard", middleware.RequireStaff(), dashboardController.GetSummary)

	// Announcement routes
	announcements := protected.Group("/announcements")
	announcements.Get("/", announcementController.GetAnnouncements)
	announcements.Post("/", middleware.RequireTreasurerOrAdmin(), announcementController.CreateAnnouncement)
	announcements.Post("/:id/publish", middleware.RequireTreasurerOrAdmin(), announcementController.PublishAnnouncement)
	announcements.Delete("/:id", middleware.RequireAdmin(), announcementController.DeleteAnnouncement)

	// Notification routes (any authenticated user, scoped to themselves)
	notifications := protected.Group("/notifications")
	notifications.Get("/", notificationController.GetNotifications)
	notifications.Patch("/:id/read", notificationController.MarkAsRead)
	notifications.Patch("/mark-all-read", notificationController.MarkAllAsRead)

	// Audit log routes (admin and auditor)
	logs := protected.Group("/logs", middleware.RequireStaff())
	logs.Get("/", logController.GetLogs)
	logs.Get("/archives", logController.GetLogArchives)

	// WebSocket routes
	ws := protected.Group("/ws")
	ws.Get("/stats", middleware.RequireAdmin(), wsController.GetWebSocketStats)

	// WebSocket connection endpoint - use websocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if fiberws.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", wsController.WebSocketHandler())
}
