package router

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/jshmir7070-sys/helpme-core/internal/assignment"
	"github.com/jshmir7070-sys/helpme-core/internal/billing"
	"github.com/jshmir7070-sys/helpme-core/internal/logger"
	"github.com/jshmir7070-sys/helpme-core/internal/middleware"
	"github.com/jshmir7070-sys/helpme-core/internal/order"
	"github.com/jshmir7070-sys/helpme-core/internal/pricing"
	"github.com/jshmir7070-sys/helpme-core/internal/user"
	usertypes "github.com/jshmir7070-sys/helpme-core/internal/types/user"
)

func NewRouter(
	userH *user.Handler,
	orderH *order.Handler,
	assignmentH *assignment.Handler,
	billingH *billing.Handler,
	pricingH *pricing.Handler,
	jwtSecret []byte,
	userRepo user.UserRepository,
) chi.Router {
	r := chi.NewRouter()

	r.Use(logger.WithLogging)
	r.Use(chiMiddleware.Recoverer)

	r.Use(middleware.GzipHandler)

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/register", userH.Register)
		r.Post("/login", userH.Login)
	})

	// provider callbacks authenticate upstream, not with user tokens
	r.Post("/api/payments/webhook", billingH.PaymentWebhook)

	r.Group(func(r chi.Router) {
		r.Use(middleware.JWTMiddleware(jwtSecret, userRepo))

		r.Get("/api/orders", orderH.ListOrders)
		r.Get("/api/orders/{number}", orderH.GetOrder)
		r.Get("/api/policies/pricing", pricingH.ListPricingPolicies)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(usertypes.RoleRequester))
			r.Post("/api/orders", orderH.CreateOrder)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(usertypes.RoleRequester, usertypes.RoleAdmin))
			r.Post("/api/orders/{number}/cancel", orderH.CancelOrder)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(usertypes.RoleHelper))
			r.Post("/api/orders/{number}/applications", assignmentH.Apply)
			r.Post("/api/orders/{number}/closing", billingH.SubmitClosing)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(usertypes.RoleAdmin))
			r.Post("/api/orders/{number}/deposit/approve", orderH.ApproveDeposit)
			r.Post("/api/orders/{number}/deposit/reject", orderH.RejectDeposit)
			r.Get("/api/orders/{number}/applications", assignmentH.ListApplications)
			r.Post("/api/orders/{number}/assignments/bulk", assignmentH.BulkAssign)
			r.Post("/api/orders/{number}/assignments/direct", assignmentH.DirectAssign)
			r.Delete("/api/orders/{number}/assignments/{helperID}", assignmentH.Remove)
			r.Post("/api/orders/{number}/closing/approve", billingH.ApproveClosing)
			r.Post("/api/orders/{number}/balance/confirm", billingH.ConfirmBalance)
			r.Post("/api/orders/{number}/settle", billingH.Settle)
			r.Get("/api/policies/refund", pricingH.ListRefundPolicies)
			r.Put("/api/policies/refund", pricingH.UpdateRefundPolicy)
		})
	})

	return r
}
