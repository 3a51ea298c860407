// Package api предоставляет HTTP-приложение платформы и его маршруты.
package api

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/host-lifecycle/internal/app/core"
	"github.com/magabrotheeeer/host-lifecycle/internal/http-server/handlers/account"
	"github.com/magabrotheeeer/host-lifecycle/internal/http-server/handlers/applications"
	"github.com/magabrotheeeer/host-lifecycle/internal/http-server/handlers/conversations"
	"github.com/magabrotheeeer/host-lifecycle/internal/http-server/handlers/health"
	"github.com/magabrotheeeer/host-lifecycle/internal/http-server/handlers/hosting"
	"github.com/magabrotheeeer/host-lifecycle/internal/http-server/handlers/login"
	"github.com/magabrotheeeer/host-lifecycle/internal/http-server/handlers/notifications"
	"github.com/magabrotheeeer/host-lifecycle/internal/http-server/handlers/permissions"
	"github.com/magabrotheeeer/host-lifecycle/internal/http-server/mware"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, c *core.Core, limiter *mware.RateLimiter) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		mware.ClientIP,
		middleware.Logger,
		middleware.Recoverer,
		mware.Metrics(c.Metrics),
	)

	checks := make(map[string]health.Checker, len(c.Checks))
	for name, check := range c.Checks {
		checks[name] = health.Checker(check)
	}
	r.Get("/health", health.New(logger, checks))
	r.Handle("/metrics", c.Metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Group(func(r chi.Router) {
			r.Use(limiter.Middleware(logger))
			r.Post("/host-applications", hosting.NewApply(logger, c.Lifecycle))
			r.Post("/set-password", hosting.NewSetPassword(logger, c.Lifecycle))
			r.Post("/login", login.New(logger, c.Auth))
		})

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(mware.JWTMiddleware(c.Auth, logger))

			r.Get("/profile", account.NewProfile(logger, c.Lifecycle))
			r.Patch("/profile", account.NewUpdateProfile(logger, c.Lifecycle))
			r.Get("/subscription-status", account.NewSubscriptionStatus(logger, c.Lifecycle))
			r.Get("/contract-template", account.NewContractTemplate(logger, c.Lifecycle))
			r.Get("/contract", account.NewContract(logger, c.Lifecycle))
			r.Post("/contract/sign", account.NewSignContract(logger, c.Lifecycle))
			r.Post("/contract/cancel", account.NewRequestCancellation(logger, c.Lifecycle))
			r.Get("/contract/export", account.NewExport(logger, c.Export))

			r.Get("/notifications", notifications.NewList(logger, c.Audit))
			r.Get("/notifications/unread-count", notifications.NewUnreadCount(logger, c.Audit))
			r.Post("/notifications/read-all", notifications.NewMarkAllRead(logger, c.Audit))
			r.Post("/notifications/{id}/read", notifications.NewMarkRead(logger, c.Audit))

			// права на переписку проверяет сам сервис: хост видит только свои диалоги
			r.Get("/conversations", conversations.NewList(logger, c.Messaging))
			r.Post("/conversations", conversations.NewStart(logger, c.Messaging))
			r.Get("/conversations/{id}", conversations.NewGet(logger, c.Messaging))
			r.Post("/conversations/{id}/messages", conversations.NewSend(logger, c.Messaging))
			r.Post("/conversations/{id}/close", conversations.NewClose(logger, c.Messaging))

			r.Group(func(r chi.Router) {
				r.Use(mware.StaffOnly(logger))

				r.Get("/applications", applications.NewList(logger, c.Lifecycle))
				r.Get("/applications/{id}", applications.NewGet(logger, c.Lifecycle))
				r.Post("/applications/{id}/approve", applications.NewApprove(logger, c.Lifecycle))
				r.Post("/applications/{id}/reject", applications.NewReject(logger, c.Lifecycle))
				r.Get("/applications/{id}/logs", applications.NewLogs(logger, c.Lifecycle))
				r.Post("/applications/{id}/notes", applications.NewAddNote(logger, c.Lifecycle))
				r.Post("/applications/{id}/subscription", applications.NewUpdateSubscription(logger, c.Lifecycle))
				r.Get("/applications/{id}/conversations", applications.NewConversations(logger, c.Messaging))

				r.Get("/permissions", permissions.NewList(logger, c.Permissions))
				r.Post("/permissions", permissions.NewGrant(logger, c.Permissions))
				r.Delete("/permissions/{id}", permissions.NewRevoke(logger, c.Permissions))
				r.Get("/staff", permissions.NewStaff(logger, c.Permissions))
			})
		})
	})
}
