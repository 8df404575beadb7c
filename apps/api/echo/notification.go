package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/somahq/soma/core/notification"
)

type notificationApi struct {
	svc *notification.Service
}

func registerNotificationAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *notification.Service) {
	api := notificationApi{svc: svc}

	ng := g.Group("/notifications", jwt)
	ng.GET("", api.query)
	ng.GET("/unread-count", api.unreadCount)
	ng.POST("/read-all", api.markAllRead)
	ng.POST("/:id/read", api.markRead)
	ng.DELETE("/:id", api.destroy)
}

// Handlers

func (api *notificationApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	filter := new(notification.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []notification.Notification{})
	}
	filter.UserID = claims.Subject

	notifications, err := api.svc.Query(ctx.Request().Context(), *filter)
	if err != nil {
		return errors.Wrap(err, "querying notifications")
	}
	if notifications == nil {
		notifications = []notification.Notification{}
	}
	return ctx.JSON(http.StatusOK, notifications)
}

func (api *notificationApi) unreadCount(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	count, err := api.svc.CountUnread(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "counting unread notifications")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"unread": count})
}

func (api *notificationApi) markRead(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	rctx := ctx.Request().Context()
	ntf, err := api.svc.GetByID(rctx, ctx.Param("id"))
	if err != nil || ntf.UserID != claims.Subject {
		return errHttpNotFound
	}

	ntf, err = api.svc.MarkRead(rctx, ntf.ID)
	if err != nil {
		return errors.Wrap(err, "marking notification read")
	}
	return ctx.JSON(http.StatusOK, ntf)
}

func (api *notificationApi) markAllRead(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	if err := api.svc.MarkAllRead(ctx.Request().Context(), claims.Subject); err != nil {
		return errors.Wrap(err, "marking all notifications read")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *notificationApi) destroy(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	rctx := ctx.Request().Context()
	ntf, err := api.svc.GetByID(rctx, ctx.Param("id"))
	if err != nil || ntf.UserID != claims.Subject {
		return errHttpNotFound
	}

	if err := api.svc.Delete(rctx, ntf.ID); err != nil {
		return errors.Wrap(err, "deleting notification")
	}
	return ctx.NoContent(http.StatusNoContent)
}
