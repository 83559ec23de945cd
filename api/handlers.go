package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"tracking-api/domain"
	"tracking-api/push"
	"tracking-api/tasks"
)

// Register wires up all API routes on the provided Echo instance. The
// deduper may be nil; completion then relies on the store's
// already-done check alone.
func Register(e *echo.Echo, store ProfileStore, taskStore *tasks.Store, dispatcher *push.Dispatcher, deduper Deduper, logger *log.Logger) {
	e.GET("/", completeTask(store, taskStore, dispatcher, deduper, logger))
	e.GET("/healthz", healthz())

	e.GET("/api/profiles", listProfiles(store))
	e.GET("/api/profiles/:name", getProfile(store))
	e.PUT("/api/profiles/:name", putProfile(store))
	e.DELETE("/api/profiles/:name", deleteProfile(store))

	e.POST("/api/profiles/:name/tasks", createTask(store, taskStore, dispatcher, logger))
	e.DELETE("/api/profiles/:name/tasks/:id", deleteTask(store, taskStore))

	e.POST("/api/profiles/:name/push", pushSync(store, dispatcher))
	e.POST("/api/profiles/:name/push/preview", pushPreview(store, dispatcher))
	e.POST("/api/profiles/:name/push/test", pushTest(store, dispatcher))
	e.POST("/api/profiles/:name/push/test/preview", pushTestPreview(store, dispatcher))
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

// completeTask serves the unauthenticated completion link
// `?complete_task=<token>`. Possession of the token is the only
// credential; every failure degrades to a page for the visitor, never a
// crash of the surrounding request.
func completeTask(store ProfileStore, taskStore *tasks.Store, dispatcher *push.Dispatcher, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		tok := c.QueryParam("complete_task")
		if tok == "" {
			return c.String(http.StatusOK, "Tracking Success — nothing to do here.")
		}

		ctx := c.Request().Context()
		metrics := newCompletionMetrics(logger)
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		resolveStart := time.Now()
		profileName, resolveErr := taskStore.ResolveProfile(tok)
		metrics.ObserveResolve(time.Since(resolveStart))
		if resolveErr != nil {
			metrics.SetResult("invalid_token")
			err = c.String(http.StatusNotFound, "This completion link is not valid.")
			return err
		}

		// Complete and persist as one atomic unit: two racing link
		// visits cannot both observe Pending, so only one of them
		// proceeds to the webhook below.
		var res tasks.CompletionResult
		updateStart := time.Now()
		p, updateErr := store.Update(ctx, profileName, func(p *domain.BusinessProfile) (bool, error) {
			res = taskStore.CompleteByToken(p, tok)
			return res.Status == tasks.Completed, nil
		})
		metrics.ObserveUpdate(time.Since(updateStart))
		if updateErr != nil {
			var nf NotFoundError
			if errors.As(updateErr, &nf) {
				metrics.SetResult("profile_gone")
				err = c.String(http.StatusNotFound, "This completion link is not valid.")
				return err
			}
			metrics.SetResult("storage")
			c.Logger().Error(updateErr)
			err = c.String(http.StatusInternalServerError, "Could not record the completion, please try the link again.")
			return err
		}

		switch res.Status {
		case tasks.NotFound:
			metrics.SetResult("not_found")
			err = c.String(http.StatusNotFound, "This completion link is not valid.")
			return err
		case tasks.AlreadyDone:
			// Idempotent no-op: no mutation, no save, no webhook.
			metrics.SetResult("already_done")
			err = c.String(http.StatusOK, fmt.Sprintf("Task %q was already marked complete.", res.Task.Title))
			return err
		}

		if p.Integrations.WebhookURL != "" {
			fire := true
			if deduper != nil {
				added, dedupErr := deduper.Add(ctx, p.Name, tok)
				if dedupErr == nil && !added {
					fire = false
				}
			}
			if fire {
				dispatchStart := time.Now()
				payload := push.Build(p, res.Task, push.EventTaskCompleted)
				dispatcher.Dispatch(ctx, p, payload, []push.Destination{push.DestWebhook}, nil)
				metrics.ObserveDispatch(time.Since(dispatchStart))
			}
		}

		metrics.SetResult("completed")
		err = c.String(http.StatusOK, fmt.Sprintf("Task %q marked complete. Thank you!", res.Task.Title))
		return err
	}
}

func listProfiles(store ProfileStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		names, err := store.List(c.Request().Context())
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, names)
	}
}

func getProfile(store ProfileStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, err := store.Load(c.Request().Context(), c.Param("name"))
		if err != nil {
			return storeErrorResponse(c, err)
		}
		return c.JSON(http.StatusOK, p)
	}
}

func putProfile(store ProfileStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		var p domain.BusinessProfile
		if err := decodeBody(c, &p); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		// The path owns the name; a mismatched body cannot rename a profile.
		p.Name = c.Param("name")
		if err := store.Save(c.Request().Context(), &p); err != nil {
			return storeErrorResponse(c, err)
		}
		return c.JSON(http.StatusOK, &p)
	}
}

func deleteProfile(store ProfileStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := store.Delete(c.Request().Context(), c.Param("name")); err != nil {
			return storeErrorResponse(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func createTask(store ProfileStore, taskStore *tasks.Store, dispatcher *push.Dispatcher, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		var req createTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		var created domain.Task
		var createErr error
		p, err := store.Update(ctx, c.Param("name"), func(p *domain.BusinessProfile) (bool, error) {
			created, createErr = taskStore.Create(p, req)
			if createErr != nil {
				return false, createErr
			}
			return true, nil
		})
		if err != nil {
			if createErr != nil {
				return c.String(http.StatusBadRequest, createErr.Error())
			}
			return storeErrorResponse(c, err)
		}

		// Best-effort notification; a webhook failure never fails the create.
		if p.Integrations.WebhookURL != "" {
			payload := push.Build(p, &created, push.EventTaskCreated)
			dispatcher.Dispatch(ctx, p, payload, []push.Destination{push.DestWebhook}, nil)
		}

		return c.JSON(http.StatusCreated, createTaskResponse{
			Task:          created,
			CompletionURL: tasks.CompletionURL(p.Integrations.AppBaseURL, created.CompletionToken),
		})
	}
}

func deleteTask(store ProfileStore, taskStore *tasks.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		removed := false
		_, err := store.Update(c.Request().Context(), c.Param("name"), func(p *domain.BusinessProfile) (bool, error) {
			removed = taskStore.Delete(p, c.Param("id"))
			return removed, nil
		})
		if err != nil {
			return storeErrorResponse(c, err)
		}
		if !removed {
			return c.String(http.StatusNotFound, "task not found")
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func pushSync(store ProfileStore, dispatcher *push.Dispatcher) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		var req pushRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if len(req.Destinations) == 0 {
			return c.String(http.StatusBadRequest, "no destinations selected")
		}
		p, err := store.Load(ctx, c.Param("name"))
		if err != nil {
			return storeErrorResponse(c, err)
		}
		payload := push.Build(p, nil, push.EventPushSync)
		outcomes := dispatcher.Dispatch(ctx, p, payload, req.Destinations, req.EmailTo)
		return c.JSON(http.StatusOK, pushResponse{Outcomes: outcomes})
	}
}

// pushPreview is the simulate mode: it renders exactly what a live push
// would send, without invoking any destination.
func pushPreview(store ProfileStore, dispatcher *push.Dispatcher) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req pushRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if len(req.Destinations) == 0 {
			return c.String(http.StatusBadRequest, "no destinations selected")
		}
		p, err := store.Load(c.Request().Context(), c.Param("name"))
		if err != nil {
			return storeErrorResponse(c, err)
		}
		payload := push.Build(p, nil, push.EventPushSync)
		rendered, err := dispatcher.Preview(p, payload, req.Destinations)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, previewResponse{Payload: payload, Rendered: rendered})
	}
}

// pushTestPreview renders the test-event webhook body without sending
// it, through the same Build and Preview path as a live Send Test.
func pushTestPreview(store ProfileStore, dispatcher *push.Dispatcher) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, err := store.Load(c.Request().Context(), c.Param("name"))
		if err != nil {
			return storeErrorResponse(c, err)
		}
		payload := push.Build(p, nil, push.EventTest)
		rendered, err := dispatcher.Preview(p, payload, []push.Destination{push.DestWebhook})
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, previewResponse{Payload: payload, Rendered: rendered})
	}
}

func pushTest(store ProfileStore, dispatcher *push.Dispatcher) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		p, err := store.Load(ctx, c.Param("name"))
		if err != nil {
			return storeErrorResponse(c, err)
		}
		payload := push.Build(p, nil, push.EventTest)
		outcomes := dispatcher.Dispatch(ctx, p, payload, []push.Destination{push.DestWebhook}, nil)
		return c.JSON(http.StatusOK, pushResponse{Outcomes: outcomes})
	}
}

func decodeBody(c echo.Context, v interface{}) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func storeErrorResponse(c echo.Context, err error) error {
	var nf NotFoundError
	if errors.As(err, &nf) {
		return c.String(http.StatusNotFound, err.Error())
	}
	var conflict ConflictError
	if errors.As(err, &conflict) {
		return c.String(http.StatusConflict, err.Error())
	}
	c.Logger().Error(err)
	return c.String(http.StatusInternalServerError, err.Error())
}
