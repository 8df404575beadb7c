package echoapi

import (
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/somahq/soma/core/library"
	"github.com/somahq/soma/storage/blob"
)

var errDocNotFoundInCtx = errors.New("document object not found in echo.Context")

type libraryApi struct {
	svc      *library.Service
	blobs    blob.Storage
	validate *validator.Validate
}

func registerLibraryAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *library.Service,
	blobs blob.Storage,
	validate *validator.Validate,
) {
	api := libraryApi{
		svc:      svc,
		blobs:    blobs,
		validate: validate,
	}

	lg := g.Group("/library", jwt)
	lg.GET("", api.query)
	lg.POST("", api.upload, teacherOrAdminMiddleware())

	// detail endpoints
	dg := lg.Group("/:id", objectDocumentMiddleware(svc))
	dg.GET("", api.retrieve)
	dg.GET("/download", api.download)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
}

func objectDocumentMiddleware(svc *library.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			doc, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == library.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding document by ID")
			}
			ctx.Set("object", doc)
			return next(ctx)
		}
	}
}

func contextDocument(ctx echo.Context) (library.Document, error) {
	doc, ok := ctx.Get("object").(library.Document)
	if !ok {
		return library.Document{}, errors.Wrap(errDocNotFoundInCtx, "retrieving object from context")
	}
	return doc, nil
}

func canMutateDocument(ctx echo.Context, doc library.Document) bool {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return false
	}
	return claims.IsAdmin || doc.OwnerID == claims.Subject
}

// Handlers

// upload stores the file and registers its metadata; indexing starts out
// pending and is picked up by the AI service's poller.
func (api *libraryApi) upload(ctx echo.Context) error {
	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}

	data := library.NewDocument{
		Title:       ctx.FormValue("title"),
		Description: ctx.FormValue("description"),
		CourseID:    ctx.FormValue("course_id"),
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		SizeBytes:   fileHeader.Size,
	}
	if data.Title == "" {
		data.Title = fileHeader.Filename
	}
	if data.ContentType == "" {
		data.ContentType = "application/octet-stream"
	}
	data.StorageKey = fmt.Sprintf("library/%s%s", uuid.New().String(), filepath.Ext(fileHeader.Filename))

	if err := data.Validate(api.validate); err != nil {
		return err
	}

	src, err := fileHeader.Open()
	if err != nil {
		return errors.Wrap(err, "opening upload")
	}
	defer src.Close()

	rctx := ctx.Request().Context()
	if err := api.blobs.Upload(rctx, data.StorageKey, src); err != nil {
		return errors.Wrap(err, "storing upload")
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	doc, err := api.svc.Register(rctx, claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "registering document")
	}
	return ctx.JSON(http.StatusCreated, doc)
}

func (api *libraryApi) query(ctx echo.Context) error {
	filter := new(library.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []library.Document{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	docs, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying documents")
	}
	if docs == nil {
		docs = []library.Document{}
	}
	return ctx.JSON(http.StatusOK, docs)
}

func (api *libraryApi) retrieve(ctx echo.Context) error {
	doc, err := contextDocument(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, doc)
}

func (api *libraryApi) download(ctx echo.Context) error {
	doc, err := contextDocument(ctx)
	if err != nil {
		return err
	}

	r, err := api.blobs.Download(ctx.Request().Context(), doc.StorageKey)
	if err != nil {
		return errors.Wrap(err, "downloading blob")
	}
	defer r.Close()

	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", doc.Filename))
	return ctx.Stream(http.StatusOK, doc.ContentType, r)
}

func (api *libraryApi) update(ctx echo.Context) error {
	doc, err := contextDocument(ctx)
	if err != nil {
		return err
	}
	if !canMutateDocument(ctx, doc) {
		return errHttpForbidden
	}

	var data library.UpdateDocument
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateDocument")
	}
	if err := data.Validate(doc, api.validate); err != nil {
		return err
	}

	doc, err = api.svc.Update(ctx.Request().Context(), doc.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating document")
	}
	return ctx.JSON(http.StatusOK, doc)
}

func (api *libraryApi) destroy(ctx echo.Context) error {
	doc, err := contextDocument(ctx)
	if err != nil {
		return err
	}
	if !canMutateDocument(ctx, doc) {
		return errHttpForbidden
	}

	rctx := ctx.Request().Context()
	if err := api.svc.Delete(rctx, doc.ID); err != nil {
		return errors.Wrap(err, "deleting document")
	}
	// blob clean-up is best effort
	if api.blobs != nil {
		_ = api.blobs.Delete(rctx, doc.StorageKey)
	}
	return ctx.NoContent(http.StatusNoContent)
}
