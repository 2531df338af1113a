package controllers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nasda-team/nasda/middleware"
	"github.com/nasda-team/nasda/services"
	"github.com/nasda-team/nasda/utils"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

var errUploadTooLarge = errors.New("upload too large")

// parsePagination reads zero-based page and page size query values.
func parsePagination(pageStr, sizeStr string, defaultSize int) (int, int) {
	page := 0
	pageSize := defaultSize
	if p, err := strconv.Atoi(strings.TrimSpace(pageStr)); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(strings.TrimSpace(sizeStr)); err == nil && s > 0 {
		pageSize = s
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func getUserID(ctx *gin.Context) (uint, bool) {
	value, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, v != 0
	case int:
		return uint(v), v > 0
	case int64:
		return uint(v), v > 0
	default:
		return 0, false
	}
}

// parseIDParam reads a positive numeric path parameter.
func parseIDParam(ctx *gin.Context, name string) (uint, bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(ctx.Param(name)), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

// respondServiceError maps service error kinds to HTTP statuses. Unclassified
// errors are logged and answered with the given internal code.
func respondServiceError(ctx *gin.Context, err error, internalCode int, internalMsg string) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		utils.Error(ctx, http.StatusNotFound, 40410, err.Error())
	case errors.Is(err, services.ErrInvalidArgument):
		utils.Error(ctx, http.StatusBadRequest, 40010, err.Error())
	case errors.Is(err, services.ErrForbidden):
		utils.Error(ctx, http.StatusForbidden, 40310, err.Error())
	case errors.Is(err, services.ErrConflict):
		utils.Error(ctx, http.StatusConflict, 40910, err.Error())
	case errors.Is(err, services.ErrInvalidCredentials):
		utils.Error(ctx, http.StatusUnauthorized, 40106, err.Error())
	default:
		utils.Logger.Error(internalMsg,
			zap.Error(err),
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.Request.URL.Path),
		)
		utils.Error(ctx, http.StatusInternalServerError, internalCode, internalMsg)
	}
}

// readImageUploads collects the files sent under field (or field+"[]").
// A request that is not multipart carries no files.
func readImageUploads(ctx *gin.Context, field string, maxBytes int64) ([]*services.ImageUpload, error) {
	form, err := ctx.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, err
	}
	headers := append(form.File[field], form.File[field+"[]"]...)

	uploads := make([]*services.ImageUpload, 0, len(headers))
	for _, fh := range headers {
		if maxBytes > 0 && fh.Size > maxBytes {
			return nil, fmt.Errorf("%s: %w", fh.Filename, errUploadTooLarge)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		var r io.Reader = f
		if maxBytes > 0 {
			r = io.LimitReader(f, maxBytes+1)
		}
		data, err := io.ReadAll(r)
		f.Close()
		if err != nil {
			return nil, err
		}
		if maxBytes > 0 && int64(len(data)) > maxBytes {
			return nil, fmt.Errorf("%s: %w", fh.Filename, errUploadTooLarge)
		}
		uploads = append(uploads, &services.ImageUpload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return uploads, nil
}

func respondUploadError(ctx *gin.Context, err error) {
	if errors.Is(err, errUploadTooLarge) {
		utils.Error(ctx, http.StatusRequestEntityTooLarge, 41301, "file too large")
		return
	}
	utils.Error(ctx, http.StatusBadRequest, 40030, "invalid multipart form")
}
