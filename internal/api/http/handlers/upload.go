package handlers

import (
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/fanportal/portal-service/internal/storage"
	apperrors "github.com/fanportal/portal-service/pkg/util"
)

// uploadAvatar stores the optional avatar part of a multipart form and
// returns its public URL, or "" when the form carries no file.
func uploadAvatar(c *fiber.Ctx, objects storage.ObjectStore) (string, error) {
	fileHeader, err := c.FormFile("avatar")
	if err != nil || fileHeader == nil {
		return "", nil
	}

	file, err := fileHeader.Open()
	if err != nil {
		return "", apperrors.NewValidationError("unreadable avatar file", nil)
	}
	data, err := io.ReadAll(file)
	_ = file.Close()
	if err != nil {
		return "", apperrors.NewValidationError("unreadable avatar file", nil)
	}

	stored, err := objects.PutObject(c.UserContext(), data, storage.ObjectMeta{
		Name:        fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
	})
	if err != nil {
		return "", apperrors.NewInternalError(err)
	}
	return stored.URL, nil
}
