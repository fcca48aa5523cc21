package api

import (
	"io"
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const maxUploadBytes = 5 << 20 // 5MB, per spec.md §6

var allowedUploadExts = map[string]bool{
	".pdf": true, ".jpg": true, ".jpeg": true, ".png": true, ".doc": true, ".docx": true,
}

// UploadMedia implements `POST /internal/media/upload` (multipart, ≤5MB,
// PDF/JPG/PNG/DOC/DOCX).
func (d *Dependencies) UploadMedia(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return ErrBadRequest("file field is required")
	}
	if fileHeader.Size > maxUploadBytes {
		return ErrFileTooLarge()
	}
	if !allowedUploadExts[strings.ToLower(extOf(fileHeader.Filename))] {
		return ErrUnsupportedExt()
	}

	channelIdentifier := c.FormValue("channel_identifier")
	if channelIdentifier == "" {
		channelIdentifier = "unassigned"
	}

	data, err := readMultipartFile(fileHeader)
	if err != nil {
		return ErrBadRequest(err.Error())
	}

	result, err := d.Media.UploadBytes(c.Context(), channelIdentifier, uuid.NewString(), fileHeader.Header.Get("Content-Type"), data)
	if err != nil {
		return ErrBadRequest(err.Error())
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"internal_url": result.InternalURL,
		"public_url":   result.PublicURL,
	})
}

func readMultipartFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func extOf(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return ""
	}
	return filename[idx:]
}
