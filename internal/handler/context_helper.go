package handler

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-admissions-api/internal/dto"
	"github.com/noah-isme/sma-admissions-api/internal/middleware"
	"github.com/noah-isme/sma-admissions-api/internal/service"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
)

const uploadField = "file"

func actorFromContext(c *gin.Context) (service.Actor, bool) {
	claims := middleware.Claims(c)
	if claims == nil {
		return service.Actor{}, false
	}
	return service.ActorFromClaims(claims), true
}

func queryInt(c *gin.Context, key string) int {
	value, err := strconv.Atoi(strings.TrimSpace(c.Query(key)))
	if err != nil {
		return 0
	}
	return value
}

func splitUpper(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// readUpload loads the multipart "file" field, refusing anything larger than maxBytes.
func readUpload(c *gin.Context, maxBytes int64) (dto.DocumentUpload, error) {
	header, err := c.FormFile(uploadField)
	if err != nil {
		return dto.DocumentUpload{}, appErrors.Clone(appErrors.ErrValidation, "multipart field \"file\" is required")
	}
	if maxBytes > 0 && header.Size > maxBytes {
		return dto.DocumentUpload{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes", maxBytes))
	}
	file, err := header.Open()
	if err != nil {
		return dto.DocumentUpload{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unable to read upload")
	}
	defer file.Close()

	limit := maxBytes
	if limit <= 0 {
		limit = header.Size
	}
	content, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return dto.DocumentUpload{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unable to read upload")
	}
	if int64(len(content)) > limit {
		return dto.DocumentUpload{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes", limit))
	}
	return dto.DocumentUpload{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        int64(len(content)),
		Content:     content,
	}, nil
}
