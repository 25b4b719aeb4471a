package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"rag-chatbot/internal/models"
)

const uploadField = "files"

// AskRequest is the body of POST /ask.
type AskRequest struct {
	Query string `json:"query" validate:"required"`
	TopK  *int   `json:"top_k,omitempty" validate:"omitempty,min=1,max=10"`
}

// handleUpload handles POST /upload with one or more multipart "files".
func (s *Server) handleUpload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil || len(form.File[uploadField]) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "No files uploaded.")
	}

	docs := make([]models.Document, 0, len(form.File[uploadField]))
	for _, fh := range form.File[uploadField] {
		doc, err := readUpload(fh)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}

	result, err := s.pipeline.Ingest(c.UserContext(), docs)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

func readUpload(fh *multipart.FileHeader) (models.Document, error) {
	f, err := fh.Open()
	if err != nil {
		return models.Document{}, fmt.Errorf("%w: opening %s: %v", models.ErrIngestion, fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return models.Document{}, fmt.Errorf("%w: reading %s: %v", models.ErrIngestion, fh.Filename, err)
	}
	return models.Document{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Data:        data,
	}, nil
}

// handleAsk handles POST /ask.
// Body:
//   - query (required): the question
//   - top_k (optional, 1..10): number of chunks to retrieve
func (s *Server) handleAsk(c *fiber.Ctx) error {
	var req AskRequest
	if err := c.BodyParser(&req); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", models.ErrInvalidInput, err)
	}
	req.Query = strings.TrimSpace(req.Query)
	if err := s.validate.Struct(&req); err != nil {
		return validationError(err)
	}

	q := models.Query{Text: req.Query}
	if req.TopK != nil {
		q.TopK = *req.TopK
	}

	answer, err := s.pipeline.Ask(c.UserContext(), q)
	if err != nil {
		return err
	}
	return c.JSON(answer)
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(s.pipeline.Status(c.UserContext()))
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		}
	}
	return fmt.Errorf("%w: %s", models.ErrInvalidInput, strings.Join(msgs, "; "))
}
