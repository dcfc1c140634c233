package validation

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/hostpilotpro/captain-cortex/internal/cortex"
)

// RequestKey is the c.Locals key holding the validated cortex.Request.
const RequestKey = "cortex_request"

var (
	xssPattern            = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)
	organizationIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

var (
	ErrQuestionRequired     = errors.New("question is required and must be a string")
	ErrQuestionTooLong      = errors.New("question exceeds maximum length")
	ErrOrganizationRequired = errors.New("organizationId is required")
	ErrInvalidOrganization  = errors.New("invalid organizationId")
	ErrInvalidContent       = errors.New("invalid question content")
)

type Config struct {
	MaxQuestionLength   int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

func (cfg *Config) defaults() {
	if cfg.MaxQuestionLength == 0 {
		cfg.MaxQuestionLength = 1000
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
}

// Check validates and sanitizes a question request in place.
func Check(req *cortex.Request, maxQuestionLength int) error {
	req.Question = sanitizeString(req.Question)
	req.OrganizationID = strings.TrimSpace(req.OrganizationID)
	req.UserID = sanitizeString(req.UserID)

	if req.Question == "" {
		return ErrQuestionRequired
	}
	if maxQuestionLength > 0 && utf8.RuneCountInString(req.Question) > maxQuestionLength {
		return ErrQuestionTooLong
	}
	if req.OrganizationID == "" {
		return ErrOrganizationRequired
	}
	if !organizationIDPattern.MatchString(req.OrganizationID) {
		return ErrInvalidOrganization
	}
	if containsXSS(req.Question) {
		return ErrInvalidContent
	}
	return nil
}

func Middleware(cfg Config) fiber.Handler {
	cfg.defaults()

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodPost || c.Method() == fiber.MethodPut {
			contentType := c.Get(fiber.HeaderContentType)
			if contentType != "" {
				allowed := false
				for _, allowedType := range cfg.AllowedContentTypes {
					if strings.Contains(contentType, allowedType) {
						allowed = true
						break
					}
				}
				if !allowed {
					return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
						"error": "Unsupported content type",
					})
				}
			}
		}

		if c.Method() != fiber.MethodPost || !strings.HasSuffix(c.Path(), "/cortex/ask") {
			return c.Next()
		}

		var req cortex.Request
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid JSON format",
			})
		}

		if err := Check(&req, cfg.MaxQuestionLength); err != nil {
			if errors.Is(err, ErrInvalidContent) {
				cfg.Logger.Warn("Potential XSS attempt",
					zap.String("ip", c.IP()),
					zap.String("organization_id", req.OrganizationID),
				)
			}
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		c.Locals(RequestKey, req)
		return c.Next()
	}
}

func containsXSS(input string) bool {
	return xssPattern.MatchString(input)
}

func sanitizeString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.ReplaceAll(input, "\x00", "")
	return input
}
