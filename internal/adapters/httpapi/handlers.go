// Package httpapi exposes the assessment service over HTTP with gin.
package httpapi

import (
	"net/http"
	"net/mail"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/phishguard/risk-engine/internal/application"
	"github.com/phishguard/risk-engine/internal/domain"
	"github.com/phishguard/risk-engine/internal/ports"
)

const maxInputURLLength = 2048

// Handler holds the service and the classifiers' admin surfaces.
type Handler struct {
	svc        *application.AssessmentService
	urlModel   ports.URLClassifier
	emailModel ports.EmailClassifier
}

func NewHandler(svc *application.AssessmentService, urlModel ports.URLClassifier, emailModel ports.EmailClassifier) *Handler {
	return &Handler{svc: svc, urlModel: urlModel, emailModel: emailModel}
}

// validateURL rejects malformed input before any checker runs. Scheme-less
// input is accepted because the heuristic analyzer normalizes it.
func validateURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxInputURLLength {
		return "", false
	}
	candidate := raw
	if !strings.Contains(candidate, "://") {
		candidate = "https://" + candidate
	}
	parsed, err := url.Parse(candidate)
	if err != nil || parsed.Host == "" {
		return "", false
	}
	return raw, true
}

func validateEmail(addr string) bool {
	_, err := mail.ParseAddress(addr)
	return err == nil
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

type urlRequest struct {
	URL string `json:"url"`
}

func (h *Handler) CheckURL(c *gin.Context) {
	var req urlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	raw, ok := validateURL(req.URL)
	if !ok {
		badRequest(c, "a valid url is required")
		return
	}

	out := h.svc.CheckURL(c.Request.Context(), raw)
	c.JSON(http.StatusOK, gin.H{
		"url":      raw,
		"result":   out.Result,
		"degraded": out.Degraded,
		"reason":   out.Reason,
	})
}

func (h *Handler) CheckSSL(c *gin.Context) {
	var req urlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	raw, ok := validateURL(req.URL)
	if !ok {
		badRequest(c, "a valid url is required")
		return
	}

	out, cert := h.svc.CheckTLS(c.Request.Context(), raw)
	resp := gin.H{
		"url":      raw,
		"result":   out.Result,
		"degraded": out.Degraded,
	}
	if cert != nil {
		resp["certificate"] = cert
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ExpandLink(c *gin.Context) {
	var req urlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	raw, ok := validateURL(req.URL)
	if !ok {
		badRequest(c, "a valid url is required")
		return
	}

	c.JSON(http.StatusOK, h.svc.ExpandLink(c.Request.Context(), raw))
}

type breachRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) CheckBreach(c *gin.Context) {
	var req breachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	if req.Email == "" && req.Password == "" {
		badRequest(c, "email or password is required")
		return
	}
	if req.Email != "" && !validateEmail(req.Email) {
		badRequest(c, "invalid email address")
		return
	}

	c.JSON(http.StatusOK, h.svc.CheckBreach(req.Email, req.Password))
}

type emailTextRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (h *Handler) CheckEmailText(c *gin.Context) {
	var req emailTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	if req.Subject == "" && req.Body == "" {
		badRequest(c, "subject or body is required")
		return
	}

	signal, analysis := h.svc.CheckEmailText(req.Subject, req.Body)
	c.JSON(http.StatusOK, gin.H{
		"signal":   signal,
		"analysis": analysis,
	})
}

func (h *Handler) ComprehensiveCheck(c *gin.Context) {
	var req domain.CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	raw, ok := validateURL(req.URL)
	if !ok {
		badRequest(c, "a valid url is required")
		return
	}
	req.URL = raw
	if req.Email != "" && !validateEmail(req.Email) {
		badRequest(c, "invalid email address")
		return
	}

	c.JSON(http.StatusOK, h.svc.Comprehensive(c.Request.Context(), req))
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) HealthDetailed(c *gin.Context) {
	passwords, emails := h.svc.CorpusSize()
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"breach_corpus": gin.H{
			"passwords": passwords,
			"emails":    emails,
		},
		"models": gin.H{
			"url":   modelStatus(h.urlModel),
			"email": modelStatus(h.emailModel),
		},
		"cache": h.svc.CacheStats(),
	})
}
