package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/noah-isme/sma-admissions-api/internal/handler"
	"github.com/noah-isme/sma-admissions-api/internal/middleware"
	"github.com/noah-isme/sma-admissions-api/pkg/config"
)

type routes struct {
	auth       middleware.TokenValidator
	authH      *handler.AuthHandler
	enquiries  *handler.EnquiryHandler
	admissions *handler.AdmissionHandler
	documents  *handler.DocumentHandler
	ops        *handler.MetricsHandler
}

func registerRoutes(r *gin.Engine, cfg *config.Config, h routes) {
	r.GET("/health", h.ops.Health)
	r.GET("/ready", h.ops.Health)
	r.GET("/metrics", h.ops.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", h.authH.Login)
	// The signed token is the credential for direct downloads.
	api.GET("/documents/:id/download", h.documents.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(h.auth))
	staff := middleware.RequireStaff()

	enquiries := secured.Group("/enquiries")
	enquiries.POST("", h.enquiries.Create)
	enquiries.GET("", h.enquiries.List)
	enquiries.GET("/export", staff, h.enquiries.Export)
	enquiries.GET("/:id", h.enquiries.Get)
	enquiries.PATCH("/:id/status", staff, h.enquiries.UpdateStatus)
	enquiries.POST("/:id/convert", staff, h.enquiries.Convert)

	admissions := secured.Group("/admissions")
	admissions.POST("", h.admissions.Register)
	admissions.GET("", h.admissions.List)
	admissions.GET("/summary", staff, h.admissions.Summary)
	admissions.GET("/:id", h.admissions.Get)
	admissions.GET("/:id/compliance", h.admissions.Compliance)
	admissions.PATCH("/:id/status", staff, h.admissions.UpdateStatus)
	admissions.POST("/:id/finalize", staff, h.admissions.Finalize)
	admissions.GET("/:id/audit-logs", staff, h.admissions.AuditLogs)
	admissions.POST("/:id/photo", h.admissions.UploadPhoto)
	admissions.GET("/:id/checklist.pdf", h.admissions.Checklist)
	admissions.GET("/:id/documents", h.documents.List)
	admissions.POST("/:id/documents", staff, h.documents.Request)

	documents := secured.Group("/documents")
	documents.POST("/:id/file", h.documents.Attach)
	documents.POST("/:id/verify", staff, h.documents.Verify)
	documents.GET("/:id/download-url", h.documents.DownloadURL)
}
