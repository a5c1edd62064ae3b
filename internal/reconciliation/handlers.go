package reconciliation

import (
	"github.com/finbooks/recon-api/pkg/response"
	"github.com/gin-gonic/gin"
)

// GinHandlers contains HTTP handlers for reconciliation endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

func (h *GinHandlers) ReconcileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request ReconcileRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		result, err := h.service.Reconcile(request)
		response.Handle(c, result, err)
	}
}

func (h *GinHandlers) UnreconcileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request UnreconcileRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		result, err := h.service.Unreconcile(request)
		response.Handle(c, result, err)
	}
}

func (h *GinHandlers) GetResidualHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		lineID := c.Param("line_id")

		residual, err := h.service.GetResidual(lineID)
		response.Handle(c, residual, err)
	}
}

func (h *GinHandlers) GetFullReconcileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		fullReconcileID := c.Param("full_reconcile_id")

		detail, err := h.service.GetFullReconcileDetail(fullReconcileID)
		response.Handle(c, detail, err)
	}
}
