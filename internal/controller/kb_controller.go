package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"power-text2sql-backend/internal/kb"
	"power-text2sql-backend/internal/model"
)

type KnowledgeBaseController struct {
	provider *kb.Provider
}

func NewKnowledgeBaseController(provider *kb.Provider) *KnowledgeBaseController {
	return &KnowledgeBaseController{provider: provider}
}

func RegisterKnowledgeBaseRoutes(router *gin.Engine, controller *KnowledgeBaseController) {
	router.GET("/health", controller.HandleHealth)
	v1 := router.Group("/api/v1/kb")
	{
		v1.POST("/reload", controller.HandleReload)
		v1.GET("/summary", controller.HandleSummary)
	}
}

// HandleHealth godoc
// @Summary      Health check
// @Tags         health
// @Produce      json
// @Success      200 {object} model.Response
// @Router       /health [get]
func (c *KnowledgeBaseController) HandleHealth(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, model.NewResponse("ok", nil))
}

// HandleReload godoc
// @Summary      Reload the knowledge base catalogs from disk
// @Description  Atomically swaps in a fresh knowledge base snapshot. On failure the previous snapshot stays active.
// @Tags         kb
// @Produce      json
// @Success      200 {object} model.Response
// @Failure      500 {object} model.Response "Catalogs failed to load; previous snapshot kept"
// @Router       /api/v1/kb/reload [post]
func (c *KnowledgeBaseController) HandleReload(ctx *gin.Context) {
	if err := c.provider.Reload(); err != nil {
		log.Error().Err(err).Msg("Manual knowledge base reload failed")
		ctx.JSON(http.StatusInternalServerError, model.NewResponse("Reload failed, previous snapshot kept: "+err.Error(), nil))
		return
	}
	ctx.JSON(http.StatusOK, model.NewResponse("Knowledge base reloaded", nil))
}

// HandleSummary godoc
// @Summary      Summarize the active knowledge base snapshot
// @Tags         kb
// @Produce      json
// @Success      200 {object} model.Response
// @Router       /api/v1/kb/summary [get]
func (c *KnowledgeBaseController) HandleSummary(ctx *gin.Context) {
	idx := c.provider.Current()
	ctx.JSON(http.StatusOK, model.NewResponse("Knowledge base summary", gin.H{
		"tables":  idx.Tables(),
		"metrics": idx.Metrics(),
		"columns": len(idx.QualifiedColumns()),
	}))
}
