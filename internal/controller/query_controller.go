package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"power-text2sql-backend/internal/audit"
	"power-text2sql-backend/internal/dto"
	"power-text2sql-backend/internal/model"
	"power-text2sql-backend/internal/service"
)

type QueryController struct {
	queryService service.QueryService
}

func NewQueryController(queryService service.QueryService) *QueryController {
	return &QueryController{
		queryService: queryService,
	}
}

func RegisterQueryRoutes(router *gin.Engine, controller *QueryController) {
	v1 := router.Group("/api/v1")
	{
		v1.POST("/query", controller.HandleQuery)
		v1.GET("/audit/:id", controller.HandleGetAuditRecord)
	}
}

// HandleQuery godoc
// @Summary      Answer a natural language question about power-grid data
// @Description  Translates the question into a constrained query plan, validates and repairs it against the knowledge base, compiles it to parameterized read-only SQL, executes it under the guard and returns a capped data preview with a plain-language answer. Pipeline failures return 200 with success=false and a debug trail.
// @Tags         query
// @Accept       json
// @Produce      json
// @Param        request body dto.QueryRequest true "Natural language question"
// @Success      200 {object} dto.QueryResponse "Pipeline outcome, successful or not"
// @Failure      400 {object} model.Response "Invalid request body"
// @Failure      500 {object} model.Response "Internal server error"
// @Router       /api/v1/query [post]
func (c *QueryController) HandleQuery(ctx *gin.Context) {
	var req dto.QueryRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		log.Warn().Err(err).Msg("Invalid query request body")
		ctx.JSON(http.StatusBadRequest, model.NewResponse("Invalid request body: "+err.Error(), nil))
		return
	}

	resp, err := c.queryService.ProcessQuestion(ctx.Request.Context(), req)
	if err != nil {
		log.Error().Err(err).Str("question", req.Question).Msg("Internal error processing question")
		ctx.JSON(http.StatusInternalServerError, model.NewResponse("Internal server error", nil))
		return
	}

	ctx.JSON(http.StatusOK, resp)
}

// HandleGetAuditRecord godoc
// @Summary      Fetch the audit record of a past request
// @Description  Returns the full pipeline trace (plan attempts, compiled SQL, execution summary) recorded for the given request id.
// @Tags         audit
// @Produce      json
// @Param        id path string true "Request id"
// @Success      200 {object} model.Response{data=model.AuditRecord}
// @Failure      404 {object} model.Response "No record for this request id"
// @Failure      500 {object} model.Response "Internal server error"
// @Router       /api/v1/audit/{id} [get]
func (c *QueryController) HandleGetAuditRecord(ctx *gin.Context) {
	requestID := ctx.Param("id")

	record, err := c.queryService.AuditRecord(ctx.Request.Context(), requestID)
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			ctx.JSON(http.StatusNotFound, model.NewResponse("Audit record not found", nil))
			return
		}
		log.Error().Err(err).Str("request_id", requestID).Msg("Failed to fetch audit record")
		ctx.JSON(http.StatusInternalServerError, model.NewResponse("Internal server error", nil))
		return
	}

	ctx.JSON(http.StatusOK, model.NewResponse("Audit record found", record))
}
