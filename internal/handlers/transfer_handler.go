package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"sponsor-backend/internal/types"
)

// TransferPipeline the sponsored submission pipeline, narrowed for the handler
type TransferPipeline interface {
	BuildTransfer(req *types.BuildTransferRequest) (*types.BuildTransferResponse, error)
	SubmitTransfer(req *types.SubmitTransferRequest) (*types.SubmitTransferResponse, error)
}

// TransferHandler HTTP surface for the build/submit flow
type TransferHandler struct {
	pipeline TransferPipeline
	logger   *logrus.Logger
}

// NewTransferHandler creates the transfer handler
func NewTransferHandler(pipeline TransferPipeline, logger *logrus.Logger) *TransferHandler {
	return &TransferHandler{
		pipeline: pipeline,
		logger:   logger,
	}
}

// BuildHandler POST /api/transactions/build
func (h *TransferHandler) BuildHandler(c *gin.Context) {
	var req types.BuildTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   fmt.Sprintf("Invalid request: %v", err),
			"code":    types.CodeValidationError,
		})
		return
	}

	resp, err := h.pipeline.BuildTransfer(&req)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"sender":     req.SenderAddress,
			"token_type": req.TokenType,
			"error":      err.Error(),
		}).Warn("Transfer build failed")

		c.JSON(types.StatusForError(err), gin.H{
			"success": false,
			"error":   err.Error(),
			"code":    types.CodeForError(err),
		})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"transaction_id": resp.TransactionID,
		"token_type":     req.TokenType,
	}).Info("Transfer built")

	c.JSON(http.StatusOK, resp)
}

// SubmitHandler POST /api/transactions/submit
func (h *TransferHandler) SubmitHandler(c *gin.Context) {
	var req types.SubmitTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   fmt.Sprintf("Invalid request: %v", err),
			"code":    types.CodeValidationError,
		})
		return
	}

	resp, err := h.pipeline.SubmitTransfer(&req)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"transaction_id": req.TransactionID,
			"error":          err.Error(),
		}).Warn("Transfer submission failed")

		c.JSON(types.StatusForError(err), types.SubmitTransferResponse{
			Success: false,
			Error:   err.Error(),
			Code:    types.CodeForError(err),
		})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"transaction_id":   req.TransactionID,
		"transaction_hash": resp.TransactionHash,
		"strategy_used":    resp.StrategyUsed,
		"finalized":        resp.Finalized,
	}).Info("Transfer submitted")

	c.JSON(http.StatusOK, resp)
}
