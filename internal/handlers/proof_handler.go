package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"sponsor-backend/internal/types"
)

// ProofGenerator the login proof service, narrowed for the handler
type ProofGenerator interface {
	GenerateProof(req *types.GenerateProofRequest) (*types.GenerateProofResponse, error)
}

// ProofHandler HTTP surface for login proof generation
type ProofHandler struct {
	proofService ProofGenerator
	logger       *logrus.Logger
}

// NewProofHandler creates the proof handler
func NewProofHandler(proofService ProofGenerator, logger *logrus.Logger) *ProofHandler {
	return &ProofHandler{
		proofService: proofService,
		logger:       logger,
	}
}

// GenerateHandler POST /api/proof/generate
func (h *ProofHandler) GenerateHandler(c *gin.Context) {
	var req types.GenerateProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   fmt.Sprintf("Invalid request: %v", err),
			"code":    types.CodeValidationError,
		})
		return
	}

	resp, err := h.proofService.GenerateProof(&req)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"max_epoch": req.MaxEpoch,
			"error":     err.Error(),
		}).Warn("Proof generation failed")

		// Upstream prover failures surface as a 400 with the prover's own
		// message so clients can distinguish them from local validation
		status := types.StatusForError(err)
		if errors.Is(err, types.ErrUpstreamProof) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{
			"success": false,
			"error":   err.Error(),
			"code":    types.CodeForError(err),
		})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"provider":        resp.Provider,
		"mode":            resp.Mode,
		"derived_address": resp.DerivedAddress,
	}).Info("Proof generated")

	c.JSON(http.StatusOK, resp)
}
