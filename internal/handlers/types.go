package handlers

import "agentscan/internal/models"

type RunRequest struct {
	Domain      string `json:"domain" binding:"required"`
	Description string `json:"description"`
}

type RunResponse struct {
	RunID string `json:"run_id"`
}

type RunListResponse struct {
	Runs  []models.Run `json:"runs"`
	Total int64        `json:"total"`
	Page  int          `json:"page,omitempty"`
}
