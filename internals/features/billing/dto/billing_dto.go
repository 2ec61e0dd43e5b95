package dto

import (
	"github.com/google/uuid"

	"tutoring_backend/internals/features/billing/service"
)

type AddBasketItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int64     `json:"quantity" validate:"required,min=1,max=100"`
}

// GenerateResponse flattens a run report for operators.
type GenerateResponse struct {
	service.GenerateReport
	Issued  int `json:"issued"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

func NewGenerateResponse(r service.GenerateReport) GenerateResponse {
	issued, skipped, failed := r.Count()
	return GenerateResponse{GenerateReport: r, Issued: issued, Skipped: skipped, Failed: failed}
}
