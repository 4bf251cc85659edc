package sales

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreateSaleRequest struct {
	TenantID      int64                   `json:"tenant_id" validate:"required,gt=0"`
	ClientID      int64                   `json:"client_id" validate:"required,gt=0"`
	PaymentType   string                  `json:"payment_type" validate:"required,oneof=CASH CREDIT"`
	PaymentMethod string                  `json:"payment_method" validate:"max=50"`
	StaffName     string                  `json:"staff_name" validate:"max=100"`
	Lines         []CreateSaleLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type CreateSaleLineRequest struct {
	ItemID     int64           `json:"item_id" validate:"required,gt=0"`
	LocationID int64           `json:"location_id" validate:"required,gt=0"`
	Qty        decimal.Decimal `json:"qty"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

func (r CreateSaleRequest) toInput() CreateSaleInput {
	lines := make([]CreateSaleLine, 0, len(r.Lines))
	for _, line := range r.Lines {
		lines = append(lines, CreateSaleLine{
			ItemID:     line.ItemID,
			LocationID: line.LocationID,
			Qty:        line.Qty,
			UnitPrice:  line.UnitPrice,
		})
	}
	return CreateSaleInput{
		TenantID:      r.TenantID,
		ClientID:      r.ClientID,
		PaymentType:   PaymentType(r.PaymentType),
		PaymentMethod: r.PaymentMethod,
		StaffName:     r.StaffName,
		Lines:         lines,
	}
}

type CreateSaleResponse struct {
	SaleID         int64           `json:"sale_id"`
	SequenceNumber int64           `json:"sequence_number"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
}

type SaleLineResponse struct {
	ItemID     int64           `json:"item_id"`
	LocationID int64           `json:"location_id"`
	Qty        decimal.Decimal `json:"qty"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	LineTotal  decimal.Decimal `json:"line_total"`
}

type SaleResponse struct {
	ID            int64              `json:"id"`
	TenantID      int64              `json:"tenant_id"`
	SequenceNo    int64              `json:"sequence_no"`
	ClientID      int64              `json:"client_id"`
	Total         decimal.Decimal    `json:"total"`
	PaymentType   string             `json:"payment_type"`
	PaymentMethod string             `json:"payment_method"`
	PaymentStatus string             `json:"payment_status"`
	Status        string             `json:"status"`
	StaffName     string             `json:"staff_name"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	Lines         []SaleLineResponse `json:"lines"`
}

func toSaleResponse(sale Sale) SaleResponse {
	lines := make([]SaleLineResponse, 0, len(sale.Lines))
	for _, line := range sale.Lines {
		lines = append(lines, SaleLineResponse{
			ItemID:     line.ItemID,
			LocationID: line.LocationID,
			Qty:        line.Qty,
			UnitPrice:  line.UnitPrice,
			LineTotal:  line.LineTotal,
		})
	}
	return SaleResponse{
		ID:            sale.ID,
		TenantID:      sale.TenantID,
		SequenceNo:    sale.SeqNo,
		ClientID:      sale.ClientID,
		Total:         sale.Total,
		PaymentType:   string(sale.PaymentType),
		PaymentMethod: sale.PaymentMethod,
		PaymentStatus: string(sale.PaymentStatus),
		Status:        string(sale.Status),
		StaffName:     sale.StaffName,
		CreatedAt:     sale.CreatedAt,
		UpdatedAt:     sale.UpdatedAt,
		Lines:         lines,
	}
}
