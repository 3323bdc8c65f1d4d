package http

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/paylane/billflow/internal/approval"
	"github.com/paylane/billflow/internal/export"
	"github.com/paylane/billflow/internal/ingest"
	"github.com/paylane/billflow/internal/models"
	"github.com/paylane/billflow/internal/port"
	"github.com/paylane/billflow/internal/processor"
	"github.com/paylane/billflow/internal/reconcile"
	"github.com/paylane/billflow/internal/scheduler"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine   *approval.Engine
	ingestor *ingest.Service
	listener *reconcile.Listener
	exporter *export.Exporter
	bills    port.BillRepository
	payments port.PaymentRepository
	audit    port.AuditRepository
	logger   *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	engine *approval.Engine,
	ingestor *ingest.Service,
	listener *reconcile.Listener,
	exporter *export.Exporter,
	bills port.BillRepository,
	payments port.PaymentRepository,
	audit port.AuditRepository,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		engine:   engine,
		ingestor: ingestor,
		listener: listener,
		exporter: exporter,
		bills:    bills,
		payments: payments,
		audit:    audit,
		logger:   logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// BillResponse represents a bill in API responses
type BillResponse struct {
	ID            int64   `json:"id"`
	OrgID         string  `json:"org_id"`
	VendorID      int64   `json:"vendor_id"`
	Amount        string  `json:"amount"`
	Currency      string  `json:"currency"`
	Status        string  `json:"status"`
	DueDate       string  `json:"due_date"`
	ScheduledDate *string `json:"scheduled_date,omitempty"`
	PaidDate      *string `json:"paid_date,omitempty"`
	NeedsReview   bool    `json:"needs_review"`
}

func billResponse(bill *models.Bill) BillResponse {
	resp := BillResponse{
		ID:          bill.ID,
		OrgID:       bill.OrgID,
		VendorID:    bill.VendorID,
		Amount:      bill.Amount.StringFixed(2),
		Currency:    bill.Currency,
		Status:      bill.Status.String(),
		DueDate:     bill.DueDate.Format("2006-01-02"),
		NeedsReview: bill.NeedsReview,
	}
	if bill.ScheduledDate != nil {
		s := bill.ScheduledDate.Format("2006-01-02")
		resp.ScheduledDate = &s
	}
	if bill.PaidDate != nil {
		s := bill.PaidDate.Format("2006-01-02")
		resp.PaidDate = &s
	}
	return resp
}

// PaymentResponse represents a payment attempt in API responses.
// Internal bookkeeping fields (idempotency key, version, submit counters)
// are not exposed.
type PaymentResponse struct {
	ID                 int64   `json:"id"`
	Amount             string  `json:"amount"`
	Currency           string  `json:"currency"`
	Method             string  `json:"method,omitempty"`
	Status             string  `json:"status"`
	ProcessorReference string  `json:"processor_reference,omitempty"`
	ScheduledDate      string  `json:"scheduled_date"`
	ProcessedDate      *string `json:"processed_date,omitempty"`
	Fees               *string `json:"fees,omitempty"`
	Attempt            int     `json:"attempt"`
	FailureReason      string  `json:"failure_reason,omitempty"`
}

func paymentResponse(p *models.Payment) PaymentResponse {
	resp := PaymentResponse{
		ID:                 p.ID,
		Amount:             p.Amount.StringFixed(2),
		Currency:           p.Currency,
		Method:             p.Method,
		Status:             p.Status.String(),
		ProcessorReference: p.ProcessorReference,
		ScheduledDate:      p.ScheduledDate.Format("2006-01-02"),
		Attempt:            p.Attempt,
		FailureReason:      p.FailureReason,
	}
	if p.ProcessedDate != nil {
		s := p.ProcessedDate.Format(time.RFC3339)
		resp.ProcessedDate = &s
	}
	if p.Fees != nil {
		s := p.Fees.StringFixed(2)
		resp.Fees = &s
	}
	return resp
}

// AuditEntryResponse represents one bill history entry in API responses
type AuditEntryResponse struct {
	Actor      string `json:"actor"`
	Action     string `json:"action"`
	FromStatus string `json:"from_status,omitempty"`
	ToStatus   string `json:"to_status,omitempty"`
	Detail     string `json:"detail,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func auditResponse(e *models.AuditEntry) AuditEntryResponse {
	return AuditEntryResponse{
		Actor:      e.Actor,
		Action:     e.Action,
		FromStatus: e.FromStatus.String(),
		ToStatus:   e.ToStatus.String(),
		Detail:     e.Detail,
		CreatedAt:  e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Health handles the health check endpoint
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// CreateBillRequest is the manual bill creation payload
type CreateBillRequest struct {
	OrgID     string `json:"org_id" binding:"required"`
	VendorID  int64  `json:"vendor_id" binding:"required"`
	Amount    string `json:"amount" binding:"required"`
	Currency  string `json:"currency" binding:"required"`
	IssueDate string `json:"issue_date"`
	DueDate   string `json:"due_date" binding:"required"`
	Category  string `json:"category"`
	Priority  string `json:"priority"`
}

// CreateBill creates a bill in DRAFT
func (h *Handlers) CreateBill(c *gin.Context) {
	var req CreateBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: "invalid amount"})
		return
	}
	dueDate, err := time.Parse("2006-01-02", req.DueDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: "invalid due_date"})
		return
	}

	bill := &models.Bill{
		OrgID:    req.OrgID,
		VendorID: req.VendorID,
		Amount:   amount,
		Currency: req.Currency,
		DueDate:  dueDate,
		Category: req.Category,
		Priority: req.Priority,
		Status:   models.BillStatusDraft,
	}
	if req.IssueDate != "" {
		if issue, err := time.Parse("2006-01-02", req.IssueDate); err == nil {
			bill.IssueDate = issue
		}
	}

	if err := bill.Validate(); err != nil {
		c.JSON(http.StatusUnprocessableEntity, Response{Error: err.Error()})
		return
	}

	if err := h.bills.Create(c.Request.Context(), bill); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: billResponse(bill)})
}

// ListBills lists bills for an organization
func (h *Handlers) ListBills(c *gin.Context) {
	orgID := c.Query("org_id")
	if orgID == "" {
		c.JSON(http.StatusBadRequest, Response{Error: "org_id is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	bills, err := h.bills.List(c.Request.Context(), orgID, limit, offset)
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := make([]BillResponse, 0, len(bills))
	for _, b := range bills {
		resp = append(resp, billResponse(b))
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: resp})
}

// GetBill returns one bill with its payment attempts and audit history
func (h *Handlers) GetBill(c *gin.Context) {
	id, ok := h.billID(c)
	if !ok {
		return
	}

	bill, err := h.bills.GetByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	payments, err := h.payments.ListForBill(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	history, err := h.audit.ListByBill(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	paymentResp := make([]PaymentResponse, 0, len(payments))
	for _, p := range payments {
		paymentResp = append(paymentResp, paymentResponse(p))
	}
	historyResp := make([]AuditEntryResponse, 0, len(history))
	for _, e := range history {
		historyResp = append(historyResp, auditResponse(e))
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{
		"bill":     billResponse(bill),
		"payments": paymentResp,
		"history":  historyResp,
	}})
}

// SubmitBill moves a draft bill into the approval flow
func (h *Handlers) SubmitBill(c *gin.Context) {
	id, ok := h.billID(c)
	if !ok {
		return
	}

	bill, err := h.engine.SubmitBill(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, approval.ErrNoMatchingWorkflow) {
			// The bill is parked; report both the state and the alert.
			c.JSON(http.StatusUnprocessableEntity, Response{
				Data:  billResponse(bill),
				Error: err.Error(),
			})
			return
		}
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: billResponse(bill)})
}

// DecisionRequest is one approver decision
type DecisionRequest struct {
	ApproverID string `json:"approver_id" binding:"required"`
	Decision   string `json:"decision" binding:"required"`
	Comment    string `json:"comment"`
}

// RecordDecision appends one approver decision
func (h *Handlers) RecordDecision(c *gin.Context) {
	id, ok := h.billID(c)
	if !ok {
		return
	}

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	var decision models.Decision
	switch req.Decision {
	case "approve":
		decision = models.DecisionApprove
	case "reject":
		decision = models.DecisionReject
	default:
		c.JSON(http.StatusBadRequest, Response{Error: "decision must be approve or reject"})
		return
	}

	bill, err := h.engine.RecordDecision(c.Request.Context(), id, req.ApproverID, decision, req.Comment)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: billResponse(bill)})
}

// ActorRequest carries the acting user for cancel/resubmit/review
type ActorRequest struct {
	Actor string `json:"actor" binding:"required"`
}

// CancelBill cancels a bill
func (h *Handlers) CancelBill(c *gin.Context) {
	id, ok := h.billID(c)
	if !ok {
		return
	}

	var req ActorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	bill, err := h.engine.CancelBill(c.Request.Context(), id, req.Actor)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: billResponse(bill)})
}

// ResubmitBill re-enters a rejected bill into the approval flow
func (h *Handlers) ResubmitBill(c *gin.Context) {
	id, ok := h.billID(c)
	if !ok {
		return
	}

	var req ActorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	bill, err := h.engine.ResubmitBill(c.Request.Context(), id, req.Actor)
	if err != nil {
		if errors.Is(err, approval.ErrNoMatchingWorkflow) {
			c.JSON(http.StatusUnprocessableEntity, Response{
				Data:  billResponse(bill),
				Error: err.Error(),
			})
			return
		}
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: billResponse(bill)})
}

// ReviewBill clears the review flag on a low-confidence extracted bill
func (h *Handlers) ReviewBill(c *gin.Context) {
	id, ok := h.billID(c)
	if !ok {
		return
	}

	var req ActorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	bill, err := h.engine.ReviewBill(c.Request.Context(), id, req.Actor)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: billResponse(bill)})
}

// IngestDocumentRequest is a document extraction delivery
type IngestDocumentRequest struct {
	OrgID      string                   `json:"org_id" binding:"required"`
	FileName   string                   `json:"file_name"`
	Confidence float64                  `json:"confidence"`
	Extracted  models.ExtractedBillData `json:"extracted_data" binding:"required"`
}

// IngestDocument creates a bill from a document extraction
func (h *Handlers) IngestDocument(c *gin.Context) {
	var req IngestDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	bill, err := h.ingestor.CreateBillFromDocument(c.Request.Context(), ingest.Input{
		OrgID:      req.OrgID,
		FileName:   req.FileName,
		Extracted:  req.Extracted,
		Confidence: req.Confidence,
	})
	if err != nil && !errors.Is(err, approval.ErrNoMatchingWorkflow) {
		h.fail(c, err)
		return
	}

	resp := Response{Success: err == nil, Data: billResponse(bill)}
	if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(http.StatusCreated, resp)
}

// PaymentWebhook applies one processor outcome delivery
func (h *Handlers) PaymentWebhook(c *gin.Context) {
	var outcome processor.Outcome
	if err := c.ShouldBindJSON(&outcome); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	if err := h.listener.Apply(c.Request.Context(), outcome); err != nil {
		if errors.Is(err, reconcile.ErrUnknownReference) {
			c.JSON(http.StatusNotFound, Response{Error: err.Error()})
			return
		}
		if errors.Is(err, reconcile.ErrOutcomeConflict) {
			c.JSON(http.StatusConflict, Response{Error: err.Error()})
			return
		}
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// Export streams the bill history export as CSV or XLSX
func (h *Handlers) Export(c *gin.Context) {
	orgID := c.Query("org_id")
	if orgID == "" {
		c.JSON(http.StatusBadRequest, Response{Error: "org_id is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "1000"))

	rows, err := h.exporter.Rows(c.Request.Context(), orgID, limit, 0)
	if err != nil {
		h.fail(c, err)
		return
	}

	var buf bytes.Buffer
	switch c.DefaultQuery("format", "csv") {
	case "xlsx":
		if err := export.WriteXLSX(&buf, rows); err != nil {
			h.fail(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="bills.xlsx"`)
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
	default:
		if err := export.WriteCSV(&buf, rows); err != nil {
			h.fail(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="bills.csv"`)
		c.Data(http.StatusOK, "text/csv", buf.Bytes())
	}
}

func (h *Handlers) billID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: "invalid bill id"})
		return 0, false
	}
	return id, true
}

// fail maps engine errors to HTTP status codes
func (h *Handlers) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, port.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, approval.ErrStaleApprovalState),
		errors.Is(err, approval.ErrDuplicateDecision),
		errors.Is(err, scheduler.ErrDuplicatePayment),
		errors.Is(err, port.ErrVersionConflict):
		status = http.StatusConflict
	case errors.Is(err, approval.ErrPaymentInFlight),
		errors.Is(err, approval.ErrNotRejected),
		errors.Is(err, approval.ErrNeedsReview),
		errors.Is(err, approval.ErrApproverNotAssigned),
		errors.Is(err, scheduler.ErrVendorInactive),
		errors.Is(err, scheduler.ErrAmountMismatch),
		errors.Is(err, ingest.ErrVendorUnknown):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.Error(err))
	}
	c.JSON(status, Response{Error: err.Error()})
}
