package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/pharmacy_backend/config"
	"github.com/mmdatafocus/pharmacy_backend/models"
	"github.com/mmdatafocus/pharmacy_backend/utils"
	"github.com/mmdatafocus/pharmacy_backend/workflow"
	"gorm.io/gorm"
)

// errorResponse writes {error, detail} with the status the error maps to.
func errorResponse(c *gin.Context, err error) {
	status := models.HTTPStatusFor(err)
	if errors.Is(err, workflow.ErrPostingInProgress) {
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		config.LogError(config.GetLogger(), "handlers.go", c.FullPath(), "request failed", c.Request.URL.String(), err)
		c.JSON(status, gin.H{"error": "internal error", "detail": err.Error()})
		return
	}
	c.JSON(status, gin.H{"error": http.StatusText(status), "detail": err.Error()})
}

func idParam(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Bad Request", "detail": "invalid " + name})
		return 0, false
	}
	return id, true
}

func optionalIntQuery(c *gin.Context, name string) (*int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Bad Request", "detail": "invalid " + name})
		return nil, false
	}
	return &v, true
}

func dateQuery(c *gin.Context, name string, def time.Time) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	d, err := utils.ParseDate(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Bad Request", "detail": "invalid " + name})
		return time.Time{}, false
	}
	return d, true
}

// createHandler binds T and passes it to create.
func createHandler[T any, R any](db *gorm.DB, create func(ctx context.Context, db *gorm.DB, input *T) (*R, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input T
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Bad Request", "detail": err.Error()})
			return
		}
		out, err := create(c.Request.Context(), conn(db), &input)
		if err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusCreated, out)
	}
}

// documentAction runs a posting operation on the :id document.
func documentAction[R any](db *gorm.DB, action func(ctx context.Context, db *gorm.DB, id int) (*R, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		out, err := action(c.Request.Context(), conn(db), id)
		if err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

func postGoodsReceiptHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		grn, err := workflow.PostGoodsReceipt(c.Request.Context(), conn(db), id)
		if err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"posted": true, "grn_no": grn.GrnNo})
	}
}

func postSalesInvoiceHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		invoice, err := workflow.PostSalesInvoice(c.Request.Context(), conn(db), id)
		if err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"invoice_no":     invoice.InvoiceNo,
			"status":         invoice.Status,
			"net_total":      invoice.NetTotal,
			"payment_status": invoice.PaymentStatus,
		})
	}
}

func attachPrescriptionHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var input models.NewPrescription
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Bad Request", "detail": err.Error()})
			return
		}
		rx, err := models.AttachPrescription(c.Request.Context(), conn(db), id, &input)
		if err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, rx)
	}
}

func addPaymentHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var input models.NewPayment
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Bad Request", "detail": err.Error()})
			return
		}
		invoice, err := models.AddInvoicePayment(c.Request.Context(), conn(db), id, &input)
		if err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, invoice)
	}
}

func recallHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var body struct {
			Note string `json:"note"`
		}
		_ = c.ShouldBindJSON(&body)
		lot, err := workflow.RecallBatchLot(c.Request.Context(), conn(db), id, body.Note)
		if err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, lot)
	}
}

func stockHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		locationId, ok := optionalIntQuery(c, "location_id")
		if !ok {
			return
		}
		productId, ok := optionalIntQuery(c, "product_id")
		if !ok {
			return
		}
		batchId, ok := optionalIntQuery(c, "batch_id")
		if !ok {
			return
		}
		rows, err := models.StockQuery(c.Request.Context(), conn(db), models.StockFilter{
			LocationId: locationId,
			ProductId:  productId,
			BatchLotId: batchId,
		})
		if err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

func globalStockHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := models.GlobalInventory(c.Request.Context(), conn(db), models.LowStockDefault(c.Request.Context()))
		if err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

func lowStockHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		locationId, ok := optionalIntQuery(c, "location_id")
		if !ok {
			return
		}
		if locationId == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Bad Request", "detail": "location_id is required"})
			return
		}
		rows, err := models.LowStock(c.Request.Context(), conn(db), *locationId, models.LowStockDefault(c.Request.Context()))
		if err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

func nearExpiryHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		locationId, ok := optionalIntQuery(c, "location_id")
		if !ok {
			return
		}
		days := models.ExpiryWarningDays(c.Request.Context())
		if raw := c.Query("days"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Bad Request", "detail": "invalid days"})
				return
			}
			days = n
		}
		rows, err := models.NearExpiry(c.Request.Context(), conn(db), locationId, days)
		if err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

func h1RegisterHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		today := utils.Today()
		start, ok := dateQuery(c, "start", today.AddDate(0, -1, 0))
		if !ok {
			return
		}
		end, ok := dateQuery(c, "end", today)
		if !ok {
			return
		}
		rows, err := models.ListH1Register(c.Request.Context(), conn(db), start, end)
		if err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

func ndpsRegisterHandler(db *gorm.DB, recompute bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		productId, ok := idParam(c, "productId")
		if !ok {
			return
		}
		today := utils.Today()
		start, ok := dateQuery(c, "start", today.AddDate(0, -1, 0))
		if !ok {
			return
		}
		end, ok := dateQuery(c, "end", today)
		if !ok {
			return
		}
		var (
			rows []models.NDPSDailyEntry
			err  error
		)
		if recompute {
			rows, err = workflow.RecomputeNDPSDaily(c.Request.Context(), conn(db), productId, start, end)
		} else {
			rows, err = models.ListNDPSEntries(c.Request.Context(), conn(db), productId, start, end)
		}
		if err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

func createProductHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p models.Product
		if err := c.ShouldBindJSON(&p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Bad Request", "detail": err.Error()})
			return
		}
		p.ID = 0
		if err := models.CreateProduct(c.Request.Context(), conn(db), &p); err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusCreated, p)
	}
}

func createLocationHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var l models.Location
		if err := c.ShouldBindJSON(&l); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Bad Request", "detail": err.Error()})
			return
		}
		l.ID = 0
		if err := models.CreateLocation(c.Request.Context(), conn(db), &l); err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusCreated, l)
	}
}

func setSettingHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Value string `json:"value"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Bad Request", "detail": err.Error()})
			return
		}
		key := c.Param("key")
		if err := models.SetSetting(c.Request.Context(), conn(db), key, body.Value); err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"key": key, "value": body.Value})
	}
}

func runJobHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := workflow.ScheduledJobs()[c.Param("name")]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not Found", "detail": "unknown job " + c.Param("name")})
			return
		}
		result, err := workflow.RunScheduledJob(c.Request.Context(), conn(db), job)
		if err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// conn falls back to the global connection for routers built before the database was up.
func conn(db *gorm.DB) *gorm.DB {
	if db != nil {
		return db
	}
	return config.GetDB()
}
