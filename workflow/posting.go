package workflow

import (
	"context"
	"time"

	"github.com/mmdatafocus/pharmacy_backend/config"
	"github.com/mmdatafocus/pharmacy_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("pharmacy-workflow")

// runPosting wraps one posting operation: correlation id, span, optional Redis document lock,
// a single DB transaction and the posting metrics. fn must use tx for every read and write.
func runPosting(ctx context.Context, db *gorm.DB, doc string, docId int, fn func(ctx context.Context, tx *gorm.DB) error) (err error) {
	if db == nil {
		db = config.GetDB()
	}
	ctx = utils.SetCorrelationIdInContext(ctx, utils.CorrelationIdOrNew(ctx))
	ctx, span := tracer.Start(ctx, "post."+doc,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("doc", doc), attribute.Int("doc_id", docId)))
	started := time.Now()

	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		config.PostingsTotal.WithLabelValues(doc, result).Inc()
		config.PostingDuration.WithLabelValues(doc).Observe(time.Since(started).Seconds())
		span.End()
		logPosting(ctx, doc, docId, err)
	}()

	release, err := AcquireDocumentPostingLock(ctx, doc, docId)
	if err != nil {
		return err
	}
	defer release()

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, tx)
	})
}

func logPosting(ctx context.Context, doc string, docId int, err error) {
	logger := config.GetLogger()
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	fields := logrus.Fields{
		"field":          "Posting",
		"doc":            doc,
		"doc_id":         docId,
		"actor":          utils.GetActorFromContext(ctx).Label(),
		"correlation_id": correlationId,
	}
	if err != nil {
		logger.WithFields(fields).Warn("posting failed: " + err.Error())
		return
	}
	if config.DebugPosting() {
		logger.WithFields(fields).Info("posted")
	}
}
