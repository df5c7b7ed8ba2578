package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"eventcert/internal/errcode"
	"eventcert/internal/issuance"
	"eventcert/internal/storage"
	"eventcert/internal/tasks"
)

// BatchSender 执行一个批次，由 issuance.Orchestrator 实现。
type BatchSender interface {
	Send(ctx context.Context, req issuance.Request) (issuance.Result, error)
}

// BatchFiles 读取并清理批次暂存文件，由 storage.BatchStore 实现。
type BatchFiles interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Cleanup(ctx context.Context, batchID string) error
}

// BatchTaskHandler 负责消费排队发送的批次。
type BatchTaskHandler struct {
	sender    BatchSender
	files     BatchFiles
	publisher Publisher
	logger    *slog.Logger
}

// NewBatchTaskHandler 创建任务处理器。
func NewBatchTaskHandler(sender BatchSender, files BatchFiles, publisher Publisher, logger *slog.Logger) *BatchTaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchTaskHandler{sender: sender, files: files, publisher: publisher, logger: logger}
}

// ProcessTask 实现 asynq.Handler。
func (h *BatchTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	var payload tasks.IssuanceBatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return fmt.Errorf("decode batch payload: %w: %w", err, asynq.SkipRetry)
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.String("batch_id", payload.BatchID),
		slog.String("event_id", payload.EventID),
	)
	log.Info("starting queued batch")

	final := false
	failCode := errcode.SystemError
	defer func() {
		if retErr != nil && !final && !isFinalAsynqAttempt(ctx) {
			return
		}
		// 暂存文件只在批次结束（成功或不再重试）后删除。
		if err := h.files.Cleanup(context.WithoutCancel(ctx), payload.BatchID); err != nil {
			log.Warn("cleanup batch files failed", slog.Any("error", err))
		}
		if retErr == nil {
			return
		}
		notify := BatchNotifyMessage{
			Status:        "error",
			BatchID:       payload.BatchID,
			EventID:       payload.EventID,
			CorrelationID: payload.CorrelationID,
			ErrorCode:     failCode,
			ErrorMessage:  strings.TrimSpace(retErr.Error()),
		}
		if err := publishNotify(ctx, h.publisher, payload.OwnerID, notify); err != nil {
			log.Error("publish batch error notification failed", slog.Any("error", err))
		}
	}()

	req := issuance.Request{
		EventID:         payload.EventID,
		EmailType:       issuance.EmailType(payload.EmailType),
		RecipientSource: issuance.RecipientSource(payload.RecipientSource),
		Subject:         payload.Subject,
		Message:         payload.Message,
		CollegeName:     payload.CollegeName,
		LayoutOverride:  payload.LayoutOverride,
		SelectedEmails:  payload.SelectedEmails,
		AccessToken:     payload.AccessToken,
	}
	var err error
	if payload.TemplateKey != "" {
		if req.Template, err = h.files.Load(ctx, payload.TemplateKey); err != nil {
			log.Error("load staged template failed", slog.Any("error", err))
			return h.stagedLoadError(err, &final, &failCode)
		}
	}
	if payload.RecipientFileKey != "" {
		if req.RecipientFile, err = h.files.Load(ctx, payload.RecipientFileKey); err != nil {
			log.Error("load staged recipient file failed", slog.Any("error", err))
			return h.stagedLoadError(err, &final, &failCode)
		}
	}

	result, err := h.sender.Send(ctx, req)
	if err != nil {
		if errors.Is(err, issuance.ErrEventNotFound) || errors.Is(err, issuance.ErrUnreadableUpload) {
			final = true
			log.Warn("batch rejected", slog.Any("error", err))
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		log.Error("batch failed", slog.Any("error", err))
		return err
	}

	notify := BatchNotifyMessage{
		Status:        "completed",
		BatchID:       payload.BatchID,
		EventID:       payload.EventID,
		CorrelationID: payload.CorrelationID,
		Sent:          result.Sent,
		Failed:        result.Failed,
		ErrorCode:     errcode.OK,
	}
	if result.Failed > 0 {
		notify.ErrorCode = errcode.PartialFailure
		notify.ErrorMessage = fmt.Sprintf("%d recipients could not be reached", result.Failed)
	}
	if err := publishNotify(ctx, h.publisher, payload.OwnerID, notify); err != nil {
		log.Error("publish redis notification failed", slog.Any("error", err))
	}

	log.Info("queued batch completed", slog.Int("sent", result.Sent), slog.Int("failed", result.Failed))
	return nil
}

// stagedLoadError 处理暂存文件读取失败：文件已被清理时重试没有意义。
func (h *BatchTaskHandler) stagedLoadError(err error, final *bool, code *int) error {
	if !storage.IsNoSuchKey(err) {
		return err
	}
	*final = true
	*code = errcode.ResourceMissing
	return fmt.Errorf("staged file missing: %w: %w", err, asynq.SkipRetry)
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
