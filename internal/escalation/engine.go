package escalation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"CareLink/internal/dispatch"
	"CareLink/internal/model"
	pkgerrors "CareLink/pkg/errors"
	"CareLink/pkg/metrics"
)

var (
	// ErrEscalationStale 推进时记录已被解决或已被其他进程推进
	ErrEscalationStale = pkgerrors.EscalationStale
	// ErrRunInProgress 另一轮升级正在执行
	ErrRunInProgress = pkgerrors.EscalationRunBusy
	// ErrDispatcherNotReady 邮件凭据缺失
	ErrDispatcherNotReady = pkgerrors.DispatcherNotReady
)

// EscalationStore 升级记录与告警的读写
type EscalationStore interface {
	ListDue(ctx context.Context, now time.Time) ([]model.Escalation, error)
	GetAlert(ctx context.Context, alertID uuid.UUID) (*model.Alert, error)
	// Advance 仅在 resolved = false 且 level 未变时更新，否则返回 ErrEscalationStale
	Advance(ctx context.Context, adv model.Advance) error
	// Resolve 守卫条件同 Advance，用于告警已确认但记录仍未解决的情况
	Resolve(ctx context.Context, escalationID uuid.UUID, level int, at time.Time) error
}

type RecipientResolver interface {
	Resolve(ctx context.Context, householdID uuid.UUID) (*model.Recipients, error)
}

type PushSender interface {
	SendPush(ctx context.Context, messages []dispatch.PushMessage) error
}

type EmailSender interface {
	Ready() error
	SendEmail(ctx context.Context, email dispatch.Email) error
}

// Locker 可选，避免多个触发源同时跑
type Locker interface {
	Acquire(ctx context.Context) (token string, ok bool, err error)
	Release(ctx context.Context, token string) error
}

// EventPublisher 可选，发布失败不影响状态
type EventPublisher interface {
	PublishEscalationAdvanced(ctx context.Context, event model.EscalationAdvancedEvent) error
}

type Deps struct {
	Store      EscalationStore
	Recipients RecipientResolver
	Push       PushSender
	Email      EmailSender
	Lock       Locker
	Events     EventPublisher
	Logger     *zap.Logger
	Clock      func() time.Time
}

// 投递完成后的写入不受本轮超时影响，单独限时
const commitTimeout = 10 * time.Second

type Options struct {
	Ladder          Ladder
	DefaultInterval time.Duration
}

// Engine 选出到期的升级记录，按级别投递，然后无条件推进
type Engine struct {
	store      EscalationStore
	recipients RecipientResolver
	push       PushSender
	email      EmailSender
	lock       Locker
	events     EventPublisher
	log        *zap.Logger
	now        func() time.Time
	tracer     trace.Tracer

	ladder          Ladder
	defaultInterval time.Duration
}

func NewEngine(deps Deps, opts Options) *Engine {
	e := &Engine{
		store:           deps.Store,
		recipients:      deps.Recipients,
		push:            deps.Push,
		email:           deps.Email,
		lock:            deps.Lock,
		events:          deps.Events,
		log:             deps.Logger,
		now:             deps.Clock,
		tracer:          otel.Tracer("carelink.escalation"),
		ladder:          opts.Ladder,
		defaultInterval: opts.DefaultInterval,
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if len(e.ladder) == 0 {
		e.ladder = DefaultLadder()
	}
	if e.defaultInterval <= 0 {
		e.defaultInterval = model.DefaultEscalationMinutes * time.Minute
	}
	return e
}

// Run 执行一轮升级。返回 error 表示整轮失败（凭据缺失、选择查询失败、锁被占用）
// 单条记录的错误只记日志，不影响其它记录
func (e *Engine) Run(ctx context.Context) (result RunResult, err error) {
	ctx, span := e.tracer.Start(ctx, "escalation.Run")
	started := e.now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(
			attribute.Int("escalation.due", result.Due),
			attribute.Int("escalation.advanced", result.Advanced),
			attribute.Int("escalation.stale", result.Stale),
			attribute.Int("escalation.errored", result.Errored),
		)
		span.End()
		metrics.RecordRun(ctx, result.Due, e.now().Sub(started).Seconds(), outcome)
	}()

	if err := e.email.Ready(); err != nil {
		return RunResult{}, err
	}

	if e.lock != nil {
		token, ok, lockErr := e.lock.Acquire(ctx)
		switch {
		case lockErr != nil:
			// 乐观更新已能防止重复推进，锁不可用时继续执行
			e.log.Warn("Failed to acquire escalation run lock, continuing without it", zap.Error(lockErr))
		case !ok:
			return RunResult{}, ErrRunInProgress
		default:
			defer func() {
				if err := e.lock.Release(context.WithoutCancel(ctx), token); err != nil {
					e.log.Warn("Failed to release escalation run lock", zap.Error(err))
				}
			}()
		}
	}

	due, err := e.store.ListDue(ctx, e.now())
	if err != nil {
		return RunResult{}, fmt.Errorf("failed to list due escalations: %w", err)
	}

	result.Due = len(due)
	if len(due) == 0 {
		e.log.Debug("No escalations to process")
		return result, nil
	}

	e.log.Info("Processing due escalations", zap.Int("count", len(due)))

	for i := range due {
		if ctx.Err() != nil {
			e.log.Warn("Escalation run deadline reached, leaving remaining escalations for next run",
				zap.Int("remaining", len(due)-i),
				zap.Error(ctx.Err()),
			)
			break
		}

		report := e.process(ctx, &due[i])
		result.Processed++

		switch {
		case report.Err != nil:
			result.Errored++
		case report.Stale:
			result.Stale++
		case report.Resolved:
			result.Resolved++
		case report.Advanced:
			result.Advanced++
		}
		result.Reports = append(result.Reports, report)
	}

	e.log.Info("Escalation run completed",
		zap.Int("processed", result.Processed),
		zap.Int("advanced", result.Advanced),
		zap.Int("stale", result.Stale),
		zap.Int("resolved", result.Resolved),
		zap.Int("errored", result.Errored),
		zap.Duration("duration", e.now().Sub(started)),
	)

	return result, nil
}

// process 处理单条记录：加载 -> 计划 -> 投递 -> 推进，错误记录在 Report.Err 中
func (e *Engine) process(ctx context.Context, esc *model.Escalation) (report Report) {
	ctx, span := e.tracer.Start(ctx, "escalation.process", trace.WithAttributes(
		attribute.String("escalation.id", esc.ID.String()),
		attribute.Int("escalation.level", esc.EscalationLevel),
	))
	defer span.End()

	report = Report{
		EscalationID: esc.ID,
		AlertID:      esc.AlertID,
		HouseholdID:  esc.HouseholdID,
		FromLevel:    esc.EscalationLevel,
		ToLevel:      esc.EscalationLevel,
	}

	fail := func(stage string, err error) Report {
		report.Err = fmt.Errorf("%s: %w", stage, err)
		span.RecordError(report.Err)
		span.SetStatus(codes.Error, stage)
		metrics.RecordEscalationError(ctx, stage)
		e.log.Error("Failed to process escalation", append(report.Fields(), zap.String("stage", stage), zap.Error(err))...)
		return report
	}

	if err := esc.Validate(); err != nil {
		return fail("validate_escalation", fmt.Errorf("%w: %v", pkgerrors.EscalationInvalid, err))
	}

	alert, err := e.store.GetAlert(ctx, esc.AlertID)
	if err != nil {
		return fail("load_alert", err)
	}
	if err := alert.Validate(); err != nil {
		return fail("validate_alert", fmt.Errorf("%w: %v", pkgerrors.AlertInvalid, err))
	}
	if alert.Acknowledged {
		return e.resolveAcknowledged(ctx, esc, report)
	}

	recipients, err := e.recipients.Resolve(ctx, esc.HouseholdID)
	if err != nil {
		return fail("resolve_recipients", err)
	}

	handler := e.ladder.HandlerFor(esc.EscalationLevel)
	report.Handler = handler.Name
	plan := handler.Plan(LevelContext{Escalation: esc, Alert: alert, Recipients: recipients})

	for _, skipped := range plan.Skipped {
		report.Add(skipped)
	}
	e.dispatchPush(ctx, plan.Push, &report)
	e.dispatchEmails(ctx, plan.Emails, &report)

	// 投递全部尝试完成后才推进，无论投递结果如何
	interval := recipients.Interval
	if interval <= 0 {
		interval = e.defaultInterval
	}
	adv := esc.NextAdvance(e.now(), interval)

	// 通知已经发出，写入必须落地，否则下一轮会重复发送同一级
	commitCtx, cancel := e.commitContext(ctx)
	defer cancel()

	if err := e.store.Advance(commitCtx, adv); err != nil {
		if errors.Is(err, ErrEscalationStale) {
			report.Stale = true
			metrics.RecordEscalationStale(ctx)
			e.log.Info("Escalation resolved or advanced concurrently, skipping advance", report.Fields()...)
			return report
		}
		return fail("advance", err)
	}

	report.ToLevel = adv.ToLevel
	report.Advanced = true
	metrics.RecordEscalationProcessed(ctx, report.FromLevel)
	e.log.Info("Escalation advanced", append(report.Fields(), zap.Time("next_escalation_at", adv.NextEscalationAt))...)

	e.publish(commitCtx, &report, adv)
	return report
}

// resolveAcknowledged 告警已确认但记录仍未解决：不投递，直接关闭
func (e *Engine) resolveAcknowledged(ctx context.Context, esc *model.Escalation, report Report) Report {
	report.Handler = "acknowledged"
	report.Add(Outcome{Kind: Skipped, Reason: "alert acknowledged"})

	commitCtx, cancel := e.commitContext(ctx)
	defer cancel()

	if err := e.store.Resolve(commitCtx, esc.ID, esc.EscalationLevel, e.now()); err != nil {
		if errors.Is(err, ErrEscalationStale) {
			report.Stale = true
			metrics.RecordEscalationStale(ctx)
			return report
		}
		report.Err = fmt.Errorf("resolve_acknowledged: %w", err)
		metrics.RecordEscalationError(ctx, "resolve_acknowledged")
		e.log.Error("Failed to resolve escalation for acknowledged alert", append(report.Fields(), zap.Error(err))...)
		return report
	}

	report.Resolved = true
	e.log.Info("Alert already acknowledged, escalation resolved", report.Fields()...)
	return report
}

func (e *Engine) commitContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
}

// 一次批量请求，整体成功或失败
func (e *Engine) dispatchPush(ctx context.Context, messages []dispatch.PushMessage, report *Report) {
	if len(messages) == 0 {
		return
	}

	started := e.now()
	err := e.push.SendPush(ctx, messages)
	elapsed := e.now().Sub(started).Seconds()

	for _, msg := range messages {
		if err != nil {
			report.Add(FailedFor(ChannelPush, msg.To, err))
		} else {
			report.Add(DeliveredTo(ChannelPush, msg.To))
		}
	}

	if err != nil {
		e.log.Warn("Push dispatch failed",
			zap.String("escalation_id", report.EscalationID.String()),
			zap.Int("tokens", len(messages)),
			zap.Error(err),
		)
		metrics.RecordDispatch(ctx, string(ChannelPush), Failed.String(), len(messages), elapsed)
		return
	}
	metrics.RecordDispatch(ctx, string(ChannelPush), Delivered.String(), len(messages), elapsed)
}

// 逐个收件人发送，单个失败不影响其它收件人
func (e *Engine) dispatchEmails(ctx context.Context, emails []dispatch.Email, report *Report) {
	for _, email := range emails {
		started := e.now()
		err := e.email.SendEmail(ctx, email)
		elapsed := e.now().Sub(started).Seconds()

		if err != nil {
			report.Add(FailedFor(ChannelEmail, email.To, err))
			e.log.Warn("Email dispatch failed",
				zap.String("escalation_id", report.EscalationID.String()),
				zap.String("to", email.To),
				zap.Error(err),
			)
			metrics.RecordDispatch(ctx, string(ChannelEmail), Failed.String(), 1, elapsed)
			continue
		}

		report.Add(DeliveredTo(ChannelEmail, email.To))
		metrics.RecordDispatch(ctx, string(ChannelEmail), Delivered.String(), 1, elapsed)
	}
}

func (e *Engine) publish(ctx context.Context, report *Report, adv model.Advance) {
	if e.events == nil {
		return
	}

	event := model.EscalationAdvancedEvent{
		EscalationID:     report.EscalationID.String(),
		AlertID:          report.AlertID.String(),
		HouseholdID:      report.HouseholdID.String(),
		FromLevel:        adv.FromLevel,
		ToLevel:          adv.ToLevel,
		Delivered:        report.Count(Delivered),
		Skipped:          report.Count(Skipped),
		Failed:           report.Count(Failed),
		NextEscalationAt: adv.NextEscalationAt.UTC().Format(time.RFC3339),
		OccurredAt:       adv.EscalatedAt.UTC().Format(time.RFC3339),
	}

	if err := e.events.PublishEscalationAdvanced(ctx, event); err != nil {
		e.log.Warn("Failed to publish escalation event",
			zap.String("escalation_id", event.EscalationID),
			zap.Error(err),
		)
	}
}
