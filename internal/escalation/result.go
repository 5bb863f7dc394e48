package escalation

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
)

type OutcomeKind int

const (
	Delivered OutcomeKind = iota
	Skipped
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case Delivered:
		return "delivered"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome 一次投递尝试的结果
type Outcome struct {
	Kind      OutcomeKind
	Channel   Channel
	Recipient string
	Reason    string
	Err       error
}

func DeliveredTo(channel Channel, recipient string) Outcome {
	return Outcome{Kind: Delivered, Channel: channel, Recipient: recipient}
}

func SkippedFor(channel Channel, recipient, reason string) Outcome {
	return Outcome{Kind: Skipped, Channel: channel, Recipient: recipient, Reason: reason}
}

func FailedFor(channel Channel, recipient string, err error) Outcome {
	return Outcome{Kind: Failed, Channel: channel, Recipient: recipient, Err: err}
}

func (o Outcome) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("kind", o.Kind.String())
	enc.AddString("channel", string(o.Channel))
	enc.AddString("recipient", o.Recipient)
	if o.Reason != "" {
		enc.AddString("reason", o.Reason)
	}
	if o.Err != nil {
		enc.AddString("error", o.Err.Error())
	}
	return nil
}

// Report 单条 escalation 在本轮中的处理结果
type Report struct {
	EscalationID uuid.UUID
	AlertID      uuid.UUID
	HouseholdID  uuid.UUID
	Handler      string
	FromLevel    int
	ToLevel      int
	Outcomes     []Outcome
	Advanced     bool
	Stale        bool
	Resolved     bool
	Err          error
}

func (r *Report) Add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
}

func (r *Report) Count(kind OutcomeKind) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Kind == kind {
			n++
		}
	}
	return n
}

// CountChannel 按渠道统计，指标打点用
func (r *Report) CountChannel(channel Channel, kind OutcomeKind) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Channel == channel && o.Kind == kind {
			n++
		}
	}
	return n
}

func (r *Report) Fields() []zap.Field {
	return []zap.Field{
		zap.String("escalation_id", r.EscalationID.String()),
		zap.String("alert_id", r.AlertID.String()),
		zap.String("handler", r.Handler),
		zap.Int("from_level", r.FromLevel),
		zap.Int("to_level", r.ToLevel),
		zap.Int("delivered", r.Count(Delivered)),
		zap.Int("skipped", r.Count(Skipped)),
		zap.Int("failed", r.Count(Failed)),
		zap.Objects("outcomes", r.Outcomes),
	}
}

// RunResult 一轮升级的汇总，Processed 是尝试处理的条数，不代表投递成功
type RunResult struct {
	Due       int
	Processed int
	Advanced  int
	Stale     int
	Resolved  int
	Errored   int
	Reports   []Report
}
