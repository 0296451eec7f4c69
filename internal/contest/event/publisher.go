// Package event publishes contest grading events for downstream consumers such
// as the notification service.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"recruitoj/internal/common/mq"
	"recruitoj/internal/contest/model"
	appErr "recruitoj/pkg/errors"
)

const (
	// TypeSubmissionJudged marks a submission that reached a terminal status.
	TypeSubmissionJudged = "submission.judged"

	headerEventType = "event-type"
	headerUserID    = "user-id"
)

// SubmissionJudged is the payload written once per terminal submission.
type SubmissionJudged struct {
	Type         string                 `json:"type"`
	SubmissionID string                 `json:"submission_id"`
	UserID       string                 `json:"user_id"`
	ProblemID    int                    `json:"problem_id"`
	Status       model.SubmissionStatus `json:"status"`
	Verdict      model.Verdict          `json:"verdict,omitempty"`
	PassedCount  int                    `json:"passed_count"`
	TotalCount   int                    `json:"total_count"`
	Scored       bool                   `json:"scored"`
	Error        string                 `json:"error,omitempty"`
	JudgedAt     time.Time              `json:"judged_at"`
}

// Publisher writes grading events to one topic.
type Publisher struct {
	producer mq.Producer
	topic    string
}

// NewPublisher creates a publisher on topic.
func NewPublisher(producer mq.Producer, topic string) (*Publisher, error) {
	if producer == nil {
		return nil, fmt.Errorf("producer is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	return &Publisher{producer: producer, topic: topic}, nil
}

// PublishJudged encodes and publishes evt.
func (p *Publisher) PublishJudged(ctx context.Context, evt SubmissionJudged) error {
	if evt.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	evt.Type = TypeSubmissionJudged
	if evt.JudgedAt.IsZero() {
		evt.JudgedAt = time.Now()
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "encode judged event failed")
	}
	msg := mq.NewMessage(body)
	msg.ID = evt.SubmissionID
	msg.Timestamp = evt.JudgedAt
	msg.SetHeader(headerEventType, evt.Type)
	msg.SetHeader(headerUserID, evt.UserID)
	if err := p.producer.Publish(ctx, p.topic, msg); err != nil {
		return appErr.Wrapf(err, appErr.ServiceUnavailable, "publish judged event failed")
	}
	return nil
}
