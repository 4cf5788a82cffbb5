package notify

import (
	"context"
	"errors"
	"testing"

	"competitor-radar/internal/logger"
	"competitor-radar/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
)

// ==========================
// Mock Implementations
// ==========================

type MockSESService struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func (m *MockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	return m.SendEmailFunc(ctx, params, optFns...)
}

type MockSNSService struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return m.PublishFunc(ctx, params, optFns...)
}

func testAlert() *models.Alert {
	return &models.Alert{
		ID:              "alert-1",
		Severity:        models.SeverityCritical,
		Title:           "Rival is threatening your position",
		Message:         "Rival changed since the last scan: +25 reviews.",
		Recommendations: []string{"Ask for reviews"},
	}
}

func TestSender_Send(t *testing.T) {
	tests := []struct {
		name      string
		channels  models.AlertChannels
		sesErr    error
		snsErr    error
		want      bool
		wantEmail int
		wantSNS   int
	}{
		{
			name:      "email only",
			channels:  models.AlertChannels{Emails: []string{"owner@example.com"}},
			want:      true,
			wantEmail: 1,
		},
		{
			name:     "sms and push",
			channels: models.AlertChannels{Phones: []string{"+15550100"}, TopicARN: "arn:aws:sns:us-east-1:1:radar"},
			want:     true,
			wantSNS:  2,
		},
		{
			name:      "every channel fails",
			channels:  models.AlertChannels{Emails: []string{"a@example.com"}, Phones: []string{"+15550100"}},
			sesErr:    errors.New("throttled"),
			snsErr:    errors.New("opted out"),
			want:      false,
			wantEmail: 1,
			wantSNS:   1,
		},
		{
			name:      "one channel succeeds",
			channels:  models.AlertChannels{Emails: []string{"a@example.com"}, Phones: []string{"+15550100"}},
			sesErr:    errors.New("throttled"),
			want:      true,
			wantEmail: 1,
			wantSNS:   1,
		},
		{
			name:     "no channels",
			channels: models.AlertChannels{},
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emails, published := 0, 0
			mockSES := &MockSESService{
				SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
					emails++
					assert.Equal(t, "radar@example.com", aws.ToString(params.Source))
					assert.Contains(t, aws.ToString(params.Message.Subject.Data), "[CRITICAL]")
					assert.Contains(t, aws.ToString(params.Message.Body.Text.Data), "- Ask for reviews")
					return &ses.SendEmailOutput{}, tt.sesErr
				},
			}
			mockSNS := &MockSNSService{
				PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
					published++
					return &sns.PublishOutput{}, tt.snsErr
				},
			}

			s := NewSenderWithClients(Config{SenderEmail: "radar@example.com"}, mockSES, mockSNS, logger.NewTestLogger(t))
			got := s.Send(context.Background(), testAlert(), tt.channels)

			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantEmail, emails)
			assert.Equal(t, tt.wantSNS, published)
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
