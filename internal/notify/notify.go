// Package notify delivers alerts by email, SMS and push topic.
package notify

import (
	"context"
	"fmt"
	"strings"

	"competitor-radar/internal/logger"
	"competitor-radar/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SESService is the part of the SES client the sender uses
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SNSService is the part of the SNS client the sender uses
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Config configures the sender
type Config struct {
	Region      string
	SenderEmail string
	SMSSenderID string
}

// Sender delivers alerts through SES and SNS
type Sender struct {
	cfg Config
	ses SESService
	sns SNSService
	log logger.Logger
}

// NewSender loads the default AWS credential chain for the configured region
func NewSender(ctx context.Context, cfg Config, log logger.Logger) (*Sender, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSenderWithClients(cfg, ses.NewFromConfig(awsCfg), sns.NewFromConfig(awsCfg), log), nil
}

// NewSenderWithClients creates a sender over existing clients
func NewSenderWithClients(cfg Config, sesClient SESService, snsClient SNSService, log logger.Logger) *Sender {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Sender{cfg: cfg, ses: sesClient, sns: snsClient, log: log}
}

// Send delivers a over every configured channel. It reports true when at least
// one channel accepted the message.
func (s *Sender) Send(ctx context.Context, a *models.Alert, channels models.AlertChannels) bool {
	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(string(a.Severity)), a.Title)
	body := RenderBody(a)
	delivered := 0

	for _, to := range channels.Emails {
		if err := s.sendEmail(ctx, to, subject, body); err != nil {
			s.log.Error("Notifier: email send failed", map[string]interface{}{
				"alert_id": a.ID,
				"to":       to,
				"error":    err.Error(),
			})
			continue
		}
		delivered++
	}

	sms := truncate(fmt.Sprintf("%s: %s", subject, a.Message), 300)
	for _, phone := range channels.Phones {
		input := &sns.PublishInput{PhoneNumber: aws.String(phone), Message: aws.String(sms)}
		if s.cfg.SMSSenderID != "" {
			input.MessageAttributes = map[string]snstypes.MessageAttributeValue{
				"AWS.SNS.SMS.SenderID": {DataType: aws.String("String"), StringValue: aws.String(s.cfg.SMSSenderID)},
			}
		}
		if err := s.publish(ctx, input); err != nil {
			s.log.Error("Notifier: SMS send failed", map[string]interface{}{
				"alert_id": a.ID,
				"error":    err.Error(),
			})
			continue
		}
		delivered++
	}

	if channels.TopicARN != "" {
		if err := s.publish(ctx, &sns.PublishInput{
			TopicArn: aws.String(channels.TopicARN),
			Subject:  aws.String(truncate(subject, 100)),
			Message:  aws.String(body),
		}); err != nil {
			s.log.Error("Notifier: push publish failed", map[string]interface{}{
				"alert_id": a.ID,
				"topic":    channels.TopicARN,
				"error":    err.Error(),
			})
		} else {
			delivered++
		}
	}

	s.log.Info("Notifier: alert delivered", map[string]interface{}{
		"alert_id":  a.ID,
		"delivered": delivered,
		"channels":  channels.Names(),
	})
	return delivered > 0
}

func (s *Sender) sendEmail(ctx context.Context, to, subject, body string) error {
	_, err := s.ses.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(s.cfg.SenderEmail),
	})
	return err
}

func (s *Sender) publish(ctx context.Context, input *sns.PublishInput) error {
	_, err := s.sns.Publish(ctx, input)
	return err
}

// RenderBody formats the plain-text alert body
func RenderBody(a *models.Alert) string {
	var b strings.Builder
	b.WriteString(a.Title)
	b.WriteString("\n\n")
	b.WriteString(a.Message)
	if len(a.Recommendations) > 0 {
		b.WriteString("\n\nRecommended actions:\n")
		for _, r := range a.Recommendations {
			b.WriteString("- ")
			b.WriteString(r)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
