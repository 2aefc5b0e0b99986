// Copyright 2025 The Rouse Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sns delivers SMS notifications through AWS SNS.
package sns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/rouselabs/rouse/notify"
	"github.com/rouselabs/rouse/provider"
	"github.com/rouselabs/rouse/types"
)

// Client is the subset of the SNS API the notifier uses.
type Client interface {
	Publish(ctx context.Context, in *sns.PublishInput, opts ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Notifier publishes SMS messages via SNS. The target is an E.164 phone
// number.
type Notifier struct {
	client Client
	logger *slog.Logger
}

// New creates an SNS notifier from the ambient AWS configuration. An empty
// region defers to the environment.
func New(ctx context.Context, region string, logger *slog.Logger) (*Notifier, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewWithClient(sns.NewFromConfig(cfg), logger), nil
}

// NewWithClient creates an SNS notifier over an existing client.
func NewWithClient(client Client, logger *slog.Logger) *Notifier {
	return &Notifier{client: client, logger: logger.With("notifier", "sns")}
}

// Channel implements notify.Notifier.
func (n *Notifier) Channel() types.Channel { return types.ChannelSMS }

// Notify implements notify.Notifier. The returned external id is the SNS
// message id.
func (n *Notifier) Notify(ctx context.Context, p *provider.PendingNotification) (string, error) {
	if !strings.HasPrefix(p.Target, "+") {
		return "", fmt.Errorf("sms target %q: %w", p.Target, notify.ErrInvalidTarget)
	}
	out, err := n.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(p.Target),
		Message:     aws.String(p.Payload),
	})
	if err != nil {
		return "", n.classify(err)
	}
	id := aws.ToString(out.MessageId)
	n.logger.Debug("published sms", "target", p.Target, "message_id", id)
	return id, nil
}

func (n *Notifier) classify(err error) error {
	var invalid *snstypes.InvalidParameterException
	if errors.As(err, &invalid) {
		return fmt.Errorf("sns: %s: %w", err, notify.ErrInvalidTarget)
	}
	var throttled *snstypes.ThrottledException
	if errors.As(err, &throttled) {
		return fmt.Errorf("sns: %s: %w", err, notify.ErrRateLimited)
	}
	return fmt.Errorf("sns: %s: %w", err, notify.ErrDeliveryFailed)
}
