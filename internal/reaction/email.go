// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reaction

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/tombee/relay/internal/provider"
	"github.com/tombee/relay/internal/schema"
	"github.com/tombee/relay/pkg/errors"
)

// SMTPConfig holds the outbound mail relay settings. The relay is
// operator-provisioned, not per-user, so the send_email reaction needs no
// provider authorization.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// sendFunc matches smtp.SendMail, injectable for tests.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SendEmail delivers an email through the configured SMTP relay.
type SendEmail struct {
	cfg  SMTPConfig
	send sendFunc
}

// NewSendEmail creates the send_email executor.
func NewSendEmail(cfg SMTPConfig) *SendEmail {
	return &SendEmail{cfg: cfg, send: smtp.SendMail}
}

func (e *SendEmail) Name() string { return "send_email" }

func (e *SendEmail) Supports(reactionName string) bool { return reactionName == e.Name() }

func (e *SendEmail) Provider() string { return provider.None }

func (e *SendEmail) Fields() []schema.Field {
	return []schema.Field{
		{Name: "to", Type: schema.Email, Required: true, Description: "Recipient address"},
		{Name: "subject", Type: schema.String, Required: true, Description: "Subject line, may contain placeholders"},
		{Name: "body", Type: schema.String, Required: false, Description: "Plain-text body, may contain placeholders"},
	}
}

func (e *SendEmail) Run(ctx context.Context, userID string, config map[string]any) (string, error) {
	if err := schema.Validate(e.Fields(), config); err != nil {
		return "", err
	}
	if e.cfg.Host == "" || e.cfg.From == "" {
		return "", &errors.ExecutionError{
			Reaction: e.Name(),
			Message:  "smtp relay is not configured",
		}
	}

	to := configString(config, "to")
	subject := sanitizeHeader(configString(config, "subject"))
	body := configString(config, "body")

	msg := strings.Join([]string{
		"From: " + e.cfg.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")

	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)
	if err := e.send(addr, auth, e.cfg.From, []string{to}, []byte(msg)); err != nil {
		return "", &errors.ExecutionError{Reaction: e.Name(), Message: "smtp send failed", Cause: err}
	}

	return fmt.Sprintf("sent email to %s", to), nil
}

// sanitizeHeader strips CR/LF so substituted event data cannot inject
// additional message headers.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.ReplaceAll(s, "\n", " ")
}
