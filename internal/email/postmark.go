// Package email sends transactional mail through the Postmark API.
package email

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

type Client struct {
	serverToken string
	fromEmail   string
	baseURL     string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(serverToken, fromEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     baseURL,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// SendVerification sends the email-verification link for a new account.
func (c *Client) SendVerification(toEmail, token string) error {
	link := fmt.Sprintf("%s/auth/verify-email?token=%s", c.baseURL, token)
	text := fmt.Sprintf("Welcome to Larder! Click the link below to verify your email address:\n\n%s\n\nThis link expires in 24 hours.", link)
	html := fmt.Sprintf(
		`<p>Welcome to Larder! Click the link below to verify your email address:</p><p><a href="%s">Verify email</a></p><p>This link expires in 24 hours.</p>`,
		link,
	)
	return c.send(toEmail, "Verify your Larder email", html, text)
}

// SendPasswordReset sends a password reset link.
func (c *Client) SendPasswordReset(toEmail, token string) error {
	link := fmt.Sprintf("%s/auth/reset-password?token=%s", c.baseURL, token)
	text := fmt.Sprintf("Click the link below to reset your Larder password:\n\n%s\n\nThis link expires in 1 hour. If you didn't request this, you can ignore this email.", link)
	html := fmt.Sprintf(
		`<p>Click the link below to reset your Larder password:</p><p><a href="%s">Reset password</a></p><p>This link expires in 1 hour. If you didn't request this, you can ignore this email.</p>`,
		link,
	)
	return c.send(toEmail, "Reset your Larder password", html, text)
}

// SendInvite sends a household invitation carrying the invite code.
func (c *Client) SendInvite(toEmail, householdName, inviteCode string) error {
	link := fmt.Sprintf("%s/join?code=%s", c.baseURL, inviteCode)
	text := fmt.Sprintf("You've been invited to join %s on Larder.\n\nYour invite code is %s, or use the link below:\n\n%s\n\nThe invite expires in 30 days.", householdName, inviteCode, link)
	html := fmt.Sprintf(
		`<p>You've been invited to join <strong>%s</strong> on Larder.</p><p>Your invite code is <strong>%s</strong>, or use the link below:</p><p><a href="%s">Join household</a></p><p>The invite expires in 30 days.</p>`,
		householdName, inviteCode, link,
	)
	return c.send(toEmail, fmt.Sprintf("You've been invited to %s on Larder", householdName), html, text)
}

func (c *Client) send(toEmail, subject, htmlBody, textBody string) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	payload := postmarkEmail{
		From:     c.fromEmail,
		To:       toEmail,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: textBody,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequest("POST", "https://api.postmarkapp.com/email", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}
