package templates

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	textTemplate "text/template"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed emails/*
var emailTemplates embed.FS

// EmailConfig holds email configuration from emails/config.yaml
type EmailConfig struct {
	Branding struct {
		Name    string `yaml:"name"`
		Website string `yaml:"website"`
	} `yaml:"branding"`

	Subjects struct {
		LockoutAlert string `yaml:"lockout_alert"`
	} `yaml:"subjects"`

	LockoutAlert struct {
		Intro  string `yaml:"intro"`
		Advice string `yaml:"advice"`
	} `yaml:"lockout_alert"`
}

// LoadEmailConfig loads email configuration from the embedded config.yaml
func LoadEmailConfig() (*EmailConfig, error) {
	data, err := emailTemplates.ReadFile("emails/config.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read email config: %w", err)
	}

	var config EmailConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse email config: %w", err)
	}

	return &config, nil
}

// LockoutAlertData holds data for the lockout alert email
type LockoutAlertData struct {
	Username    string
	LockedUntil string

	// Config-based data
	BrandName string
	Website   string
	Intro     string
	Advice    string
}

// LockoutAlert is a rendered alert ready to send
type LockoutAlert struct {
	Subject string
	Text    string
	HTML    string
}

// NewLockoutAlertData fills the template data from config
func NewLockoutAlertData(cfg *EmailConfig, username string, lockedUntil time.Time) LockoutAlertData {
	return LockoutAlertData{
		Username:    username,
		LockedUntil: lockedUntil.UTC().Format(time.RFC1123),
		BrandName:   cfg.Branding.Name,
		Website:     cfg.Branding.Website,
		Intro:       cfg.LockoutAlert.Intro,
		Advice:      cfg.LockoutAlert.Advice,
	}
}

// RenderLockoutAlert renders the subject, plain text and HTML bodies
func RenderLockoutAlert(username string, lockedUntil time.Time) (*LockoutAlert, error) {
	cfg, err := LoadEmailConfig()
	if err != nil {
		return nil, err
	}
	data := NewLockoutAlertData(cfg, username, lockedUntil)

	subject, err := renderText("lockout-alert-subject", cfg.Subjects.LockoutAlert, data)
	if err != nil {
		return nil, err
	}

	textBody, err := renderFile("emails/lockout-alert.txt", data, false)
	if err != nil {
		return nil, err
	}

	htmlBody, err := renderFile("emails/lockout-alert.html", data, true)
	if err != nil {
		return nil, err
	}

	return &LockoutAlert{Subject: subject, Text: textBody, HTML: htmlBody}, nil
}

func renderFile(name string, data interface{}, html bool) (string, error) {
	tmplData, err := emailTemplates.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	if !html {
		return renderText(name, string(tmplData), data)
	}

	tmpl, err := template.New(name).Parse(string(tmplData))
	if err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute %s: %w", name, err)
	}
	return buf.String(), nil
}

func renderText(name, text string, data interface{}) (string, error) {
	tmpl, err := textTemplate.New(name).Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute %s: %w", name, err)
	}
	return buf.String(), nil
}
