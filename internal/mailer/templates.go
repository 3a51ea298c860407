package mailer

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"sort"
	texttemplate "text/template"
)

// Имена шаблонов писем.
const (
	TemplateApplicationReceived   = "application_received"
	TemplateApplicationApproved   = "application_approved"
	TemplateApplicationRejected   = "application_rejected"
	TemplateCancellationConfirmed = "cancellation_confirmed"
	TemplateTrialExpired          = "trial_expired"
	TemplateTrialExpiring         = "trial_expiring"
	TemplateServiceEnded          = "service_ended"
	TemplateAccessExpired         = "access_expired"
	TemplateAccessExpiring        = "access_expiring"
	TemplatePaymentFailed         = "payment_failed"
)

type source struct {
	subject string
	body    string
}

const layout = `{{define "layout"}}<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>UnitoPMS</title></head>
<body style="font-family: Arial, sans-serif; color: #1f2937;">
<p>Hello {{.host_name}},</p>
{{template "content" .}}
<p>The UnitoPMS team<br><a href="{{.frontend_url}}">{{.frontend_url}}</a></p>
</body>
</html>{{end}}`

var sources = map[string]source{
	TemplateApplicationReceived: {
		subject: "We received your application",
		body: `<p>Thank you for applying to host {{.company_name}} on UnitoPMS.</p>
<p>Our team will review your application and get back to you shortly.</p>`,
	},
	TemplateApplicationApproved: {
		subject: "Your UnitoPMS application has been approved",
		body: `<p>Good news: the application for {{.company_name}} has been approved.</p>
<p>Set your password to activate your account:</p>
<p><a href="{{.setup_url}}">Set your password</a></p>
<p>The link can be used once and expires in 72 hours.</p>`,
	},
	TemplateApplicationRejected: {
		subject: "Update on your UnitoPMS application",
		body: `<p>Unfortunately we are unable to approve the application for {{.company_name}} at this time.</p>
{{if .reason}}<p>Reason: {{.reason}}</p>{{end}}`,
	},
	TemplateCancellationConfirmed: {
		subject: "Your cancellation request has been received",
		body: `<p>We have received the cancellation request for {{.company_name}}.</p>
<p>Your service will end on <strong>{{.service_end_date}}</strong>.
You will keep read-only access to your data until <strong>{{.read_only_until}}</strong>.</p>`,
	},
	TemplateTrialExpired: {
		subject: "Your free trial has expired",
		body: `<p>The 14-day free trial for {{.company_name}} has ended and your portal is now read-only.</p>
<p><a href="{{.frontend_url}}/dashboard/subscription">Upgrade your plan</a> to restore full access.</p>`,
	},
	TemplateTrialExpiring: {
		subject: "Your free trial expires in {{.days_remaining}} day(s)",
		body: `<p>The free trial for {{.company_name}} expires in {{.days_remaining}} day(s).</p>
<p><a href="{{.frontend_url}}/dashboard/subscription">Choose a plan</a> to keep full access to your property management tools.</p>`,
	},
	TemplateServiceEnded: {
		subject: "Your UnitoPMS service has ended",
		body: `<p>The service for {{.company_name}} has ended.</p>
<p>You have read-only access to your data until <strong>{{.read_only_until}}</strong>. Export anything you need before then.</p>`,
	},
	TemplateAccessExpired: {
		subject: "Your UnitoPMS account has been deactivated",
		body: `<p>The read-only access period for {{.company_name}} is over and the account has been deactivated.</p>
<p>Thank you for using UnitoPMS.</p>`,
	},
	TemplateAccessExpiring: {
		subject: "Read-only access ends in {{.days_remaining}} day(s)",
		body: `<p>Read-only access for {{.company_name}} ends on <strong>{{.read_only_until}}</strong>.</p>
<p><a href="{{.frontend_url}}/dashboard/contract">Export your data</a> before then.</p>`,
	},
	TemplatePaymentFailed: {
		subject: "Payment failed: services suspended",
		body: `<p>We were unable to process the payment for {{.company_name}}.</p>
<p>You can still view bookings from connected OTAs, but all other services are suspended.
<a href="{{.frontend_url}}/dashboard/subscription">Update your payment method</a> to restore access.</p>`,
	},
}

type compiled struct {
	subject *texttemplate.Template
	body    *htmltemplate.Template
}

// Renderer собирает тему и HTML-тело письма по имени шаблона.
type Renderer struct {
	templates map[string]compiled
}

// NewRenderer разбирает все встроенные шаблоны.
func NewRenderer() (*Renderer, error) {
	const op = "mailer.NewRenderer"
	r := &Renderer{templates: make(map[string]compiled, len(sources))}
	for name, src := range sources {
		subject, err := texttemplate.New(name).Option("missingkey=zero").Parse(src.subject)
		if err != nil {
			return nil, fmt.Errorf("%s: subject %s: %w", op, name, err)
		}
		body, err := htmltemplate.New(name).Parse(layout)
		if err == nil {
			_, err = body.New("content").Parse(src.body)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: body %s: %w", op, name, err)
		}
		r.templates[name] = compiled{subject: subject, body: body}
	}
	return r, nil
}

// Render возвращает тему и тело письма.
func (r *Renderer) Render(name string, data map[string]any) (subject, body string, err error) {
	const op = "mailer.Render"
	tpl, ok := r.templates[name]
	if !ok {
		return "", "", fmt.Errorf("%s: unknown template %q", op, name)
	}
	var sb, bb bytes.Buffer
	if err := tpl.subject.Execute(&sb, data); err != nil {
		return "", "", fmt.Errorf("%s: %s: %w", op, name, err)
	}
	if err := tpl.body.ExecuteTemplate(&bb, "layout", data); err != nil {
		return "", "", fmt.Errorf("%s: %s: %w", op, name, err)
	}
	return sb.String(), bb.String(), nil
}

// Known сообщает, есть ли шаблон с таким именем.
func Known(name string) bool {
	_, ok := sources[name]
	return ok
}

// Names имена всех шаблонов в алфавитном порядке.
func Names() []string {
	res := make([]string, 0, len(sources))
	for name := range sources {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}
