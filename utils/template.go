package utils

import (
	"bytes"
	"fmt"
	"html/template"

	"leadpulse/models"
)

// TemplateData exposes the lead fields step templates may reference, e.g.
// {{.FirstName}} or {{.Company}}.
type TemplateData struct {
	Email     string
	FirstName string
	LastName  string
	Company   string
	Position  string
}

// RenderStepTemplate renders a sequence step's subject and body against a
// lead's fields.
func RenderStepTemplate(step models.SequenceStep, lead models.Lead) (subject, body string, err error) {
	data := TemplateData{
		Email:     lead.Email,
		FirstName: lead.FirstName,
		LastName:  lead.LastName,
		Company:   lead.Company,
		Position:  lead.Position,
	}

	subject, err = renderTemplate("subject", step.Subject, data)
	if err != nil {
		return "", "", fmt.Errorf("failed to render subject: %w", err)
	}

	body, err = renderTemplate("body", step.Body, data)
	if err != nil {
		return "", "", fmt.Errorf("failed to render body: %w", err)
	}

	return subject, body, nil
}

func renderTemplate(name, text string, data TemplateData) (string, error) {
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
