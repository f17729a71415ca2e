package mail

import "strings"

// Template renders an email from a body with {placeholder} markers.
// Recognized placeholders for the reset flow are {reset_code} and
// {reset_code_expire_minutes}.
type Template struct {
	Sender  string
	Subject string
	Body    string
}

// Render substitutes every "{key}" occurrence in the body with its value.
// Unknown placeholders are left as-is.
func (t Template) Render(vars map[string]string) (subject, body string) {
	body = t.Body
	for k, v := range vars {
		body = strings.ReplaceAll(body, "{"+k+"}", v)
	}
	return t.Subject, body
}
