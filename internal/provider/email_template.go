package provider

import (
	"bytes"
	"html/template"
)

var emailTmpl = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html lang="ko">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width,initial-scale=1.0">
  <title>{{.Subject}}</title>
</head>
<body style="margin:0;padding:24px;background-color:#f4f4f5;font-family:'Apple SD Gothic Neo','Malgun Gothic',Arial,sans-serif;">
  <table width="100%" cellpadding="0" cellspacing="0" role="presentation" style="max-width:600px;margin:0 auto;background:#ffffff;border-radius:8px;">
    <tr>
      <td style="padding:24px 32px;border-bottom:3px solid #f59e0b;font-size:18px;font-weight:700;color:#111827;">{{.Subject}}</td>
    </tr>
    <tr>
      <td style="padding:24px 32px;font-size:15px;line-height:1.6;color:#374151;white-space:pre-line;">{{.Body}}</td>
    </tr>
    {{- if .Link}}
    <tr>
      <td style="padding:0 32px 32px;">
        <a href="{{.Link}}" style="display:inline-block;padding:10px 20px;background:#f59e0b;color:#111827;text-decoration:none;border-radius:6px;font-weight:600;">바로 가기</a>
      </td>
    </tr>
    {{- end}}
  </table>
</body>
</html>`))

func renderEmailHTML(msg EmailMessage) (string, error) {
	var buf bytes.Buffer
	if err := emailTmpl.Execute(&buf, msg); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// plainTextBody appends the link on its own line.
func plainTextBody(msg EmailMessage) string {
	if msg.Link == "" {
		return msg.Body
	}
	return msg.Body + "\n\n" + msg.Link
}
