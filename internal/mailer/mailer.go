// Package mailer sends transactional email. On the settlement path a failed
// send is logged and never retried; it must not roll back the order.
package mailer

import (
	"context"
	"fmt"
	"html/template"
	"strings"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Mailer sends a message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// DeliveryItem is one purchased e-book with its per-format grant tokens.
type DeliveryItem struct {
	Title  string
	Grants []DeliveryGrant
}

type DeliveryGrant struct {
	Format string
	Token  string
}

// DeliveryData feeds the delivery email template.
type DeliveryData struct {
	CustomerName string
	OrderRef     string
	AppURL       string
	Items        []DeliveryItem
}

var deliveryTmpl = template.Must(template.New("delivery").Parse(`<h2>Seus e-books estão prontos!</h2>
<p>Olá {{.CustomerName}}, seu pedido #{{.OrderRef}} foi confirmado.</p>
{{range .Items}}<h3>{{.Title}}</h3>
<ul>
{{range .Grants}}<li><a href="{{$.AppURL}}/api/download/{{.Token}}">Baixar {{.Format}}</a></li>
{{end}}</ul>
{{end}}<p>Você também encontra tudo na sua <a href="{{.AppURL}}/biblioteca">biblioteca</a>.</p>`))

// RenderDelivery renders the delivery email body.
func RenderDelivery(data DeliveryData) (string, error) {
	if data.CustomerName == "" {
		data.CustomerName = "Leitor"
	}
	var b strings.Builder
	if err := deliveryTmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("mailer: render delivery email: %w", err)
	}
	return b.String(), nil
}
