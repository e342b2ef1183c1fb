package notification

import (
	htmltemplate "html/template"
	"text/template"
)

type downloadLink struct {
	ProductName string
	URL         string
}

type mailView struct {
	AppName      string
	CustomerName string
	OrderNumber  string
	OrderDate    string
	Items        []itemView
	Subtotal     string
	Tax          string
	Discount     string
	Total        string
	Downloads    []downloadLink
	OrderPageURL string
}

type itemView struct {
	Name     string
	Quantity int
	Price    string
	Subtotal string
}

var textTemplate = template.Must(template.New("text").Parse(`Hi {{.CustomerName}},

Thank you for your purchase! Your payment for order {{.OrderNumber}} has been received.

Order date: {{.OrderDate}}
{{range .Items}}
- {{.Name}} x{{.Quantity}}  {{.Subtotal}}{{end}}

Subtotal: {{.Subtotal}}{{if .Tax}}
Tax: {{.Tax}}{{end}}{{if .Discount}}
Discount: -{{.Discount}}{{end}}
Total: {{.Total}}
{{if .Downloads}}
Your downloads:
{{range .Downloads}}
- {{.ProductName}}: {{.URL}}{{end}}
{{end}}
View your order: {{.OrderPageURL}}

{{.AppName}}
`))

var htmlTemplate = htmltemplate.Must(htmltemplate.New("html").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>Order Confirmation</title></head>
<body style="font-family: Arial, sans-serif; color: #333; max-width: 600px; margin: 0 auto;">
<h1>Order Confirmed</h1>
<p>Hi {{.CustomerName}},</p>
<p>Thank you for your purchase! Your payment for order <strong>{{.OrderNumber}}</strong> has been received.</p>
<table width="100%" cellpadding="6" style="border-collapse: collapse;">
<tr><th align="left">Product</th><th>Qty</th><th align="right">Price</th><th align="right">Subtotal</th></tr>
{{range .Items}}<tr><td>{{.Name}}</td><td align="center">{{.Quantity}}</td><td align="right">{{.Price}}</td><td align="right">{{.Subtotal}}</td></tr>
{{end}}<tr><td colspan="3" align="right">Subtotal</td><td align="right">{{.Subtotal}}</td></tr>
{{if .Tax}}<tr><td colspan="3" align="right">Tax</td><td align="right">{{.Tax}}</td></tr>
{{end}}{{if .Discount}}<tr><td colspan="3" align="right">Discount</td><td align="right">-{{.Discount}}</td></tr>
{{end}}<tr><td colspan="3" align="right"><strong>Total</strong></td><td align="right"><strong>{{.Total}}</strong></td></tr>
</table>
{{if .Downloads}}<h2>Your Downloads</h2>
{{range .Downloads}}<p>{{.ProductName}}: <a href="{{.URL}}">Download</a></p>
{{end}}{{end}}
<p><a href="{{.OrderPageURL}}">View your order</a></p>
<p>{{.AppName}}</p>
</body>
</html>
`))
