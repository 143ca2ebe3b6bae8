package service

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/shopspring/decimal"

	"storefront-payments/internal/config"
	"storefront-payments/internal/model"
	"storefront-payments/internal/money"
)

type emailStrings struct {
	Thanks    string
	Intro     string
	Items     string
	Qty       string
	Total     string
	Delivery  string
	Questions string
	Subject   string // order number is appended
}

var emailLocales = map[string]emailStrings{
	"ru": {
		Thanks:    "Спасибо за заказ!",
		Intro:     "Мы приняли оплату и начали сборку. Ниже детали вашего заказа.",
		Items:     "Состав заказа",
		Qty:       "Количество",
		Total:     "Итого",
		Delivery:  "Доставка",
		Questions: "Вопросы по заказу?",
		Subject:   "Заказ №%s оплачен",
	},
	"en": {
		Thanks:    "Thank you for your order!",
		Intro:     "We received your payment and started preparing your order. Details below.",
		Items:     "Order items",
		Qty:       "Qty",
		Total:     "Total",
		Delivery:  "Delivery",
		Questions: "Questions about your order?",
		Subject:   "Order #%s paid",
	},
	"fr": {
		Thanks:    "Merci pour votre commande !",
		Intro:     "Nous avons reçu votre paiement et préparons votre commande. Détails ci-dessous.",
		Items:     "Articles de la commande",
		Qty:       "Qté",
		Total:     "Total",
		Delivery:  "Livraison",
		Questions: "Des questions sur votre commande ?",
		Subject:   "Commande n°%s payée",
	},
	"es": {
		Thanks:    "¡Gracias por tu pedido!",
		Intro:     "Hemos recibido tu pago y empezamos a preparar tu pedido. Detalles abajo.",
		Items:     "Artículos del pedido",
		Qty:       "Cant.",
		Total:     "Total",
		Delivery:  "Entrega",
		Questions: "¿Preguntas sobre tu pedido?",
		Subject:   "Pedido nº%s pagado",
	},
}

func localeFor(lang string) emailStrings {
	if s, ok := emailLocales[lang]; ok {
		return s
	}
	return emailLocales["en"]
}

var currencySymbols = map[string]string{
	"RUB": "₽",
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
}

// fmtMoney renders an amount the way the locale expects: comma decimals
// and trailing symbol for ru/fr/es, leading symbol and dot decimals for en.
func fmtMoney(amount decimal.Decimal, currency, lang string) string {
	s := amount.StringFixed(money.MinorUnits(currency))
	symbol, ok := currencySymbols[strings.ToUpper(currency)]
	if !ok {
		symbol = strings.ToUpper(currency)
	}
	if lang == "en" {
		return symbol + s
	}
	return strings.ReplaceAll(s, ".", ",") + " " + symbol
}

type receiptItem struct {
	Name     string
	Variant  string
	Qty      int32
	ImageURL string
	Line     string
}

type receiptData struct {
	T           emailStrings
	Lang        string
	OrderNumber string
	Items       []receiptItem
	Total       string
	Address     string
	Delivery    string
	LogoURL     string
	SiteURL     string
	Support     string
}

var receiptTmpl = template.Must(template.New("receipt").Parse(`<!doctype html>
<html lang="{{.Lang}}"><head><meta charset="utf-8"><title>Order {{.OrderNumber}}</title></head>
<body style="margin:0; background:#F9FAFB; font-family:ui-sans-serif,-apple-system,Segoe UI,Roboto,Helvetica,Arial;">
  <table role="presentation" cellpadding="0" cellspacing="0" width="100%">
    <tr><td align="center" style="padding:32px 16px;">
      <table role="presentation" cellpadding="0" cellspacing="0" width="100%" style="max-width:640px; background:#FFFFFF; border-radius:16px;">
        <tr><td style="padding:24px 28px; border-bottom:1px solid #F3F4F6;">
          <table width="100%"><tr>
            <td>{{if .LogoURL}}<img src="{{.LogoURL}}" alt="" height="32" style="display:block">{{end}}</td>
            <td align="right" style="font-size:12px; color:#6B7280;">№ {{.OrderNumber}}</td>
          </tr></table>
        </td></tr>
        <tr><td style="padding:24px 28px;">
          <h1 style="margin:0 0 8px; font-size:20px; color:#111827;">{{.T.Thanks}}</h1>
          <p style="margin:0; color:#374151; font-size:14px;">{{.T.Intro}}</p>
        </td></tr>
        <tr><td style="padding:0 28px 8px; font-weight:600; font-size:14px; color:#111827;">{{.T.Items}}</td></tr>
        <tr><td style="padding:0 28px 8px;">
          <table role="presentation" width="100%" cellpadding="0" cellspacing="0">
          {{range .Items}}
            <tr>
              <td style="padding:12px 0;">
                {{if .ImageURL}}<img src="{{.ImageURL}}" width="64" height="64" style="border-radius:8px" alt="">{{end}}
                <div style="font-weight:600; font-size:14px; color:#111827">{{.Name}}</div>
                {{if .Variant}}<div style="font-size:12px; color:#6B7280">{{.Variant}}</div>{{end}}
                <div style="font-size:12px; color:#6B7280">{{$.T.Qty}}: {{.Qty}}</div>
              </td>
              <td style="padding:12px 0; text-align:right; font-weight:600; color:#111827;">{{.Line}}</td>
            </tr>
          {{end}}
          </table>
        </td></tr>
        <tr><td style="padding:16px 28px;">
          <table width="100%"><tr>
            <td style="color:#6B7280; font-size:14px;">{{.T.Total}}</td>
            <td align="right" style="font-weight:700; color:#111827; font-size:16px;">{{.Total}}</td>
          </tr></table>
        </td></tr>
        <tr><td style="padding:8px 28px 20px;">
          <div style="background:#F9FAFB; border:1px solid #E5E7EB; border-radius:12px; padding:12px 14px;">
            <div style="font-weight:600; color:#111827; font-size:14px;">{{.T.Delivery}}</div>
            <div style="color:#374151; font-size:14px;">{{.Delivery}}{{if .Address}} • {{.Address}}{{end}}</div>
          </div>
        </td></tr>
        <tr><td style="padding:0 28px 24px; color:#6B7280; font-size:12px;">
          {{.T.Questions}} <a href="mailto:{{.Support}}" style="color:#111827;">{{.Support}}</a>
          • <a href="{{.SiteURL}}" style="color:#111827;">{{.SiteURL}}</a>
        </td></tr>
      </table>
    </td></tr>
  </table>
</body></html>`))

func renderReceiptHTML(order *model.Order, cfg *config.Notify) (string, error) {
	t := localeFor(order.Language)

	items := make([]receiptItem, 0, len(order.Items))
	for _, it := range order.Items {
		line := it.Price.Mul(decimal.NewFromInt32(it.Quantity))
		items = append(items, receiptItem{
			Name:     it.Name,
			Variant:  strings.Join(nonEmpty(it.Size, it.Color), " • "),
			Qty:      it.Quantity,
			ImageURL: it.ImageURL,
			Line:     fmtMoney(line, order.Currency, order.Language),
		})
	}

	delivery := order.DeliveryMethod
	if delivery == "" {
		delivery = "courier"
	}

	data := receiptData{
		T:           t,
		Lang:        order.Language,
		OrderNumber: order.OrderNumber,
		Items:       items,
		Total:       fmtMoney(order.Total, order.Currency, order.Language),
		Address:     formatAddress(order),
		Delivery:    delivery,
		LogoURL:     cfg.BrandLogoURL,
		SiteURL:     cfg.SiteURL,
		Support:     cfg.SupportEmail,
	}

	var b strings.Builder
	if err := receiptTmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render receipt: %w", err)
	}
	return b.String(), nil
}

func emailSubject(order *model.Order) string {
	return fmt.Sprintf(localeFor(order.Language).Subject, order.OrderNumber)
}

func formatAddress(order *model.Order) string {
	parts := nonEmpty(order.Country, order.City, order.Street)
	if order.Building != "" {
		parts = append(parts, "д."+order.Building)
	}
	if order.Apartment != "" {
		parts = append(parts, "кв."+order.Apartment)
	}
	if order.Zip != "" {
		parts = append(parts, order.Zip)
	}
	return strings.Join(parts, ", ")
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// opsSummary is the plain-text mail for the internal mailbox.
func opsSummary(order *model.Order) (subject, body string) {
	var lines []string
	for _, it := range order.Items {
		line := it.Price.Mul(decimal.NewFromInt32(it.Quantity))
		lines = append(lines, fmt.Sprintf("• %s × %d = %s",
			it.Name, it.Quantity, fmtMoney(line, order.Currency, order.Language)))
	}

	subject = fmt.Sprintf("Новый оплаченный заказ %s", order.OrderNumber)
	body = fmt.Sprintf("Сумма: %s\nКлиент: %s\nДоставка: %s\n%s",
		fmtMoney(order.Total, order.Currency, order.Language),
		order.CustomerEmail,
		order.DeliveryMethod,
		strings.Join(lines, "\n"))
	return subject, body
}

type pushTemplate struct {
	Title string
	Body  string // order number slot
}

var pushTemplates = map[string]map[string]pushTemplate{
	"order_created": {
		"ru": {"Заказ принят", "Ваш заказ №%s оформлен. Мы уже собираем его."},
		"en": {"Order received", "Your order #%s has been placed."},
		"fr": {"Commande reçue", "Votre commande n°%s a été passée."},
		"es": {"Pedido recibido", "Tu pedido #%s ha sido realizado."},
	},
	"order_paid": {
		"ru": {"Оплата подтверждена", "Оплата заказа №%s прошла успешно."},
		"en": {"Payment confirmed", "Order #%s payment confirmed."},
		"fr": {"Paiement confirmé", "Paiement de la commande n°%s confirmé."},
		"es": {"Pago confirmado", "Pago del pedido #%s confirmado."},
	},
	"order_shipped": {
		"ru": {"Заказ отправлен", "Заказ №%s передан службе доставки."},
		"en": {"Order shipped", "Order #%s has been shipped."},
		"fr": {"Commande expédiée", "La commande n°%s a été expédiée."},
		"es": {"Pedido enviado", "El pedido #%s ha sido enviado."},
	},
	"order_delivered": {
		"ru": {"Заказ доставлен", "Заказ №%s доставлен."},
		"en": {"Delivered", "Order #%s has been delivered."},
		"fr": {"Livré", "La commande n°%s a été livrée."},
		"es": {"Entregado", "El pedido #%s ha sido entregado."},
	},
}

func pushMessageFor(kind, lang, orderNumber string) (title, body string, ok bool) {
	byLang, ok := pushTemplates[kind]
	if !ok {
		return "", "", false
	}
	t, ok := byLang[lang]
	if !ok {
		t = byLang["en"]
	}
	return t.Title, fmt.Sprintf(t.Body, orderNumber), true
}
