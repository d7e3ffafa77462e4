package service

import "strings"

// Brand is the cosmetic identity rendered next to a message: a display
// name plus icon/color hints for the client.
type Brand struct {
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

type brandRule struct {
	match string
	brand Brand
}

// Order matters: the first substring hit wins, so more specific
// entries go before generic ones (e.g. "whatsapp business" before
// "whatsapp" would need to be listed first).
var brandRules = []brandRule{
	{"whatsapp", Brand{Name: "WhatsApp", Icon: "whatsapp", Color: "#25D366"}},
	{"telegram", Brand{Name: "Telegram", Icon: "telegram", Color: "#0088CC"}},
	{"google", Brand{Name: "Google", Icon: "google", Color: "#4285F4"}},
	{"amazon", Brand{Name: "Amazon", Icon: "amazon", Color: "#FF9900"}},
	{"apple", Brand{Name: "Apple", Icon: "apple", Color: "#000000"}},
	{"facebook", Brand{Name: "Facebook", Icon: "facebook", Color: "#1877F2"}},
	{"instagram", Brand{Name: "Instagram", Icon: "instagram", Color: "#E4405F"}},
	{"tiktok", Brand{Name: "TikTok", Icon: "tiktok", Color: "#010101"}},
	{"uber", Brand{Name: "Uber", Icon: "uber", Color: "#000000"}},
	{"netflix", Brand{Name: "Netflix", Icon: "netflix", Color: "#E50914"}},
	{"paypal", Brand{Name: "PayPal", Icon: "paypal", Color: "#00457C"}},
	{"microsoft", Brand{Name: "Microsoft", Icon: "microsoft", Color: "#5E5E5E"}},
	{"twitter", Brand{Name: "Twitter", Icon: "twitter", Color: "#1DA1F2"}},
	{"discord", Brand{Name: "Discord", Icon: "discord", Color: "#5865F2"}},
	{"airbnb", Brand{Name: "Airbnb", Icon: "airbnb", Color: "#FF5A5F"}},
	{"mercado", Brand{Name: "Mercado Libre", Icon: "mercadolibre", Color: "#FFE600"}},
	{"bbva", Brand{Name: "BBVA", Icon: "bank", Color: "#072146"}},
	{"santander", Brand{Name: "Santander", Icon: "bank", Color: "#EC0000"}},
}

var (
	brandPhone   = Brand{Name: "Número", Icon: "phone", Color: "#6B7280"}
	brandGeneric = Brand{Name: "Mensaje", Icon: "message", Color: "#6B7280"}
)

// ClassifyBrand resolves a sender/service name to a display brand by
// case-insensitive substring lookup. Unknown numeric senders render as
// a phone number, everything else as a generic message.
func ClassifyBrand(serviceName, sender string) Brand {
	for _, candidate := range []string{serviceName, sender} {
		lowered := strings.ToLower(candidate)
		for _, rule := range brandRules {
			if lowered != "" && strings.Contains(lowered, rule.match) {
				return rule.brand
			}
		}
	}
	if looksLikePhoneNumber(sender) {
		return brandPhone
	}
	return brandGeneric
}

func looksLikePhoneNumber(s string) bool {
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= 5
}

// normalizeNumber strips every non-digit so numbers compare equal
// regardless of formatting ("+34 612 345 678" == "34612345678").
func normalizeNumber(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
