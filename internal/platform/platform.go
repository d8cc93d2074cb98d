package platform

import (
	"fmt"
	"strings"
)

// Platform is the closed set of supported marketplaces. Every per-platform decision in
// the codebase is an exhaustive switch over these values, so adding a marketplace
// means adding a constant here and fixing each switch the compiler points at.
type Platform int

const (
	Shopee Platform = iota + 1
	Lazada
	Tiki
)

// All returns every supported platform in a stable order.
func All() []Platform {
	return []Platform{Lazada, Shopee, Tiki}
}

// Parse converts a user-supplied name into a Platform.
func Parse(name string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "shopee":
		return Shopee, nil
	case "lazada":
		return Lazada, nil
	case "tiki":
		return Tiki, nil
	default:
		return 0, fmt.Errorf("unsupported platform %q (supported: lazada, shopee, tiki)", name)
	}
}

func (p Platform) String() string {
	switch p {
	case Shopee:
		return "shopee"
	case Lazada:
		return "lazada"
	case Tiki:
		return "tiki"
	default:
		return fmt.Sprintf("platform(%d)", int(p))
	}
}

// Valid reports whether p is one of the known platforms.
func (p Platform) Valid() bool {
	switch p {
	case Shopee, Lazada, Tiki:
		return true
	default:
		return false
	}
}

// Collection is the name of the raw store partition (collection, table value,
// directory) holding this platform's captures.
func (p Platform) Collection() string {
	return p.String()
}

// IDPath is the dotted path of the canonical item id inside a stored document.
func (p Platform) IDPath() string {
	switch p {
	case Shopee:
		return "responseBody.data.item.item_id"
	case Lazada:
		return "responseBody.itemId"
	case Tiki:
		return "id"
	default:
		panic(fmt.Sprintf("IDPath: unknown platform %d", int(p)))
	}
}

// UsesProxy reports whether captures come through the scraping proxy envelope.
func (p Platform) UsesProxy() bool {
	switch p {
	case Shopee, Lazada:
		return true
	case Tiki:
		return false
	default:
		panic(fmt.Sprintf("UsesProxy: unknown platform %d", int(p)))
	}
}

// MarshalText lets platforms appear as map keys and strings in JSON output.
func (p Platform) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("unknown platform %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Platform) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
