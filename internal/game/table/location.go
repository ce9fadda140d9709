package table

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/klondike/klondike-server-go/internal/game/cards"
)

// Location names a container on the table: a pile, a foundation, the waste
// or the stock. The set of implementations is closed to this package.
type Location interface {
	isLocation()
	String() string
}

// PileRef refers to pile ID (1..PileCount).
type PileRef struct {
	ID int
}

// FoundationRef refers to the foundation for Suit.
type FoundationRef struct {
	Suit cards.Suit
}

// WasteRef refers to the face-up waste.
type WasteRef struct{}

// StockRef refers to the face-down stock.
type StockRef struct{}

func (PileRef) isLocation()       {}
func (FoundationRef) isLocation() {}
func (WasteRef) isLocation()      {}
func (StockRef) isLocation()      {}

func (p PileRef) String() string       { return fmt.Sprintf("pile %d", p.ID) }
func (f FoundationRef) String() string { return fmt.Sprintf("foundation %s", f.Suit) }
func (WasteRef) String() string        { return "waste" }
func (StockRef) String() string        { return "stock" }

// Location kinds used on the wire.
const (
	KindPile       = "pile"
	KindFoundation = "foundation"
	KindWaste      = "waste"
	KindStock      = "stock"
)

// LocationView is the flat, serialisable form of a Location.
type LocationView struct {
	Kind string `json:"kind"`
	Pile int    `json:"pile,omitempty"`
	Suit string `json:"suit,omitempty"`
}

// ViewOf flattens loc. A nil location yields the zero view.
func ViewOf(loc Location) LocationView {
	switch l := loc.(type) {
	case PileRef:
		return LocationView{Kind: KindPile, Pile: l.ID}
	case FoundationRef:
		return LocationView{Kind: KindFoundation, Suit: l.Suit.String()}
	case WasteRef:
		return LocationView{Kind: KindWaste}
	case StockRef:
		return LocationView{Kind: KindStock}
	case nil:
		return LocationView{}
	default:
		panic(fmt.Sprintf("unhandled location %T", loc))
	}
}

// Resolve turns a view back into a Location. An empty kind resolves to nil,
// meaning "nowhere".
func (v LocationView) Resolve() (Location, error) {
	switch strings.ToLower(v.Kind) {
	case "":
		return nil, nil
	case KindPile:
		if v.Pile < 1 || v.Pile > PileCount {
			return nil, fmt.Errorf("pile %d out of range", v.Pile)
		}
		return PileRef{ID: v.Pile}, nil
	case KindFoundation:
		for _, suit := range cards.Suits {
			if strings.EqualFold(suit.String(), v.Suit) || strings.EqualFold(suit.Code(), v.Suit) {
				return FoundationRef{Suit: suit}, nil
			}
		}
		return nil, fmt.Errorf("unknown suit %q", v.Suit)
	case KindWaste:
		return WasteRef{}, nil
	case KindStock:
		return StockRef{}, nil
	default:
		return nil, fmt.Errorf("unknown location kind %q", v.Kind)
	}
}

func (p PileRef) MarshalJSON() ([]byte, error)       { return json.Marshal(ViewOf(p)) }
func (f FoundationRef) MarshalJSON() ([]byte, error) { return json.Marshal(ViewOf(f)) }
func (w WasteRef) MarshalJSON() ([]byte, error)      { return json.Marshal(ViewOf(w)) }
func (s StockRef) MarshalJSON() ([]byte, error)      { return json.Marshal(ViewOf(s)) }
