package domain

// Market classifies where an instrument trades.
type Market int

// Market identifiers. 2/4/5 are the exchange-assigned ids for the listed,
// over-the-counter and emerging boards; public subscription issues use 1.
const (
	MarketPublic         Market = 1
	MarketListed         Market = 2
	MarketOverTheCounter Market = 4
	MarketEmerging       Market = 5
)

// Exchange is the umbrella above Market.
type Exchange int

// Exchanges.
const (
	ExchangeNone Exchange = iota
	ExchangeTWSE
	ExchangeTPEx
)

// MarketDescriptor describes a market dictionary row.
type MarketDescriptor struct {
	ID       Market
	Name     string
	Exchange Exchange
}

// Exchange returns the exchange a market belongs to.
func (m Market) Exchange() Exchange {
	switch m {
	case MarketListed:
		return ExchangeTWSE
	case MarketOverTheCounter, MarketEmerging:
		return ExchangeTPEx
	default:
		return ExchangeNone
	}
}

// String implements fmt.Stringer.
func (m Market) String() string {
	switch m {
	case MarketPublic:
		return "公開發行"
	case MarketListed:
		return "上市"
	case MarketOverTheCounter:
		return "上櫃"
	case MarketEmerging:
		return "興櫃"
	default:
		return "未知"
	}
}

// ExchangeMarkets is the immutable market dictionary.
var ExchangeMarkets = map[Market]MarketDescriptor{
	MarketPublic:         {ID: MarketPublic, Name: "公開發行", Exchange: ExchangeNone},
	MarketListed:         {ID: MarketListed, Name: "上市", Exchange: ExchangeTWSE},
	MarketOverTheCounter: {ID: MarketOverTheCounter, Name: "上櫃", Exchange: ExchangeTPEx},
	MarketEmerging:       {ID: MarketEmerging, Name: "興櫃", Exchange: ExchangeTPEx},
}

// Industries is the immutable industry dictionary, keyed by the name the
// exchanges publish.
var Industries = map[string]int{
	"水泥工業":    1,
	"食品工業":    2,
	"塑膠工業":    3,
	"紡織纖維":    4,
	"電機機械":    5,
	"電器電纜":    6,
	"化學工業":    7,
	"生技醫療業":   8,
	"玻璃陶瓷":    9,
	"造紙工業":    10,
	"鋼鐵工業":    11,
	"橡膠工業":    12,
	"汽車工業":    13,
	"半導體業":    14,
	"電腦及週邊設備業": 15,
	"光電業":     16,
	"通信網路業":   17,
	"電子零組件業":  18,
	"電子通路業":   19,
	"資訊服務業":   20,
	"其他電子業":   21,
	"建材營造業":   22,
	"航運業":     23,
	"觀光餐旅":    24,
	"金融保險業":   25,
	"貿易百貨業":   26,
	"油電燃氣業":   27,
	"綜合":      28,
	"綠能環保":    29,
	"數位雲端":    30,
	"運動休閒":    31,
	"居家生活":    32,
	"其他業":     33,
	"文化創意業":   34,
	"農業科技業":   35,
	"電子商務":    36,
	"存託憑證":    37,
	"未分類":     99,
}

// industryNames is the reverse lookup, built once at init.
var industryNames = func() map[int]string {
	m := make(map[int]string, len(Industries))
	for name, id := range Industries {
		m[id] = name
	}
	return m
}()

// IndustryID resolves an industry name to its id; unknown names map to the
// unclassified bucket.
func IndustryID(name string) int {
	if id, ok := Industries[name]; ok {
		return id
	}
	return Industries["未分類"]
}

// IndustryName resolves an industry id back to its name.
func IndustryName(id int) string {
	if name, ok := industryNames[id]; ok {
		return name
	}
	return "未分類"
}
