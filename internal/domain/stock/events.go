package stock

import "time"

const (
	EventStockProvisioned = "StockProvisioned"
	EventStockReserved    = "StockReserved"
	EventStockRestocked   = "StockRestocked"
	EventStockReleased    = "StockReleased"
)

type StockProvisioned struct {
	AgencyID      string    `json:"agency_id"`
	Name          string    `json:"name"`
	Capacity      int       `json:"capacity"`
	Available     int       `json:"available"`
	ProvisionedAt time.Time `json:"provisioned_at"`
}

type StockReserved struct {
	AgencyID   string    `json:"agency_id"`
	Quantity   int       `json:"quantity"`
	Available  int       `json:"available"`
	ReservedAt time.Time `json:"reserved_at"`
}

type StockRestocked struct {
	AgencyID    string    `json:"agency_id"`
	Quantity    int       `json:"quantity"`
	Available   int       `json:"available"`
	RestockedAt time.Time `json:"restocked_at"`
}

// StockReleased records units handed back by a cancelled booking.
type StockReleased struct {
	AgencyID   string    `json:"agency_id"`
	Quantity   int       `json:"quantity"`
	Available  int       `json:"available"`
	ReleasedAt time.Time `json:"released_at"`
}
