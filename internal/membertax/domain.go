package membertax

// Configuration charges a flat ISK amount per main character for every corp
// whose members hold a given membership state.
type Configuration struct {
	ID         int64  `json:"id"`
	State      string `json:"state"`
	IskPerMain int64  `json:"isk_per_main"`
}

// CorpMainCount is the number of main characters a corp contributes to a state.
type CorpMainCount struct {
	CorporationID   int64
	CorporationName string
	MainCount       int
}

// Invoice is the per-corp head tax statement.
type Invoice struct {
	CorporationID   int64  `json:"corporation_id"`
	CorporationName string `json:"corporation_name"`
	CEOID           int64  `json:"ceo_id"`
	MemberCount     int    `json:"member_count"`
	MainCount       int    `json:"main_count"`
	Tax             int64  `json:"tax"`
}

// Stats summarises invoice data across all corps.
type Stats struct {
	Corps map[string]int `json:"corps"`
	Total int64          `json:"total"`
}
