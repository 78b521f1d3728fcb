package models

// OutputRecord is the published schema read by the front end.
// No field is ever emitted as null: absent data maps to "", [] or TBA.
type OutputRecord struct {
	ID               int64    `json:"ID"`
	Title            string   `json:"Title"`
	ReleaseDate      string   `json:"ReleaseDate"`
	ImageURL         string   `json:"ImageURL"`
	StoreURL         string   `json:"StoreURL"`
	VideoURL         string   `json:"VideoURL"`
	Metacritic       int      `json:"Metacritic"`
	AddedCount       int      `json:"AddedCount"`
	Rating           float64  `json:"Rating"`
	ShortScreenshots []string `json:"ShortScreenshots"`
	Genres           []string `json:"Genres"`
	Tags             []string `json:"Tags"`
	Platforms        []string `json:"Platforms"`
	Specs            Specs    `json:"Specs"`
}

// Specs holds PC system requirements
type Specs struct {
	Min string `json:"Min"`
	Rec string `json:"Rec"`
}

// DailyDocument is the content of the daily feed file
type DailyDocument struct {
	NewReleases []OutputRecord `json:"NewReleases"`
	Upcoming    []OutputRecord `json:"Upcoming"`
}

// MonthlyDocument is the content of the monthly feed file
type MonthlyDocument struct {
	HallOfFame []OutputRecord `json:"HallOfFame"`
}
