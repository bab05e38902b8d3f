package harvest

import (
	"github.com/gosimple/slug"
)

// TrackRef identifies one recording across the data sources
type TrackRef struct {
	Title string `json:"title"`
	ISRC  string `json:"isrc"`
	MBID  string `json:"mbid,omitempty"`
}

// demoTracks are known recordings used before any top-track lookup
var demoTracks = map[string][]TrackRef{
	slug.Make("Tame Impala"): {
		{"The Less I Know The Better", "AUUM71500463", "9b0a3376-472d-4a99-81f0-b713c5a42bd2"},
		{"Let It Happen", "AUUM71500454", "02e96794-46b4-4a10-b899-533f3c5b114a"},
		{"Feels Like We Only Go Backwards", "AUUM71201090", "d020d5fb-1c7e-4ed3-b035-9c0969a2c587"},
		{"Borderline", "AUUM71900654", "0dcd2a7a-7d22-4a0f-9cb1-5db3c944e8a3"},
		{"Lost In Yesterday", "AUUM72000066", "b1f4f8eb-6717-45e3-a4d1-c53c8815d9cd"},
	},
	slug.Make("Daft Punk"): {
		{"Get Lucky", "USQX91300108", "2cfad0f7-d015-4183-a9e2-f334bcca4a15"},
		{"One More Time", "GBDUW0000059", "0c121b24-3b5e-45ca-991d-9df8428fc727"},
		{"Around the World", "GBDUW0000062", "3a7a7a8f-e824-4b31-8a5d-d0df793dd528"},
		{"Harder, Better, Faster, Stronger", "GBDUW0000060", "6ec34427-8a1a-4198-9295-bcebfab19f30"},
		{"Instant Crush", "USQX91300102", "2c68d898-2c0c-4258-adbe-9dea40cb1610"},
	},
}

// DemoTracks returns the built-in recordings for artist, if any
func DemoTracks(artist string) ([]TrackRef, bool) {
	tracks, ok := demoTracks[slug.Make(artist)]
	return tracks, ok
}

// TrackFeatures is everything the sources returned for one recording
type TrackFeatures struct {
	TrackRef
	BPM          *float64 `json:"bpm,omitempty"`
	Gain         *float64 `json:"gain,omitempty"`
	Key          string   `json:"key,omitempty"`
	Mode         string   `json:"mode,omitempty"`
	Tempo        *float64 `json:"tempo,omitempty"`
	Danceability *float64 `json:"danceability,omitempty"`
	Moods        []string `json:"moods,omitempty"`
}

// HasData reports whether any source contributed a value
func (t TrackFeatures) HasData() bool {
	return t.BPM != nil || t.Gain != nil || t.Key != "" || t.Mode != "" ||
		t.Tempo != nil || t.Danceability != nil || len(t.Moods) > 0
}
