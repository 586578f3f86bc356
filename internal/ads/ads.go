// Package ads holds the static advertisement catalog. Watching an ad grants
// the viewer one additional unit of API key quota, at most once per ad per
// calendar day.
package ads

// Ad is one catalog entry.
type Ad struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
	Reward      int    `json:"reward"`
	Sponsor     string `json:"sponsor"`
	ButtonText  string `json:"button_text"`
	Active      bool   `json:"active"`
}

// Catalog settings.
const (
	// WatchDuration is how long a viewer must watch, in seconds.
	WatchDuration = 5
	// DefaultReward is the quota increase granted per ad.
	DefaultReward = 1
	// MaxAdsPerDay caps how many ads a user may be rewarded for in one day.
	MaxAdsPerDay = 10
)

// catalog is the full ad inventory, active or not.
var catalog = []Ad{
	{
		ID:          1,
		Title:       "Okitakoy Inc.",
		Description: "Solutions IA innovantes - Gagnez +1 clé API",
		ImageURL:    "https://images.unsplash.com/photo-1620712943543-bcc4688e7485?w=400&h=250&fit=crop",
		Reward:      1,
		Sponsor:     "Okitakoy Inc.",
		ButtonText:  "Regarder",
		Active:      true,
	},
	{
		ID:          2,
		Title:       "Python Academy",
		Description: "Maîtrisez Python - Gagnez +1 clé API",
		ImageURL:    "https://images.unsplash.com/photo-1461749280684-dccba630e2f6?w=400&h=250&fit=crop",
		Reward:      1,
		Sponsor:     "Python Academy",
		ButtonText:  "Regarder",
		Active:      true,
	},
	{
		ID:          3,
		Title:       "WebHost Pro",
		Description: "Hébergement cloud - Gagnez +1 clé API",
		ImageURL:    "https://images.unsplash.com/photo-1558494949-ef010cbdcc31?w=400&h=250&fit=crop",
		Reward:      1,
		Sponsor:     "WebHost Pro",
		ButtonText:  "Regarder",
		Active:      true,
	},
	{
		ID:          4,
		Title:       "Café Dev",
		Description: "Communauté de développeurs - Gagnez +1 clé API",
		ImageURL:    "https://images.unsplash.com/photo-1510915361894-db8b60106cb1?w=400&h=250&fit=crop",
		Reward:      1,
		Sponsor:     "Café Dev",
		ButtonText:  "Regarder",
		Active:      true,
	},
}

// Active returns the ads currently shown to users.
func Active() []Ad {
	result := make([]Ad, 0, len(catalog))
	for _, ad := range catalog {
		if ad.Active {
			result = append(result, ad)
		}
	}
	return result
}

// ByID returns the ad with the given id, active or not.
func ByID(id int) (Ad, bool) {
	for _, ad := range catalog {
		if ad.ID == id {
			return ad, true
		}
	}
	return Ad{}, false
}
